package telemetry

import (
	"context"
	"log/slog"
)

// Sink receives every emitted entry synchronously, in emission order.
type Sink interface {
	Record(e Entry)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Entry)

// Record calls f.
func (f SinkFunc) Record(e Entry) {
	f(e)
}

// Multi forwards each entry to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var kept multi
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return kept
}

type multi []Sink

func (m multi) Record(e Entry) {
	for _, s := range m {
		s.Record(e)
	}
}

// LogSink writes entries to a structured logger, at a level matching the
// entry's severity.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger means slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

// Record logs e.
func (s *LogSink) Record(e Entry) {
	attrs := []slog.Attr{
		slog.String("type", string(e.Type)),
		slog.String("law", e.LawName),
		slog.String("store", e.StoreKey),
	}
	if e.UniverseID != "" {
		attrs = append(attrs, slog.String("universe", e.UniverseID))
	}
	if e.EventID != "" {
		attrs = append(attrs, slog.String("event_id", e.EventID))
	}
	if e.ObserverID != "" {
		attrs = append(attrs, slog.String("observer", e.ObserverID))
	}
	if len(e.Details) > 0 {
		attrs = append(attrs, slog.Any("details", e.Details))
	}
	s.Logger.LogAttrs(context.Background(), levelOf(e.Severity), e.Message, attrs...)
}

func levelOf(s Severity) slog.Level {
	switch s {
	case SeverityError:
		return slog.LevelError
	case SeverityWarn:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
