package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream key used when none is configured.
const DefaultStream = "causal:telemetry"

// StreamWriter is the subset of the Redis client used by StreamSink.
// Implemented by *redis.Client and *redis.ClusterClient.
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamSink appends entries to a Redis stream with XADD, so external
// consumers (dashboards, inspectors) can tail the auditor.
//
// Write failures are logged and otherwise ignored: a sink must not fail the
// evaluation that produced the entry.
type StreamSink struct {
	client  StreamWriter
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *slog.Logger
}

// StreamOption configures a StreamSink.
type StreamOption func(*StreamSink)

// WithMaxLen caps the stream length (approximate trimming). Zero disables trimming.
func WithMaxLen(n int64) StreamOption {
	return func(s *StreamSink) { s.maxLen = n }
}

// WithStreamTimeout bounds each XADD. Default: 2s.
func WithStreamTimeout(d time.Duration) StreamOption {
	return func(s *StreamSink) { s.timeout = d }
}

// WithStreamLogger sets the logger used for write failures.
func WithStreamLogger(l *slog.Logger) StreamOption {
	return func(s *StreamSink) { s.logger = l }
}

// NewStreamSink creates a sink writing to stream. Empty stream means DefaultStream.
func NewStreamSink(client StreamWriter, stream string, opts ...StreamOption) *StreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	s := &StreamSink{
		client:  client,
		stream:  stream,
		timeout: 2 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisStreamSink connects to the Redis server at addr.
func NewRedisStreamSink(addr, password string, db int, stream string, opts ...StreamOption) *StreamSink {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewStreamSink(rdb, stream, opts...)
}

// Record appends e to the stream.
func (s *StreamSink) Record(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: streamValues(e),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		s.logger.Warn("telemetry stream write failed",
			"stream", s.stream,
			"type", string(e.Type),
			"law", e.LawName,
			"error", err,
		)
	}
}

func streamValues(e Entry) map[string]any {
	values := map[string]any{
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"type":      string(e.Type),
		"law":       e.LawName,
		"store":     e.StoreKey,
		"severity":  string(e.Severity),
		"message":   e.Message,
	}
	if e.UniverseID != "" {
		values["universe"] = e.UniverseID
	}
	if e.ObserverID != "" {
		values["observer"] = e.ObserverID
	}
	if e.EventID != "" {
		values["event_id"] = e.EventID
	}
	if len(e.Details) > 0 {
		if data, err := json.Marshal(e.Details); err == nil {
			values["details"] = string(data)
		}
	}
	return values
}
