package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the otel scope used for meters and tracers.
const InstrumentationName = "github.com/roach88/causal"

// MetricsSink counts entries with an OpenTelemetry counter, attributed by
// type, severity, law and store.
type MetricsSink struct {
	entries metric.Int64Counter
}

// NewMetricsSink registers the causal.telemetry.entries counter on meter.
// A nil meter means the global meter provider.
func NewMetricsSink(meter metric.Meter) (*MetricsSink, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	counter, err := meter.Int64Counter("causal.telemetry.entries",
		metric.WithDescription("Telemetry entries emitted by the constraint auditor"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create entries counter: %w", err)
	}
	return &MetricsSink{entries: counter}, nil
}

// Record increments the counter for e.
func (s *MetricsSink) Record(e Entry) {
	s.entries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", string(e.Type)),
		attribute.String("severity", string(e.Severity)),
		attribute.String("law", e.LawName),
		attribute.String("store", e.StoreKey),
	))
}
