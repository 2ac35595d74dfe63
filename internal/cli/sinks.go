package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/roach88/causal/internal/config"
	"github.com/roach88/causal/internal/journal"
	"github.com/roach88/causal/internal/telemetry"
)

// MetricPoint is one counter series of causal.telemetry.entries.
type MetricPoint struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Law      string `json:"law"`
	Store    string `json:"store"`
	Count    int64  `json:"count"`
}

// sinks fans auditor telemetry out to the destinations enabled in config:
// the log always, the SQLite journal, a Redis stream and an in-process
// metrics reader.
type sinks struct {
	telemetry.Sink
	journal  *journal.Journal
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

func openSinks(cfg *config.Config, logger *slog.Logger) (*sinks, error) {
	s := &sinks{}
	all := []telemetry.Sink{telemetry.NewLogSink(logger)}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, journal.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.journal = j
		all = append(all, j)
	}

	if cfg.Redis.Addr != "" {
		all = append(all, telemetry.NewRedisStreamSink(
			cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Stream,
			telemetry.WithMaxLen(cfg.Redis.MaxLen),
			telemetry.WithStreamLogger(logger),
		))
	}

	if cfg.Metrics.Enabled {
		s.reader = sdkmetric.NewManualReader()
		s.provider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(s.reader))
		ms, err := telemetry.NewMetricsSink(s.provider.Meter(telemetry.InstrumentationName))
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		all = append(all, ms)
	}

	s.Sink = telemetry.Multi(all...)
	return s, nil
}

// Metrics collects the counter series, sorted. Nil when metrics are disabled.
func (s *sinks) Metrics(ctx context.Context) ([]MetricPoint, error) {
	if s.reader == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := s.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var points []MetricPoint
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				points = append(points, MetricPoint{
					Type:     attr(dp.Attributes, "type"),
					Severity: attr(dp.Attributes, "severity"),
					Law:      attr(dp.Attributes, "law"),
					Store:    attr(dp.Attributes, "store"),
					Count:    dp.Value,
				})
			}
		}
	}
	slices.SortFunc(points, func(a, b MetricPoint) int {
		return cmp.Or(
			cmp.Compare(a.Store, b.Store),
			cmp.Compare(a.Law, b.Law),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.Severity, b.Severity),
		)
	})
	return points, nil
}

func attr(set attribute.Set, key string) string {
	v, ok := set.Value(attribute.Key(key))
	if !ok {
		return ""
	}
	return v.AsString()
}

// Close releases the journal and the meter provider.
func (s *sinks) Close() error {
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if s.provider != nil {
		errs = append(errs, s.provider.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}
