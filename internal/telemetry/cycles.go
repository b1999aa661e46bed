package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/marcleai/statusboard/internal/worker"
)

// CycleInstruments exports refresh cycles through an OpenTelemetry meter.
// It implements worker.CycleObserver.
type CycleInstruments struct {
	cycles      metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
	services    metric.Int64Gauge
}

// NewCycleInstruments creates the instruments on meter.
func NewCycleInstruments(meter metric.Meter) (*CycleInstruments, error) {
	cycles, err := meter.Int64Counter("statusboard.refresh.cycles",
		metric.WithDescription("Completed refresh cycles"))
	if err != nil {
		return nil, fmt.Errorf("creating cycle counter: %w", err)
	}
	duration, err := meter.Float64Histogram("statusboard.refresh.duration",
		metric.WithDescription("Refresh cycle duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}
	transitions, err := meter.Int64Counter("statusboard.status.transitions",
		metric.WithDescription("Observed service status transitions"))
	if err != nil {
		return nil, fmt.Errorf("creating transition counter: %w", err)
	}
	services, err := meter.Int64Gauge("statusboard.services",
		metric.WithDescription("Services per status after the last cycle"))
	if err != nil {
		return nil, fmt.Errorf("creating services gauge: %w", err)
	}
	return &CycleInstruments{
		cycles:      cycles,
		duration:    duration,
		transitions: transitions,
		services:    services,
	}, nil
}

// ObserveCycle records one cycle.
func (c *CycleInstruments) ObserveCycle(res worker.CycleResult) {
	ctx := context.Background()
	overall := metric.WithAttributes(attribute.String("overall", string(res.Overall)))

	c.cycles.Add(ctx, 1, overall)
	c.duration.Record(ctx, res.Duration.Seconds(), overall)
	c.transitions.Add(ctx, int64(res.Transitions))

	for st, n := range map[string]int{
		"healthy":  res.Counts.Healthy,
		"degraded": res.Counts.Degraded,
		"down":     res.Counts.Down,
		"unknown":  res.Counts.Unknown,
	} {
		c.services.Record(ctx, int64(n), metric.WithAttributes(attribute.String("status", st)))
	}
}
