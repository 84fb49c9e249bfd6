package quota

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the quota instruments. A nil *Metrics records nothing.
type Metrics struct {
	Decisions    metric.Int64Counter
	Increments   metric.Int64Counter
	TamperEvents metric.Int64Counter
	LockTimeouts metric.Int64Counter
	LockWait     metric.Float64Histogram
}

// InitializeMetrics creates the quota instruments on meter
func InitializeMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Decisions, err = meter.Int64Counter("quota_decisions_total",
		metric.WithDescription("Quota evaluations by result"))
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	m.Increments, err = meter.Int64Counter("quota_downloads_recorded_total",
		metric.WithDescription("Free tier downloads recorded"))
	if err != nil {
		return nil, fmt.Errorf("failed to create increments counter: %w", err)
	}

	m.TamperEvents, err = meter.Int64Counter("quota_tamper_events_total",
		metric.WithDescription("Quota files reset because they failed to parse or verify"))
	if err != nil {
		return nil, fmt.Errorf("failed to create tamper counter: %w", err)
	}

	m.LockTimeouts, err = meter.Int64Counter("quota_lock_timeouts_total",
		metric.WithDescription("Quota lock acquisitions that timed out"))
	if err != nil {
		return nil, fmt.Errorf("failed to create lock timeout counter: %w", err)
	}

	m.LockWait, err = meter.Float64Histogram("quota_lock_wait_seconds",
		metric.WithDescription("Time spent waiting for the quota lock"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create lock wait histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordDecision(ctx context.Context, mode, result string) {
	if m == nil {
		return
	}
	m.Decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("result", result),
	))
}

func (m *Metrics) recordIncrement(ctx context.Context) {
	if m == nil {
		return
	}
	m.Increments.Add(ctx, 1)
}

func (m *Metrics) recordTamper(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.TamperEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) recordLockWait(ctx context.Context, wait time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.LockWait.Record(ctx, wait.Seconds())
	if timedOut {
		m.LockTimeouts.Add(ctx, 1)
	}
}
