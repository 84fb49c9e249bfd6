package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "vidloader/internal/errors"
	"vidloader/internal/infrastructure"
)

const TracerName = "vidloader/license"

// Metrics holds the license OpenTelemetry instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ActivationAttempts metric.Int64Counter
	ActivationSuccess  metric.Int64Counter
	ActivationFailures metric.Int64Counter
	ActivationDuration metric.Float64Histogram

	ValidationAttempts metric.Int64Counter
	ValidationSuccess  metric.Int64Counter
	ValidationFailures metric.Int64Counter
	ValidationDuration metric.Float64Histogram

	SecurityEvents metric.Int64Counter
	RateLimitHits  metric.Int64Counter
}

// InitializeMetrics creates the license instruments on meter
func InitializeMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ActivationAttempts, "license_activation_attempts_total", "Total number of license activation attempts"},
		{&m.ActivationSuccess, "license_activation_success_total", "Total number of successful license activations"},
		{&m.ActivationFailures, "license_activation_failures_total", "Total number of failed license activations"},
		{&m.ValidationAttempts, "license_validation_attempts_total", "Total number of license validations"},
		{&m.ValidationSuccess, "license_validation_success_total", "Total number of licenses that verified"},
		{&m.ValidationFailures, "license_validation_failures_total", "Total number of licenses that failed verification"},
		{&m.SecurityEvents, "license_security_events_total", "Tamper and binding events by type"},
		{&m.RateLimitHits, "license_rate_limit_hits_total", "Activations refused by the attempt guard"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.ActivationDuration, err = meter.Float64Histogram(
		"license_activation_duration_seconds",
		metric.WithDescription("License activation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation duration histogram: %w", err)
	}

	m.ValidationDuration, err = meter.Float64Histogram(
		"license_validation_duration_seconds",
		metric.WithDescription("License load and verification duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation duration histogram: %w", err)
	}

	return m, nil
}

// TraceActivation wraps an activation in a span and records its metrics
func (m *Metrics) TraceActivation(ctx context.Context, licenseKey string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.activation",
		trace.WithAttributes(
			attribute.String("license.operation", "activation"),
			attribute.String("license.key_prefix", MaskLicenseKey(licenseKey)),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	m.recordActivation(ctx, duration, err)

	span.SetAttributes(
		attribute.Float64("license.duration_ms", float64(duration.Milliseconds())),
		attribute.Bool("license.success", err == nil),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("license.error_type", string(apperrors.KindOf(err))))
	} else {
		span.SetStatus(codes.Ok, "License activated")
		infrastructure.AddSpanEvent(ctx, "license.activation.success",
			attribute.String("license_key_hash", HashLicenseKey(licenseKey)))
	}

	return err
}

// TraceValidation wraps a license load in a span and records its metrics
func (m *Metrics) TraceValidation(ctx context.Context, fn func(ctx context.Context) (bool, error)) (bool, error) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, "license.validation",
		trace.WithAttributes(attribute.String("license.operation", "validation")),
	)
	defer span.End()

	start := time.Now()
	valid, err := fn(ctx)
	duration := time.Since(start)

	m.recordValidation(ctx, duration, valid, err)

	span.SetAttributes(
		attribute.Float64("license.duration_ms", float64(duration.Milliseconds())),
		attribute.Bool("license.valid", valid),
	)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("license.error_type", string(apperrors.KindOf(err))))
	case !valid:
		span.SetStatus(codes.Error, "License validation failed")
	default:
		span.SetStatus(codes.Ok, "License valid")
	}

	return valid, err
}

// RecordSecurityEvent counts a tamper or binding event such as a bad
// signature or a machine mismatch.
func (m *Metrics) RecordSecurityEvent(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.SecurityEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordRateLimitHit counts an activation refused by the guard
func (m *Metrics) RecordRateLimitHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.RateLimitHits.Add(ctx, 1)
}

func (m *Metrics) recordActivation(ctx context.Context, duration time.Duration, err error) {
	if m == nil {
		return
	}

	labels := metric.WithAttributes(attribute.String("operation", "activation"))
	m.ActivationAttempts.Add(ctx, 1, labels)
	m.ActivationDuration.Record(ctx, duration.Seconds(), labels)

	if err == nil {
		m.ActivationSuccess.Add(ctx, 1, labels)
		return
	}
	m.ActivationFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", "activation"),
		attribute.String("kind", string(apperrors.KindOf(err))),
	))
}

func (m *Metrics) recordValidation(ctx context.Context, duration time.Duration, valid bool, err error) {
	if m == nil {
		return
	}

	labels := metric.WithAttributes(attribute.String("operation", "validation"))
	m.ValidationAttempts.Add(ctx, 1, labels)
	m.ValidationDuration.Record(ctx, duration.Seconds(), labels)

	if err == nil && valid {
		m.ValidationSuccess.Add(ctx, 1, labels)
		return
	}
	m.ValidationFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", "validation"),
		attribute.String("kind", string(apperrors.KindOf(err))),
	))
}
