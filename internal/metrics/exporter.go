// Package metrics exports session timing metrics to an OpenTelemetry
// collector so drift can be tracked across scanner sessions.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
)

const (
	serviceName    = "mvast-fmri"
	serviceVersion = "1.0.0"
)

type Config struct {
	Endpoint string
	Insecure bool
}

// Recorder receives every finished session report.
type Recorder interface {
	RecordSession(ctx context.Context, rep *engine.Report) error
	Close(ctx context.Context) error
}

// Exporter exports session metrics to an OTEL Collector.
type Exporter struct {
	provider      *sdkmetric.MeterProvider
	sessionsTotal metric.Int64Counter
	phaseDuration metric.Float64Histogram
	phaseError    metric.Float64Histogram
	sessionDrift  metric.Float64Histogram
	flipsTotal    metric.Int64Counter
	flipMismatch  metric.Int64Counter
}

// NewExporter creates an exporter pushing to cfg.Endpoint over OTLP/gRPC.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	e, err := newExporter(ctx, sdkmetric.NewPeriodicReader(exp))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(e.provider)
	return e, nil
}

func newExporter(ctx context.Context, reader sdkmetric.Reader) (*Exporter, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := provider.Meter(serviceName)
	e := &Exporter{provider: provider}

	e.sessionsTotal, err = meter.Int64Counter(
		"mvast_sessions_total",
		metric.WithDescription("Sessions run, by outcome"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	e.phaseDuration, err = meter.Float64Histogram(
		"mvast_phase_duration_seconds",
		metric.WithDescription("Measured phase duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating phase duration histogram: %w", err)
	}

	e.phaseError, err = meter.Float64Histogram(
		"mvast_phase_error_seconds",
		metric.WithDescription("Measured minus configured duration of completed phases"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating phase error histogram: %w", err)
	}

	e.sessionDrift, err = meter.Float64Histogram(
		"mvast_session_drift_seconds",
		metric.WithDescription("Total minus expected duration of completed sessions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating drift histogram: %w", err)
	}

	e.flipsTotal, err = meter.Int64Counter(
		"mvast_checkerboard_flips_total",
		metric.WithDescription("Checkerboard image flips presented"),
		metric.WithUnit("{flip}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flips counter: %w", err)
	}

	e.flipMismatch, err = meter.Int64Counter(
		"mvast_flip_mismatch_total",
		metric.WithDescription("Completed checkerboard phases whose flip count left tolerance"),
		metric.WithUnit("{phase}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flip mismatch counter: %w", err)
	}

	return e, nil
}

// RecordSession records one finished session.
func (e *Exporter) RecordSession(ctx context.Context, rep *engine.Report) error {
	if rep == nil {
		return nil
	}

	e.sessionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", rep.Outcome.String()),
		attribute.String("reason", rep.Reason.String()),
		attribute.String("start_source", rep.StartSource.String()),
	))

	for _, p := range rep.Phases {
		opt := metric.WithAttributes(
			attribute.String("phase", p.Kind.String()),
			attribute.String("outcome", p.Outcome.String()),
		)
		e.phaseDuration.Record(ctx, p.Actual.Seconds(), opt)
		if p.Outcome == engine.Completed {
			e.phaseError.Record(ctx, (p.Actual - p.Expected).Seconds(), opt)
		}
		if p.Kind != engine.PhaseCheckerboard {
			continue
		}
		e.flipsTotal.Add(ctx, int64(p.Flips))
		if p.Outcome == engine.Completed && !engine.FlipsWithinTolerance(p.Flips, p.ExpectedFlips) {
			e.flipMismatch.Add(ctx, 1)
		}
	}

	if rep.Outcome == engine.Completed {
		e.sessionDrift.Record(ctx, rep.Drift.Seconds())
	}
	return nil
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

// NoOp is the recorder used when no collector is configured.
type NoOp struct{}

func (NoOp) RecordSession(context.Context, *engine.Report) error { return nil }
func (NoOp) Close(context.Context) error                         { return nil }
