// Package observability provides an OpenTelemetry-backed implementation of
// cyre's Tracer/Span contract, adapted from the OTLP trace and metric
// wiring used elsewhere in this codebase's ancestry. It deliberately does
// not wire the OTEL log bridge: ambient logging goes through log/slog, not
// through an OTEL log exporter.
package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	cyre "github.com/neuralline/cyre-sub006"
)

const scopeName = "cyre"

// Instruments holds the metric instruments created for the engine. Spans
// record Calls (on End) and CallErrors (on RecordError); CallLatency,
// TimerFires and Stress are created but not recorded by this package.
type Instruments struct {
	Calls       metric.Int64Counter
	CallErrors  metric.Int64Counter
	CallLatency metric.Float64Histogram
	TimerFires  metric.Int64Counter
	Stress      metric.Float64Histogram
}

// Tracer implements cyre.Tracer against an OTEL trace+metric provider pair.
type Tracer struct {
	tracer oteltrace.Tracer
	inst   *Instruments
}

var (
	_ cyre.Tracer = (*Tracer)(nil)
	_ cyre.Span   = (*otelSpan)(nil)
)

// Init wires OTLP HTTP trace and metric exporters, configured from the
// standard OTEL_EXPORTER_OTLP_* environment variables, and returns a ready
// Tracer plus a shutdown func the caller must invoke on exit.
func Init(ctx context.Context, serviceName string) (*Tracer, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	t := &Tracer{tracer: otel.Tracer(scopeName), inst: inst}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return t, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	meter := otel.Meter(scopeName)

	calls, err := meter.Int64Counter("cyre.calls",
		metric.WithDescription("Ended spans (calls, debounce fires, timer fires)"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	callErrors, err := meter.Int64Counter("cyre.call_errors",
		metric.WithDescription("Spans that recorded an error"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	callLatency, err := meter.Float64Histogram("cyre.call.duration",
		metric.WithDescription("Handler execution duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	timerFires, err := meter.Int64Counter("cyre.timer_fires",
		metric.WithDescription("TimeKeeper-driven dispatches"),
		metric.WithUnit("{fire}"))
	if err != nil {
		return nil, err
	}
	stress, err := meter.Float64Histogram("cyre.breathing.stress",
		metric.WithDescription("Breathing controller stress samples"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Calls:       calls,
		CallErrors:  callErrors,
		CallLatency: callLatency,
		TimerFires:  timerFires,
		Stress:      stress,
	}, nil
}

// Start implements cyre.Tracer.
func (t *Tracer) Start(ctx context.Context, name string) (context.Context, cyre.Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span, inst: t.inst, name: name}
}

type otelSpan struct {
	span oteltrace.Span
	inst *Instruments
	name string
}

func (s *otelSpan) SetAttr(key string, value any) {
	s.span.SetAttributes(toAttr(key, value))
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	if s.inst != nil {
		s.inst.CallErrors.Add(context.Background(), 1)
	}
}

func (s *otelSpan) End() {
	if s.inst != nil {
		s.inst.Calls.Add(context.Background(), 1)
	}
	s.span.End()
}

func toAttr(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, "")
	}
}
