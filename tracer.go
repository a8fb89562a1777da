package cyre

import "context"

// Span is one observed unit of work (a call, a debounce fire, a timer
// fire). Implementations forward to whatever tracing
// backend a Tracer wraps; the core engine only ever sees this interface.
type Span interface {
	SetAttr(key string, value any)
	RecordError(err error)
	End()
}

// Tracer starts spans for the engine's instrumentation points. Runtime
// never imports a concrete tracing SDK; WithTracer injects one (see the
// observability subpackage for an OpenTelemetry-backed implementation).
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// noopTracer is the default Tracer when none is supplied via WithTracer.
type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) SetAttr(string, any) {}
func (noopSpan) RecordError(error)   {}
func (noopSpan) End()                {}
