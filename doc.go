// Package cyre is an in-process reactive channel runtime.
//
// Application code registers named channels, attaches a handler to each,
// and invokes them by id with a payload. Between the caller and the
// handler sits a compiled protection and transformation pipeline
// (validation, change detection, throttle, debounce, scheduling,
// transform) chosen once at registration time.
//
// # Quick start
//
//	rt := cyre.New(cyre.WithLogger(slog.Default()))
//	rt.Init()
//	rt.Action(cyre.ChannelConfig{ID: "greet", Throttle: 200 * time.Millisecond})
//	rt.On("greet", func(_ context.Context, p any) (cyre.HandlerReturn, error) {
//		return cyre.Value(fmt.Sprintf("hello %v", p)), nil
//	})
//	result := rt.Call(context.Background(), "greet", "world")
//
// # Core components
//
//   - [Runtime] — the external surface: Init, Action, On, Call, Forget,
//     Clear, Pause, Resume, Lock, Shutdown.
//   - TimeKeeper (internal, unexported) — the single scheduler for
//     delayed/repeating work.
//   - [Branch] — hierarchical, path-scoped channel namespaces.
//   - [Group] — fan-out of one call to many channels under a strategy.
//
// Observability is pluggable: see the observability subpackage for an
// OpenTelemetry-backed [Tracer] implementation.
package cyre
