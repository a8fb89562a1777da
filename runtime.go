package cyre

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Runtime is the external surface of the in-process reactive channel
// runtime: register channels with Action, attach handlers with On, and
// trigger dispatch with Call. A Runtime is safe for concurrent use once
// Init has returned.
type Runtime struct {
	st       *store
	clk      clock
	tk       *timeKeeper
	breathing *breathingController
	tracer   Tracer
	logger   *slog.Logger
	handles  *handleRegistry

	maxChainDepth int

	locked    atomic.Bool
	shutdown  atomic.Bool
	initDone  atomic.Bool
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithLogger overrides the runtime's structured logger. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) { rt.logger = l }
}

// WithTracer overrides the runtime's Tracer. The default is a no-op.
func WithTracer(t Tracer) Option {
	return func(rt *Runtime) { rt.tracer = t }
}

// WithMaxChainDepth overrides the maximum handler follow-up chain depth
// (default defaultMaxChainDepth).
func WithMaxChainDepth(n int) Option {
	return func(rt *Runtime) { rt.maxChainDepth = n }
}

// withClock is unexported: only this package's tests construct a Runtime
// against a fakeClock, never an external caller.
func withClock(c clock) Option {
	return func(rt *Runtime) { rt.clk = c }
}

// New constructs a Runtime. Call Init before registering channels.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		st:            newStore(),
		clk:           systemClock{},
		tracer:        noopTracer{},
		logger:        slog.Default(),
		handles:       newHandleRegistry(),
		maxChainDepth: defaultMaxChainDepth,
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.tk = newTimeKeeper(rt.clk)
	rt.breathing = newBreathingController(rt.clk)
	rt.tk.setRateFunc(rt.breathing.currentRate)
	return rt
}

// Init starts the runtime's background loops (breathing sampling). Calls
// after the first are no-ops.
func (rt *Runtime) Init() error {
	if !rt.initDone.CompareAndSwap(false, true) {
		return nil
	}
	rt.breathing.startSampling()
	rt.logger.Info("cyre runtime initialized")
	return nil
}

// Action registers or replaces a channel at the runtime root. Calling
// Action again on the same id recompiles and atomically replaces its
// pipeline (spec §8 invariant: action/action idempotent replacement).
func (rt *Runtime) Action(cfg ChannelConfig) ActionResult {
	return rt.actionWithBranch(cfg, "")
}

// Actions registers a batch of channels in order, short-circuiting the
// batch result's OK flag if any single one fails without interrupting the
// remaining registrations.
func (rt *Runtime) Actions(cfgs []ChannelConfig) ActionResult {
	ok := true
	var errs []string
	var warnings []string
	for _, cfg := range cfgs {
		res := rt.Action(cfg)
		if !res.OK {
			ok = false
		}
		errs = append(errs, res.Errors...)
		warnings = append(warnings, res.Warnings...)
	}
	return ActionResult{OK: ok, Message: "batch action", Errors: errs, Warnings: warnings}
}

func (rt *Runtime) actionWithBranch(cfg ChannelConfig, branchPath string) ActionResult {
	if rt.locked.Load() {
		err := &ErrLocked{}
		return ActionResult{OK: false, Message: err.Error(), Errors: []string{err.Error()}}
	}

	storeKey := cfg.Path
	if storeKey == "" {
		storeKey = cfg.ID
		cfg.Path = cfg.ID
	}

	compiled, res := compile(cfg)
	if compiled == nil {
		rt.st.putChannel(storeKey, &channelState{
			config:        cfg,
			branch:        branchPath,
			blocked:       true,
			blockedReason: res.Message,
		})
		return res
	}

	if existing, ok := rt.st.getChannel(storeKey); ok && existing.scheduleTimerID != "" {
		rt.tk.cancel(existing.scheduleTimerID)
	}

	cs := &channelState{config: cfg, compiled: compiled, branch: branchPath}
	rt.st.putChannel(storeKey, cs)

	if cfg.Payload != nil {
		rt.st.putPayload(storeKey, cfg.Payload)
	}

	// Delay/interval channels are armed by their first Call, not by
	// Action (spec §4.2 step 7, §6): registering a channel must never
	// dispatch it on its own.
	return res
}

// On attaches a handler to a channel id. It may be called before or after
// Action; until both have happened a Call fails, with ErrNotFound while
// the channel is not registered and ErrNoHandler while it has no handler.
func (rt *Runtime) On(id string, h Handler) error {
	return rt.on(id, h)
}

func (rt *Runtime) on(id string, h Handler) error {
	if rt.locked.Load() {
		return &ErrLocked{}
	}
	rt.st.putHandler(id, h)
	return nil
}

// Call triggers dispatch for a channel by id (spec §4.2).
func (rt *Runtime) Call(ctx context.Context, id string, payload any) CallResult {
	return rt.callInternal(ctx, id, payload, 0)
}

// Get returns the last payload recorded for id, either from a completed
// call or the Payload set at Action time.
func (rt *Runtime) Get(id string) (any, bool) {
	return rt.st.getPayload(id)
}

// Forget removes a channel and its handler, cancelling any pending timer.
func (rt *Runtime) Forget(id string) error {
	if rt.locked.Load() {
		return &ErrLocked{}
	}
	rt.forgetInternal(id)
	return nil
}

func (rt *Runtime) forgetInternal(id string) {
	if cs, ok := rt.st.getChannel(id); ok {
		cs.mu.Lock()
		scheduleID := cs.scheduleTimerID
		debounceID := cs.debounceTimerID
		cs.mu.Unlock()
		if scheduleID != "" {
			rt.tk.cancel(scheduleID)
		}
		if debounceID != "" {
			rt.tk.cancel(debounceID)
		}
	}
	rt.st.deleteChannel(id)
}

// Clear removes every channel, handler, and cached payload.
func (rt *Runtime) Clear() {
	for _, id := range rt.st.ids() {
		rt.forgetInternal(id)
	}
	rt.st.clear()
}

// Pause suspends dispatch for the given channel ids, or every channel when
// called with no arguments. Paused channels reject Call and their
// scheduled timers stop advancing until Resume.
func (rt *Runtime) Pause(ids ...string) {
	if len(ids) == 0 {
		for _, id := range rt.st.ids() {
			rt.pauseOne(id)
		}
		rt.tk.pauseAll()
		return
	}
	for _, id := range ids {
		rt.pauseOne(id)
	}
}

func (rt *Runtime) pauseOne(id string) {
	cs, ok := rt.st.getChannel(id)
	if !ok {
		return
	}
	cs.mu.Lock()
	cs.paused = true
	timerID := cs.scheduleTimerID
	cs.mu.Unlock()
	if timerID != "" {
		rt.tk.pause(timerID)
	}
}

// Resume reverses Pause for the given channel ids, or every channel when
// called with no arguments.
func (rt *Runtime) Resume(ids ...string) {
	if len(ids) == 0 {
		for _, id := range rt.st.ids() {
			rt.resumeOne(id)
		}
		rt.tk.resumeAll()
		return
	}
	for _, id := range ids {
		rt.resumeOne(id)
	}
}

func (rt *Runtime) resumeOne(id string) {
	cs, ok := rt.st.getChannel(id)
	if !ok {
		return
	}
	cs.mu.Lock()
	cs.paused = false
	timerID := cs.scheduleTimerID
	cs.mu.Unlock()
	if timerID != "" {
		rt.tk.resume(timerID)
	}
}

// Lock disables further Action/On/Forget calls while leaving Call enabled,
// freezing the channel topology.
func (rt *Runtime) Lock() {
	rt.locked.Store(true)
}

// Branch creates a root-level branch namespace.
func (rt *Runtime) Branch(id string) (*Branch, error) {
	return makeBranch(rt, nil, "", 1, id)
}

// Shutdown stops accepting new calls, waits for in-flight handlers to
// finish (bounded by ctx), then stops the background loops.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if !rt.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	err := rt.handles.awaitAll(ctx)
	rt.tk.close()
	rt.breathing.close()
	return err
}

// Stress exposes the breathing controller's current stress value for
// diagnostics and tests.
func (rt *Runtime) Stress() float64 {
	s, _ := rt.breathing.snapshot()
	return s
}

func (rt *Runtime) scheduleChannel(storeKey string, cfg ChannelConfig) {
	delayMs := cfg.Delay.Milliseconds()

	if cfg.Interval > 0 {
		repeat := RepeatInfinite
		if cfg.Repeat != nil {
			repeat = *cfg.Repeat
		}
		timerID := rt.tk.schedule(storeKey, timerInterval, delayMs, cfg.Interval.Milliseconds(), repeat, func() {
			rt.fireScheduled(storeKey)
		})
		rt.attachScheduleTimer(storeKey, timerID)
		return
	}

	timerID := rt.tk.schedule(storeKey, timerDelay, delayMs, 0, 1, func() {
		rt.fireScheduled(storeKey)
	})
	rt.attachScheduleTimer(storeKey, timerID)
}

func (rt *Runtime) attachScheduleTimer(storeKey, timerID string) {
	if cs, ok := rt.st.getChannel(storeKey); ok {
		cs.mu.Lock()
		cs.scheduleTimerID = timerID
		cs.mu.Unlock()
	}
}

// fireScheduled runs one autonomous dispatch triggered by TimeKeeper for a
// channel configured with delay/interval, rather than an explicit Call.
func (rt *Runtime) fireScheduled(storeKey string) {
	if rt.shutdown.Load() {
		return
	}
	cs, ok := rt.st.getChannel(storeKey)
	if !ok {
		return
	}
	cs.mu.Lock()
	paused := cs.paused
	cs.mu.Unlock()
	if paused {
		return
	}

	h, ok := rt.st.getHandler(storeKey)
	if !ok {
		return
	}
	if rt.breathing != nil && rt.breathing.shouldShed(cs.config.Priority) {
		return
	}

	payload, ok := rt.st.getPayload(storeKey)
	if !ok {
		payload = cs.config.Payload
	}

	ctx, span := rt.tracer.Start(context.Background(), "cyre.timer.fire")
	span.SetAttr("channel.id", storeKey)
	defer span.End()

	rt.process(ctx, cs, storeKey, payload, h, 0)
}
