package cyre

import (
	"context"
	"fmt"
)

// callInternal is the decision tree behind Runtime.Call (spec §4.2).
// depth tracks how many handler chain hops preceded this call so
// followChain can enforce the configured maximum.
func (rt *Runtime) callInternal(ctx context.Context, id string, payload any, depth int) CallResult {
	if rt.shutdown.Load() {
		err := &ErrShutdown{}
		return CallResult{OK: false, Message: err.Error(), Error: err}
	}

	cs, ok := rt.st.getChannel(id)
	if !ok {
		err := &ErrNotFound{ID: id}
		return CallResult{OK: false, Message: err.Error(), Error: err}
	}

	cs.mu.Lock()
	if cs.blocked {
		reason := cs.blockedReason
		cs.mu.Unlock()
		err := &ErrBlocked{ID: id, Reason: reason}
		return CallResult{OK: false, Message: err.Error(), Error: err}
	}
	if cs.paused {
		cs.mu.Unlock()
		return CallResult{OK: false, Message: fmt.Sprintf("channel %q paused", id)}
	}
	cs.mu.Unlock()

	handler, ok := rt.st.getHandler(id)
	if !ok {
		err := &ErrNoHandler{ID: id}
		return CallResult{OK: false, Message: err.Error(), Error: err}
	}

	if rt.breathing != nil && rt.breathing.shouldShed(cs.config.Priority) {
		err := &ErrRecuperating{ID: id}
		return CallResult{OK: false, Message: err.Error(), Error: err}
	}

	ctx, span := rt.tracer.Start(ctx, "cyre.call")
	span.SetAttr("channel.id", id)
	defer span.End()

	if res, handled := rt.checkSchedule(cs, id, cs.config, payload); handled {
		return res
	}

	if cs.compiled.mode == modeFastPath {
		return rt.invoke(ctx, cs, id, payload, handler, depth)
	}

	if res, handled := rt.checkThrottle(cs, id); handled {
		span.RecordError(res.Error)
		return res
	}

	if handled, res := rt.applyDebounce(ctx, cs, id, payload, handler, depth); handled {
		return res
	}

	return rt.process(ctx, cs, id, payload, handler, depth)
}

// checkSchedule enqueues a channel's autonomous dispatch via TimeKeeper the
// first time it is called with delay/interval configured (spec §4.2 step
// 7); the payload is cached for the timer to use and the handler itself is
// never invoked inline. Once armed, later calls on the same channel are
// idempotent: they report the same "scheduled" outcome rather than
// re-arming the timer or invoking the handler a second time.
// schedulePendingMarker claims the arm-once slot before TimeKeeper hands
// back a real timer id, so two concurrent initial Calls can't both pass
// the scheduleTimerID == "" check and arm the timer twice.
const schedulePendingMarker = "pending"

func (rt *Runtime) checkSchedule(cs *channelState, id string, cfg ChannelConfig, payload any) (CallResult, bool) {
	if cfg.Interval <= 0 && cfg.Delay <= 0 {
		return CallResult{}, false
	}
	cs.mu.Lock()
	if cs.scheduleTimerID != "" {
		cs.mu.Unlock()
		return CallResult{OK: true, Message: "scheduled"}, true
	}
	cs.scheduleTimerID = schedulePendingMarker
	cs.mu.Unlock()

	rt.st.putPayload(id, payload)
	rt.scheduleChannel(id, cfg)
	return CallResult{OK: true, Message: "scheduled"}, true
}

// checkThrottle enforces the minimum spacing between dispatches. handled
// is true when the call was rejected and the caller should return res
// immediately.
func (rt *Runtime) checkThrottle(cs *channelState, id string) (CallResult, bool) {
	if cs.config.Throttle <= 0 {
		return CallResult{}, false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	now := rt.clk.nowMs()
	minGapMs := cs.config.Throttle.Milliseconds()
	if cs.hasCalledOnce && now-cs.lastCallMs < minGapMs {
		err := &ErrThrottled{ID: id}
		return CallResult{OK: false, Message: err.Error(), Error: err}, true
	}
	cs.lastCallMs = now
	cs.hasCalledOnce = true
	return CallResult{}, false
}

// applyDebounce collapses rapid-fire calls into a single trailing
// dispatch, firing early if maxWait has elapsed since the first call of
// the current burst (spec §4.2, §9 Open Questions: maxWait expiry wins
// over further rescheduling). handled is true when this call was
// absorbed into a pending debounce window rather than dispatched now.
func (rt *Runtime) applyDebounce(ctx context.Context, cs *channelState, id string, payload any, h Handler, depth int) (bool, CallResult) {
	if cs.config.Debounce <= 0 {
		return false, CallResult{}
	}

	cs.mu.Lock()
	now := rt.clk.nowMs()
	cs.pendingPayload = payload

	if cs.debouncePending && cs.config.MaxWait > 0 {
		maxWaitMs := cs.config.MaxWait.Milliseconds()
		if now-cs.debounceFirstMs >= maxWaitMs {
			cs.debouncePending = false
			cs.pendingPayload = nil
			timerID := cs.debounceTimerID
			cs.debounceTimerID = ""
			cs.mu.Unlock()
			if timerID != "" {
				rt.tk.cancel(timerID)
			}
			return true, rt.process(ctx, cs, id, payload, h, depth)
		}
	}

	if cs.debouncePending {
		oldTimer := cs.debounceTimerID
		cs.mu.Unlock()
		if oldTimer != "" {
			rt.tk.cancel(oldTimer)
		}
	} else {
		cs.debouncePending = true
		cs.debounceFirstMs = now
		cs.mu.Unlock()
	}

	timerID := rt.tk.schedule(id, timerDebounce, cs.config.Debounce.Milliseconds(), 0, 1, func() {
		rt.fireDebounce(cs, id, h)
	})

	cs.mu.Lock()
	cs.debounceTimerID = timerID
	cs.mu.Unlock()

	return true, CallResult{OK: true, Message: "debounced"}
}

func (rt *Runtime) fireDebounce(cs *channelState, id string, h Handler) {
	cs.mu.Lock()
	payload := cs.pendingPayload
	cs.debouncePending = false
	cs.debounceTimerID = ""
	cs.pendingPayload = nil
	cs.mu.Unlock()

	ctx, span := rt.tracer.Start(context.Background(), "cyre.debounce.fire")
	span.SetAttr("channel.id", id)
	defer span.End()

	rt.process(ctx, cs, id, payload, h, 0)
}

// process runs the canonical per-payload pipeline (required → schema →
// selector → condition → transform → detectChanges) and, if nothing
// short-circuited, invokes the handler.
func (rt *Runtime) process(ctx context.Context, cs *channelState, id string, payload any, h Handler, depth int) CallResult {
	cfg := cs.compiled.config

	for _, st := range cs.compiled.stages {
		switch st {
		case stageRequired:
			if res, stop := checkRequired(cfg, id, payload); stop {
				return res
			}
		case stageSchema:
			if errs := cfg.Schema(payload); len(errs) > 0 {
				ve := &ValidationError{Field: "payload", Value: payload, Message: fmt.Sprintf("schema: %v", errs)}
				return CallResult{OK: false, Message: ve.Error(), Error: ve}
			}
		case stageSelector:
			payload = cfg.Selector(payload)
		case stageCondition:
			if !cfg.Condition(payload) {
				return CallResult{OK: false, Message: "condition not met"}
			}
		case stageTransform:
			payload = cfg.Transform(payload)
		case stageDetectChanges:
			cs.mu.Lock()
			unchanged := cs.hasLastPayload && deepEqual(cs.lastPayload, payload)
			cs.lastPayload = payload
			cs.hasLastPayload = true
			cs.mu.Unlock()
			if unchanged {
				return CallResult{OK: false, Payload: payload, Message: "no changes"}
			}
		}
	}

	return rt.invoke(ctx, cs, id, payload, h, depth)
}

func checkRequired(cfg ChannelConfig, id string, payload any) (CallResult, bool) {
	switch cfg.Required {
	case RequirementPresent:
		if payload == nil {
			ve := &ValidationError{Field: "payload", Message: "required: payload must be present"}
			return CallResult{OK: false, Message: ve.Error(), Error: ve}, true
		}
	case RequirementNonEmpty:
		if isEmptyPayload(payload) {
			ve := &ValidationError{Field: "payload", Message: "required: payload must be present and non-empty"}
			return CallResult{OK: false, Message: ve.Error(), Error: ve}, true
		}
	}
	return CallResult{}, false
}

func isEmptyPayload(payload any) bool {
	if payload == nil {
		return true
	}
	switch v := payload.(type) {
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// invoke calls the user handler, records the outcome against breathing and
// the channel's payload cache, and follows any requested chain.
func (rt *Runtime) invoke(ctx context.Context, cs *channelState, id string, payload any, h Handler, depth int) CallResult {
	handle, key := rt.handles.start(id)
	_ = handle

	start := rt.clk.nowMs()
	ret, err := safeInvoke(ctx, h, payload)
	elapsed := rt.clk.nowMs() - start

	if rt.breathing != nil {
		rt.breathing.record(elapsed, err != nil)
	}

	var res CallResult
	if err != nil {
		he := &ErrHandler{ID: id, Err: err}
		res = CallResult{OK: false, Message: he.Error(), Error: he}
	} else {
		cs.mu.Lock()
		cs.callCount++
		cs.mu.Unlock()
		rt.st.putPayload(id, ret.value)
		res = CallResult{OK: true, Payload: ret.value}

		if ret.IsChain() {
			chainRes := rt.followChain(ctx, ret, depth)
			res.Metadata = map[string]any{"chain": chainRes}
			if !chainRes.OK {
				// A chain hop's terminal failure (e.g. depth exceeded)
				// propagates to the originating caller rather than staying
				// buried in this hop's metadata (spec §4.2 step 9).
				res.OK = false
				res.Message = chainRes.Message
				res.Error = chainRes.Error
			}
		}
	}

	rt.handles.finish(key, res)
	return res
}

// safeInvoke recovers a panicking handler and reports it as an error so a
// single misbehaving handler cannot take down the calling goroutine.
func safeInvoke(ctx context.Context, h Handler, payload any) (hr HandlerReturn, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}
