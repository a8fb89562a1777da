package cyre

import (
	"context"
	"testing"
	"time"
)

func newTestRuntime(clk clock) *Runtime {
	rt := New(withClock(clk))
	_ = rt.Init()
	return rt
}

func TestThrottleRejectsSecondCallWithinWindow(t *testing.T) {
	fc := newFakeClock(0)
	rt := newTestRuntime(fc)
	probe := NewProbe(nil)

	rt.Action(ChannelConfig{ID: "throttled", Throttle: 100 * time.Millisecond})
	rt.On("throttled", probe.Handler())

	ctx := context.Background()
	first := rt.Call(ctx, "throttled", 1)
	if !first.OK {
		t.Fatalf("expected first call to succeed, got %+v", first)
	}

	fc.advance(50 * time.Millisecond)
	second := rt.Call(ctx, "throttled", 2)
	if second.OK {
		t.Fatal("expected second call within throttle window to be rejected")
	}

	fc.advance(60 * time.Millisecond)
	third := rt.Call(ctx, "throttled", 3)
	if !third.OK {
		t.Fatalf("expected call after throttle window to succeed, got %+v", third)
	}

	if probe.Count() != 2 {
		t.Fatalf("expected handler invoked twice, got %d", probe.Count())
	}
}

func TestDetectChangesSkipsDuplicatePayloads(t *testing.T) {
	fc := newFakeClock(0)
	rt := newTestRuntime(fc)
	probe := NewProbe(nil)

	rt.Action(ChannelConfig{ID: "deduped", DetectChanges: true})
	rt.On("deduped", probe.Handler())

	ctx := context.Background()
	rt.Call(ctx, "deduped", map[string]any{"temp": 72})
	res := rt.Call(ctx, "deduped", map[string]any{"temp": 72})
	if res.OK || res.Message != "no changes" {
		t.Fatalf("expected duplicate payload to be rejected, got %+v", res)
	}
	rt.Call(ctx, "deduped", map[string]any{"temp": 73})

	if probe.Count() != 2 {
		t.Fatalf("expected handler invoked twice (first and changed), got %d", probe.Count())
	}
}

func TestChainFollowsExactlyOnceWithMergedPayload(t *testing.T) {
	fc := newFakeClock(0)
	rt := newTestRuntime(fc)

	secondProbe := NewProbe(nil)
	rt.Action(ChannelConfig{ID: "first"})
	rt.On("first", func(ctx context.Context, payload any) (HandlerReturn, error) {
		m := payload.(map[string]any)
		m["firstDone"] = true
		return Chain("second", m), nil
	})
	rt.Action(ChannelConfig{ID: "second"})
	rt.On("second", secondProbe.Handler())

	res := rt.Call(context.Background(), "first", map[string]any{"x": 1})
	if !res.OK {
		t.Fatalf("expected first call to succeed, got %+v", res)
	}
	if secondProbe.Count() != 1 {
		t.Fatalf("expected second to be invoked exactly once, got %d", secondProbe.Count())
	}
	got := secondProbe.Calls()[0].(map[string]any)
	if got["x"] != 1 || got["firstDone"] != true {
		t.Fatalf("expected merged payload to reach second, got %+v", got)
	}
}

func TestChainDepthExceededStopsRecursion(t *testing.T) {
	fc := newFakeClock(0)
	rt := New(withClock(fc), WithMaxChainDepth(3))
	_ = rt.Init()

	probe := NewProbe(func(payload any) (HandlerReturn, error) {
		return Chain("looper", payload), nil
	})
	rt.Action(ChannelConfig{ID: "looper"})
	rt.On("looper", probe.Handler())

	res := rt.Call(context.Background(), "looper", 0)
	if res.OK {
		t.Fatalf("expected the originating caller to see the depth-exceeded failure, got %+v", res)
	}
	if _, ok := res.Error.(*ErrChainDepthExceeded); !ok {
		t.Fatalf("expected ErrChainDepthExceeded to propagate to the caller, got %+v", res.Error)
	}
	if probe.Count() > 4 {
		t.Fatalf("expected recursion bounded near max depth, got %d invocations", probe.Count())
	}
}

func TestDebounceCollapsesRapidCallsToOneInvocation(t *testing.T) {
	rt := New()
	_ = rt.Init()
	probe := NewProbe(nil)

	rt.Action(ChannelConfig{ID: "deb", Debounce: 20 * time.Millisecond})
	rt.On("deb", probe.Handler())

	ctx := context.Background()
	rt.Call(ctx, "deb", 1)
	time.Sleep(5 * time.Millisecond)
	rt.Call(ctx, "deb", 2)
	time.Sleep(5 * time.Millisecond)
	rt.Call(ctx, "deb", 3)

	time.Sleep(60 * time.Millisecond)

	if probe.Count() != 1 {
		t.Fatalf("expected exactly one debounced invocation, got %d", probe.Count())
	}
	if probe.Calls()[0] != 3 {
		t.Fatalf("expected last payload 3 to win, got %v", probe.Calls()[0])
	}
}

func TestRepeatProducesExactlyNInvocations(t *testing.T) {
	rt := New()
	_ = rt.Init()
	probe := NewProbe(nil)

	rt.Action(ChannelConfig{ID: "ticker", Interval: 10 * time.Millisecond, Repeat: RepeatTimes(3)})
	rt.On("ticker", probe.Handler())

	// Action alone must never dispatch; only the first Call arms the
	// TimeKeeper (spec §4.2 step 7, §6).
	if probe.Count() != 0 {
		t.Fatalf("expected no invocations before the first call, got %d", probe.Count())
	}

	first := rt.Call(context.Background(), "ticker", "tick")
	if !first.OK || first.Message != "scheduled" {
		t.Fatalf("expected the initial call to enqueue scheduling, got %+v", first)
	}

	time.Sleep(100 * time.Millisecond)

	if probe.Count() != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", probe.Count())
	}

	// A later call on an already-scheduled channel must not invoke the
	// handler a 4th time; it reports the same scheduled outcome.
	later := rt.Call(context.Background(), "ticker", "tick")
	if !later.OK || later.Message != "scheduled" {
		t.Fatalf("expected a later call to report scheduled, got %+v", later)
	}
	if probe.Count() != 3 {
		t.Fatalf("expected the later call not to add a 4th invocation, got %d", probe.Count())
	}
}
