package cyre

import (
	"context"
	"testing"
)

func TestActionGetForgetRoundTrip(t *testing.T) {
	rt := New()
	_ = rt.Init()

	res := rt.Action(ChannelConfig{ID: "counter", Payload: 0})
	if !res.OK {
		t.Fatalf("unexpected action failure: %+v", res)
	}

	if v, ok := rt.Get("counter"); !ok || v != 0 {
		t.Fatalf("expected initial payload 0, got %v ok=%v", v, ok)
	}

	if err := rt.Forget("counter"); err != nil {
		t.Fatalf("unexpected forget error: %v", err)
	}
	if _, ok := rt.Get("counter"); ok {
		t.Fatal("expected Get to miss after Forget")
	}

	res2 := rt.Action(ChannelConfig{ID: "counter", Payload: 0})
	if !res2.OK {
		t.Fatalf("expected re-registration after forget to succeed: %+v", res2)
	}
}

func TestActionIsIdempotentReplacement(t *testing.T) {
	rt := New()
	_ = rt.Init()
	probe := NewProbe(nil)

	rt.Action(ChannelConfig{ID: "x"})
	rt.On("x", probe.Handler())

	res := rt.Action(ChannelConfig{ID: "x", DetectChanges: true})
	if !res.OK {
		t.Fatalf("unexpected re-action failure: %+v", res)
	}

	cs, ok := rt.st.getChannel("x")
	if !ok {
		t.Fatal("expected channel to still be registered")
	}
	if !cs.config.DetectChanges {
		t.Fatal("expected the second Action to replace the compiled config")
	}

	if res := rt.Call(context.Background(), "x", 1); !res.OK {
		t.Fatalf("expected the handler attached before replacement to still fire: %+v", res)
	}
	if probe.Count() != 1 {
		t.Fatalf("expected exactly one invocation, got %d", probe.Count())
	}
}

func TestLockPreventsActionButNotCall(t *testing.T) {
	rt := New()
	_ = rt.Init()
	probe := NewProbe(nil)
	rt.Action(ChannelConfig{ID: "locked-test"})
	rt.On("locked-test", probe.Handler())

	rt.Lock()

	res := rt.Action(ChannelConfig{ID: "new-after-lock"})
	if res.OK {
		t.Fatal("expected Action after Lock to fail")
	}

	if res := rt.Call(context.Background(), "locked-test", 1); !res.OK {
		t.Fatalf("expected Call to still work after Lock: %+v", res)
	}
}

func TestPauseRejectsCallAndResumeRestores(t *testing.T) {
	rt := New()
	_ = rt.Init()
	probe := NewProbe(nil)
	rt.Action(ChannelConfig{ID: "p"})
	rt.On("p", probe.Handler())

	rt.Pause("p")
	if res := rt.Call(context.Background(), "p", 1); res.OK {
		t.Fatal("expected call to a paused channel to fail")
	}

	rt.Resume("p")
	if res := rt.Call(context.Background(), "p", 1); !res.OK {
		t.Fatalf("expected call to succeed after resume: %+v", res)
	}
}

func TestBlockingCompileErrorMarksChannelBlocked(t *testing.T) {
	rt := New()
	_ = rt.Init()

	zero := int64(0)
	res := rt.Action(ChannelConfig{ID: "bad", Repeat: &zero})
	if res.OK {
		t.Fatal("expected blocking compile error")
	}

	callRes := rt.Call(context.Background(), "bad", 1)
	if callRes.OK {
		t.Fatal("expected call to a blocked channel to fail")
	}
	if _, ok := callRes.Error.(*ErrBlocked); !ok {
		t.Fatalf("expected ErrBlocked, got %T", callRes.Error)
	}
}
