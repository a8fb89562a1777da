package cyre

import (
	"context"
	"testing"
)

func setupGroupMember(rt *Runtime, id string, ok bool) *Probe {
	probe := NewProbe(func(payload any) (HandlerReturn, error) {
		if !ok {
			return HandlerReturn{}, errFailingMember
		}
		return Value(payload), nil
	})
	rt.Action(ChannelConfig{ID: id})
	rt.On(id, probe.Handler())
	return probe
}

var errFailingMember = &ErrHandler{ID: "member", Err: nil}

func TestGroupParallelAllSucceed(t *testing.T) {
	rt := New()
	_ = rt.Init()
	setupGroupMember(rt, "sensors/a", true)
	setupGroupMember(rt, "sensors/b", true)

	g := rt.Group(GroupConfig{Pattern: "sensors/*", Strategy: StrategyParallel})
	res := g.Call(context.Background(), 42)
	if !res.OK {
		t.Fatalf("expected all members to succeed: %+v", res)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Results))
	}
}

func TestGroupParallelFailFastReportsFailure(t *testing.T) {
	rt := New()
	_ = rt.Init()
	setupGroupMember(rt, "sensors/a", true)
	setupGroupMember(rt, "sensors/b", false)

	g := rt.Group(GroupConfig{Pattern: "sensors/*", Strategy: StrategyParallel, ErrorStrategy: ErrorFailFast})
	res := g.Call(context.Background(), 1)
	if res.OK {
		t.Fatal("expected group result to report failure")
	}
}

func TestGroupRaceReturnsFirstSuccess(t *testing.T) {
	rt := New()
	_ = rt.Init()
	setupGroupMember(rt, "race/a", true)
	setupGroupMember(rt, "race/b", true)

	g := rt.Group(GroupConfig{Pattern: "race/*", Strategy: StrategyRace})
	res := g.Call(context.Background(), 1)
	if !res.OK {
		t.Fatalf("expected race to succeed: %+v", res)
	}
	if len(res.Results) != 1 {
		t.Fatalf("expected exactly one winning result, got %d", len(res.Results))
	}
}

func TestGroupRaceAllFail(t *testing.T) {
	rt := New()
	_ = rt.Init()
	setupGroupMember(rt, "race2/a", false)
	setupGroupMember(rt, "race2/b", false)

	g := rt.Group(GroupConfig{Pattern: "race2/*", Strategy: StrategyRace})
	res := g.Call(context.Background(), 1)
	if res.OK {
		t.Fatal("expected race with all members failing to report failure")
	}
	if res.Message != "race: all members failed" {
		t.Fatalf("unexpected message: %q", res.Message)
	}
	if len(res.PartialResults) != 2 {
		t.Fatalf("expected partial results for both members, got %d", len(res.PartialResults))
	}
}

func TestGroupWaterfallThreadsPayload(t *testing.T) {
	rt := New()
	_ = rt.Init()

	rt.Action(ChannelConfig{ID: "wf/1"})
	rt.On("wf/1", func(ctx context.Context, payload any) (HandlerReturn, error) {
		return Value(payload.(int) + 1), nil
	})
	rt.Action(ChannelConfig{ID: "wf/2"})
	rt.On("wf/2", func(ctx context.Context, payload any) (HandlerReturn, error) {
		return Value(payload.(int) * 10), nil
	})

	g := rt.Group(GroupConfig{Pattern: "wf/*", Strategy: StrategyWaterfall})
	res := g.Call(context.Background(), 1)
	if !res.OK {
		t.Fatalf("expected waterfall to succeed: %+v", res)
	}
	final := res.Results["wf/2"]
	if final.Payload != 20 {
		t.Fatalf("expected final payload 20 ((1+1)*10), got %v", final.Payload)
	}
}
