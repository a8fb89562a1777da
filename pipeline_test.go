package cyre

import "testing"

func TestCompileRepeatZeroIsBlocking(t *testing.T) {
	zero := int64(0)
	_, res := compile(ChannelConfig{ID: "a", Repeat: &zero})
	if res.OK {
		t.Fatal("expected repeat:0 to be rejected")
	}
}

func TestCompileIntervalRequiresRepeat(t *testing.T) {
	_, res := compile(ChannelConfig{ID: "a", Interval: 1e9})
	if res.OK {
		t.Fatal("expected interval without repeat to fail validation")
	}
}

func TestCompileMaxWaitRequiresDebounce(t *testing.T) {
	_, res := compile(ChannelConfig{ID: "a", MaxWait: 1e9})
	if res.OK {
		t.Fatal("expected maxWait without debounce to fail validation")
	}
}

func TestCompileMaxWaitMustExceedDebounce(t *testing.T) {
	_, res := compile(ChannelConfig{ID: "a", Debounce: 1e9, MaxWait: 1e9})
	if res.OK {
		t.Fatal("expected maxWait == debounce to fail validation")
	}
}

func TestCompileThrottleDebounceMutuallyExclusive(t *testing.T) {
	_, res := compile(ChannelConfig{ID: "a", Throttle: 1e9, Debounce: 1e9})
	if res.OK {
		t.Fatal("expected throttle+debounce together to fail validation")
	}
}

func TestCompileFastPathMode(t *testing.T) {
	p, res := compile(ChannelConfig{ID: "a"})
	if !res.OK {
		t.Fatalf("unexpected compile failure: %v", res.Errors)
	}
	if p.mode != modeFastPath {
		t.Fatalf("expected fast-path mode, got %v", p.mode)
	}
	if len(p.stages) != 0 {
		t.Fatalf("expected no stages, got %v", p.stages)
	}
}

func TestCompileFullModeForStatefulConfig(t *testing.T) {
	p, res := compile(ChannelConfig{ID: "a", Throttle: 1e9})
	if !res.OK {
		t.Fatalf("unexpected compile failure: %v", res.Errors)
	}
	if p.mode != modeFull {
		t.Fatalf("expected full mode, got %v", p.mode)
	}
}

func TestCompileWarnsOnSchemaWithoutRequired(t *testing.T) {
	_, res := compile(ChannelConfig{ID: "a", Schema: func(any) []string { return nil }})
	if !res.OK {
		t.Fatalf("unexpected compile failure: %v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a warning for schema without required")
	}
}
