package cyre

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// compiledPipeline is the frozen, validated result of compiling a
// ChannelConfig (spec §4.1). dispatch never re-validates; it only walks
// stages in order and consults the scheduling fields directly.
type compiledPipeline struct {
	mode   mode
	stages []stage
	config ChannelConfig
	hash   string
}

// compile validates cfg and, on success, produces the ordered stage list
// and fast-path classification dispatch uses. On a blocking error the
// returned compiledPipeline is nil and the caller must mark the channel
// blocked rather than retry.
func compile(cfg ChannelConfig) (*compiledPipeline, ActionResult) {
	var errs []string
	var warnings []string
	blocking := false

	if cfg.ID == "" {
		errs = append(errs, "id: must not be empty")
		blocking = true
	}

	if cfg.Repeat != nil && *cfg.Repeat == 0 {
		errs = append(errs, "repeat: 0 would never invoke the handler; omit repeat or use RepeatTimes(n>=1)")
		blocking = true
	}

	if cfg.Interval > 0 && cfg.Repeat == nil {
		errs = append(errs, "interval: requires repeat to be set (RepeatTimes(n) or RepeatForever())")
	}

	if cfg.MaxWait > 0 && cfg.Debounce == 0 {
		errs = append(errs, "maxWait: requires debounce to be set")
	}

	if cfg.MaxWait > 0 && cfg.Debounce > 0 && cfg.MaxWait <= cfg.Debounce {
		errs = append(errs, "maxWait: must be greater than debounce")
	}

	if cfg.Throttle > 0 && cfg.Debounce > 0 {
		errs = append(errs, "throttle and debounce are mutually exclusive on a single channel")
	}

	if cfg.Throttle > 0 && cfg.Throttle < 16_000_000 {
		warnings = append(warnings, "throttle: below 16ms rarely has any protective effect")
	}
	if cfg.Debounce > 0 && cfg.Debounce < 100_000_000 {
		warnings = append(warnings, "debounce: below 100ms may feel unresponsive to rapid-fire callers")
	}
	if cfg.Interval > 0 && cfg.Interval < 1_000_000_000 {
		warnings = append(warnings, "interval: below 1s is a tight polling loop, confirm this is intended")
	}
	if cfg.Schema != nil && cfg.Required == RequirementNone {
		warnings = append(warnings, "schema: set without required; an absent payload will pass schema with no value to check")
	}

	if blocking || len(errs) > 0 {
		ok := !blocking && len(errs) == 0
		return nil, ActionResult{OK: ok, Message: "compile failed", Errors: errs, Warnings: warnings}
	}

	p := &compiledPipeline{
		mode:   selectMode(cfg),
		stages: enabledStages(cfg),
		config: cfg,
		hash:   configHash(cfg),
	}

	msg := "ok"
	if len(warnings) > 0 {
		msg = "ok with warnings"
	}
	return p, ActionResult{OK: true, Message: msg, Warnings: warnings}
}

// enabledStages returns the processing-pipeline stages (required through
// detectChanges) this config actually uses, in canonical order. Throttle,
// debounce, and scheduling are evaluated by dispatch directly from the
// config fields; they are not part of this per-payload walk.
func enabledStages(cfg ChannelConfig) []stage {
	var out []stage
	if cfg.Required != RequirementNone {
		out = append(out, stageRequired)
	}
	if cfg.Schema != nil {
		out = append(out, stageSchema)
	}
	if cfg.Selector != nil {
		out = append(out, stageSelector)
	}
	if cfg.Condition != nil {
		out = append(out, stageCondition)
	}
	if cfg.Transform != nil {
		out = append(out, stageTransform)
	}
	if cfg.DetectChanges {
		out = append(out, stageDetectChanges)
	}
	return out
}

// selectMode classifies a channel so dispatch can skip work a plain
// channel never needs (spec §4.1): fast-path channels have no
// protections, transformations, or scheduling at all; simple channels use
// only stateless per-payload checks; full channels need TimeKeeper or
// cross-call state.
func selectMode(cfg ChannelConfig) mode {
	needsState := cfg.Throttle > 0 || cfg.Debounce > 0 || cfg.DetectChanges ||
		cfg.Delay > 0 || cfg.Interval > 0 || cfg.Repeat != nil
	hasStages := cfg.Required != RequirementNone || cfg.Schema != nil ||
		cfg.Selector != nil || cfg.Condition != nil || cfg.Transform != nil

	switch {
	case !needsState && !hasStages:
		return modeFastPath
	case !needsState:
		return modeSimple
	default:
		return modeFull
	}
}

// configHash fingerprints the scalar, comparable portion of cfg.
// Function-valued fields (Schema, Condition, Selector, Transform) are
// represented only by presence, not identity. The hash is stored on the
// compiled pipeline; nothing compares it, so every Action() recompiles the
// stage list and mode even when the config is unchanged.
func configHash(cfg ChannelConfig) string {
	repeat := "nil"
	if cfg.Repeat != nil {
		repeat = fmt.Sprintf("%d", *cfg.Repeat)
	}
	raw := fmt.Sprintf(
		"id=%s|path=%s|prio=%d|block=%t|throttle=%d|debounce=%d|maxwait=%d|detect=%t|req=%d|delay=%d|interval=%d|repeat=%s|schema=%t|cond=%t|sel=%t|xform=%t",
		cfg.ID, cfg.Path, cfg.Priority, cfg.Block, cfg.Throttle, cfg.Debounce, cfg.MaxWait,
		cfg.DetectChanges, cfg.Required, cfg.Delay, cfg.Interval, repeat,
		cfg.Schema != nil, cfg.Condition != nil, cfg.Selector != nil, cfg.Transform != nil,
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
