package cyre

import (
	"context"
	"time"
)

// Priority influences breathing-controlled shedding: only Critical work
// bypasses the recuperation gate (spec §4.6).
type Priority int8

const (
	PriorityMedium Priority = iota
	PriorityCritical
	PriorityHigh
	PriorityLow
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	case PriorityBackground:
		return "background"
	default:
		return "medium"
	}
}

// Requirement encodes the closed `required` operator: unset, "must be
// present", or "must be present and non-empty".
type Requirement int8

const (
	RequirementNone Requirement = iota
	RequirementPresent
	RequirementNonEmpty
)

// SchemaFunc validates a payload, returning a non-empty list of
// human-readable errors on failure, or nil/empty on success.
type SchemaFunc func(payload any) []string

// ConditionFunc gates dispatch; false short-circuits with "condition not met".
type ConditionFunc func(payload any) bool

// SelectorFunc projects a payload before the condition/transform stages run.
type SelectorFunc func(payload any) any

// TransformFunc replaces the payload before the detectChanges/handler stages.
type TransformFunc func(payload any) any

// HandlerReturn is the tagged sum a Handler produces: either a plain value
// (no follow-up) or a chain link that triggers a follow-up call. Encoding
// this as a sum rather than relying on duck-typing makes the dispatch-time
// branch statically checked (spec §9 Design Notes).
type HandlerReturn struct {
	isChain      bool
	value        any
	chainID      string
	chainPayload any
}

// Value wraps a plain handler result: the produced payload, no follow-up call.
func Value(v any) HandlerReturn {
	return HandlerReturn{value: v}
}

// Chain wraps a follow-up call: after the current handler returns, the
// engine calls channel id with payload before control returns to the
// original caller (spec §4.2 step 9, §8 invariant 3).
func Chain(id string, payload any) HandlerReturn {
	return HandlerReturn{isChain: true, chainID: id, chainPayload: payload}
}

// IsChain reports whether this return is a chain link.
func (h HandlerReturn) IsChain() bool { return h.isChain }

// Handler is a user function bound to a channel. ctx is the context passed
// to Call (a background context for timer- and debounce-driven dispatch);
// Shutdown does not cancel it, and it carries a deadline only if the caller
// set one before calling Call.
type Handler func(ctx context.Context, payload any) (HandlerReturn, error)

// ChannelConfig is the full configuration surface for a channel, passed to
// Runtime.Action. Zero values mean "operator not set" except where noted.
type ChannelConfig struct {
	ID   string
	Path string // optional explicit absolute path; branches set this internally

	Priority Priority

	// Protection
	Block         bool
	Throttle      time.Duration // 0 disables throttling
	Debounce      time.Duration // 0 disables debouncing
	MaxWait       time.Duration // must be > Debounce when set
	DetectChanges bool
	Required      Requirement

	// Transformation
	Schema    SchemaFunc
	Condition ConditionFunc
	Selector  SelectorFunc
	Transform TransformFunc

	// Scheduling. Repeat is a pointer so "unset" (nil) is distinguishable
	// from 0 (blocking compile error) and RepeatInfinite (-1).
	Delay    time.Duration
	Interval time.Duration
	Repeat   *int64

	// Payload is an initial value recorded for Get(); it is never dispatched.
	Payload any
}

// RepeatInfinite marks a channel for unbounded repeats.
const RepeatInfinite int64 = -1

// RepeatTimes returns a Repeat pointer for exactly n invocations.
func RepeatTimes(n int64) *int64 { return &n }

// RepeatForever returns a Repeat pointer meaning "never stop".
func RepeatForever() *int64 {
	v := RepeatInfinite
	return &v
}

// mode selects the dispatch fast path for a compiled channel (spec §4.1).
type mode int8

const (
	modeFastPath mode = iota
	modeSimple
	modeFull
)

// stage tags the canonical pipeline order (spec §4.1): required → schema →
// selector → condition → transform → detectChanges → throttle → debounce →
// schedule.
type stage int8

const (
	stageRequired stage = iota
	stageSchema
	stageSelector
	stageCondition
	stageTransform
	stageDetectChanges
	stageThrottle
	stageDebounce
	stageSchedule
)

func (s stage) String() string {
	switch s {
	case stageRequired:
		return "required"
	case stageSchema:
		return "schema"
	case stageSelector:
		return "selector"
	case stageCondition:
		return "condition"
	case stageTransform:
		return "transform"
	case stageDetectChanges:
		return "detectChanges"
	case stageThrottle:
		return "throttle"
	case stageDebounce:
		return "debounce"
	case stageSchedule:
		return "schedule"
	default:
		return "unknown"
	}
}

// CallResult is the outcome of Runtime.Call (spec §4.2, §6).
type CallResult struct {
	OK       bool
	Payload  any
	Message  string
	Metadata map[string]any
	Error    error
}

// ActionResult is the outcome of Runtime.Action (spec §4.1, §6).
type ActionResult struct {
	OK       bool
	Message  string
	Errors   []string
	Warnings []string
}
