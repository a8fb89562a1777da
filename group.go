package cyre

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// GroupStrategy selects how a Group dispatches to its members (spec §4.5).
type GroupStrategy int8

const (
	StrategyParallel GroupStrategy = iota
	StrategySequential
	StrategyRace
	StrategyWaterfall
)

// GroupErrorStrategy selects how a Group reacts to a member failing.
type GroupErrorStrategy int8

const (
	ErrorFailFast GroupErrorStrategy = iota
	ErrorContinue
	ErrorRetry
)

// GroupResultMode selects which member results a Group call reports back.
type GroupResultMode int8

const (
	ResultAll GroupResultMode = iota
	ResultFirst
	ResultLast
)

const defaultGroupMaxRetries = 3

// GroupConfig configures a Group's membership pattern and dispatch policy.
type GroupConfig struct {
	Pattern       string
	Strategy      GroupStrategy
	ErrorStrategy GroupErrorStrategy
	ResultMode    GroupResultMode
	Timeout       time.Duration
	MaxRetries    int // 0 means defaultGroupMaxRetries when ErrorStrategy is ErrorRetry
}

// GroupResult is the outcome of dispatching to a Group's members.
type GroupResult struct {
	OK             bool
	Message        string
	Results        map[string]CallResult
	PartialResults map[string]CallResult
}

// Group fans a single call out to every channel id matching Pattern (spec
// §4.5). Membership is re-resolved on every call, so channels registered
// after the Group was created are picked up automatically.
type Group struct {
	rt  *Runtime
	cfg GroupConfig
}

// Group creates a channel group scoped to the whole runtime.
func (rt *Runtime) Group(cfg GroupConfig) *Group {
	return &Group{rt: rt, cfg: cfg}
}

// members returns the sorted, glob-matched channel ids currently
// registered. Sorting makes sequential and waterfall strategies
// deterministic across calls with the same membership.
func (g *Group) members() []string {
	var out []string
	for _, id := range g.rt.st.ids() {
		if globMatch(g.cfg.Pattern, id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Call dispatches payload to every matching member according to the
// group's configured strategy.
func (g *Group) Call(ctx context.Context, payload any) GroupResult {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	members := g.members()
	if len(members) == 0 {
		return GroupResult{OK: false, Message: "group: no members match pattern " + g.cfg.Pattern, Results: map[string]CallResult{}}
	}

	switch g.cfg.Strategy {
	case StrategySequential:
		return g.callSequential(ctx, members, payload)
	case StrategyRace:
		return g.callRace(ctx, members, payload)
	case StrategyWaterfall:
		return g.callWaterfall(ctx, members, payload)
	default:
		return g.callParallel(ctx, members, payload)
	}
}

func (g *Group) callOne(ctx context.Context, id string, payload any) CallResult {
	if g.cfg.ErrorStrategy != ErrorRetry {
		return g.rt.callInternal(ctx, id, payload, 0)
	}

	max := g.cfg.MaxRetries
	if max <= 0 {
		max = defaultGroupMaxRetries
	}

	var res CallResult
	for attempt := 0; attempt <= max; attempt++ {
		res = g.rt.callInternal(ctx, id, payload, 0)
		if res.OK {
			return res
		}
		if attempt == max {
			break
		}
		backoff := time.Duration(attempt+1) * 50 * time.Millisecond
		select {
		case <-ctx.Done():
			return CallResult{OK: false, Message: "group: context cancelled during retry", Error: ctx.Err()}
		case <-time.After(backoff):
		}
	}
	return res
}

func (g *Group) callParallel(ctx context.Context, members []string, payload any) GroupResult {
	eg, egCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	results := make(map[string]CallResult, len(members))

	for _, id := range members {
		id := id
		eg.Go(func() error {
			res := g.callOne(egCtx, id, payload)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			if !res.OK && g.cfg.ErrorStrategy == ErrorFailFast {
				return res.Error
			}
			return nil
		})
	}

	err := eg.Wait()
	return finalizeGroupResult(results, members, g.cfg.ResultMode, err)
}

func (g *Group) callSequential(ctx context.Context, members []string, payload any) GroupResult {
	results := make(map[string]CallResult, len(members))
	for _, id := range members {
		res := g.callOne(ctx, id, payload)
		results[id] = res
		if !res.OK && g.cfg.ErrorStrategy == ErrorFailFast {
			return finalizeGroupResult(results, members, g.cfg.ResultMode, res.Error)
		}
	}
	return finalizeGroupResult(results, members, g.cfg.ResultMode, nil)
}

// callWaterfall threads each member's successful output payload into the
// next member's input, stopping early on failure under ErrorFailFast.
func (g *Group) callWaterfall(ctx context.Context, members []string, payload any) GroupResult {
	results := make(map[string]CallResult, len(members))
	current := payload
	for _, id := range members {
		res := g.callOne(ctx, id, current)
		results[id] = res
		if !res.OK {
			if g.cfg.ErrorStrategy == ErrorFailFast {
				return finalizeGroupResult(results, members, g.cfg.ResultMode, res.Error)
			}
			continue
		}
		current = res.Payload
	}
	return finalizeGroupResult(results, members, g.cfg.ResultMode, nil)
}

// callRace dispatches to every member concurrently and returns as soon as
// the first one succeeds; the rest continue in the background but their
// results after the race is decided are discarded.
func (g *Group) callRace(ctx context.Context, members []string, payload any) GroupResult {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		id  string
		res CallResult
	}
	out := make(chan outcome, len(members))
	var wg sync.WaitGroup
	for _, id := range members {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := g.callOne(raceCtx, id, payload)
			select {
			case out <- outcome{id: id, res: res}:
			case <-raceCtx.Done():
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	partial := make(map[string]CallResult, len(members))
	for o := range out {
		partial[o.id] = o.res
		if o.res.OK {
			cancel()
			return GroupResult{OK: true, Message: "race: first success", Results: map[string]CallResult{o.id: o.res}}
		}
	}

	return GroupResult{OK: false, Message: "race: all members failed", PartialResults: partial}
}

func finalizeGroupResult(results map[string]CallResult, members []string, mode GroupResultMode, err error) GroupResult {
	ok := err == nil
	if ok {
		for _, r := range results {
			if !r.OK {
				ok = false
				break
			}
		}
	}

	gr := GroupResult{OK: ok, Results: results}
	if !ok {
		gr.Message = "group: one or more members failed"
	} else {
		gr.Message = "group: all members succeeded"
	}

	switch mode {
	case ResultFirst:
		if len(members) > 0 {
			gr.Results = map[string]CallResult{members[0]: results[members[0]]}
		}
	case ResultLast:
		if len(members) > 0 {
			last := members[len(members)-1]
			gr.Results = map[string]CallResult{last: results[last]}
		}
	}
	return gr
}
