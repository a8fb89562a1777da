package cyre

import "context"

// defaultMaxChainDepth bounds handler follow-up calls (spec §4.2 step 9)
// so a misconfigured handler that always chains cannot recurse forever.
const defaultMaxChainDepth = 100

// followChain runs the tail call a handler requested via Chain(id, payload),
// recursing through the same depth-bounded call path as any other Call.
// depth is the number of chain hops already taken to reach this handler's
// invocation; it is 0 for a call initiated directly via Runtime.Call.
func (rt *Runtime) followChain(ctx context.Context, hr HandlerReturn, depth int) CallResult {
	max := rt.maxChainDepth
	if max <= 0 {
		max = defaultMaxChainDepth
	}
	if depth >= max {
		err := &ErrChainDepthExceeded{ID: hr.chainID, Depth: depth, Max: max}
		return CallResult{OK: false, Message: err.Error(), Error: err}
	}
	return rt.callInternal(ctx, hr.chainID, hr.chainPayload, depth+1)
}
