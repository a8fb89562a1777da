package cyre

import (
	"sync"
)

// channelState is the mutable runtime record for one compiled channel,
// keyed by its fully-qualified path (branch path + "/" + id, or just id at
// the root). It holds everything dispatch needs between calls: the last
// seen payload for detectChanges, the last call time for throttle, and the
// permanent blocked flag set by a failed compile.
type channelState struct {
	mu sync.Mutex

	config   ChannelConfig
	compiled *compiledPipeline
	branch   string // branch path this channel lives under, "" at root

	blocked       bool
	blockedReason string

	lastCallMs     int64
	hasCalledOnce  bool
	hasLastPayload bool
	lastPayload    any

	debouncePending bool
	debounceTimerID string
	debounceFirstMs int64
	pendingPayload  any

	paused bool

	scheduleTimerID string // non-empty once the first Call armed the delay/interval timer

	callCount int64 // completed invocations
}

// store is the runtime's in-memory state: three maps guarded by one
// RWMutex. Channels, subscribers, and the last-payload cache are kept
// separate because they have different lifetimes — On() can race ahead of
// or behind Action(), and the payload cache survives Forget in spirit only
// long enough for a concurrent Get to observe it consistently.
type store struct {
	mu          sync.RWMutex
	channels    map[string]*channelState
	subscribers map[string]Handler
	payloads    map[string]any
}

func newStore() *store {
	return &store{
		channels:    make(map[string]*channelState),
		subscribers: make(map[string]Handler),
		payloads:    make(map[string]any),
	}
}

func (s *store) putChannel(id string, cs *channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[id] = cs
}

func (s *store) getChannel(id string) (*channelState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.channels[id]
	return cs, ok
}

func (s *store) deleteChannel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, id)
	delete(s.subscribers, id)
	delete(s.payloads, id)
}

func (s *store) putHandler(id string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[id] = h
}

func (s *store) getHandler(id string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.subscribers[id]
	return h, ok
}

func (s *store) putPayload(id string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[id] = payload
}

func (s *store) getPayload(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payloads[id]
	return p, ok
}

// ids returns a snapshot of every registered channel id, used by group
// membership resolution and Clear().
func (s *store) ids() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for id := range s.channels {
		out = append(out, id)
	}
	return out
}

// idsUnderBranch returns every registered channel id whose path is the
// branch path itself or nested beneath it, for cascading destroy.
func (s *store) idsUnderBranch(branchPath string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := branchPath + "/"
	out := make([]string, 0)
	for id, cs := range s.channels {
		if cs.branch == branchPath {
			out = append(out, id)
			continue
		}
		if len(cs.branch) > len(prefix) && cs.branch[:len(prefix)] == prefix {
			out = append(out, id)
		}
	}
	return out
}

func (s *store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string]*channelState)
	s.subscribers = make(map[string]Handler)
	s.payloads = make(map[string]any)
}
