package cyre

import (
	"container/heap"
	"sync"
	"time"
)

// afterMs is a small indirection over time.After so the poll loop reads in
// milliseconds throughout, matching the clock interface's unit.
func afterMs(ms int64) <-chan time.Time {
	return time.After(time.Duration(ms) * time.Millisecond)
}

// maxTimeoutMs bounds a single underlying sleep. Some platforms misbehave
// on very long single timers; any requested delay longer than this is
// chunked into successive hops of at most this length (spec §4.3).
const maxTimeoutMs int64 = 24 * 60 * 60 * 1000 // 24h

type timerKind int8

const (
	timerDelay timerKind = iota
	timerInterval
	timerDebounce
	timerMaxWait
)

// timerEntry is one scheduled fire, ordered into timeKeeper's heap by
// firesAtMs. repeatsLeft follows ChannelConfig.Repeat's convention:
// RepeatInfinite never decrements to zero, a positive count fires that
// many more times, 1 is "fire once more then stop".
type timerEntry struct {
	id          string
	channelID   string
	kind        timerKind
	firesAtMs   int64
	remainingMs int64 // remaining sleep before firesAtMs, for chunked long delays
	intervalMs  int64
	repeatsLeft int64
	paused      bool
	callback    func()
	index       int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].firesAtMs < h[j].firesAtMs }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timeKeeper is Cyre's scheduler: a single priority queue of pending fires
// driven by one goroutine, rather than one Go timer per channel (spec
// §4.3). rateFunc lets the breathing controller stretch actual intervals
// under stress without the caller's configured interval changing.
type timeKeeper struct {
	mu       sync.Mutex
	heap     timerHeap
	byID     map[string]*timerEntry
	clk      clock
	rateFunc func() float64
	wake     chan struct{}
	stop     chan struct{}
	stopped  bool
	nextSeq  uint64
}

func newTimeKeeper(clk clock) *timeKeeper {
	tk := &timeKeeper{
		byID:     make(map[string]*timerEntry),
		clk:      clk,
		rateFunc: func() float64 { return 1.0 },
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	heap.Init(&tk.heap)
	go tk.run()
	return tk
}

func (tk *timeKeeper) nextID() string {
	tk.nextSeq++
	return newTraceID()
}

// schedule registers a new timer. delayMs is the time until the first
// fire; intervalMs/repeat govern subsequent fires for interval channels.
// repeat follows ChannelConfig.Repeat semantics; pass 1 for a one-shot
// (delay, debounce, maxWait) timer.
func (tk *timeKeeper) schedule(channelID string, kind timerKind, delayMs, intervalMs, repeat int64, cb func()) string {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	id := tk.nextID()
	scaled := scaleMs(delayMs, tk.rateFunc())
	e := &timerEntry{
		id:          id,
		channelID:   channelID,
		kind:        kind,
		remainingMs: scaled,
		intervalMs:  intervalMs,
		repeatsLeft: repeat,
		callback:    cb,
	}
	tk.armLocked(e)
	tk.byID[id] = e
	heap.Push(&tk.heap, e)
	tk.nudge()
	return id
}

// armLocked sets firesAtMs from the entry's remaining sleep, chunking at
// maxTimeoutMs so no single heap wait exceeds the platform-safe bound.
func (tk *timeKeeper) armLocked(e *timerEntry) {
	hop := e.remainingMs
	if hop > maxTimeoutMs {
		hop = maxTimeoutMs
	}
	e.firesAtMs = tk.clk.nowMs() + hop
}

func scaleMs(ms int64, rate float64) int64 {
	if rate <= 0 {
		rate = 1
	}
	return int64(float64(ms) * rate)
}

func (tk *timeKeeper) cancel(id string) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	e, ok := tk.byID[id]
	if !ok {
		return
	}
	delete(tk.byID, id)
	if e.index >= 0 {
		heap.Remove(&tk.heap, e.index)
	}
}

func (tk *timeKeeper) pause(id string) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if e, ok := tk.byID[id]; ok {
		e.paused = true
	}
}

func (tk *timeKeeper) resume(id string) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	e, ok := tk.byID[id]
	if !ok || !e.paused {
		return
	}
	e.paused = false
	tk.nudge()
}

func (tk *timeKeeper) pauseAll() {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	for _, e := range tk.byID {
		e.paused = true
	}
}

func (tk *timeKeeper) resumeAll() {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	for _, e := range tk.byID {
		e.paused = false
	}
	tk.nudge()
}

func (tk *timeKeeper) setRateFunc(f func() float64) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	tk.rateFunc = f
}

func (tk *timeKeeper) nudge() {
	select {
	case tk.wake <- struct{}{}:
	default:
	}
}

func (tk *timeKeeper) close() {
	tk.mu.Lock()
	if tk.stopped {
		tk.mu.Unlock()
		return
	}
	tk.stopped = true
	tk.mu.Unlock()
	close(tk.stop)
}

func (tk *timeKeeper) run() {
	ticker := newPoller(tk)
	for {
		wait := ticker.nextWait()
		select {
		case <-tk.stop:
			return
		case <-tk.wake:
			continue
		case <-afterMs(wait):
			ticker.fireDue()
		}
	}
}

// poller isolates the heap-draining logic from the goroutine loop so it
// can be exercised without a real timer.
type poller struct{ tk *timeKeeper }

func newPoller(tk *timeKeeper) *poller { return &poller{tk: tk} }

// nextWait returns how long to sleep before the next candidate fire, in
// milliseconds, or a generous idle period when the queue is empty.
func (p *poller) nextWait() int64 {
	p.tk.mu.Lock()
	defer p.tk.mu.Unlock()
	if len(p.tk.heap) == 0 {
		return 1000
	}
	top := p.tk.heap[0]
	wait := top.firesAtMs - p.tk.clk.nowMs()
	if wait < 0 {
		wait = 0
	}
	if wait > 1000 {
		wait = 1000 // re-check at least once a second so resume()/nudge() stay responsive
	}
	return wait
}

// fireDue pops and fires every entry whose firesAtMs has arrived, skipping
// (but leaving queued) paused entries, and chunks or reschedules repeats.
func (p *poller) fireDue() {
	for {
		var due *timerEntry
		p.tk.mu.Lock()
		if len(p.tk.heap) == 0 {
			p.tk.mu.Unlock()
			return
		}
		top := p.tk.heap[0]
		if top.firesAtMs > p.tk.clk.nowMs() {
			p.tk.mu.Unlock()
			return
		}
		due = heap.Pop(&p.tk.heap).(*timerEntry)

		if due.paused {
			due.remainingMs = due.firesAtMs - p.tk.clk.nowMs()
			if due.remainingMs < 0 {
				due.remainingMs = due.intervalMs
			}
			p.tk.armLocked(due)
			heap.Push(&p.tk.heap, due)
			p.tk.mu.Unlock()
			continue
		}

		// Long delay chunked across multiple hops: re-arm without firing.
		if due.remainingMs > maxTimeoutMs {
			due.remainingMs -= maxTimeoutMs
			p.tk.armLocked(due)
			heap.Push(&p.tk.heap, due)
			p.tk.mu.Unlock()
			continue
		}

		cb := due.callback
		reschedule := p.advanceLocked(due)
		p.tk.mu.Unlock()

		if cb != nil {
			go cb()
		}
		if !reschedule {
			p.tk.mu.Lock()
			delete(p.tk.byID, due.id)
			p.tk.mu.Unlock()
		}
	}
}

// advanceLocked decides whether a fired interval entry repeats, and if so
// re-arms and re-queues it. Must be called with tk.mu held; pushes back
// onto the heap itself when it returns true.
func (p *poller) advanceLocked(e *timerEntry) bool {
	if e.kind != timerInterval {
		return false
	}
	if e.repeatsLeft == RepeatInfinite {
		e.remainingMs = scaleMs(e.intervalMs, p.tk.rateFunc())
		p.tk.armLocked(e)
		heap.Push(&p.tk.heap, e)
		return true
	}
	e.repeatsLeft--
	if e.repeatsLeft <= 0 {
		return false
	}
	e.remainingMs = scaleMs(e.intervalMs, p.tk.rateFunc())
	p.tk.armLocked(e)
	heap.Push(&p.tk.heap, e)
	return true
}
