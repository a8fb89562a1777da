package cyre

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimeKeeperFiresOneShotDelay(t *testing.T) {
	tk := newTimeKeeper(systemClock{})
	defer tk.close()

	var fired atomic.Bool
	tk.schedule("c", timerDelay, 15, 0, 1, func() { fired.Store(true) })

	time.Sleep(60 * time.Millisecond)
	if !fired.Load() {
		t.Fatal("expected one-shot delay timer to fire")
	}
}

func TestTimeKeeperCancelPreventsFire(t *testing.T) {
	tk := newTimeKeeper(systemClock{})
	defer tk.close()

	var fired atomic.Bool
	id := tk.schedule("c", timerDelay, 30, 0, 1, func() { fired.Store(true) })
	tk.cancel(id)

	time.Sleep(80 * time.Millisecond)
	if fired.Load() {
		t.Fatal("expected cancelled timer to never fire")
	}
}

func TestTimeKeeperIntervalRepeatsThenStops(t *testing.T) {
	tk := newTimeKeeper(systemClock{})
	defer tk.close()

	var count atomic.Int64
	tk.schedule("c", timerInterval, 10, 10, 3, func() { count.Add(1) })

	time.Sleep(120 * time.Millisecond)
	if got := count.Load(); got != 3 {
		t.Fatalf("expected exactly 3 fires, got %d", got)
	}
}

func TestTimeKeeperPauseStopsFiring(t *testing.T) {
	tk := newTimeKeeper(systemClock{})
	defer tk.close()

	var count atomic.Int64
	id := tk.schedule("c", timerInterval, 10, 10, RepeatInfinite, func() { count.Add(1) })

	time.Sleep(35 * time.Millisecond)
	tk.pause(id)
	after := count.Load()

	time.Sleep(60 * time.Millisecond)
	if count.Load() != after {
		t.Fatalf("expected no further fires while paused: before=%d after=%d", after, count.Load())
	}

	tk.resume(id)
	time.Sleep(40 * time.Millisecond)
	if count.Load() <= after {
		t.Fatal("expected fires to resume after resume()")
	}
}
