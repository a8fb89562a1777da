package cyre

import "time"

// clock abstracts the monotonic time source used by dispatch, TimeKeeper,
// and the breathing controller. The production implementation wraps
// time.Now(); tests inject a fakeClock (testutil.go) to control elapsed
// time deterministically.
type clock interface {
	nowMs() int64
}

// systemClock reads the runtime monotonic clock via time.Now(), scaled to
// milliseconds since an arbitrary epoch. Only relative differences between
// readings are meaningful.
type systemClock struct{}

// clockEpoch is the arbitrary epoch systemClock measures from; time.Since
// uses its monotonic reading, so wall-clock adjustments do not shift nowMs.
var clockEpoch = time.Now()

func (systemClock) nowMs() int64 {
	return time.Since(clockEpoch).Milliseconds()
}
