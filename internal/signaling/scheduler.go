package signaling

import "time"

// Timer is a pending scheduled callback
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot callbacks that run on the event loop
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type loopScheduler struct {
	post func(func())
}

// NewLoopScheduler returns a scheduler whose callbacks are posted back onto
// the loop through post instead of running on the timer goroutine.
func NewLoopScheduler(post func(func())) Scheduler {
	return loopScheduler{post: post}
}

func (s loopScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() { s.post(f) })
}
