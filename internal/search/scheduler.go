package search

import "time"

// Timer is a pending debounce callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Tests swap in a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
