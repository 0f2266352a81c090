package debounce

import "time"

// Timer is the subset of *time.Timer used by the debouncer.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so the debounce policy can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns a Clock backed by package time.
func RealClock() Clock { return realClock{} }
