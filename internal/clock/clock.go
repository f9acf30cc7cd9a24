// Package clock abstracts wall-clock time and delayed execution so the engine
// can be driven deterministically in tests.
package clock

import "time"

// Timer is a pending delayed call.
type Timer interface {
	// Stop prevents the call from running. Returns false if it already ran
	// or was stopped.
	Stop() bool
}

// Clock provides the current time and delayed execution.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the system clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc. f runs in its own goroutine.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
