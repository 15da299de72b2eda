package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for run stamps and cache expiry. Pass nil
// to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time from the package clock.
func Now() time.Time {
	return clock.Now()
}

// RunStamp formats t as the hour-resolution stamp that prefixes every output
// file of a run, e.g. 2024042615.
func RunStamp(t time.Time) string {
	return t.UTC().Format("2006010215")
}
