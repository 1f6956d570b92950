// Package system provides the wall clock used to time cycles and stamp crawls.
package system

import "time"

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns time.Now with its monotonic reading intact, so durations taken
// between two calls are immune to wall-clock steps. Callers normalize with
// crawler.LedgerTime before storing.
func (Clock) Now() time.Time {
	return time.Now()
}
