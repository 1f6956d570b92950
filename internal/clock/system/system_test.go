// Package system exercises the real-time clock adapter.
package system

import (
	"strings"
	"testing"
	"time"
)

// TestClockNowCurrent ensures the clock tracks real time.
func TestClockNowCurrent(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().Add(-time.Second)
	got := clk.Now()
	after := time.Now().Add(time.Second)

	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestClockNowKeepsMonotonicReading checks elapsed time is measured on the
// monotonic clock.
func TestClockNowKeepsMonotonicReading(t *testing.T) {
	t.Parallel()

	got := New().Now()
	if !strings.Contains(got.String(), "m=") {
		t.Fatalf("expected a monotonic reading in %q", got.String())
	}
}

// TestClockNowMonotonic checks successive timestamps are non-decreasing.
func TestClockNowMonotonic(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Now()
	second := clk.Now()
	if second.Sub(first) < 0 {
		t.Fatalf("expected second call %v to be >= first %v", second, first)
	}
}
