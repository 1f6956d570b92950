package crawler

import (
	"context"
	"time"
)

// PauseController abstracts how the harvester sleeps.
type PauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// NextCycleDelay returns how long to wait so cycles start interval apart.
// Cycles that overrun the interval start the next one immediately, and the
// wait never exceeds interval. Pass times that carry a monotonic reading.
func NextCycleDelay(cycleStart, now time.Time, interval time.Duration) time.Duration {
	elapsed := max(now.Sub(cycleStart), 0)
	return max(interval-elapsed, 0)
}

// Pacer spaces detail fetches and cycles.
type Pacer struct {
	interval  time.Duration
	itemDelay time.Duration
	clock     Clock
	pauser    PauseController
}

// PacerOption customizes a Pacer.
type PacerOption func(*Pacer)

// WithPauseController replaces the timer-based sleeper.
func WithPauseController(pc PauseController) PacerOption {
	return func(p *Pacer) {
		if pc != nil {
			p.pauser = pc
		}
	}
}

// NewPacer builds a pacer that sleeps on a real timer unless overridden.
func NewPacer(interval, itemDelay time.Duration, clock Clock, opts ...PacerOption) *Pacer {
	p := &Pacer{
		interval:  interval,
		itemDelay: itemDelay,
		clock:     clock,
		pauser:    &timerPauseController{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured cycle interval.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// WaitBetweenItems sleeps the fixed inter-item delay.
func (p *Pacer) WaitBetweenItems(ctx context.Context) {
	p.pauser.Pause(ctx, p.itemDelay)
}

// WaitForNextCycle sleeps until the next cycle is due and returns the delay
// it slept for. It returns ctx.Err() if the context ends first.
func (p *Pacer) WaitForNextCycle(ctx context.Context, cycleStart time.Time) (time.Duration, error) {
	delay := NextCycleDelay(cycleStart, p.clock.Now(), p.interval)
	p.pauser.Pause(ctx, delay)
	return delay, ctx.Err()
}
