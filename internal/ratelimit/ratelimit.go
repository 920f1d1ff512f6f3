package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter paces outbound navigations and adapts to how the target responds.
type Limiter interface {
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

const (
	backoffFactor  = 1.5
	recoveryFactor = 0.9
	errorThreshold = 3
	successStreak  = 5
	maxBackoff     = 10
)

// Adaptive enforces a jittered minimum spacing between actions and widens the
// spacing after consecutive errors. Sustained success shrinks it back toward
// the configured baseline, never below it.
type Adaptive struct {
	mu         sync.Mutex
	minDelay   time.Duration
	maxDelay   time.Duration
	baseMin    time.Duration
	baseMax    time.Duration
	lastAction time.Time
	errors     int
	successes  int
	rng        *rand.Rand
}

func NewAdaptive(minDelay, maxDelay time.Duration, rng *rand.Rand) *Adaptive {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Adaptive{
		minDelay: minDelay,
		maxDelay: maxDelay,
		baseMin:  minDelay,
		baseMax:  maxDelay,
		rng:      rng,
	}
}

// Wait blocks until the jittered spacing since the previous action has
// elapsed, or ctx ends.
func (a *Adaptive) Wait(ctx context.Context) error {
	a.mu.Lock()
	delay := a.jitteredDelay()
	remaining := delay - time.Since(a.lastAction)
	a.lastAction = time.Now().Add(remaining)
	if remaining < 0 {
		a.lastAction = time.Now()
	}
	a.mu.Unlock()

	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *Adaptive) jitteredDelay() time.Duration {
	if a.maxDelay <= a.minDelay {
		return a.minDelay
	}
	return a.minDelay + time.Duration(a.rng.Int63n(int64(a.maxDelay-a.minDelay)+1))
}

// RecordSuccess counts a clean navigation. A streak of them relaxes the
// spacing back toward the baseline.
func (a *Adaptive) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successes++
	a.errors = 0

	if a.successes >= successStreak {
		a.successes = 0
		a.minDelay = max(a.baseMin, time.Duration(float64(a.minDelay)*recoveryFactor))
		a.maxDelay = max(a.baseMax, time.Duration(float64(a.maxDelay)*recoveryFactor))
	}
}

// RecordError counts a failed or blocked navigation. Consecutive errors back
// the spacing off multiplicatively, capped at a multiple of the baseline.
func (a *Adaptive) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors++
	a.successes = 0

	if a.errors >= errorThreshold {
		a.errors = 0
		a.minDelay = min(a.baseMin*maxBackoff, time.Duration(float64(a.minDelay)*backoffFactor))
		a.maxDelay = min(a.baseMax*maxBackoff, time.Duration(float64(a.maxDelay)*backoffFactor))
	}
}

// Delays reports the current spacing window.
func (a *Adaptive) Delays() (time.Duration, time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.minDelay, a.maxDelay
}
