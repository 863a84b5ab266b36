package batch

import (
	"errors"
	"fmt"
	"time"
)

// ErrBreakerOpen is returned when the circuit breaker refuses new work.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Breaker trips after a run of consecutive item failures and refuses
// work until a cooldown passes. It exists so a systemic failure (broken
// toolchain, dead network) does not burn the whole queue's retry
// budget.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	sm        *StateManager
}

// NewBreaker creates a breaker bound to persisted state.
func NewBreaker(sm *StateManager, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Minute
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, sm: sm}
}

// Allow returns nil if work may proceed, or ErrBreakerOpen (wrapped
// with the remaining cooldown) if the breaker is open.
func (b *Breaker) Allow() error {
	b.sm.mu.Lock()
	defer b.sm.mu.Unlock()

	openUntil := b.sm.state.Breaker.OpenUntil
	if openUntil == nil {
		return nil
	}
	if time.Now().Before(*openUntil) {
		return fmt.Errorf("%w until %s", ErrBreakerOpen, openUntil.Format(time.RFC3339))
	}

	// Cooldown has passed: half-open, allow a probe.
	b.sm.state.Breaker.OpenUntil = nil
	_ = b.sm.save()
	return nil
}

// RecordSuccess resets the failure streak and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.sm.mu.Lock()
	defer b.sm.mu.Unlock()

	br := &b.sm.state.Breaker
	if br.ConsecutiveFailures == 0 && br.OpenUntil == nil {
		return
	}
	br.ConsecutiveFailures = 0
	br.OpenUntil = nil
	_ = b.sm.save()
}

// RecordFailure bumps the failure streak, tripping the breaker when
// the streak reaches the threshold. Returns true if the breaker opened.
func (b *Breaker) RecordFailure() bool {
	b.sm.mu.Lock()
	defer b.sm.mu.Unlock()

	br := &b.sm.state.Breaker
	br.ConsecutiveFailures++
	tripped := false
	if br.ConsecutiveFailures >= b.threshold && br.OpenUntil == nil {
		until := time.Now().Add(b.cooldown)
		br.OpenUntil = &until
		tripped = true
	}
	_ = b.sm.save()
	return tripped
}

// Open reports whether the breaker is currently refusing work.
func (b *Breaker) Open() bool {
	return b.Allow() != nil
}
