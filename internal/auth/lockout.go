package auth

import (
	"math"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultLockWindow  = 15 * time.Minute
)

// LockoutPolicy decides lockout transitions. It holds no state and never
// touches storage; callers persist the LockoutState it returns.
type LockoutPolicy struct {
	MaxAttempts int
	LockWindow  time.Duration
}

// FailureOutcome describes the result of registering one failed verification.
type FailureOutcome struct {
	Locked            bool
	LockedUntil       time.Time
	AttemptsRemaining int
}

func NewLockoutPolicy(maxAttempts int, lockWindow time.Duration) LockoutPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockWindow <= 0 {
		lockWindow = DefaultLockWindow
	}
	return LockoutPolicy{MaxAttempts: maxAttempts, LockWindow: lockWindow}
}

// Locked reports whether state is locked at now, and until when.
func (p LockoutPolicy) Locked(state LockoutState, now time.Time) (time.Time, bool) {
	if state.LockedUntil != nil && state.LockedUntil.After(now) {
		return *state.LockedUntil, true
	}
	return time.Time{}, false
}

// Normalize clears a lock whose window has elapsed. The counter restarts so
// that an expired lock never carries failures into the next window.
func (p LockoutPolicy) Normalize(state LockoutState, now time.Time) LockoutState {
	if state.LockedUntil != nil && !state.LockedUntil.After(now) {
		return LockoutState{}
	}
	return state
}

// Failure applies one failed verification. A state that is already locked is
// returned unchanged so a racing request cannot push the counter past the threshold.
func (p LockoutPolicy) Failure(state LockoutState, now time.Time) (LockoutState, FailureOutcome) {
	if until, locked := p.Locked(state, now); locked {
		return state, FailureOutcome{Locked: true, LockedUntil: until}
	}

	next := p.Normalize(state, now)
	next.FailedAttempts++
	failedAt := now
	next.LastFailedAt = &failedAt

	if next.FailedAttempts >= p.MaxAttempts {
		next.FailedAttempts = p.MaxAttempts
		until := now.Add(p.LockWindow)
		next.LockedUntil = &until
		return next, FailureOutcome{Locked: true, LockedUntil: until}
	}

	return next, FailureOutcome{AttemptsRemaining: p.MaxAttempts - next.FailedAttempts}
}

// Success returns the state after a successful verification.
func (p LockoutPolicy) Success() LockoutState {
	return LockoutState{}
}

// MinutesRemaining rounds the remaining lock time up to whole minutes.
func MinutesRemaining(until, now time.Time) int {
	remaining := until.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}
