// Package lockout implements the escalating brute-force lockout policy.
// It performs no I/O; callers load and persist the lock state.
package lockout

import (
	"math"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/server/models"
)

// Action is the lockout applied by a single failed attempt.
type Action int

const (
	ActionNone Action = iota
	ActionTemporary
	ActionPermanent
)

func (a Action) String() string {
	switch a {
	case ActionTemporary:
		return "temporary"
	case ActionPermanent:
		return "permanent"
	default:
		return "none"
	}
}

// Policy holds the lockout parameters. Every AttemptsPerLevel consecutive
// failures complete a level: level 1 locks for FirstLockout, level 2 for
// SecondLockout and level 3 or higher locks permanently.
type Policy struct {
	// Window is the idle time after which the failure count restarts,
	// unless a lockout has been recorded since the last success.
	Window           time.Duration
	AttemptsPerLevel int
	FirstLockout     time.Duration
	SecondLockout    time.Duration
}

// Default returns the standard policy: 3 attempts per level, a 120s idle
// window and 5m / 10m / permanent lockouts.
func Default() Policy {
	return Policy{
		Window:           120 * time.Second,
		AttemptsPerLevel: 3,
		FirstLockout:     5 * time.Minute,
		SecondLockout:    10 * time.Minute,
	}
}

// Decision is the outcome of one failed attempt.
type Decision struct {
	Failures          int
	AttemptsRemaining int
	Level             int
	Action            Action
	// LockoutUntil is set only when Action is ActionTemporary.
	LockoutUntil *time.Time
}

// RegisterFailure decides the new failure count and any lockout for a failed
// attempt at now. lockoutPending reports whether the account carries a
// lockout timestamp (expired or not) recorded since its last success.
func (p Policy) RegisterFailure(now time.Time, failures int, lastAttempt *time.Time, lockoutPending bool) Decision {
	n := p.attemptsPerLevel()

	next := failures + 1
	if lastAttempt != nil && now.Sub(*lastAttempt) > p.Window && !lockoutPending {
		next = 1
	}

	d := Decision{
		Failures:          next,
		AttemptsRemaining: n - ((next-1)%n + 1),
		Level:             (next + n - 1) / n,
	}
	if next%n != 0 {
		return d
	}

	switch d.Level {
	case 1:
		until := now.Add(p.FirstLockout)
		d.Action, d.LockoutUntil = ActionTemporary, &until
	case 2:
		until := now.Add(p.SecondLockout)
		d.Action, d.LockoutUntil = ActionTemporary, &until
	default:
		d.Action = ActionPermanent
	}
	return d
}

// Apply returns prev updated with the decision made at now. An earlier
// lockout timestamp is kept when no new one is applied, so the account keeps
// counting toward the next level until a success clears it.
func (d Decision) Apply(prev models.LockState, now time.Time) models.LockState {
	at := now
	next := models.LockState{
		FailedAttempts:      d.Failures,
		LastAttemptTime:     &at,
		LockoutUntil:        prev.LockoutUntil,
		IsPermanentlyLocked: prev.IsPermanentlyLocked,
	}
	switch d.Action {
	case ActionTemporary:
		next.LockoutUntil = d.LockoutUntil
	case ActionPermanent:
		next.IsPermanentlyLocked = true
	}
	return next
}

// RegisterSuccess clears the failure count, last attempt and temporary
// lockout. The permanent flag is never cleared here.
func (p Policy) RegisterSuccess(prev models.LockState) models.LockState {
	return models.LockState{IsPermanentlyLocked: prev.IsPermanentlyLocked}
}

// State classifies an account's current lock.
type State int

const (
	StateOpen State = iota
	StateTemporary
	StatePermanent
)

// Status is the result of Check.
type Status struct {
	State State
	// Remaining is the time left on a temporary lockout.
	Remaining time.Duration
}

// SecondsRemaining rounds Remaining up to whole seconds.
func (s Status) SecondsRemaining() int {
	return int(math.Ceil(s.Remaining.Seconds()))
}

// Check reports whether an account may attempt a password check at now.
// Permanent lockout is checked first.
func (p Policy) Check(now time.Time, permanentlyLocked bool, lockoutUntil *time.Time) Status {
	if permanentlyLocked {
		return Status{State: StatePermanent}
	}
	if lockoutUntil != nil && lockoutUntil.After(now) {
		return Status{State: StateTemporary, Remaining: lockoutUntil.Sub(now)}
	}
	return Status{State: StateOpen}
}

func (p Policy) attemptsPerLevel() int {
	if p.AttemptsPerLevel < 1 {
		return 1
	}
	return p.AttemptsPerLevel
}
