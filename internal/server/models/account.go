// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is a login identity together with its brute-force lockout state.
type Account struct {
	ID string
	// IdentifierCiphertext is the deterministic ciphertext of the normalised
	// login name and the unique lookup key.
	IdentifierCiphertext string
	PasswordHash         string
	Role                 string

	FailedAttempts      int
	LastAttemptTime     *time.Time
	LockoutUntil        *time.Time
	IsPermanentlyLocked bool
	// LockVersion is bumped by every lock-state write and guards the
	// conditional update in UpdateLockState.
	LockVersion int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockState is the mutable lockout part of an Account.
type LockState struct {
	FailedAttempts      int
	LastAttemptTime     *time.Time
	LockoutUntil        *time.Time
	IsPermanentlyLocked bool
}

// LockState returns a copy of the account's lockout fields.
func (a *Account) LockState() LockState {
	return LockState{
		FailedAttempts:      a.FailedAttempts,
		LastAttemptTime:     a.LastAttemptTime,
		LockoutUntil:        a.LockoutUntil,
		IsPermanentlyLocked: a.IsPermanentlyLocked,
	}
}
