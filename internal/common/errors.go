// Package common defines shared constants and sentinel errors used across
// the transport, service and repository layers of taskauth. Callers should
// use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")
	ErrStorage    = errors.New("storage error")
)

// Login outcomes.
var (
	ErrMalformedRequest      = errors.New("malformed request")
	ErrDecryptionFailed      = errors.New("decryption failed")
	ErrIncompleteCredentials = errors.New("incomplete credentials")
	ErrUnknownAccount        = errors.New("unknown account")
	ErrPermanentlyLocked     = errors.New("account permanently locked")
	ErrTemporarilyLocked     = errors.New("account temporarily locked")
	ErrWrongPassword         = errors.New("wrong password")

	// ErrLockoutApplied is wrapped by the three level-specific errors so a
	// caller can match either the exact level or "some lockout was applied".
	ErrLockoutApplied     = errors.New("lockout applied")
	ErrFirstLevelLockout  = fmt.Errorf("%w: first level", ErrLockoutApplied)
	ErrSecondLevelLockout = fmt.Errorf("%w: second level", ErrLockoutApplied)
	ErrPermanentLockout   = fmt.Errorf("%w: permanent", ErrLockoutApplied)
)

// Token and session errors.
var (
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")
	ErrSessionInactive   = errors.New("session inactive")
	ErrPermissionDenied  = errors.New("permission denied")
)
