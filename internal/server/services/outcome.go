package services

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/taskauth/internal/common"
)

// Kind groups service errors by how a transport should answer them.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindUnauthenticated
	KindLocked
	KindForbidden
	KindConflict
)

// Classify returns the Kind of err. Unrecognised errors are KindInternal.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, common.ErrMalformedRequest),
		errors.Is(err, common.ErrDecryptionFailed),
		errors.Is(err, common.ErrIncompleteCredentials):
		return KindInvalid
	case errors.Is(err, common.ErrUnknownAccount),
		errors.Is(err, common.ErrWrongPassword),
		errors.Is(err, common.ErrTokenMalformed),
		errors.Is(err, common.ErrTokenBadSignature),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrSessionInactive):
		return KindUnauthenticated
	case errors.Is(err, common.ErrPermanentlyLocked),
		errors.Is(err, common.ErrTemporarilyLocked),
		errors.Is(err, common.ErrLockoutApplied):
		return KindLocked
	case errors.Is(err, common.ErrPermissionDenied):
		return KindForbidden
	case errors.Is(err, common.ErrAccountExists):
		return KindConflict
	default:
		return KindInternal
	}
}

// PublicMessage returns the message shown to the caller for err. Unknown
// accounts and wrong passwords share one message; the remaining attempt
// count is appended only when exposeAttempts is set.
func PublicMessage(err error, exposeAttempts bool) string {
	var le *LoginError
	errors.As(err, &le)

	switch {
	case errors.Is(err, common.ErrMalformedRequest):
		return "malformed request"
	case errors.Is(err, common.ErrDecryptionFailed):
		return "request could not be decrypted"
	case errors.Is(err, common.ErrIncompleteCredentials):
		return "username and password are required"
	case errors.Is(err, common.ErrWrongPassword):
		if exposeAttempts && le != nil && le.AttemptsRemaining > 0 {
			return fmt.Sprintf("invalid username or password, %d attempts remaining", le.AttemptsRemaining)
		}
		return "invalid username or password"
	case errors.Is(err, common.ErrUnknownAccount):
		return "invalid username or password"
	case errors.Is(err, common.ErrPermanentlyLocked):
		return "account is permanently locked, contact an administrator"
	case errors.Is(err, common.ErrTemporarilyLocked):
		if le != nil && le.SecondsRemaining > 0 {
			return fmt.Sprintf("account is temporarily locked, try again in %d seconds", le.SecondsRemaining)
		}
		return "account is temporarily locked"
	case errors.Is(err, common.ErrPermanentLockout):
		return "too many failed attempts, account permanently locked"
	case errors.Is(err, common.ErrLockoutApplied):
		return "too many failed attempts, account temporarily locked"
	case errors.Is(err, common.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, common.ErrTokenMalformed),
		errors.Is(err, common.ErrTokenBadSignature),
		errors.Is(err, common.ErrSessionInactive):
		return "invalid or revoked token"
	case errors.Is(err, common.ErrPermissionDenied):
		return "permission denied"
	case errors.Is(err, common.ErrAccountExists):
		return "account already exists"
	default:
		return "internal server error"
	}
}

// RetryAfter returns the seconds left on a temporary lock carried by err.
func RetryAfter(err error) (int, bool) {
	var le *LoginError
	if errors.As(err, &le) && le.SecondsRemaining > 0 {
		return le.SecondsRemaining, true
	}
	return 0, false
}
