package services

import (
	"fmt"
)

// LoginError is a terminal login outcome. Err is one of the common login
// sentinels; the counters are set only where they apply.
type LoginError struct {
	Err error
	// SecondsRemaining is set with common.ErrTemporarilyLocked.
	SecondsRemaining int
	// AttemptsRemaining is set with common.ErrWrongPassword.
	AttemptsRemaining int
}

func (e *LoginError) Error() string {
	switch {
	case e.SecondsRemaining > 0:
		return fmt.Sprintf("%v (%ds remaining)", e.Err, e.SecondsRemaining)
	case e.AttemptsRemaining > 0:
		return fmt.Sprintf("%v (%d attempts remaining)", e.Err, e.AttemptsRemaining)
	default:
		return e.Err.Error()
	}
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

func loginError(err error) *LoginError {
	return &LoginError{Err: err}
}
