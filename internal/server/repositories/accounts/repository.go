// Package accounts declares the credential store: accounts keyed by the
// deterministic ciphertext of their login name, plus their lockout state.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/taskauth/internal/server/models"
)

// Repository defines the account operations used by the auth service.
type Repository interface {
	// Create inserts a new account. A duplicate identifier yields
	// common.ErrAccountExists.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// GetByIdentifier returns the account whose identifier ciphertext equals
	// identifier, or common.ErrorNotFound.
	GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error)

	// UpdateLockState writes state only if the row still carries
	// expectedVersion and bumps the version. It reports whether the row was
	// written; false means a concurrent writer got there first.
	UpdateLockState(ctx context.Context, id string, expectedVersion int64, state models.LockState) (bool, error)

	// Unlock clears every lockout field unconditionally.
	Unlock(ctx context.Context, id string) error
}
