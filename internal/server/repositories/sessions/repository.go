// Package sessions declares the server-side repository contract for the
// session registry: hashed bearer tokens bound to accounts.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/server/models"
)

// Repository defines operations for recording and revoking sessions.
// Tokens never reach this layer; every lookup is by token hash.
type Repository interface {
	// Create stores a new active session, assigning an ID when none is set.
	Create(ctx context.Context, session *models.Session) error

	// FindByHash returns the most recent session with tokenHash, or
	// common.ErrorNotFound.
	FindByHash(ctx context.Context, tokenHash string) (*models.Session, error)

	// Deactivate marks the active session with tokenHash inactive and
	// reports whether a row changed. Inactive or unknown hashes return false.
	Deactivate(ctx context.Context, tokenHash string, at time.Time) (bool, error)

	// DeactivateAll marks every active session of accountID inactive and
	// returns the hashes that were revoked.
	DeactivateAll(ctx context.Context, accountID string, at time.Time) ([]string, error)

	// DeactivateExpired marks active sessions whose expiry is not after now
	// inactive and returns how many rows changed.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
