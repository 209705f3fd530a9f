package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/cache"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/repomanager"
)

// SessionCache is the optional read-through cache consulted by IsActive.
// *cache.SessionCache implements it.
type SessionCache interface {
	Put(ctx context.Context, tokenHash string, e cache.Entry, now time.Time) error
	Get(ctx context.Context, tokenHash string) (cache.Entry, bool, error)
	Forget(ctx context.Context, tokenHashes ...string) error
	ForgetAccount(ctx context.Context, accountID string) (int64, error)
}

// HashToken returns the hex SHA-256 of token, the only form in which tokens
// are stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SessionRegistry records issued tokens and answers whether they are still
// active. PostgreSQL is written before the cache on every change. A cache
// that cannot record an invalidation fails the call with ErrStorage, since
// its entry would otherwise keep the token active.
type SessionRegistry struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       SessionCache
	logger      logging.Logger
	now         func() time.Time
}

// NewSessionRegistry builds a registry. sessionCache may be nil.
func NewSessionRegistry(db *sql.DB, m repomanager.RepositoryManager, sessionCache SessionCache, logger logging.Logger) *SessionRegistry {
	return &SessionRegistry{
		db:          db,
		repomanager: m,
		cache:       sessionCache,
		logger:      logger.With("module", "sessions"),
		now:         time.Now,
	}
}

// Create stores a session for token and returns its ID.
func (r *SessionRegistry) Create(ctx context.Context, accountID, token string, expiresAt time.Time, ci ClientInfo) (string, error) {
	now := r.now()
	s := &models.Session{
		AccountID: accountID,
		TokenHash: HashToken(token),
		IPAddress: ci.IPAddress,
		UserAgent: ci.UserAgent,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	if err := r.repomanager.Sessions(r.db).Create(ctx, s); err != nil {
		return "", storageError(err)
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, s.TokenHash, cache.Entry{AccountID: accountID, ExpiresAt: expiresAt}, now); err != nil {
			r.logger.Warn(ctx, "session cache put failed", "error", err)
		}
	}
	return s.ID, nil
}

// Invalidate deactivates the session of token. It returns false when the
// session is unknown or already inactive. Retrying after an error is safe.
func (r *SessionRegistry) Invalidate(ctx context.Context, token string) (bool, error) {
	hash := HashToken(token)

	changed, err := r.repomanager.Sessions(r.db).Deactivate(ctx, hash, r.now())
	if err != nil {
		return false, storageError(err)
	}

	if r.cache != nil {
		if err := r.cache.Forget(ctx, hash); err != nil {
			r.logger.Error(ctx, "session cache revoke failed", "error", err)
			return false, storageError(err)
		}
	}
	return changed, nil
}

// InvalidateAll deactivates every active session of accountID and returns
// how many were deactivated.
func (r *SessionRegistry) InvalidateAll(ctx context.Context, accountID string) (int, error) {
	hashes, err := r.repomanager.Sessions(r.db).DeactivateAll(ctx, accountID, r.now())
	if err != nil {
		return 0, storageError(err)
	}

	if r.cache != nil {
		if err := r.cache.Forget(ctx, hashes...); err != nil {
			r.logger.Error(ctx, "session cache revoke failed", "error", err)
			return 0, storageError(err)
		}
		if _, err := r.cache.ForgetAccount(ctx, accountID); err != nil {
			r.logger.Error(ctx, "session cache revoke failed", "error", err)
			return 0, storageError(err)
		}
	}

	r.logger.Info(ctx, "sessions invalidated", "account_id", accountID, "count", len(hashes))
	return len(hashes), nil
}

// IsActive reports whether token belongs to an active, unexpired session.
func (r *SessionRegistry) IsActive(ctx context.Context, token string) (bool, error) {
	hash := HashToken(token)
	now := r.now()

	if r.cache != nil {
		e, ok, err := r.cache.Get(ctx, hash)
		switch {
		case err != nil:
			r.logger.Warn(ctx, "session cache get failed", "error", err)
		case ok && e.Revoked:
			return false, nil
		case ok && e.ExpiresAt.After(now):
			return true, nil
		}
	}

	s, err := r.repomanager.Sessions(r.db).FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, storageError(err)
	}

	active := s.IsActive && s.ExpiresAt.After(now)
	if active && r.cache != nil {
		if err := r.cache.Put(ctx, hash, cache.Entry{AccountID: s.AccountID, ExpiresAt: s.ExpiresAt}, now); err != nil {
			r.logger.Warn(ctx, "session cache put failed", "error", err)
		}
	}
	return active, nil
}

// SweepExpired marks expired sessions that are still flagged active as
// inactive. It is housekeeping only: expired tokens are already rejected.
func (r *SessionRegistry) SweepExpired(ctx context.Context) (int64, error) {
	n, err := r.repomanager.Sessions(r.db).DeactivateExpired(ctx, r.now())
	if err != nil {
		return 0, storageError(err)
	}
	if n > 0 {
		r.logger.Info(ctx, "expired sessions swept", "count", n)
	}
	return n, nil
}

func storageError(err error) error {
	return fmt.Errorf("%w: %v", common.ErrStorage, err)
}
