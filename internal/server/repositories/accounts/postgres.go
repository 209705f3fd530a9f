package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts account, assigning an ID when none is set.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	query := `
		INSERT INTO accounts (id, identifier_ciphertext, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		account.ID, account.IdentifierCiphertext, account.PasswordHash, account.Role,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrAccountExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	query := `
		SELECT id, identifier_ciphertext, password_hash, role,
		       failed_attempts, last_attempt_time, lockout_until,
		       is_permanently_locked, lock_version, created_at, updated_at
		FROM accounts
		WHERE identifier_ciphertext = $1
	`

	var (
		a                         models.Account
		lastAttempt, lockoutUntil sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, identifier).Scan(
		&a.ID, &a.IdentifierCiphertext, &a.PasswordHash, &a.Role,
		&a.FailedAttempts, &lastAttempt, &lockoutUntil,
		&a.IsPermanentlyLocked, &a.LockVersion, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.LastAttemptTime = timePtr(lastAttempt)
	a.LockoutUntil = timePtr(lockoutUntil)
	return &a, nil
}

func (r *PostgresRepository) UpdateLockState(ctx context.Context, id string, expectedVersion int64, state models.LockState) (bool, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = $3,
		    last_attempt_time = $4,
		    lockout_until = $5,
		    is_permanently_locked = $6,
		    lock_version = lock_version + 1,
		    updated_at = now()
		WHERE id = $1 AND lock_version = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, expectedVersion,
		state.FailedAttempts, nullTime(state.LastAttemptTime), nullTime(state.LockoutUntil), state.IsPermanentlyLocked)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Unlock(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET failed_attempts = 0,
		    last_attempt_time = NULL,
		    lockout_until = NULL,
		    is_permanently_locked = FALSE,
		    lock_version = lock_version + 1,
		    updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
