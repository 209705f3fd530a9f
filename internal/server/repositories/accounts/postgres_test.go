package accounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var accountColumns = []string{
	"id", "identifier_ciphertext", "password_hash", "role",
	"failed_attempts", "last_attempt_time", "lockout_until",
	"is_permanently_locked", "lock_version", "created_at", "updated_at",
}

const (
	insertQ = `(?s)^\s*INSERT\s+INTO\s+accounts\s*\(id,\s*identifier_ciphertext,\s*password_hash,\s*role\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+created_at,\s*updated_at\s*$`
	selectQ = `(?s)^\s*SELECT\s+id,.*FROM\s+accounts\s+WHERE\s+identifier_ciphertext\s*=\s*\$1\s*$`
	updateQ = `(?s)^\s*UPDATE\s+accounts\s+SET\s+failed_attempts\s*=\s*\$3.*lock_version\s*=\s*lock_version\s*\+\s*1.*WHERE\s+id\s*=\s*\$1\s+AND\s+lock_version\s*=\s*\$2\s*$`
	unlockQ = `(?s)^\s*UPDATE\s+accounts\s+SET\s+failed_attempts\s*=\s*0.*is_permanently_locked\s*=\s*FALSE.*WHERE\s+id\s*=\s*\$1\s*$`
)

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(insertQ).
		WithArgs(sqlmock.AnyArg(), "ct", "hash", common.RoleUser).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	acc, err := repo.Create(context.Background(), &models.Account{
		IdentifierCiphertext: "ct",
		PasswordHash:         "hash",
		Role:                 common.RoleUser,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, acc.ID)
	assert.Equal(t, now, acc.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_KeepsGivenID(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).
		WithArgs("acc-1", "ct", "hash", common.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

	acc, err := repo.Create(context.Background(), &models.Account{
		ID: "acc-1", IdentifierCiphertext: "ct", PasswordHash: "hash", Role: common.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.Account{IdentifierCiphertext: "ct"})
	if !errors.Is(err, common.ErrAccountExists) {
		t.Fatalf("want ErrAccountExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Account{IdentifierCiphertext: "ct"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: db down")
}

func TestGetByIdentifier_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	last := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(accountColumns).
		AddRow("acc-1", "ct", "hash", "user", 2, last, nil, false, int64(7), last, last)
	mock.ExpectQuery(selectQ).WithArgs("ct").WillReturnRows(rows)

	acc, err := repo.GetByIdentifier(context.Background(), "ct")
	require.NoError(t, err)

	assert.Equal(t, "acc-1", acc.ID)
	assert.Equal(t, 2, acc.FailedAttempts)
	require.NotNil(t, acc.LastAttemptTime)
	assert.True(t, acc.LastAttemptTime.Equal(last))
	assert.Nil(t, acc.LockoutUntil)
	assert.False(t, acc.IsPermanentlyLocked)
	assert.Equal(t, int64(7), acc.LockVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIdentifier_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectQ).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByIdentifier(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByIdentifier_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(selectQ).WithArgs("ct").WillReturnError(errors.New("boom"))

	_, err := repo.GetByIdentifier(context.Background(), "ct")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdateLockState(t *testing.T) {
	until := time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC)
	last := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	state := models.LockState{FailedAttempts: 3, LastAttemptTime: &last, LockoutUntil: &until}

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"written", 1, true},
		{"version conflict", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)

			mock.ExpectExec(updateQ).
				WithArgs("acc-1", int64(4), 3, last, until, false).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.UpdateLockState(context.Background(), "acc-1", 4, state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateLockState_ClearsNullables(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(updateQ).
		WithArgs("acc-1", int64(0), 0, nil, nil, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateLockState(context.Background(), "acc-1", 0, models.LockState{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateLockState_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(updateQ).WillReturnError(errors.New("db down"))

	_, err := repo.UpdateLockState(context.Background(), "acc-1", 0, models.LockState{})
	require.Error(t, err)
}

func TestUnlock(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(unlockQ).WithArgs("acc-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Unlock(context.Background(), "acc-1"))

	mock.ExpectExec(unlockQ).WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Unlock(context.Background(), "gone")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectExec(unlockQ).WithArgs("acc-1").WillReturnError(errors.New("db down"))
	assert.Error(t, repo.Unlock(context.Background(), "acc-1"))

	require.NoError(t, mock.ExpectationsWereMet())
}
