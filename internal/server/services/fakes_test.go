package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/cryptox"
	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/auth"
	"github.com/dmitrijs2005/taskauth/internal/server/lockout"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/sessions"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// --- accounts ---

type fakeAccountsRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Account

	getErr    error
	createErr error
	updateErr error
	unlockErr error

	// getBarrier, when set, holds GetByIdentifier callers until enough of
	// them have arrived.
	getBarrier *barrier
	// conflictAlways makes every UpdateLockState lose the version race.
	conflictAlways bool

	updates int
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{byID: map[string]*models.Account{}}
}

func (f *fakeAccountsRepo) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.byID {
		if existing.IdentifierCiphertext == a.IdentifierCiphertext {
			return nil, common.ErrAccountExists
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	f.byID[a.ID] = &cp
	return a, nil
}

func (f *fakeAccountsRepo) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	if f.getBarrier != nil {
		f.getBarrier.wait()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.byID {
		if a.IdentifierCiphertext == identifier {
			cp := *a
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) UpdateLockState(ctx context.Context, id string, expectedVersion int64, st models.LockState) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return false, f.updateErr
	}
	a, ok := f.byID[id]
	if !ok || f.conflictAlways || a.LockVersion != expectedVersion {
		return false, nil
	}
	a.FailedAttempts = st.FailedAttempts
	a.LastAttemptTime = st.LastAttemptTime
	a.LockoutUntil = st.LockoutUntil
	a.IsPermanentlyLocked = st.IsPermanentlyLocked
	a.LockVersion++
	f.updates++
	return true, nil
}

func (f *fakeAccountsRepo) Unlock(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unlockErr != nil {
		return f.unlockErr
	}
	a, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.FailedAttempts = 0
	a.LastAttemptTime = nil
	a.LockoutUntil = nil
	a.IsPermanentlyLocked = false
	a.LockVersion++
	return nil
}

func (f *fakeAccountsRepo) get(id string) models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byID[id]
}

// barrier releases its first want callers together.
type barrier struct {
	mu      sync.Mutex
	want    int
	arrived int
	release chan struct{}
}

func newBarrier(want int) *barrier {
	return &barrier{want: want, release: make(chan struct{})}
}

func (b *barrier) wait() {
	b.mu.Lock()
	b.arrived++
	n := b.arrived
	if n == b.want {
		close(b.release)
	}
	b.mu.Unlock()
	if n <= b.want {
		<-b.release
	}
}

// --- sessions ---

type fakeSessionsRepo struct {
	mu     sync.Mutex
	byHash map[string]*models.Session

	err error
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{byHash: map[string]*models.Session{}}
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.IsActive = true
	cp := *s
	f.byHash[s.TokenHash] = &cp
	return nil
}

func (f *fakeSessionsRepo) FindByHash(ctx context.Context, hash string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.byHash[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionsRepo) Deactivate(ctx context.Context, hash string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	s, ok := f.byHash[hash]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.LoggedOutAt = &at
	return true, nil
}

func (f *fakeSessionsRepo) DeactivateAll(ctx context.Context, accountID string, at time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var hashes []string
	for h, s := range f.byHash {
		if s.AccountID == accountID && s.IsActive {
			s.IsActive = false
			s.LoggedOutAt = &at
			hashes = append(hashes, h)
		}
	}
	sort.Strings(hashes)
	return hashes, nil
}

func (f *fakeSessionsRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, s := range f.byHash {
		if s.IsActive && !s.ExpiresAt.After(now) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionsRepo) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.byHash {
		if s.IsActive {
			n++
		}
	}
	return n
}

// --- manager ---

type fakeRepoManager struct {
	a *fakeAccountsRepo
	s *fakeSessionsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(db dbx.DBTX) accounts.Repository     { return m.a }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository     { return m.s }

// --- fixture ---

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *AuthService
	registry *SessionRegistry
	accounts *fakeAccountsRepo
	sessions *fakeSessionsRepo
	envelope *cryptox.Envelope
	issuer   *auth.TokenIssuer
	clock    *clock
	mock     sqlmock.Sqlmock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	env, err := cryptox.NewEnvelope("envelope-secret")
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	issuer, err := auth.NewTokenIssuer("signing-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	f := &fixture{
		accounts: newFakeAccountsRepo(),
		sessions: newFakeSessionsRepo(),
		envelope: env,
		issuer:   issuer,
		clock:    &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		mock:     mock,
	}
	rm := &fakeRepoManager{a: f.accounts, s: f.sessions}

	f.registry = NewSessionRegistry(db, rm, nil, logging.NewNop())
	f.registry.now = f.clock.Now

	f.svc = NewAuthService(db, rm, AuthDeps{
		Envelope: env,
		Hasher:   &cryptox.Bcrypt{Cost: bcrypt.MinCost},
		Issuer:   issuer,
		Sessions: f.registry,
		Policy:   lockout.Default(),
		Logger:   logging.NewNop(),
	})
	f.svc.now = f.clock.Now
	return f
}

// seed stores an account directly, bypassing the transaction.
func (f *fixture) seed(t *testing.T, username, password, role string) *models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	acc, err := f.accounts.Create(context.Background(), &models.Account{
		IdentifierCiphertext: f.envelope.SealDeterministic([]byte(NormalizeUsername(username))),
		PasswordHash:         string(hash),
		Role:                 role,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return acc
}

func (f *fixture) sealLogin(t *testing.T, username, password string) cryptox.Sealed {
	t.Helper()
	s, err := f.envelope.SealJSON(LoginRequest{Username: username, Password: password})
	if err != nil {
		t.Fatalf("SealJSON: %v", err)
	}
	return s
}

func (f *fixture) login(t *testing.T, username, password string) (*LoginResult, error) {
	t.Helper()
	return f.svc.Login(context.Background(), f.sealLogin(t, username, password), ClientInfo{IPAddress: "127.0.0.1", UserAgent: "test"})
}
