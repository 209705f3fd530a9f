package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/cryptox"
	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/auth"
	"github.com/dmitrijs2005/taskauth/internal/server/lockout"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/repomanager"
)

// decoyPassword is hashed once and verified against on unknown-account logins
// so they cost as much as a wrong password.
const decoyPassword = "taskauth-decoy-password"

// maxLockStateRetries bounds the re-read/re-write loop of a conditional
// lock-state update.
const maxLockStateRetries = 10

// AuthDeps are the collaborators of AuthService.
type AuthDeps struct {
	Envelope *cryptox.Envelope
	Hasher   cryptox.PasswordHasher
	Issuer   *auth.TokenIssuer
	Sessions *SessionRegistry
	Policy   lockout.Policy
	Logger   logging.Logger

	// ExposeAttemptsRemaining is read by transports only; the service
	// always fills LoginError.AttemptsRemaining.
	ExposeAttemptsRemaining bool
}

// AuthService orchestrates login and the admin operations around it. It is
// the only component that knows every other one.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	envelope    *cryptox.Envelope
	hasher      cryptox.PasswordHasher
	issuer      *auth.TokenIssuer
	sessions    *SessionRegistry
	policy      lockout.Policy
	logger      logging.Logger
	now         func() time.Time

	decoyOnce sync.Once
	decoyHash string

	exposeAttemptsRemaining bool
}

// NewAuthService wires an AuthService.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, deps AuthDeps) *AuthService {
	return &AuthService{
		db:                      db,
		repomanager:             m,
		envelope:                deps.Envelope,
		hasher:                  deps.Hasher,
		issuer:                  deps.Issuer,
		sessions:                deps.Sessions,
		policy:                  deps.Policy,
		logger:                  deps.Logger.With("module", "auth"),
		now:                     time.Now,
		exposeAttemptsRemaining: deps.ExposeAttemptsRemaining,
	}
}

// ExposeAttemptsRemaining reports whether transports may show the remaining
// attempt count to the caller.
func (s *AuthService) ExposeAttemptsRemaining() bool {
	return s.exposeAttemptsRemaining
}

// verifyDecoy spends one password verification on a fixed hash. The result
// is discarded.
func (s *AuthService) verifyDecoy(ctx context.Context, password string) {
	s.decoyOnce.Do(func() {
		h, err := s.hasher.Hash(decoyPassword)
		if err != nil {
			s.logger.Error(ctx, "decoy hash failed", "error", err)
			return
		}
		s.decoyHash = h
	})
	if s.decoyHash == "" {
		return
	}
	_, _ = s.hasher.Verify(password, s.decoyHash)
}

// Envelope returns the envelope used for request and response bodies.
func (s *AuthService) Envelope() *cryptox.Envelope {
	return s.envelope
}

// LoginResult is a successful login. Sealed is the encrypted LoginResponse
// to hand back to the client.
type LoginResult struct {
	Sealed    cryptox.Sealed
	Response  LoginResponse
	ExpiresAt time.Time
	SessionID string
}

// Login opens the sealed credentials, applies the lockout policy and, on
// success, issues a token, records a session and seals the response.
// Expected failures are returned as *LoginError; anything else wraps
// common.ErrStorage or common.ErrorInternal.
func (s *AuthService) Login(ctx context.Context, sealed cryptox.Sealed, ci ClientInfo) (*LoginResult, error) {
	var req LoginRequest
	if err := s.envelope.OpenJSON(sealed, &req); err != nil {
		s.logger.Info(ctx, "login rejected", "reason", err, "ip", ci.IPAddress)
		if errors.Is(err, common.ErrMalformedRequest) {
			return nil, loginError(common.ErrMalformedRequest)
		}
		return nil, loginError(common.ErrDecryptionFailed)
	}
	if err := req.Validate(); err != nil {
		return nil, loginError(err)
	}

	identifier := s.envelope.SealDeterministic([]byte(req.Identifier()))
	repo := s.repomanager.Accounts(s.db)

	acc, err := repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.verifyDecoy(ctx, req.Password)
			s.logger.Info(ctx, "login failed", "reason", "unknown account", "ip", ci.IPAddress)
			return nil, loginError(common.ErrUnknownAccount)
		}
		return nil, storageError(err)
	}

	now := s.now()
	if lerr := s.lockedError(acc, now); lerr != nil {
		s.logger.Info(ctx, "login rejected", "reason", lerr.Err, "account_id", acc.ID)
		return nil, lerr
	}

	ok, err := s.hasher.Verify(req.Password, acc.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "stored password hash unreadable", "account_id", acc.ID, "error", err)
		return nil, common.ErrorInternal
	}
	if !ok {
		return nil, s.registerFailure(ctx, repo, acc, now)
	}

	if err := s.registerSuccess(ctx, repo, acc, now); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issuer.Issue(acc.ID, req.Identifier(), acc.Role, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	sessionID, err := s.sessions.Create(ctx, acc.ID, token, expiresAt, ci)
	if err != nil {
		return nil, err
	}

	resp := LoginResponse{Token: token, ID: acc.ID, Username: req.Identifier(), Role: acc.Role}
	out, err := s.envelope.SealJSON(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s.logger.Info(ctx, "login succeeded", "account_id", acc.ID, "session_id", sessionID, "ip", ci.IPAddress)
	return &LoginResult{Sealed: out, Response: resp, ExpiresAt: expiresAt, SessionID: sessionID}, nil
}

// lockedError returns the lock that forbids a password check, if any.
func (s *AuthService) lockedError(acc *models.Account, now time.Time) *LoginError {
	st := s.policy.Check(now, acc.IsPermanentlyLocked, acc.LockoutUntil)
	switch st.State {
	case lockout.StatePermanent:
		return loginError(common.ErrPermanentlyLocked)
	case lockout.StateTemporary:
		return &LoginError{Err: common.ErrTemporarilyLocked, SecondsRemaining: st.SecondsRemaining()}
	default:
		return nil
	}
}

// registerFailure counts a wrong password with a conditional update,
// re-reading the account whenever a concurrent writer bumped its version.
func (s *AuthService) registerFailure(ctx context.Context, repo accounts.Repository, acc *models.Account, now time.Time) error {
	for attempt := 0; attempt < maxLockStateRetries; attempt++ {
		if attempt > 0 {
			fresh, err := repo.GetByIdentifier(ctx, acc.IdentifierCiphertext)
			if err != nil {
				return storageError(err)
			}
			acc = fresh
		}

		d := s.policy.RegisterFailure(now, acc.FailedAttempts, acc.LastAttemptTime, acc.LockoutUntil != nil)
		written, err := repo.UpdateLockState(ctx, acc.ID, acc.LockVersion, d.Apply(acc.LockState(), now))
		if err != nil {
			return storageError(err)
		}
		if !written {
			continue
		}

		s.logger.Info(ctx, "login failed",
			"reason", "wrong password",
			"account_id", acc.ID,
			"failures", d.Failures,
			"level", d.Level,
			"lockout", d.Action.String())
		return failureError(d)
	}

	s.logger.Error(ctx, "lock state update kept conflicting", "account_id", acc.ID)
	return storageError(common.ErrVersionConflict)
}

func failureError(d lockout.Decision) *LoginError {
	switch d.Action {
	case lockout.ActionPermanent:
		return loginError(common.ErrPermanentLockout)
	case lockout.ActionTemporary:
		if d.Level == 1 {
			return loginError(common.ErrFirstLevelLockout)
		}
		return loginError(common.ErrSecondLevelLockout)
	default:
		return &LoginError{Err: common.ErrWrongPassword, AttemptsRemaining: d.AttemptsRemaining}
	}
}

// registerSuccess clears the failure state. A lock applied concurrently
// since the account was read wins over the correct password.
func (s *AuthService) registerSuccess(ctx context.Context, repo accounts.Repository, acc *models.Account, now time.Time) error {
	for attempt := 0; attempt < maxLockStateRetries; attempt++ {
		if attempt > 0 {
			fresh, err := repo.GetByIdentifier(ctx, acc.IdentifierCiphertext)
			if err != nil {
				return storageError(err)
			}
			acc = fresh
			if lerr := s.lockedError(acc, now); lerr != nil {
				return lerr
			}
		}

		prev := acc.LockState()
		next := s.policy.RegisterSuccess(prev)
		if next == prev {
			return nil
		}

		written, err := repo.UpdateLockState(ctx, acc.ID, acc.LockVersion, next)
		if err != nil {
			return storageError(err)
		}
		if written {
			return nil
		}
	}

	s.logger.Error(ctx, "lock state update kept conflicting", "account_id", acc.ID)
	return storageError(common.ErrVersionConflict)
}

// Authenticate accepts token only if it verifies and its session is active.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.issuer.Verify(token, s.now())
	if err != nil {
		return nil, err
	}

	active, err := s.sessions.IsActive(ctx, token)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, common.ErrSessionInactive
	}

	return &Principal{
		ID:        claims.Data.ID,
		Username:  claims.Data.Username,
		Role:      claims.Data.Role,
		ExpiresAt: claims.ExpiresAt.Time,
		Token:     token,
	}, nil
}

// CheckStatus returns the principal behind token.
func (s *AuthService) CheckStatus(ctx context.Context, token string) (*Principal, error) {
	return s.Authenticate(ctx, token)
}

// Logout deactivates the session of token. It reports false when the
// session was already inactive.
func (s *AuthService) Logout(ctx context.Context, token string) (bool, error) {
	if _, err := s.issuer.Verify(token, s.now()); err != nil {
		return false, err
	}
	changed, err := s.sessions.Invalidate(ctx, token)
	if err != nil {
		return false, err
	}
	s.logger.Info(ctx, "logout", "changed", changed)
	return changed, nil
}

// LogoutAll deactivates every session of the principal's account.
func (s *AuthService) LogoutAll(ctx context.Context, p Principal) (int, error) {
	return s.sessions.InvalidateAll(ctx, p.ID)
}

// LogoutAccount deactivates every session of the account named username.
// Admin only.
func (s *AuthService) LogoutAccount(ctx context.Context, p Principal, username string) (int, error) {
	if !p.IsAdmin() {
		return 0, common.ErrPermissionDenied
	}
	acc, err := s.findAccount(ctx, username)
	if err != nil {
		return 0, err
	}
	return s.sessions.InvalidateAll(ctx, acc.ID)
}

// Register opens a sealed RegisterRequest and creates the account.
// Admin only; duplicate identifiers yield common.ErrAccountExists.
func (s *AuthService) Register(ctx context.Context, p Principal, sealed cryptox.Sealed) (*models.Account, error) {
	if !p.IsAdmin() {
		return nil, common.ErrPermissionDenied
	}

	var req RegisterRequest
	if err := s.envelope.OpenJSON(sealed, &req); err != nil {
		return nil, err
	}
	return s.CreateAccount(ctx, p, req)
}

// CreateAccount creates an account from a plain request. Admin only.
func (s *AuthService) CreateAccount(ctx context.Context, p Principal, req RegisterRequest) (*models.Account, error) {
	if !p.IsAdmin() {
		return nil, common.ErrPermissionDenied
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	acc, err := s.createAccount(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "account registered", "account_id", acc.ID, "role", acc.Role, "by", p.ID)
	return acc, nil
}

func (s *AuthService) createAccount(ctx context.Context, req RegisterRequest) (*models.Account, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	acc := &models.Account{
		IdentifierCiphertext: s.envelope.SealDeterministic([]byte(NormalizeUsername(req.Username))),
		PasswordHash:         hash,
		Role:                 req.Role,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		_, err := repo.GetByIdentifier(ctx, acc.IdentifierCiphertext)
		switch {
		case err == nil:
			return common.ErrAccountExists
		case !errors.Is(err, common.ErrorNotFound):
			return storageError(err)
		}

		acc, err = repo.Create(ctx, acc)
		if err != nil {
			if errors.Is(err, common.ErrAccountExists) {
				return err
			}
			return storageError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrAccountExists) || errors.Is(err, common.ErrStorage) {
			return nil, err
		}
		return nil, storageError(err)
	}
	return acc, nil
}

// Unlock clears every lockout field of the account named username.
// Admin only.
func (s *AuthService) Unlock(ctx context.Context, p Principal, username string) error {
	if !p.IsAdmin() {
		return common.ErrPermissionDenied
	}

	acc, err := s.findAccount(ctx, username)
	if err != nil {
		return err
	}

	if err := s.repomanager.Accounts(s.db).Unlock(ctx, acc.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUnknownAccount
		}
		return storageError(err)
	}

	s.logger.Info(ctx, "account unlocked", "account_id", acc.ID, "by", p.ID)
	return nil
}

func (s *AuthService) findAccount(ctx context.Context, username string) (*models.Account, error) {
	if strings.TrimSpace(username) == "" {
		return nil, common.ErrIncompleteCredentials
	}

	identifier := s.envelope.SealDeterministic([]byte(NormalizeUsername(username)))
	acc, err := s.repomanager.Accounts(s.db).GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownAccount
		}
		return nil, storageError(err)
	}
	return acc, nil
}

// EnsureAdmin creates an admin account unless one with username exists.
// It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	req := RegisterRequest{Username: username, Password: password, Role: common.RoleAdmin}
	if err := req.Validate(); err != nil {
		return false, err
	}

	acc, err := s.createAccount(ctx, req)
	if errors.Is(err, common.ErrAccountExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.logger.Info(ctx, "admin account bootstrapped", "account_id", acc.ID)
	return true, nil
}
