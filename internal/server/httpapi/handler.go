// Package httpapi exposes the authentication service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/cryptox"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// AuthService is the part of *services.AuthService used by the handlers.
type AuthService interface {
	Login(ctx context.Context, sealed cryptox.Sealed, ci services.ClientInfo) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*services.Principal, error)
	Logout(ctx context.Context, token string) (bool, error)
	LogoutAll(ctx context.Context, p services.Principal) (int, error)
	Register(ctx context.Context, p services.Principal, sealed cryptox.Sealed) (*models.Account, error)
	Unlock(ctx context.Context, p services.Principal, username string) error
	ExposeAttemptsRemaining() bool
}

// Handler serves the /api/auth routes.
type Handler struct {
	svc    AuthService
	logger logging.Logger
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc AuthService, logger logging.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With("module", "http")}
}

// StatusResponse describes the caller's session.
type StatusResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterResponse describes a created account.
type RegisterResponse struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// UnlockRequest names the account to unlock.
type UnlockRequest struct {
	Username string `json:"username"`
}

// LogoutResponse reports whether a session was deactivated.
type LogoutResponse struct {
	LoggedOut bool `json:"logged_out"`
}

// LogoutAllResponse reports how many sessions were deactivated.
type LogoutAllResponse struct {
	Sessions int `json:"sessions"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, TipoValidation, services.PublicMessage(common.ErrMalformedRequest, false))
		return false
	}
	return true
}

// clientIP is the request address without its port. middleware.RealIP has
// already replaced it from forwarding headers when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Login handles POST /api/auth/login. Body and response are sealed.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var sealed cryptox.Sealed
	if !decodeBody(w, r, &sealed) {
		return
	}

	res, err := h.svc.Login(r.Context(), sealed, services.ClientInfo{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if services.Classify(err) == services.KindInternal {
			h.logger.Error(r.Context(), "login failed", "error", err)
		}
		writeServiceError(w, err, h.svc.ExposeAttemptsRemaining())
		return
	}

	writeJSON(w, http.StatusOK, res.Sealed)
}

// Register handles POST /api/auth/register. Admin only, sealed body.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	p, _ := services.PrincipalFromContext(r.Context())

	var sealed cryptox.Sealed
	if !decodeBody(w, r, &sealed) {
		return
	}

	acc, err := h.svc.Register(r.Context(), p, sealed)
	if err != nil {
		if services.Classify(err) == services.KindInternal {
			h.logger.Error(r.Context(), "register failed", "error", err)
		}
		writeServiceError(w, err, false)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{ID: acc.ID, Role: acc.Role})
}

// Unlock handles POST /api/auth/unlock. Admin only.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	p, _ := services.PrincipalFromContext(r.Context())

	var req UnlockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.svc.Unlock(r.Context(), p, req.Username)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, common.ErrUnknownAccount):
		writeError(w, http.StatusNotFound, TipoError, "account not found")
	case errors.Is(err, common.ErrIncompleteCredentials):
		writeError(w, http.StatusBadRequest, TipoValidation, "username is required")
	default:
		if services.Classify(err) == services.KindInternal {
			h.logger.Error(r.Context(), "unlock failed", "error", err)
		}
		writeServiceError(w, err, false)
	}
}

// Status handles GET /api/auth/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	p, _ := services.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, StatusResponse{
		ID:        p.ID,
		Username:  p.Username,
		Role:      p.Role,
		ExpiresAt: p.ExpiresAt,
	})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p, _ := services.PrincipalFromContext(r.Context())

	changed, err := h.svc.Logout(r.Context(), p.Token)
	if err != nil {
		writeServiceError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, LogoutResponse{LoggedOut: changed})
}

// LogoutAll handles POST /api/auth/logout-all.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := services.PrincipalFromContext(r.Context())

	n, err := h.svc.LogoutAll(r.Context(), p)
	if err != nil {
		h.logger.Error(r.Context(), "logout-all failed", "error", err)
		writeServiceError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, LogoutAllResponse{Sessions: n})
}
