package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	"github.com/go-chi/chi/v5/middleware"
)

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. ok is false when the header is missing or uses another scheme.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if len(h) < len(common.BearerPrefix) || !strings.EqualFold(h[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(common.BearerPrefix):])
	return token, token != ""
}

// RequireAuth rejects requests without a bearer token accepted by
// Authenticate and stores the principal in the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, TipoError, "missing bearer token")
			return
		}

		p, err := h.svc.Authenticate(r.Context(), token)
		if err != nil {
			h.logger.Info(r.Context(), "token rejected", "reason", err, "path", r.URL.Path)
			writeServiceError(w, err, false)
			return
		}

		next.ServeHTTP(w, r.WithContext(services.WithPrincipal(r.Context(), *p)))
	})
}

// RequireRole allows only principals holding role. It must run after
// RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := services.PrincipalFromContext(r.Context())
			if !ok || p.Role != role {
				writeError(w, http.StatusForbidden, TipoError, services.PublicMessage(common.ErrPermissionDenied, false))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog logs one line per request.
func AccessLog(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"status", ww.Status(),
					"duration", time.Since(start),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
