package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/taskauth/internal/server/services"
)

// Error body kinds.
const (
	TipoValidation = 0
	TipoError      = 3
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Tipo     int      `json:"tipo"`
	Mensajes []string `json:"mensajes"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status, tipo int, msgs ...string) {
	writeJSON(w, status, ErrorResponse{Tipo: tipo, Mensajes: msgs})
}

// writeServiceError answers err with the status of its services.Kind.
func writeServiceError(w http.ResponseWriter, err error, exposeAttempts bool) {
	msg := services.PublicMessage(err, exposeAttempts)

	switch services.Classify(err) {
	case services.KindInvalid:
		writeError(w, http.StatusBadRequest, TipoValidation, msg)
	case services.KindUnauthenticated:
		writeError(w, http.StatusUnauthorized, TipoError, msg)
	case services.KindLocked:
		if secs, ok := services.RetryAfter(err); ok {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeError(w, http.StatusLocked, TipoError, msg)
	case services.KindForbidden:
		writeError(w, http.StatusForbidden, TipoError, msg)
	case services.KindConflict:
		writeError(w, http.StatusConflict, TipoError, msg)
	default:
		writeError(w, http.StatusInternalServerError, TipoError, msg)
	}
}
