package logging

import (
	"context"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Redacted replaces the value of a sensitive key.
const Redacted = "[REDACTED]"

// sensitiveKeys never reach the output with their value.
var sensitiveKeys = map[string]bool{
	"password":        true,
	"token":           true,
	"secret":          true,
	"authorization":   true,
	"envelope_secret": true,
	"signing_secret":  true,
}

// prepare returns args with sensitive values redacted and the request id
// carried by ctx appended. args is never modified in place.
func prepare(ctx context.Context, args []any) []any {
	out := args
	copied := false
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || !sensitiveKeys[strings.ToLower(key)] {
			continue
		}
		if !copied {
			out = append([]any(nil), args...)
			copied = true
		}
		out[i+1] = Redacted
	}

	if id := middleware.GetReqID(ctx); id != "" {
		if !copied {
			out = append([]any(nil), args...)
		}
		out = append(out, "request_id", id)
	}
	return out
}
