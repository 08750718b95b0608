package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/pkg/logger"
)

// SessionIDHeader names the browser session a request belongs to.
const SessionIDHeader = "X-Session-ID"

const sessionIDKey contextKeyType = "session_id"

const maxSessionIDLen = 128

// SessionID reads X-Session-ID, minting a fresh id when it is missing or
// oversized, and echoes the effective id on the response.
func SessionID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(SessionIDHeader)
			if id == "" || len(id) > maxSessionIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(SessionIDHeader, id)

			ctx := context.WithValue(r.Context(), sessionIDKey, id)
			ctx = logger.WithSessionID(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromContext returns the id stored by SessionID.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}
