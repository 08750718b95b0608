package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionResolver returns the session for a browser session id.
type SessionResolver interface {
	Get(id string) *session.Session
}

// WithSession attaches the caller's session to the request context. It
// must run after middleware.SessionID.
func WithSession(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := middleware.SessionIDFromContext(r.Context())
			if id == "" {
				httputil.WriteError(w, r, apperrors.InvalidInput("session id is required"), nil)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sessions.Get(id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

// identityFromRequest returns the caller's identity, or domain.NoIdentity
// for a signed-out request.
func identityFromRequest(r *http.Request) domain.Identity {
	return domain.Identity(middleware.UserIDFromContext(r.Context()))
}

// ContentTypeJSON rejects request bodies that are not JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
