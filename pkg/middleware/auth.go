package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

type contextKeyType string

const userIDKey contextKeyType = "user_id"

// UserIDHeader carries the identity injected by a trusted API gateway.
const UserIDHeader = "X-User-ID"

// IdentityResolver turns a bearer token into the caller's user id.
type IdentityResolver func(token string) (string, error)

// OptionalAuth resolves the caller's identity without requiring one.
//
// A request without an Authorization header is anonymous ("signed out"),
// unless trustUserHeader is set and the gateway supplied X-User-ID. A
// header that is present but malformed, or a token that fails to resolve,
// is rejected with 401.
func OptionalAuth(resolve IdentityResolver, trustUserHeader bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if trustUserHeader {
					if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
						r = r.WithContext(WithUserID(r.Context(), id))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid authorization header format"), nil)
				return
			}

			id, err := resolve(strings.TrimSpace(token))
			if err != nil || id == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

// WithUserID stores the resolved user id in ctx.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
