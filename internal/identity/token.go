package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront/internal/domain"
)

var signingMethod = jwt.SigningMethodHS256

// ErrNoIdentityClaim is returned when a valid token carries no usable subject.
var ErrNoIdentityClaim = errors.New("token carries no identity claim")

// TokenParser validates bearer tokens issued by the auth service and
// extracts the identity they name.
type TokenParser struct {
	secret []byte
	issuer string
}

// NewTokenParser creates a parser for HS256 tokens. An empty issuer skips the
// issuer check.
func NewTokenParser(secret, issuer string) *TokenParser {
	return &TokenParser{secret: []byte(secret), issuer: issuer}
}

// Parse validates token and returns the identity it carries.
func (p *TokenParser) Parse(token string) (domain.Identity, error) {
	if len(p.secret) == 0 {
		return domain.NoIdentity, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{signingMethod.Alg()})}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != signingMethod {
			return nil, fmt.Errorf("unexpected signing method %s", t.Header["alg"])
		}
		return p.secret, nil
	}, opts...)
	if err != nil {
		return domain.NoIdentity, fmt.Errorf("parse token: %w", err)
	}

	id := FromClaims(claims)
	if !id.IsSet() {
		return domain.NoIdentity, ErrNoIdentityClaim
	}
	return id, nil
}

// FromClaims reads the identity from a decoded principal, accepting either
// "id" or "_id" and falling back to the registered "sub" claim.
func FromClaims(claims map[string]any) domain.Identity {
	for _, key := range []string{"id", "_id", "sub"} {
		if v, ok := claims[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return domain.Identity(v)
			}
		}
	}
	return domain.NoIdentity
}
