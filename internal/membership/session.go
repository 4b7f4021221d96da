// internal/membership/session.go
package membership

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"libracatalog/internal/apperr"
	"libracatalog/internal/clock"
)

const tokenIssuer = "libracatalog"

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HMAC-signed session tokens. A token only
// names the member; permissions are looked up on every resolve so that a
// revoke takes effect immediately.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokens returns a token issuer. The secret must not be empty.
func NewTokens(secret string, ttl time.Duration, clk clock.Clock) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("session secret must not be empty")
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

// Issue signs a token for m.
func (t *Tokens) Issue(m *Member) (string, time.Time, error) {
	now := t.clock.Now()
	expires := now.Add(t.ttl)
	claims := sessionClaims{
		Username: m.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   m.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the signature and expiry of token and returns the member
// id it names. Every failure wraps apperr.ErrUnauthenticated.
func (t *Tokens) Verify(token string) (uuid.UUID, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session token: %v: %w", err, apperr.ErrUnauthenticated)
	}
	if claims.Issuer != tokenIssuer {
		return uuid.Nil, fmt.Errorf("session token from issuer %q: %w", claims.Issuer, apperr.ErrUnauthenticated)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("session token subject: %v: %w", err, apperr.ErrUnauthenticated)
	}
	return id, nil
}
