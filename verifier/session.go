package verifier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const TextCodeSessionExpired = "VERIFIER_SESSION_EXPIRED"

// Session supplies the staff bearer token attached to every request.
type Session interface {
	Token(ctx context.Context) (string, error)
}

// SessionFunc adapts a function to the Session interface.
type SessionFunc func(ctx context.Context) (string, error)

func (f SessionFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticSession serves a fixed staff token. JWT tokens are inspected (not
// verified, the backend owns the signing key) so an expired session fails
// locally instead of costing a round trip. Opaque tokens pass through.
type StaticSession struct {
	raw    string
	leeway time.Duration
	now    func() time.Time
}

func NewStaticSession(raw string) *StaticSession {
	return &StaticSession{
		raw:    strings.TrimSpace(raw),
		leeway: 5 * time.Second,
		now:    time.Now,
	}
}

// WithNow overrides the clock used for the expiry check.
func (s *StaticSession) WithNow(now func() time.Time) *StaticSession {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *StaticSession) Token(ctx context.Context) (string, error) {
	if s == nil || s.raw == "" {
		return "", nil
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.raw, &claims); err != nil {
		return s.raw, nil
	}

	if claims.ExpiresAt != nil && s.now().After(claims.ExpiresAt.Time.Add(s.leeway)) {
		return "", goerrors.Wrap(jwt.ErrTokenExpired, goerrors.CategoryAuth, "staff session expired").
			WithTextCode(TextCodeSessionExpired).
			WithCode(http.StatusUnauthorized).
			WithMetadata(map[string]any{
				"subject":    claims.Subject,
				"expired_at": claims.ExpiresAt.Time,
			})
	}

	return s.raw, nil
}

// IsSessionExpired reports whether err was raised by an expired staff session.
func IsSessionExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return true
	}
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.TextCode == TextCodeSessionExpired
}
