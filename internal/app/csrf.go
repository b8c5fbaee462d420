package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"ngoportal/internal/domain"
)

// CSRFGuard issues and validates per-session anti-forgery tokens.
type CSRFGuard struct {
	sessions domain.SessionRepository
	ttl      time.Duration
	now      func() time.Time
}

// NewCSRFGuard creates a guard storing tokens on sessions with the
// given time-to-live.
func NewCSRFGuard(sessions domain.SessionRepository, ttl time.Duration) *CSRFGuard {
	return &CSRFGuard{sessions: sessions, ttl: ttl, now: time.Now}
}

// Issue returns the session's current token while it is within its TTL,
// otherwise generates and stores a fresh one. The secure random source
// is a hard dependency; its failure is an error, never a weak fallback.
func (g *CSRFGuard) Issue(ctx context.Context, s *domain.Session) (string, time.Duration, error) {
	now := g.now()
	if s.CSRFToken != "" {
		age := now.Sub(s.CSRFTokenCreatedAt)
		if age < g.ttl {
			return s.CSRFToken, g.ttl - age, nil
		}
	}

	token, err := generateToken()
	if err != nil {
		return "", 0, domain.WrapErr(domain.KindDependency, err, "csrf token generation failed")
	}
	if err := g.sessions.UpdateCSRF(ctx, s.ID, token, now); err != nil {
		return "", 0, domain.WrapErr(domain.KindDependency, err, "csrf token store failed")
	}
	s.CSRFToken = token
	s.CSRFTokenCreatedAt = now
	return token, g.ttl, nil
}

// Validate reports whether presented matches the session's current
// token. The comparison is constant time to avoid a timing side
// channel; empty tokens always fail.
func (g *CSRFGuard) Validate(s *domain.Session, presented string) bool {
	if presented == "" || s.CSRFToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.CSRFToken), []byte(presented)) == 1
}

// generateToken returns a fresh 256-bit random token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
