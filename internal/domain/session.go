package domain

import (
	"context"
	"time"
)

// Session represents an active authenticated session.
type Session struct {
	ID                 string
	UserID             int64
	Role               Role
	CreatedAt          time.Time
	LastActivityAt     time.Time
	CSRFToken          string
	CSRFTokenCreatedAt time.Time
}

// IdleExpired reports whether the session has been inactive longer than
// the given idle timeout at now.
func (s *Session) IdleExpired(now time.Time, idleTimeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) > idleTimeout
}

// SessionRepository defines the port for session persistence operations.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	UpdateActivity(ctx context.Context, id string, at time.Time) error
	UpdateCSRF(ctx context.Context, id, token string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, cutoff time.Time) error
}
