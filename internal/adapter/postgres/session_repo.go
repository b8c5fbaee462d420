package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ngoportal/internal/domain"
)

// SessionRepo implements session repository operations on DB.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo wraps a DB as a SessionRepository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create stores a new session.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.sql.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, role, created_at, last_activity_at, csrf_token, csrf_token_created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, string(s.Role), s.CreatedAt, s.LastActivityAt, s.CSRFToken, s.CSRFTokenCreatedAt,
	)
	return err
}

// Get retrieves a session by id.
func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	var role string
	var csrfCreated sql.NullTime
	err := r.db.sql.QueryRowContext(ctx,
		`SELECT id, user_id, role, created_at, last_activity_at, csrf_token, csrf_token_created_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.UserID, &role, &s.CreatedAt, &s.LastActivityAt, &s.CSRFToken, &csrfCreated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Role = domain.Role(role)
	if csrfCreated.Valid {
		s.CSRFTokenCreatedAt = csrfCreated.Time
	}
	return &s, nil
}

// UpdateActivity refreshes the last-activity timestamp.
func (r *SessionRepo) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.sql.ExecContext(ctx,
		"UPDATE sessions SET last_activity_at = $1 WHERE id = $2",
		at, id,
	)
	return err
}

// UpdateCSRF stores a rotated CSRF token.
func (r *SessionRepo) UpdateCSRF(ctx context.Context, id, token string, at time.Time) error {
	_, err := r.db.sql.ExecContext(ctx,
		"UPDATE sessions SET csrf_token = $1, csrf_token_created_at = $2 WHERE id = $3",
		token, at, id,
	)
	return err
}

// Delete removes a session by id.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id)
	return err
}

// DeleteExpired removes sessions idle since before cutoff.
func (r *SessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE last_activity_at < $1", cutoff)
	return err
}
