// Package redis implements the session repository on a Redis cache.
// Sessions are stored as JSON values with a TTL so idle sessions are
// evicted by the server as well as lazily by the application.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ngoportal/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// SessionRepo implements domain.SessionRepository on Redis.
type SessionRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionRepo creates a Redis-backed session store. ttl should be
// the auth policy's idle timeout.
func NewSessionRepo(addr, password string, ttl time.Duration) (*SessionRepo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &SessionRepo{client: client, ttl: ttl}, nil
}

var _ domain.SessionRepository = (*SessionRepo)(nil)

// Create stores a session under its id with the idle TTL.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+s.ID, raw, r.ttl).Err()
}

// Get retrieves a session by id.
func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateActivity refreshes the activity timestamp and slides the TTL.
func (r *SessionRepo) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	s, err := r.Get(ctx, id)
	if err != nil || s == nil {
		return err
	}
	s.LastActivityAt = at
	return r.Create(ctx, s)
}

// UpdateCSRF stores a rotated CSRF token, preserving the session TTL.
func (r *SessionRepo) UpdateCSRF(ctx context.Context, id, token string, at time.Time) error {
	s, err := r.Get(ctx, id)
	if err != nil || s == nil {
		return err
	}
	s.CSRFToken = token
	s.CSRFTokenCreatedAt = at
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+id, raw, redis.KeepTTL).Err()
}

// Delete removes a session.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, keyPrefix+id).Err()
}

// DeleteExpired is a no-op: Redis evicts sessions via TTL.
func (r *SessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) error {
	return nil
}
