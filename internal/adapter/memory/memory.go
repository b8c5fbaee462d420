// Package memory implements the domain repositories in memory for
// development and testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ngoportal/internal/domain"
)

// DB implements the domain repositories in process memory. All methods
// are safe for concurrent use; the conditional donation transition and
// the failed-attempt increment are atomic under the mutex, matching the
// SQL adapter's guarantees.
type DB struct {
	mu        sync.Mutex
	users     []*domain.User
	sessions  map[string]*domain.Session
	donations map[string]*domain.Donation
	remember  map[string]*domain.RememberToken
	projects  []*domain.Project

	userIDCounter    int64
	projectIDCounter int64
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{
		sessions:  make(map[string]*domain.Session),
		donations: make(map[string]*domain.Donation),
		remember:  make(map[string]*domain.RememberToken),
	}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.DonationRepository = (*DB)(nil)
var _ domain.RememberTokenRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)
var _ domain.ProjectRepository = (*ProjectRepo)(nil)

// --- UserRepository ---

// FindByEmail retrieves a user by lowercase email.
func (db *DB) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// FindByID retrieves a user by id.
func (db *DB) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u := db.userByID(id); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// Create creates a new active user.
func (db *DB) Create(ctx context.Context, email, passwordHash, name string, role domain.Role) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range db.users {
		if u.Email == email {
			return nil, domain.Errorf(domain.KindValidation, "email already exists")
		}
	}
	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	db.users = append(db.users, u)
	cp := *u
	return &cp, nil
}

// RecordFailedAttempt atomically increments and returns the counter.
func (db *DB) RecordFailedAttempt(ctx context.Context, id int64) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := db.userByID(id)
	if u == nil {
		return 0, domain.Errorf(domain.KindNotFound, "user not found")
	}
	u.FailedLoginAttempts++
	return u.FailedLoginAttempts, nil
}

// SetLockout sets the lockout deadline.
func (db *DB) SetLockout(ctx context.Context, id int64, until time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u := db.userByID(id); u != nil {
		u.LockoutUntil = &until
	}
	return nil
}

// ResetFailedAttempts clears the counter and any lockout.
func (db *DB) ResetFailedAttempts(ctx context.Context, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u := db.userByID(id); u != nil {
		u.FailedLoginAttempts = 0
		u.LockoutUntil = nil
	}
	return nil
}

// UpdateLastLogin stores the last successful login time.
func (db *DB) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if u := db.userByID(id); u != nil {
		u.LastLogin = &at
	}
	return nil
}

func (db *DB) userByID(id int64) *domain.User {
	for _, u := range db.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// --- SessionRepository ---

// SessionRepo adapts DB to domain.SessionRepository. The separate type
// keeps the method set free of name clashes with the other ports.
type SessionRepo struct {
	db *DB
}

// Sessions wraps the DB as a SessionRepository.
func (db *DB) Sessions() *SessionRepo { return &SessionRepo{db: db} }

// Create stores a session.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *s
	r.db.sessions[s.ID] = &cp
	return nil
}

// Get retrieves a session by id.
func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if s, ok := r.db.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

// UpdateActivity refreshes the last-activity timestamp.
func (r *SessionRepo) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if s, ok := r.db.sessions[id]; ok {
		s.LastActivityAt = at
	}
	return nil
}

// UpdateCSRF stores a rotated CSRF token.
func (r *SessionRepo) UpdateCSRF(ctx context.Context, id, token string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if s, ok := r.db.sessions[id]; ok {
		s.CSRFToken = token
		s.CSRFTokenCreatedAt = at
	}
	return nil
}

// Delete removes a session.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, id)
	return nil
}

// DeleteExpired removes sessions idle since before cutoff.
func (r *SessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, s := range r.db.sessions {
		if s.LastActivityAt.Before(cutoff) {
			delete(r.db.sessions, id)
		}
	}
	return nil
}

// --- DonationRepository ---

// InsertPending stores a pending donation, enforcing transaction-id
// uniqueness.
func (db *DB) InsertPending(ctx context.Context, d *domain.Donation) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.donations[d.TransactionID]; ok {
		return domain.ErrDuplicateTransactionID
	}
	cp := *d
	db.donations[d.TransactionID] = &cp
	return nil
}

// FindByTransactionID retrieves a donation by transaction id.
func (db *DB) FindByTransactionID(ctx context.Context, txnID string) (*domain.Donation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if d, ok := db.donations[txnID]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

// MarkStatus transitions pending→status atomically and reports whether
// this call won the transition.
func (db *DB) MarkStatus(ctx context.Context, txnID string, status domain.DonationStatus, at time.Time) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.donations[txnID]
	if !ok {
		return false, nil
	}
	if d.Status != domain.DonationPending {
		return false, nil
	}
	d.Status = status
	if status == domain.DonationCompleted {
		d.CompletedAt = &at
	}
	return true, nil
}

// ListByEmail returns the most recent donations for an email.
func (db *DB) ListByEmail(ctx context.Context, email string, limit int) ([]domain.Donation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var result []domain.Donation
	for _, d := range db.donations {
		if d.DonorEmail == email {
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// TotalRaised sums completed donations, optionally for one cause.
func (db *DB) TotalRaised(ctx context.Context, cause string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var total int64
	for _, d := range db.donations {
		if d.Status != domain.DonationCompleted {
			continue
		}
		if cause != "" && d.Cause != cause {
			continue
		}
		total += d.AmountPaise
	}
	return total, nil
}

// --- RememberTokenRepository ---

// Insert stores a remember-me token record.
func (db *DB) Insert(ctx context.Context, t *domain.RememberToken) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *t
	db.remember[t.TokenHash] = &cp
	return nil
}

// FindByHash retrieves a remember-me token by its hash.
func (db *DB) FindByHash(ctx context.Context, tokenHash string) (*domain.RememberToken, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.remember[tokenHash]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

// DeleteByHash removes a remember-me token by its hash.
func (db *DB) DeleteByHash(ctx context.Context, tokenHash string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.remember, tokenHash)
	return nil
}

// --- ProjectRepository ---

// ProjectRepo adapts DB to domain.ProjectRepository.
type ProjectRepo struct {
	db *DB
}

// Projects wraps the DB as a ProjectRepository.
func (db *DB) Projects() *ProjectRepo { return &ProjectRepo{db: db} }

// Insert stores a project and returns its id.
func (r *ProjectRepo) Insert(ctx context.Context, p *domain.Project) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.projectIDCounter++
	cp := *p
	cp.ID = r.db.projectIDCounter
	r.db.projects = append(r.db.projects, &cp)
	return cp.ID, nil
}

// Get retrieves a project by id.
func (r *ProjectRepo) Get(ctx context.Context, id int64) (*domain.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.projects {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// List returns projects, newest first.
func (r *ProjectRepo) List(ctx context.Context, activeOnly bool, limit int) ([]domain.Project, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var result []domain.Project
	for _, p := range r.db.projects {
		if activeOnly && !p.Active {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Update replaces a stored project.
func (r *ProjectRepo) Update(ctx context.Context, p *domain.Project) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, existing := range r.db.projects {
		if existing.ID == p.ID {
			cp := *p
			r.db.projects[i] = &cp
			return nil
		}
	}
	return domain.Errorf(domain.KindNotFound, "project not found")
}

// Delete removes a project by id.
func (r *ProjectRepo) Delete(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, p := range r.db.projects {
		if p.ID == id {
			r.db.projects = append(r.db.projects[:i], r.db.projects[i+1:]...)
			return nil
		}
	}
	return nil
}
