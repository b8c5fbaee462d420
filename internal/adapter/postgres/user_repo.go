package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ngoportal/internal/domain"

	"github.com/lib/pq"
)

const userColumns = "id, email, password_hash, name, role, is_active, email_verified, failed_login_attempts, lockout_until, last_login, created_at"

// FindByEmail retrieves a user by lowercase email.
func (d *DB) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1",
		strings.ToLower(email),
	)
	return scanUser(row)
}

// FindByID retrieves a user by id.
func (d *DB) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	row := d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1",
		id,
	)
	return scanUser(row)
}

// Create creates a new active user.
func (d *DB) Create(ctx context.Context, email, passwordHash, name string, role domain.Role) (*domain.User, error) {
	row := d.sql.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, name, role, is_active, created_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5)
		 RETURNING `+userColumns,
		strings.ToLower(email), passwordHash, name, string(role), time.Now(),
	)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Errorf(domain.KindValidation, "email already exists")
		}
		return nil, err
	}
	return u, nil
}

// RecordFailedAttempt increments the failed-attempt counter atomically
// in the database and returns the new count.
func (d *DB) RecordFailedAttempt(ctx context.Context, id int64) (int, error) {
	var count int
	err := d.sql.QueryRowContext(ctx,
		"UPDATE users SET failed_login_attempts = failed_login_attempts + 1 WHERE id = $1 RETURNING failed_login_attempts",
		id,
	).Scan(&count)
	return count, err
}

// SetLockout sets the lockout deadline.
func (d *DB) SetLockout(ctx context.Context, id int64, until time.Time) error {
	_, err := d.sql.ExecContext(ctx,
		"UPDATE users SET lockout_until = $1 WHERE id = $2",
		until, id,
	)
	return err
}

// ResetFailedAttempts clears the counter and any lockout.
func (d *DB) ResetFailedAttempts(ctx context.Context, id int64) error {
	_, err := d.sql.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts = 0, lockout_until = NULL WHERE id = $1",
		id,
	)
	return err
}

// UpdateLastLogin stores the last successful login time.
func (d *DB) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := d.sql.ExecContext(ctx,
		"UPDATE users SET last_login = $1 WHERE id = $2",
		at, id,
	)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.IsActive,
		&u.EmailVerified, &u.FailedLoginAttempts, &u.LockoutUntil, &u.LastLogin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
