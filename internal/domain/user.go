// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"time"
)

// Role is the access level assigned to a user account.
type Role string

// Roles understood by the portal.
const (
	RoleAdmin     Role = "admin"
	RoleVolunteer Role = "volunteer"
	RoleDonor     Role = "donor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleVolunteer, RoleDonor:
		return true
	}
	return false
}

// User represents a registered account in the system.
type User struct {
	ID                  int64
	Email               string
	PasswordHash        string
	Name                string
	Role                Role
	IsActive            bool
	EmailVerified       bool
	FailedLoginAttempts int
	LockoutUntil        *time.Time
	LastLogin           *time.Time
	CreatedAt           time.Time
}

// Locked reports whether the account is under an active lockout at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockoutUntil != nil && now.Before(*u.LockoutUntil)
}

// UserRepository defines the port for user persistence operations.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, email, passwordHash, name string, role Role) (*User, error)
	// RecordFailedAttempt atomically increments the failed-attempt counter
	// and returns the new count. Implementations must not read-modify-write.
	RecordFailedAttempt(ctx context.Context, id int64) (int, error)
	SetLockout(ctx context.Context, id int64, until time.Time) error
	ResetFailedAttempts(ctx context.Context, id int64) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

// RememberToken is a server-side record of a persistent login token.
// Only the SHA-256 hash of the client token is ever stored.
type RememberToken struct {
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RememberTokenRepository defines the port for persistent-login tokens.
type RememberTokenRepository interface {
	Insert(ctx context.Context, t *RememberToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RememberToken, error)
	DeleteByHash(ctx context.Context, tokenHash string) error
}
