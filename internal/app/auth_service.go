// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"ngoportal/internal/config"
	"ngoportal/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// bogusHash is a valid bcrypt hash of a random string nobody knows.
// Comparing against it when the user does not exist keeps the timing of
// the unknown-email path close to the known-email path.
const bogusHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// errInvalidCredentials is the single error shape for every
// credential-class failure so callers cannot distinguish unknown email
// from wrong password.
func errInvalidCredentials() *domain.Error {
	return domain.Errorf(domain.KindAuthentication, "invalid email or password")
}

// AuthService validates credentials, enforces lockout policy, and owns
// the session lifecycle.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	remember domain.RememberTokenRepository
	policy   config.AuthPolicy
	log      *logrus.Logger
	now      func() time.Time
}

// NewAuthService creates an AuthService with the given stores and
// policy.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository, remember domain.RememberTokenRepository, policy config.AuthPolicy, log *logrus.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		remember: remember,
		policy:   policy,
		log:      log,
		now:      time.Now,
	}
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Session     *domain.Session
	User        *domain.User
	RedirectURL string
	// RememberToken is the raw persistent-login token for the client,
	// set only when requested. Only its hash is stored server-side.
	RememberToken string
}

// Login authenticates a user and establishes a new session. The
// requested role is a gate, never an elevation: asking for a role the
// account does not hold fails.
func (s *AuthService) Login(ctx context.Context, email, password string, requestedRole domain.Role, remember bool) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errInvalidCredentials()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "user lookup failed")
	}
	if user == nil {
		// Equalize timing with the user-exists path.
		_ = bcrypt.CompareHashAndPassword([]byte(bogusHash), []byte(password))
		return nil, errInvalidCredentials()
	}

	now := s.now()
	if user.Locked(now) {
		return nil, &domain.Error{
			Kind:       domain.KindLocked,
			Message:    "account temporarily locked",
			RetryAfter: user.LockoutUntil.Sub(now),
		}
	}
	if !user.IsActive {
		return nil, errInvalidCredentials()
	}
	if s.policy.RequireEmailVerification && !user.EmailVerified {
		return nil, domain.Errorf(domain.KindAuthentication, "email not verified")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		count, rerr := s.users.RecordFailedAttempt(ctx, user.ID)
		if rerr != nil {
			s.log.WithError(rerr).WithField("user_id", user.ID).Error("failed-attempt increment failed")
		} else if count >= s.policy.LockoutThreshold {
			until := now.Add(s.policy.LockoutDuration)
			if lerr := s.users.SetLockout(ctx, user.ID, until); lerr != nil {
				s.log.WithError(lerr).WithField("user_id", user.ID).Error("lockout update failed")
			}
		}
		return nil, errInvalidCredentials()
	}

	if requestedRole != "" && requestedRole != domain.RoleDonor && requestedRole != user.Role {
		return nil, domain.Errorf(domain.KindAuthorization, "insufficient privileges for requested role")
	}

	if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Error("failed-attempt reset failed")
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Error("last-login update failed")
	}

	session, err := s.createSession(ctx, user, now)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{
		Session:     session,
		User:        user,
		RedirectURL: redirectFor(user.Role),
	}
	if remember {
		raw, err := s.issueRememberToken(ctx, user.ID, now)
		if err != nil {
			s.log.WithError(err).WithField("user_id", user.ID).Warn("remember token issue failed")
		} else {
			result.RememberToken = raw
		}
	}
	return result, nil
}

// LoginWithProvider establishes a session for a user already
// authenticated by the configured identity provider. Accounts are
// provisioned on first login with the default role.
func (s *AuthService) LoginWithProvider(ctx context.Context, email, name string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errInvalidCredentials()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "user lookup failed")
	}
	if user == nil {
		user, err = s.users.Create(ctx, email, "", name, domain.RoleDonor)
		if err != nil {
			// Possible create race on the unique email; read again.
			user, err = s.users.FindByEmail(ctx, email)
			if err != nil || user == nil {
				return nil, domain.WrapErr(domain.KindDependency, err, "user provisioning failed")
			}
		}
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Error("last-login update failed")
	}
	session, err := s.createSession(ctx, user, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: session, User: user, RedirectURL: redirectFor(user.Role)}, nil
}

// Logout tears down the session and any persistent-login token. It
// succeeds even when nothing existed to remove.
func (s *AuthService) Logout(ctx context.Context, sessionID, rememberToken string) error {
	if sessionID != "" {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			s.log.WithError(err).Warn("session delete failed")
		}
	}
	if rememberToken != "" {
		if err := s.remember.DeleteByHash(ctx, hashToken(rememberToken)); err != nil {
			s.log.WithError(err).Warn("remember token delete failed")
		}
	}
	return nil
}

// RedeemRememberToken exchanges a persistent-login token for a fresh
// authenticated session. Tokens are single use: redemption deletes the
// stored hash and issues a replacement, so a copied cookie stops
// working as soon as its owner uses it.
func (s *AuthService) RedeemRememberToken(ctx context.Context, raw string) (*LoginResult, error) {
	if raw == "" {
		return nil, ErrSessionExpired
	}
	t, err := s.remember.FindByHash(ctx, hashToken(raw))
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "remember token lookup failed")
	}
	if t == nil {
		return nil, ErrSessionExpired
	}

	now := s.now()
	if now.After(t.ExpiresAt) {
		_ = s.remember.DeleteByHash(ctx, t.TokenHash)
		return nil, ErrSessionExpired
	}
	user, err := s.users.FindByID(ctx, t.UserID)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "user lookup failed")
	}
	if user == nil || !user.IsActive || user.Locked(now) {
		_ = s.remember.DeleteByHash(ctx, t.TokenHash)
		return nil, ErrSessionExpired
	}

	if err := s.remember.DeleteByHash(ctx, t.TokenHash); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("remember token rotation failed")
	}
	fresh, err := s.issueRememberToken(ctx, user.ID, now)
	if err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("remember token issue failed")
		fresh = ""
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Error("last-login update failed")
	}
	session, err := s.createSession(ctx, user, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Session:       session,
		User:          user,
		RedirectURL:   redirectFor(user.Role),
		RememberToken: fresh,
	}, nil
}

// SessionStatus is the result of CheckSession.
type SessionStatus struct {
	Session   *domain.Session
	User      *domain.User
	ExpiresIn time.Duration
}

// ErrSessionExpired indicates that the session is gone or idled out.
var ErrSessionExpired = domain.Errorf(domain.KindAuthentication, "session expired")

// CheckSession resolves a session id, lazily expiring idle sessions and
// refreshing the activity timestamp of live ones.
func (s *AuthService) CheckSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if sessionID == "" {
		return nil, ErrSessionExpired
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "session lookup failed")
	}
	if session == nil {
		return nil, ErrSessionExpired
	}

	now := s.now()
	if session.IdleExpired(now, s.policy.IdleTimeout) {
		_ = s.sessions.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	if err := s.sessions.UpdateActivity(ctx, sessionID, now); err != nil {
		s.log.WithError(err).Warn("session activity update failed")
	}
	session.LastActivityAt = now

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil || user == nil {
		return nil, ErrSessionExpired
	}

	return &SessionStatus{
		Session:   session,
		User:      user,
		ExpiresIn: s.policy.IdleTimeout,
	}, nil
}

// RegisterInput carries a new account request.
type RegisterInput struct {
	Name     string `validate:"required,min=2,max=100"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=128"`
	Role     domain.Role
}

// Register creates a new account. The role is restricted to the
// self-service roles; admin accounts are never created this way.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = domain.RoleDonor
	}
	if in.Role != domain.RoleDonor && in.Role != domain.RoleVolunteer {
		return nil, domain.Errorf(domain.KindValidation, "invalid role")
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "user lookup failed")
	}
	if existing != nil {
		return nil, domain.Errorf(domain.KindValidation, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "password hash failed")
	}
	user, err := s.users.Create(ctx, in.Email, string(hash), in.Name, in.Role)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "user create failed")
	}
	return user, nil
}

// EnsureSession returns the live session for id, creating a fresh
// anonymous pre-auth session when id is empty, unknown, or idle
// expired. The second result reports whether a new session was made.
func (s *AuthService) EnsureSession(ctx context.Context, id string) (*domain.Session, bool, error) {
	now := s.now()
	if id != "" {
		session, err := s.sessions.Get(ctx, id)
		if err != nil {
			return nil, false, domain.WrapErr(domain.KindDependency, err, "session lookup failed")
		}
		if session != nil && !session.IdleExpired(now, s.policy.IdleTimeout) {
			return session, false, nil
		}
	}
	session, err := s.createAnonymousSession(ctx, now)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// ResolveSession returns the session for id if it is live, without
// refreshing activity. Anonymous pre-auth sessions resolve too.
func (s *AuthService) ResolveSession(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "session lookup failed")
	}
	if session == nil || session.IdleExpired(s.now(), s.policy.IdleTimeout) {
		return nil, nil
	}
	return session, nil
}

func (s *AuthService) createAnonymousSession(ctx context.Context, now time.Time) (*domain.Session, error) {
	id, err := generateToken()
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "session id generation failed")
	}
	session := &domain.Session{
		ID:             id,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "session create failed")
	}
	return session, nil
}

// createSession issues a session under a freshly generated identifier.
// A pre-authentication session id is never reused (fixation defense).
func (s *AuthService) createSession(ctx context.Context, user *domain.User, now time.Time) (*domain.Session, error) {
	id, err := generateToken()
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "session id generation failed")
	}
	csrf, err := generateToken()
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "csrf token generation failed")
	}
	session := &domain.Session{
		ID:                 id,
		UserID:             user.ID,
		Role:               user.Role,
		CreatedAt:          now,
		LastActivityAt:     now,
		CSRFToken:          csrf,
		CSRFTokenCreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "session create failed")
	}
	return session, nil
}

func (s *AuthService) issueRememberToken(ctx context.Context, userID int64, now time.Time) (string, error) {
	raw, err := generateToken()
	if err != nil {
		return "", err
	}
	t := &domain.RememberToken{
		TokenHash: hashToken(raw),
		UserID:    userID,
		ExpiresAt: now.Add(s.policy.RememberTTL),
		CreatedAt: now,
	}
	if err := s.remember.Insert(ctx, t); err != nil {
		return "", err
	}
	return raw, nil
}

// hashToken returns the hex SHA-256 of a raw token. Raw tokens are
// never stored.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// redirectFor maps a role to its post-login dashboard.
func redirectFor(role domain.Role) string {
	switch role {
	case domain.RoleAdmin:
		return "/admin/dashboard"
	case domain.RoleVolunteer:
		return "/volunteer/dashboard"
	default:
		return "/donor/dashboard"
	}
}

var validate = validator.New()

// validateStruct runs validator tags and converts failures into the
// field-level validation error shape.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return &domain.Error{Kind: domain.KindValidation, Message: "validation failed", Fields: fields}
}
