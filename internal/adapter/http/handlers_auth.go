package adapthttp

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"ngoportal/internal/app"
	"ngoportal/internal/domain"

	"github.com/coreos/go-oidc/v3/oidc"
)

// handleCSRFToken returns the caller's anti-forgery token, creating an
// anonymous pre-auth session when none exists yet.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, created, err := s.auth.EnsureSession(r.Context(), sessionIDFrom(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if created {
		setSessionCookie(w, session.ID, 0)
	}

	token, expiresIn, err := s.csrf.Issue(r.Context(), session)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": token,
		"expires_in": int(expiresIn.Seconds()),
	})
}

type loginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserType  string `json:"user_type"`
	CSRFToken string `json:"csrf_token"`
	Remember  bool   `json:"remember"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := parseJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	// Throttle before any per-request work so forged requests cannot
	// probe the session store for free.
	if ok, retry := s.limiter.Allow(clientKey(r)); !ok {
		s.writeDomainError(w, &domain.Error{
			Kind:       domain.KindRateLimited,
			Message:    "too many login attempts",
			RetryAfter: retry,
		})
		return
	}

	// The guarded mutation never runs on a CSRF failure.
	if !s.validCSRF(r, req.CSRFToken) {
		s.writeDomainError(w, domain.Errorf(domain.KindAuthorization, "invalid csrf token"))
		return
	}

	result, err := s.auth.Login(r.Context(), req.Email, req.Password, domain.Role(req.UserType), req.Remember)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	// The pre-auth session id is never carried into the
	// authenticated session.
	if old := sessionIDFrom(r); old != "" {
		_ = s.auth.Logout(r.Context(), old, "")
	}
	setSessionCookie(w, result.Session.ID, 0)
	if result.RememberToken != "" {
		setRememberCookie(w, result.RememberToken)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"user":         viewOf(result.User),
		"redirect_url": result.RedirectURL,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rememberToken string
	if c, err := r.Cookie(rememberCookieName); err == nil {
		rememberToken = c.Value
	}
	_ = s.auth.Logout(r.Context(), sessionIDFrom(r), rememberToken)

	clearSessionCookie(w)
	http.SetCookie(w, &http.Cookie{
		Name:     rememberCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := s.authenticate(w, r)
	if err != nil {
		// Only a definitive "not logged in" reads as unauthenticated; a
		// session-store outage must not look like a logout.
		if domain.KindOf(err) != domain.KindAuthentication {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	if status.Session.UserID == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          viewOf(status.User),
		"expires_in":    int(status.ExpiresIn.Seconds()),
	})
}

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserType  string `json:"user_type"`
	CSRFToken string `json:"csrf_token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := parseJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !s.validCSRF(r, req.CSRFToken) {
		s.writeDomainError(w, domain.Errorf(domain.KindAuthorization, "invalid csrf token"))
		return
	}

	user, err := s.auth.Register(r.Context(), app.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.UserType),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": viewOf(user)})
}

// validCSRF resolves the caller's session and checks the presented
// token against it.
func (s *Server) validCSRF(r *http.Request, presented string) bool {
	id := sessionIDFrom(r)
	if id == "" {
		return false
	}
	session, err := s.auth.ResolveSession(r.Context(), id)
	if err != nil || session == nil {
		return false
	}
	return s.csrf.Validate(session, presented)
}

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if !s.oidcCfg.Enabled {
		http.Error(w, "sso disabled", http.StatusNotFound)
		return
	}
	state := generateState()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode, // Lax required for cross-site redirect returns
		MaxAge:   300,
	})
	http.Redirect(w, r, s.oidcCfg.OAuth2.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if !s.oidcCfg.Enabled {
		http.Error(w, "sso disabled", http.StatusNotFound)
		return
	}

	state, err := r.Cookie("oauth_state")
	if err != nil || r.URL.Query().Get("state") != state.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", MaxAge: -1, Path: "/"})

	token, err := s.oidcCfg.OAuth2.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "failed to exchange token", http.StatusInternalServerError)
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token", http.StatusInternalServerError)
		return
	}
	idToken, err := s.oidcCfg.Provider.Verifier(&oidc.Config{ClientID: s.oidcCfg.OAuth2.ClientID}).Verify(r.Context(), rawIDToken)
	if err != nil {
		http.Error(w, "failed to verify token", http.StatusInternalServerError)
		return
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Sub   string `json:"sub"`
	}
	if err = idToken.Claims(&claims); err != nil {
		http.Error(w, "failed to parse claims", http.StatusInternalServerError)
		return
	}
	email := claims.Email
	if email == "" {
		email = claims.Sub
	}

	result, err := s.auth.LoginWithProvider(r.Context(), email, claims.Name)
	if err != nil {
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	setSessionCookie(w, result.Session.ID, 0)
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func generateState() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
