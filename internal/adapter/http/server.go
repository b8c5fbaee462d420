// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"net/http"

	"ngoportal/internal/app"
	"ngoportal/internal/phonepe"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// OIDCConfig carries the optional single-sign-on wiring.
type OIDCConfig struct {
	Enabled  bool
	Provider *oidc.Provider
	OAuth2   oauth2.Config
}

// Server is the driving HTTP adapter that routes requests to
// application services.
type Server struct {
	auth      *app.AuthService
	csrf      *app.CSRFGuard
	donations *app.DonationService
	projects  *app.ProjectService
	limiter   *app.LoginLimiter
	gateway   *phonepe.Client
	oidcCfg   OIDCConfig
	log       *logrus.Logger
	debug     bool
}

// New creates a Server wired to the given application services.
func New(auth *app.AuthService, csrf *app.CSRFGuard, donations *app.DonationService, projects *app.ProjectService, limiter *app.LoginLimiter, gateway *phonepe.Client, oidcCfg OIDCConfig, log *logrus.Logger, debug bool) *Server {
	return &Server{
		auth:      auth,
		csrf:      csrf,
		donations: donations,
		projects:  projects,
		limiter:   limiter,
		gateway:   gateway,
		oidcCfg:   oidcCfg,
		log:       log,
		debug:     debug,
	}
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	api.HandleFunc("/auth", s.handleAuth)
	api.HandleFunc("/auth/sso/login", s.handleSSOLogin)
	api.HandleFunc("/auth/sso/callback", s.handleSSOCallback)

	api.HandleFunc("/donations", s.handleDonations)
	api.HandleFunc("/payment-callback", s.handlePaymentCallback)

	api.HandleFunc("/projects", s.handleProjects)
	api.HandleFunc("/projects/", s.handleProjectByID)

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	return s.loggingMiddleware(withNoCache(root))
}

// handleAuth dispatches the action-keyed auth endpoint.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "csrf_token":
		s.handleCSRFToken(w, r)
	case "login":
		s.handleLogin(w, r)
	case "logout":
		s.handleLogout(w, r)
	case "check_session":
		s.handleCheckSession(w, r)
	case "register":
		s.handleRegister(w, r)
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
	}
}
