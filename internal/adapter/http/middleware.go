package adapthttp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"ngoportal/internal/app"
	"ngoportal/internal/domain"
)

type contextKey string

const sessionContextKey contextKey = "session_status"

// authenticate resolves the caller's session, falling back to the
// remember-me cookie when the session is gone or idled out. A
// successful redemption issues a fresh session and rotates both
// cookies. Store failures keep their dependency kind so callers can
// tell an outage from a logged-out user.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*app.SessionStatus, error) {
	status, err := s.auth.CheckSession(r.Context(), sessionIDFrom(r))
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, app.ErrSessionExpired) {
		return nil, err
	}

	c, cerr := r.Cookie(rememberCookieName)
	if cerr != nil || c.Value == "" {
		return nil, err
	}
	result, rerr := s.auth.RedeemRememberToken(r.Context(), c.Value)
	if rerr != nil {
		if domain.KindOf(rerr) == domain.KindDependency {
			return nil, rerr
		}
		return nil, err
	}

	setSessionCookie(w, result.Session.ID, 0)
	if result.RememberToken != "" {
		setRememberCookie(w, result.RememberToken)
	}
	return s.auth.CheckSession(r.Context(), result.Session.ID)
}

// requireAuth resolves the session cookie and rejects unauthenticated
// requests. The resolved status is stored in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := s.authenticate(w, r)
		if err != nil {
			if domain.KindOf(err) != domain.KindAuthentication {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized"})
			return
		}
		if status.Session.UserID == 0 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, status)
		next(w, r.WithContext(ctx))
	}
}

// requireRole additionally gates on the session's role.
func (s *Server) requireRole(role domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		status := sessionFrom(r.Context())
		if status.User.Role != role {
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "error": "forbidden"})
			return
		}
		next(w, r)
	})
}

func sessionFrom(ctx context.Context) *app.SessionStatus {
	status, _ := ctx.Value(sessionContextKey).(*app.SessionStatus)
	return status
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs one line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}

// clientKey extracts the rate-limit key for a request.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
