package adapthttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ngoportal/internal/domain"
)

const sessionCookieName = "session"
const rememberCookieName = "remember_token"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError translates the error taxonomy to transport status
// codes. Dependency failures never expose internals unless the debug
// posture is explicitly enabled.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)

	body := map[string]any{"success": false}
	var status int
	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
		body["error"] = err.Error()
		if fields := domain.FieldsOf(err); len(fields) > 0 {
			body["fields"] = fields
		}
	case domain.KindAuthentication:
		status = http.StatusUnauthorized
		body["error"] = err.Error()
	case domain.KindAuthorization:
		status = http.StatusForbidden
		body["error"] = err.Error()
	case domain.KindRateLimited:
		status = http.StatusTooManyRequests
		body["error"] = "too many requests"
		retry := domain.RetryAfterOf(err)
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds()+1)))
	case domain.KindLocked:
		status = http.StatusLocked
		retry := domain.RetryAfterOf(err)
		body["error"] = "account temporarily locked"
		body["retry_after_seconds"] = int(retry.Seconds() + 1)
	case domain.KindNotFound:
		status = http.StatusNotFound
		body["error"] = err.Error()
	case domain.KindIntegrity:
		status = http.StatusBadRequest
		body["error"] = "verification failed"
	default:
		status = http.StatusServiceUnavailable
		body["error"] = "service unavailable"
		if s.debug {
			body["detail"] = err.Error()
		}
		s.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, body)
}

func parseJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.WrapErr(domain.KindValidation, err, "invalid json")
	}
	return nil
}

func setSessionCookie(w http.ResponseWriter, id string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
}

func setRememberCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     rememberCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   30 * 24 * 3600,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func sessionIDFrom(r *http.Request) string {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func withNoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// userView is the safe subset of a user returned to clients.
type userView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func viewOf(u *domain.User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, Role: string(u.Role)}
}

// donationView is the client-facing donation shape.
type donationView struct {
	TransactionID string     `json:"transaction_id"`
	DonorName     string     `json:"donor_name"`
	AmountPaise   int64      `json:"amount_paise"`
	Cause         string     `json:"cause"`
	Frequency     string     `json:"frequency"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func donationViewOf(d *domain.Donation) donationView {
	return donationView{
		TransactionID: d.TransactionID,
		DonorName:     d.DonorName,
		AmountPaise:   d.AmountPaise,
		Cause:         d.Cause,
		Frequency:     string(d.Frequency),
		Status:        string(d.Status),
		CreatedAt:     d.CreatedAt,
		CompletedAt:   d.CompletedAt,
	}
}

func pathID(path, prefix string) (int64, error) {
	raw := path[len(prefix):]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q", raw)
	}
	return id, nil
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
