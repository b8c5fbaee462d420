package adapthttp_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	adapthttp "ngoportal/internal/adapter/http"
	"ngoportal/internal/adapter/memory"
	"ngoportal/internal/app"
	"ngoportal/internal/config"
	"ngoportal/internal/domain"
	"ngoportal/internal/phonepe"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	gatewaySalt      = "test-salt"
	gatewaySaltIndex = "1"
)

type fixture struct {
	srv    *httptest.Server
	client *http.Client
	store  *memory.DB
}

func newFixture(t *testing.T, limiter *app.LoginLimiter) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	policy := config.AuthPolicy{
		LockoutThreshold: 3,
		LockoutDuration:  15 * time.Minute,
		IdleTimeout:      time.Hour,
		CSRFTTL:          time.Hour,
		RememberTTL:      24 * time.Hour,
	}

	store := memory.New()
	sessions := store.Sessions()
	gateway := phonepe.New("MERCHANT1", gatewaySalt, gatewaySaltIndex, "https://pg.example.test", "/pg/v1/pay")

	authSvc := app.NewAuthService(store, sessions, store, policy, log)
	csrfGuard := app.NewCSRFGuard(sessions, policy.CSRFTTL)
	donationSvc, err := app.NewDonationService(store, gateway, discardMailer{}, `^[6-9]\d{9}$`,
		"https://ngo.example.test/thanks", "https://ngo.example.test/api/payment-callback", log)
	if err != nil {
		t.Fatalf("donation service: %v", err)
	}
	projectSvc := app.NewProjectService(store.Projects(), store)
	if limiter == nil {
		limiter = app.NewLoginLimiter(100, 100)
	}

	srv := httptest.NewServer(adapthttp.New(authSvc, csrfGuard, donationSvc, projectSvc,
		limiter, gateway, adapthttp.OIDCConfig{}, log, false).Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &fixture{
		srv:    srv,
		client: &http.Client{Jar: jar},
		store:  store,
	}
}

type discardMailer struct{}

func (discardMailer) SendReceipt(ctx context.Context, d *domain.Donation) error { return nil }

func (f *fixture) seedUser(t *testing.T, email, password string, role domain.Role) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := f.store.Create(context.Background(), email, string(hash), "Test User", role)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (f *fixture) getJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := f.client.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return decodeBody(t, resp)
}

func (f *fixture) postJSON(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := f.client.Post(f.srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) (int, map[string]any) {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) > 0 {
		// Non-JSON error bodies from http.Error are tolerated as empty.
		_ = json.Unmarshal(raw, &body)
	}
	return resp.StatusCode, body
}

func (f *fixture) csrfToken(t *testing.T) string {
	t.Helper()
	status, body := f.getJSON(t, "/api/auth?action=csrf_token")
	if status != http.StatusOK {
		t.Fatalf("csrf_token: status %d", status)
	}
	token, _ := body["csrf_token"].(string)
	if token == "" {
		t.Fatal("csrf_token: empty token")
	}
	return token
}

func TestCSRFTokenEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	first := f.csrfToken(t)
	// Re-requesting within the TTL on the same session returns the same
	// token instead of minting a new one.
	second := f.csrfToken(t)
	if first != second {
		t.Errorf("token must be stable within its ttl: %q vs %q", first, second)
	}
}

func TestLoginFlow(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t, "donor@example.org", "secret-password", domain.RoleDonor)

	token := f.csrfToken(t)
	preAuth := sessionCookieValue(t, f)

	status, body := f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":      "donor@example.org",
		"password":   "secret-password",
		"csrf_token": token,
	})
	if status != http.StatusOK {
		t.Fatalf("login: status %d body %v", status, body)
	}
	if body["redirect_url"] != "/donor/dashboard" {
		t.Errorf("unexpected redirect %v", body["redirect_url"])
	}

	// The authenticated session must run under a fresh id.
	if postAuth := sessionCookieValue(t, f); postAuth == preAuth {
		t.Error("session id must rotate at login")
	}

	status, body = f.getJSON(t, "/api/auth?action=check_session")
	if status != http.StatusOK || body["authenticated"] != true {
		t.Fatalf("check_session: status %d body %v", status, body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "donor@example.org" {
		t.Errorf("unexpected user %v", user)
	}
}

func TestLoginRejectedWithoutCSRF(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t, "donor@example.org", "secret-password", domain.RoleDonor)

	// No csrf handshake at all: no session, no token.
	status, _ := f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":    "donor@example.org",
		"password": "secret-password",
	})
	if status != http.StatusForbidden {
		t.Errorf("expected 403 without csrf token, got %d", status)
	}

	// A session with a wrong token fails the same way.
	f.csrfToken(t)
	status, _ = f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":      "donor@example.org",
		"password":   "secret-password",
		"csrf_token": "forged-token",
	})
	if status != http.StatusForbidden {
		t.Errorf("expected 403 with forged csrf token, got %d", status)
	}
}

func TestLoginFailureShapesAreIdentical(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t, "donor@example.org", "secret-password", domain.RoleDonor)
	token := f.csrfToken(t)

	statusUnknown, bodyUnknown := f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":      "nobody@example.org",
		"password":   "whatever",
		"csrf_token": token,
	})
	statusWrong, bodyWrong := f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":      "donor@example.org",
		"password":   "wrong-password",
		"csrf_token": token,
	})

	if statusUnknown != http.StatusUnauthorized || statusWrong != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", statusUnknown, statusWrong)
	}
	if fmt.Sprint(bodyUnknown) != fmt.Sprint(bodyWrong) {
		t.Errorf("failure bodies differ:\n %v\n %v", bodyUnknown, bodyWrong)
	}
}

func TestLoginLockout(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t, "donor@example.org", "secret-password", domain.RoleDonor)
	token := f.csrfToken(t)

	for i := 0; i < 3; i++ {
		status, _ := f.postJSON(t, "/api/auth?action=login", map[string]any{
			"email":      "donor@example.org",
			"password":   "wrong-password",
			"csrf_token": token,
		})
		if status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, status)
		}
	}

	status, body := f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":      "donor@example.org",
		"password":   "secret-password",
		"csrf_token": token,
	})
	if status != http.StatusLocked {
		t.Fatalf("expected 423 during lockout, got %d", status)
	}
	if retry, ok := body["retry_after_seconds"].(float64); !ok || retry <= 0 {
		t.Errorf("expected positive retry_after_seconds, got %v", body["retry_after_seconds"])
	}
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t, app.NewLoginLimiter(0.01, 1))
	f.seedUser(t, "donor@example.org", "secret-password", domain.RoleDonor)
	token := f.csrfToken(t)

	attempt := func() (int, *http.Response) {
		raw, _ := json.Marshal(map[string]any{
			"email":      "donor@example.org",
			"password":   "wrong-password",
			"csrf_token": token,
		})
		resp, err := f.client.Post(f.srv.URL+"/api/auth?action=login", "application/json", bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, resp
	}

	if status, _ := attempt(); status != http.StatusUnauthorized {
		t.Fatalf("first attempt should pass the limiter, got %d", status)
	}
	status, resp := attempt()
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", status)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("429 must carry a Retry-After header")
	}
}

func TestRegisterFlow(t *testing.T) {
	f := newFixture(t, nil)
	token := f.csrfToken(t)

	status, body := f.postJSON(t, "/api/auth?action=register", map[string]any{
		"name":       "New Donor",
		"email":      "new@example.org",
		"password":   "a-long-password",
		"csrf_token": token,
	})
	if status != http.StatusCreated {
		t.Fatalf("register: status %d body %v", status, body)
	}

	status, body = f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":      "new@example.org",
		"password":   "a-long-password",
		"csrf_token": token,
	})
	if status != http.StatusOK {
		t.Fatalf("login after register: status %d body %v", status, body)
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	f := newFixture(t, nil)
	token := f.csrfToken(t)

	status, _ := f.postJSON(t, "/api/auth?action=register", map[string]any{
		"name":       "Sneaky",
		"email":      "sneaky@example.org",
		"password":   "a-long-password",
		"user_type":  "admin",
		"csrf_token": token,
	})
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for admin self-registration, got %d", status)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t, "donor@example.org", "secret-password", domain.RoleDonor)
	token := f.csrfToken(t)

	if status, _ := f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":      "donor@example.org",
		"password":   "secret-password",
		"csrf_token": token,
	}); status != http.StatusOK {
		t.Fatalf("login: status %d", status)
	}

	if status, _ := f.postJSON(t, "/api/auth?action=logout", map[string]any{}); status != http.StatusOK {
		t.Fatalf("logout: status %d", status)
	}

	status, body := f.getJSON(t, "/api/auth?action=check_session")
	if status != http.StatusOK || body["authenticated"] != false {
		t.Errorf("expected unauthenticated after logout, got %d %v", status, body)
	}
}

func TestRememberMeRestoresSession(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t, "donor@example.org", "secret-password", domain.RoleDonor)
	token := f.csrfToken(t)

	status, body := f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":      "donor@example.org",
		"password":   "secret-password",
		"csrf_token": token,
		"remember":   true,
	})
	if status != http.StatusOK {
		t.Fatalf("login: status %d body %v", status, body)
	}
	sid := sessionCookieValue(t, f)
	oldRemember := cookieValue(t, f, "remember_token")
	if oldRemember == "" {
		t.Fatal("login with remember must set the remember cookie")
	}

	// The server-side session disappears (idle sweep, restart), but the
	// remember cookie survives in the browser.
	if err := f.store.Sessions().Delete(context.Background(), sid); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	status, body = f.getJSON(t, "/api/auth?action=check_session")
	if status != http.StatusOK || body["authenticated"] != true {
		t.Fatalf("expected redeemed session, got %d %v", status, body)
	}
	if newSid := sessionCookieValue(t, f); newSid == "" || newSid == sid {
		t.Error("redemption must issue a fresh session id")
	}
	if newRemember := cookieValue(t, f, "remember_token"); newRemember == "" || newRemember == oldRemember {
		t.Error("redemption must rotate the remember cookie")
	}
}

func TestForgedCSRFLoginIsRateLimited(t *testing.T) {
	f := newFixture(t, app.NewLoginLimiter(0.01, 1))

	attempt := func() int {
		status, _ := f.postJSON(t, "/api/auth?action=login", map[string]any{
			"email":      "donor@example.org",
			"password":   "whatever",
			"csrf_token": "forged-token",
		})
		return status
	}

	if status := attempt(); status != http.StatusForbidden {
		t.Fatalf("first forged attempt: expected 403, got %d", status)
	}
	// The limiter charges every attempt, valid CSRF or not.
	if status := attempt(); status != http.StatusTooManyRequests {
		t.Errorf("second forged attempt: expected 429, got %d", status)
	}
}

var errStoreDown = errors.New("session store down")

// failingSessionRepo simulates a session-store outage.
type failingSessionRepo struct{}

func (failingSessionRepo) Create(ctx context.Context, s *domain.Session) error { return errStoreDown }
func (failingSessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	return nil, errStoreDown
}
func (failingSessionRepo) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	return errStoreDown
}
func (failingSessionRepo) UpdateCSRF(ctx context.Context, id, token string, at time.Time) error {
	return errStoreDown
}
func (failingSessionRepo) Delete(ctx context.Context, id string) error { return errStoreDown }
func (failingSessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) error {
	return errStoreDown
}

func TestCheckSessionStoreOutage(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	policy := config.AuthPolicy{
		LockoutThreshold: 3,
		LockoutDuration:  15 * time.Minute,
		IdleTimeout:      time.Hour,
		CSRFTTL:          time.Hour,
		RememberTTL:      24 * time.Hour,
	}
	store := memory.New()
	gateway := phonepe.New("MERCHANT1", gatewaySalt, gatewaySaltIndex, "https://pg.example.test", "/pg/v1/pay")

	authSvc := app.NewAuthService(store, failingSessionRepo{}, store, policy, log)
	csrfGuard := app.NewCSRFGuard(failingSessionRepo{}, policy.CSRFTTL)
	donationSvc, err := app.NewDonationService(store, gateway, discardMailer{}, `^[6-9]\d{9}$`,
		"https://ngo.example.test/thanks", "https://ngo.example.test/api/payment-callback", log)
	if err != nil {
		t.Fatalf("donation service: %v", err)
	}
	projectSvc := app.NewProjectService(store.Projects(), store)

	srv := httptest.NewServer(adapthttp.New(authSvc, csrfGuard, donationSvc, projectSvc,
		app.NewLoginLimiter(100, 100), gateway, adapthttp.OIDCConfig{}, log, false).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/auth?action=check_session", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "session", Value: "some-live-session"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	status, body := decodeBody(t, resp)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("an outage must surface as 503, got %d %v", status, body)
	}
	if _, present := body["authenticated"]; present {
		t.Error("an outage response must not claim an authentication state")
	}
}

func TestCheckSessionAnonymous(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.getJSON(t, "/api/auth?action=check_session")
	if status != http.StatusOK || body["authenticated"] != false {
		t.Errorf("expected authenticated=false, got %d %v", status, body)
	}

	// A pre-auth session exists but carries no user; it must not count
	// as authenticated either.
	f.csrfToken(t)
	status, body = f.getJSON(t, "/api/auth?action=check_session")
	if status != http.StatusOK || body["authenticated"] != false {
		t.Errorf("anonymous session must not authenticate, got %d %v", status, body)
	}
}

func TestDonationAndCallbackFlow(t *testing.T) {
	f := newFixture(t, nil)
	token := f.csrfToken(t)

	status, body := f.postJSON(t, "/api/donations", map[string]any{
		"donor_name":   "A Donor",
		"donor_email":  "donor@example.org",
		"donor_phone":  "9876543210",
		"amount_paise": 50000,
		"cause":        "education",
		"csrf_token":   token,
	})
	if status != http.StatusCreated {
		t.Fatalf("create donation: status %d body %v", status, body)
	}
	donation, _ := body["donation"].(map[string]any)
	txnID, _ := donation["transaction_id"].(string)
	if txnID == "" {
		t.Fatal("missing transaction id")
	}
	if p, _ := body["payload"].(string); p == "" {
		t.Error("missing signed gateway payload")
	}
	if c, _ := body["checksum"].(string); c == "" {
		t.Error("missing gateway checksum")
	}

	callbackBody, xVerify := signedCallback(t, txnID, "PAYMENT_SUCCESS")
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/payment-callback", bytes.NewReader(callbackBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", xVerify)
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	status, body = decodeBody(t, resp)
	if status != http.StatusOK {
		t.Fatalf("callback: status %d body %v", status, body)
	}

	d, err := f.store.FindByTransactionID(context.Background(), txnID)
	if err != nil || d == nil {
		t.Fatalf("lookup: %v/%v", d, err)
	}
	if d.Status != domain.DonationCompleted {
		t.Errorf("expected completed, got %q", d.Status)
	}
}

func TestDonationRejectedWithoutCSRF(t *testing.T) {
	f := newFixture(t, nil)

	status, _ := f.postJSON(t, "/api/donations", map[string]any{
		"donor_name":   "A Donor",
		"donor_email":  "donor@example.org",
		"amount_paise": 50000,
		"cause":        "education",
	})
	if status != http.StatusForbidden {
		t.Errorf("expected 403 without csrf token, got %d", status)
	}
}

func TestCallbackRejectedOnBadChecksum(t *testing.T) {
	f := newFixture(t, nil)

	callbackBody, xVerify := signedCallback(t, "TXN-ANY", "PAYMENT_SUCCESS")
	bad := "0" + xVerify[1:]
	if bad == xVerify {
		bad = "1" + xVerify[1:]
	}

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/payment-callback", bytes.NewReader(callbackBody))
	req.Header.Set("X-VERIFY", bad)
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	status, body := decodeBody(t, resp)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 on checksum mismatch, got %d", status)
	}
	if body["error"] != "verification failed" {
		t.Errorf("rejection must not leak detail, got %v", body["error"])
	}
}

func TestCallbackUnknownTransaction(t *testing.T) {
	f := newFixture(t, nil)

	callbackBody, xVerify := signedCallback(t, "TXN-UNKNOWN", "PAYMENT_SUCCESS")
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/payment-callback", bytes.NewReader(callbackBody))
	req.Header.Set("X-VERIFY", xVerify)
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	status, _ := decodeBody(t, resp)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown transaction, got %d", status)
	}
}

func TestProjectsAdminGate(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t, "donor@example.org", "secret-password", domain.RoleDonor)

	project := map[string]any{
		"title":       "Clean Water",
		"description": "Wells for villages",
		"cause":       "water",
		"goal_paise":  10000000,
		"active":      true,
	}

	if status, _ := f.postJSON(t, "/api/projects", project); status != http.StatusUnauthorized {
		t.Errorf("expected 401 unauthenticated, got %d", status)
	}

	token := f.csrfToken(t)
	if status, _ := f.postJSON(t, "/api/auth?action=login", map[string]any{
		"email":      "donor@example.org",
		"password":   "secret-password",
		"csrf_token": token,
	}); status != http.StatusOK {
		t.Fatalf("login: status %d", status)
	}
	if status, _ := f.postJSON(t, "/api/projects", project); status != http.StatusForbidden {
		t.Errorf("expected 403 for donor, got %d", status)
	}
}

func TestListDonationsRequiresAuth(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.client.Get(f.srv.URL + "/api/donations")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	status, _ := decodeBody(t, resp)
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", status)
	}
}

func sessionCookieValue(t *testing.T, f *fixture) string {
	t.Helper()
	return cookieValue(t, f, "session")
}

func cookieValue(t *testing.T, f *fixture, name string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.srv.URL, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for _, c := range f.client.Jar.Cookies(req.URL) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// signedCallback builds a gateway notification with a valid X-VERIFY
// header for the fixture's salt.
func signedCallback(t *testing.T, txnID, code string) ([]byte, string) {
	t.Helper()
	payload := map[string]any{
		"success": code == "PAYMENT_SUCCESS",
		"code":    code,
		"data": map[string]any{
			"merchantId":            "MERCHANT1",
			"merchantTransactionId": txnID,
			"amount":                50000,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	body, err := json.Marshal(map[string]string{"response": encoded})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	sum := sha256.Sum256([]byte(encoded + gatewaySalt))
	return body, hex.EncodeToString(sum[:]) + "###" + gatewaySaltIndex
}
