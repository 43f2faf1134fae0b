package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsforge/gatehouse/pkg/creds"
	"github.com/opsforge/gatehouse/pkg/observability"
	"github.com/opsforge/gatehouse/pkg/session"
)

type testEnv struct {
	server   *Server
	sessions *session.RedisStore
	creds    *creds.Store
	redis    *miniredis.Miniredis
}

func setupServerTest(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	sessions := session.NewRedisStoreFromClient(client)

	credStore, err := creds.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open credential store: %v", err)
	}
	t.Cleanup(func() { credStore.Close() })

	registry := prometheus.NewRegistry()
	server := NewServer(Options{
		Creds:      credStore,
		Sessions:   sessions,
		Metrics:    observability.NewMetrics("test", registry),
		Logger:     observability.NewLogger(observability.ErrorLevel, io.Discard),
		SessionTTL: time.Minute,
		CRMURL:     "http://crm.test",
	})

	return &testEnv{server: server, sessions: sessions, creds: credStore, redis: mr}
}

func postForm(t *testing.T, server *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, env *testEnv, username, password string) {
	t.Helper()

	w := postForm(t, env.server, "/register", url.Values{
		"username": {username},
		"password": {password},
	})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Register returned status %d: %s", w.Code, w.Body.String())
	}
}

func loginUser(t *testing.T, env *testEnv, username, password string) *httptest.ResponseRecorder {
	t.Helper()

	return postForm(t, env.server, "/login", url.Values{
		"username": {username},
		"password": {password},
	})
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	return nil
}

func TestLogin_Success(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")

	w := loginUser(t, env, "alice", "s3cret")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected 303, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "http://crm.test/dashboard" {
		t.Errorf("Expected redirect to dashboard, got %q", loc)
	}

	cookie := sessionCookie(w.Result())
	if cookie == nil {
		t.Fatal("Expected session cookie on successful login")
	}
	if !cookie.HttpOnly {
		t.Error("Expected HttpOnly session cookie")
	}
	if cookie.MaxAge != 60 {
		t.Errorf("Expected cookie MaxAge 60, got %d", cookie.MaxAge)
	}
	if err := session.ValidateTokenFormat(cookie.Value); err != nil {
		t.Errorf("Issued token has invalid format: %v", err)
	}

	// The token validates immediately.
	identity, err := env.sessions.Get(req(t).Context(), cookie.Value)
	if err != nil {
		t.Fatalf("Issued token has no stored session: %v", err)
	}
	if identity.Name != "alice" || identity.Role != "user" {
		t.Errorf("Stored session %+v, want alice/user", identity)
	}
}

func req(t *testing.T) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, "/", nil)
}

func TestLogin_UniformFailureMessage(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")

	wrongPass := loginUser(t, env, "alice", "wrong")
	unknownUser := loginUser(t, env, "nobody", "whatever")

	if wrongPass.Code != http.StatusUnauthorized {
		t.Errorf("Wrong password: expected 401, got %d", wrongPass.Code)
	}
	if unknownUser.Code != http.StatusUnauthorized {
		t.Errorf("Unknown user: expected 401, got %d", unknownUser.Code)
	}

	// Identical body whether the username exists or not.
	if wrongPass.Body.String() != unknownUser.Body.String() {
		t.Error("Login failure responses differ between wrong password and unknown user")
	}
	if !strings.Contains(wrongPass.Body.String(), "Invalid credentials") {
		t.Error("Expected generic failure message")
	}

	if sessionCookie(wrongPass.Result()) != nil {
		t.Error("Failed login must not set a session cookie")
	}
}

func TestLogin_EachLoginIssuesFreshToken(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")

	first := sessionCookie(loginUser(t, env, "alice", "s3cret").Result())
	second := sessionCookie(loginUser(t, env, "alice", "s3cret").Result())

	if first == nil || second == nil {
		t.Fatal("Expected session cookies on both logins")
	}
	if first.Value == second.Value {
		t.Error("Two logins issued the same token")
	}

	// The earlier token stays live; sessions are independent.
	if _, err := env.sessions.Get(req(t).Context(), first.Value); err != nil {
		t.Errorf("First session died after second login: %v", err)
	}
}

func TestLogin_StoreDownRefusesToken(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")

	env.redis.Close()

	w := loginUser(t, env, "alice", "s3cret")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 when session store is down, got %d", w.Code)
	}

	// No token may leave the server without a stored session behind it.
	if sessionCookie(w.Result()) != nil {
		t.Error("Login set a cookie despite the session write failing")
	}
}

func TestLoginPage_Renders(t *testing.T) {
	env := setupServerTest(t)

	reqGet := httptest.NewRequest(http.MethodGet, "/login", nil)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, reqGet)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<form") {
		t.Error("Expected login form markup")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")

	w := postForm(t, env.server, "/register", url.Values{
		"username": {"alice"},
		"password": {"other"},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for duplicate username, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Username already exists.") {
		t.Error("Expected duplicate-username message")
	}
}

func TestRegister_MissingFields(t *testing.T) {
	env := setupServerTest(t)

	w := postForm(t, env.server, "/register", url.Values{"username": {"alice"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for missing password, got %d", w.Code)
	}
}

func validateJSON(t *testing.T, w *httptest.ResponseRecorder) ValidateResponse {
	t.Helper()

	var resp ValidateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode validate response: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestValidate_QueryToken(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")
	cookie := sessionCookie(loginUser(t, env, "alice", "s3cret").Result())

	reqGet := httptest.NewRequest(http.MethodGet, "/api/validate?token="+url.QueryEscape(cookie.Value), nil)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, reqGet)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := validateJSON(t, w)
	if resp.Status != "ok" || resp.Name != "alice" || resp.Role != "user" {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestValidate_CookieToken(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")
	cookie := sessionCookie(loginUser(t, env, "alice", "s3cret").Result())

	reqGet := httptest.NewRequest(http.MethodGet, "/api/validate", nil)
	reqGet.AddCookie(&http.Cookie{Name: CookieName, Value: cookie.Value})
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, reqGet)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp := validateJSON(t, w); resp.Status != "ok" {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestValidate_FailureShapesIdentical(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")
	cookie := sessionCookie(loginUser(t, env, "alice", "s3cret").Result())

	env.redis.FastForward(2 * time.Minute)

	cases := []struct {
		name  string
		query string
	}{
		{"missing token", "/api/validate"},
		{"malformed token", "/api/validate?token=not-a-token"},
		{"forged token", "/api/validate?token=gh_Zm9yZ2VkLXRva2VuLWJvZHk"},
		{"expired token", "/api/validate?token=" + url.QueryEscape(cookie.Value)},
	}

	var bodies []string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reqGet := httptest.NewRequest(http.MethodGet, tc.query, nil)
			w := httptest.NewRecorder()
			env.server.ServeHTTP(w, reqGet)

			if w.Code != http.StatusForbidden {
				t.Fatalf("Expected 403, got %d", w.Code)
			}
			resp := validateJSON(t, w)
			if resp.Status != "error" {
				t.Errorf("Expected status error, got %q", resp.Status)
			}
			if resp.Name != "" || resp.Role != "" {
				t.Error("Error response leaked identity fields")
			}
			bodies = append(bodies, w.Body.String())
		})
	}

	// Every denial must be byte-identical: no hints about why it failed.
	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("Denial bodies differ: %q vs %q", bodies[0], bodies[i])
		}
	}
}

func TestValidate_StoreDown(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")
	cookie := sessionCookie(loginUser(t, env, "alice", "s3cret").Result())

	env.redis.Close()

	reqGet := httptest.NewRequest(http.MethodGet, "/api/validate?token="+url.QueryEscape(cookie.Value), nil)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, reqGet)

	// Unavailable is distinguishable by status code, not by body.
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 when store is down, got %d", w.Code)
	}
	if resp := validateJSON(t, w); resp.Status != "error" {
		t.Errorf("Expected status error, got %q", resp.Status)
	}
}

func TestValidate_DoesNotExtendSession(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")
	cookie := sessionCookie(loginUser(t, env, "alice", "s3cret").Result())

	target := "/api/validate?token=" + url.QueryEscape(cookie.Value)

	// Validate repeatedly while time passes; the session still dies at
	// its original deadline.
	for i := 0; i < 5; i++ {
		env.redis.FastForward(10 * time.Second)
		w := httptest.NewRecorder()
		env.server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Validation %d failed with status %d", i, w.Code)
		}
	}

	env.redis.FastForward(20 * time.Second)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 after TTL elapsed, got %d", w.Code)
	}
}

func TestNoLogoutRoute(t *testing.T) {
	env := setupServerTest(t)
	registerUser(t, env, "alice", "s3cret")
	cookie := sessionCookie(loginUser(t, env, "alice", "s3cret").Result())

	// Sessions end only by expiry. There is no logout or revocation
	// route; if one appears, this test forces the decision to be explicit.
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := httptest.NewRecorder()
		env.server.ServeHTTP(w, httptest.NewRequest(method, "/logout", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("%s /logout: expected 404, got %d", method, w.Code)
		}
	}

	// The session is untouched by the attempts.
	if _, err := env.sessions.Get(req(t).Context(), cookie.Value); err != nil {
		t.Errorf("Session died without expiry: %v", err)
	}
}

func TestHandler_MiddlewareChain(t *testing.T) {
	env := setupServerTest(t)

	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/login")
	if err != nil {
		t.Fatalf("GET /login failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header from middleware")
	}
}
