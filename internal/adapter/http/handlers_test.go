package adapthttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
	testclock "k8s.io/utils/clock/testing"

	"journal/internal/adapter/filestore"
	adapthttp "journal/internal/adapter/http"
	"journal/internal/adapter/memory"
	"journal/internal/app"
	"journal/internal/domain"
	"journal/internal/monitoring"
)

var epoch = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

const (
	authorEmail    = "author@example.com"
	authorPassword = "s3cret-passphrase"
)

// ---------------------------------------------------------------------------
// Test-server helper
// ---------------------------------------------------------------------------

type testEnv struct {
	ts    *httptest.Server
	clock *testclock.FakeClock
	users *flakyUsers
}

// flakyUsers wraps the memory store so tests can take user lookups offline.
type flakyUsers struct {
	*memory.DB
	down atomic.Bool
}

func (u *flakyUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if u.down.Load() {
		return nil, errors.New("db down")
	}
	return u.DB.GetByID(ctx, id)
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	fc := testclock.NewFakeClock(epoch)
	db := memory.New(fc)
	users := &flakyUsers{DB: db}
	authSvc := app.NewAuthService(users, db.NewSessionRepo(), app.WithClock(fc), app.WithBcryptCost(bcrypt.MinCost))
	if err := authSvc.CreateInitialUser(context.Background(), authorEmail, authorPassword); err != nil {
		t.Fatalf("seed author: %v", err)
	}

	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	metrics := monitoring.New(reg)
	guard := app.NewAccessGuard(app.NewQuotaLedger(fc), authSvc, app.DefaultGuardConfig(), metrics)

	srv := adapthttp.New(authSvc, guard, app.NewPostService(db, fc), app.NewUploadService(store, 0), store.Dir()).
		WithClock(fc).
		WithMetrics(reg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, clock: fc, users: users}
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	cookie      *http.Cookie
	ip          string
}

func (e *testEnv) do(t *testing.T, r request) *http.Response {
	t.Helper()
	req, err := http.NewRequest(r.method, e.ts.URL+r.path, r.body)
	if err != nil {
		t.Fatal(err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.cookie != nil {
		req.AddCookie(r.cookie)
	}
	if r.ip != "" {
		req.Header.Set("X-Forwarded-For", r.ip)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) login(t *testing.T, ip, email, password string) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	return e.do(t, request{
		method:      http.MethodPost,
		path:        "/api/auth/login",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		ip:          ip,
	})
}

func (e *testEnv) mustLogin(t *testing.T, ip string) *http.Cookie {
	t.Helper()
	resp := e.login(t, ip, authorEmail, authorPassword)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	c := findCookie(resp, "session")
	if c == nil {
		t.Fatal("login: no session cookie")
	}
	return c
}

func (e *testEnv) upload(t *testing.T, cookie *http.Cookie, ip, filename, contentType string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()

	return e.do(t, request{
		method:      http.MethodPost,
		path:        "/api/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
		cookie:      cookie,
		ip:          ip,
	})
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return m
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t)

	resp := env.do(t, request{method: http.MethodGet, path: "/api/health"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("expected no-store, got %q", got)
	}
	body := decodeBody(t, resp)
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body["ok"])
	}
}

func TestLoginSuccess(t *testing.T) {
	env := newTestServer(t)

	resp := env.login(t, "203.0.113.7", authorEmail, authorPassword)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["success"] != true {
		t.Errorf("expected success=true, got %v", body)
	}

	c := findCookie(resp, "session")
	if c == nil {
		t.Fatal("missing session cookie")
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("unexpected cookie attributes %+v", c)
	}
	if c.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d, want one week", c.MaxAge)
	}
	if c.Value == "1" || len(c.Value) != 43 {
		t.Errorf("expected opaque token, got %q", c.Value)
	}

	wantHeaders := map[string]string{
		"X-RateLimit-Limit":     "5",
		"X-RateLimit-Remaining": "4",
		"X-RateLimit-Reset":     "2026-10-19T09:15:00Z",
	}
	for k, v := range wantHeaders {
		if got := resp.Header.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if resp.Header.Get("Retry-After") != "" {
		t.Error("admitted response must not carry Retry-After")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestServer(t)

	for _, tc := range []struct{ email, password string }{
		{authorEmail, "wrong"},
		{"nobody@example.com", authorPassword},
	} {
		resp := env.login(t, "203.0.113.7", tc.email, tc.password)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		if body := decodeBody(t, resp); body["error"] != "invalid credentials" {
			t.Errorf("unexpected body %v", body)
		}
		if findCookie(resp, "session") != nil {
			t.Error("failed login must not set a session cookie")
		}
	}
}

func TestLoginMissingFields(t *testing.T) {
	env := newTestServer(t)

	resp := env.login(t, "203.0.113.7", authorEmail, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("expected the attempt to count, remaining = %q", got)
	}
}

func TestLoginThrottled(t *testing.T) {
	env := newTestServer(t)

	for i := 0; i < 5; i++ {
		resp := env.login(t, "198.51.100.9", authorEmail, "wrong")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, resp.StatusCode)
		}
		if got, want := resp.Header.Get("X-RateLimit-Remaining"), strconv.Itoa(4-i); got != want {
			t.Fatalf("attempt %d: remaining = %s, want %s", i+1, got, want)
		}
	}

	resp := env.login(t, "198.51.100.9", authorEmail, authorPassword)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["error"] != "too many attempts" || body["remaining"] != float64(0) || body["resetTime"] != "2026-10-19T09:15:00Z" {
		t.Errorf("unexpected body %v", body)
	}
	if got := resp.Header.Get("Retry-After"); got != "900" {
		t.Errorf("Retry-After = %q, want 900", got)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("remaining = %q, want 0", got)
	}
	if findCookie(resp, "session") != nil {
		t.Error("throttled login must not set a session cookie")
	}

	// A different caller is unaffected.
	if resp := env.login(t, "198.51.100.10", authorEmail, authorPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("other caller: expected 200, got %d", resp.StatusCode)
	}

	env.clock.Step(15*time.Minute + time.Second)
	if resp := env.login(t, "198.51.100.9", authorEmail, authorPassword); resp.StatusCode != http.StatusOK {
		t.Fatalf("after window: expected 200, got %d", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestServer(t)

	resp := env.do(t, request{method: http.MethodGet, path: "/api/auth/session"})
	if body := decodeBody(t, resp); body["authenticated"] != false {
		t.Fatalf("expected unauthenticated, got %v", body)
	}

	cookie := env.mustLogin(t, "203.0.113.7")
	resp = env.do(t, request{method: http.MethodGet, path: "/api/auth/session", cookie: cookie})
	if body := decodeBody(t, resp); body["authenticated"] != true {
		t.Fatalf("expected authenticated, got %v", body)
	}

	for i := 0; i < 2; i++ {
		resp = env.do(t, request{method: http.MethodPost, path: "/api/auth/logout", cookie: cookie})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("logout %d: expected 200, got %d", i+1, resp.StatusCode)
		}
		cleared := findCookie(resp, "session")
		if cleared == nil || cleared.MaxAge >= 0 {
			t.Fatalf("logout %d: expected cleared cookie, got %+v", i+1, cleared)
		}
	}

	resp = env.do(t, request{method: http.MethodGet, path: "/api/auth/session", cookie: cookie})
	if body := decodeBody(t, resp); body["authenticated"] != false {
		t.Fatalf("expected token to be revoked, got %v", body)
	}

	resp = env.do(t, request{method: http.MethodPost, path: "/api/auth/logout"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout without session: expected 200, got %d", resp.StatusCode)
	}
}

func TestUploadRequiresSessionBeforeQuota(t *testing.T) {
	env := newTestServer(t)

	for i := 0; i < 25; i++ {
		resp := env.upload(t, nil, "203.0.113.7", "a.png", "image/png", []byte("png"))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-RateLimit-Limit") != "" {
			t.Fatal("unauthenticated upload must not consult the quota")
		}
	}

	cookie := env.mustLogin(t, "203.0.113.7")
	resp := env.upload(t, cookie, "203.0.113.7", "a.png", "image/png", []byte("png"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "19" {
		t.Errorf("remaining = %q, want 19", got)
	}
}

func TestUploadThrottled(t *testing.T) {
	env := newTestServer(t)
	cookie := env.mustLogin(t, "203.0.113.7")

	for i := 0; i < 20; i++ {
		resp := env.upload(t, cookie, "203.0.113.7", "clip.mp4", "video/mp4", []byte("mp4"))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("upload %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	resp := env.upload(t, cookie, "203.0.113.7", "clip.mp4", "video/mp4", []byte("mp4"))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["error"] != "too many requests" {
		t.Errorf("unexpected body %v", body)
	}
	if got := resp.Header.Get("Retry-After"); got != "600" {
		t.Errorf("Retry-After = %q, want 600", got)
	}
	if got := resp.Header.Get("X-RateLimit-Reset"); got != "2026-10-19T09:10:00Z" {
		t.Errorf("reset = %q", got)
	}
}

func TestUploadStoresAndServesFile(t *testing.T) {
	env := newTestServer(t)
	cookie := env.mustLogin(t, "203.0.113.7")

	resp := env.upload(t, cookie, "203.0.113.7", "my photo.png", "image/png", []byte("png-bytes"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != true || body["filename"] != "my_photo.png" || body["type"] != "image" {
		t.Fatalf("unexpected body %v", body)
	}
	url, _ := body["url"].(string)
	if !strings.HasPrefix(url, "/uploads/") {
		t.Fatalf("unexpected url %q", url)
	}

	served := env.do(t, request{method: http.MethodGet, path: url})
	if served.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", url, served.StatusCode)
	}
	data, _ := io.ReadAll(served.Body)
	if string(data) != "png-bytes" {
		t.Errorf("served %q", data)
	}
}

func TestUploadValidation(t *testing.T) {
	env := newTestServer(t)
	cookie := env.mustLogin(t, "203.0.113.7")

	resp := env.upload(t, cookie, "203.0.113.7", "run.sh", "application/x-sh", []byte("#!/bin/sh"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["error"] != "invalid file type" {
		t.Errorf("unexpected body %v", body)
	}

	resp = env.do(t, request{
		method:      http.MethodPost,
		path:        "/api/upload",
		body:        strings.NewReader("not multipart"),
		contentType: "text/plain",
		cookie:      cookie,
		ip:          "203.0.113.7",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing file, got %d", resp.StatusCode)
	}
}

func TestPostsCRUD(t *testing.T) {
	env := newTestServer(t)

	payload := `{"content":"hello","media":[{"url":"/uploads/x.png","filename":"x.png","type":"image"}]}`
	resp := env.do(t, request{method: http.MethodPost, path: "/api/posts", body: strings.NewReader(payload), contentType: "application/json"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create: expected 401, got %d", resp.StatusCode)
	}

	cookie := env.mustLogin(t, "203.0.113.7")
	resp = env.do(t, request{method: http.MethodPost, path: "/api/posts", body: strings.NewReader(`{"content":"  "}`), contentType: "application/json", cookie: cookie})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank content: expected 400, got %d", resp.StatusCode)
	}

	resp = env.do(t, request{method: http.MethodPost, path: "/api/posts", body: strings.NewReader(payload), contentType: "application/json", cookie: cookie})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	created := decodeBody(t, resp)
	id, _ := created["id"].(string)
	if id == "" || created["content"] != "hello" {
		t.Fatalf("unexpected post %v", created)
	}

	resp = env.do(t, request{method: http.MethodGet, path: "/api/posts"})
	var posts []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0]["id"] != id {
		t.Fatalf("unexpected list %v", posts)
	}

	resp = env.do(t, request{method: http.MethodDelete, path: "/api/posts/" + id})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated delete: expected 401, got %d", resp.StatusCode)
	}
	resp = env.do(t, request{method: http.MethodDelete, path: "/api/posts/" + id, cookie: cookie})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp = env.do(t, request{method: http.MethodDelete, path: "/api/posts/" + id, cookie: cookie})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestConfigAndSSODisabled(t *testing.T) {
	env := newTestServer(t)

	resp := env.do(t, request{method: http.MethodGet, path: "/api/config"})
	if body := decodeBody(t, resp); body["sso_enabled"] != false {
		t.Fatalf("unexpected config %v", body)
	}

	for _, path := range []string{"/api/auth/sso/login", "/api/auth/sso/callback"} {
		resp := env.do(t, request{method: http.MethodGet, path: path})
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.login(t, "203.0.113.7", authorEmail, "wrong")

	resp := env.do(t, request{method: http.MethodGet, path: "/metrics"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`journal_login_results_total{result="invalid"} 1`,
		`journal_quota_decisions_total{operation="login",result="admitted"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSessionStoreFailure(t *testing.T) {
	env := newTestServer(t)
	cookie := env.mustLogin(t, "203.0.113.7")

	env.users.down.Store(true)
	resp := env.do(t, request{method: http.MethodGet, path: "/api/auth/session", cookie: cookie})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 when the user store is down, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["authenticated"] != nil || body["error"] != "internal server error" {
		t.Errorf("unexpected body %v", body)
	}

	env.users.down.Store(false)
	resp = env.do(t, request{method: http.MethodGet, path: "/api/auth/session", cookie: cookie})
	if body := decodeBody(t, resp); body["authenticated"] != true {
		t.Fatalf("expected authenticated after recovery, got %v", body)
	}
}

func TestLoginOversizedBody(t *testing.T) {
	env := newTestServer(t)

	payload, _ := json.Marshal(map[string]string{
		"email":    strings.Repeat("a", 64<<10) + "@example.com",
		"password": authorPassword,
	})
	resp := env.do(t, request{
		method:      http.MethodPost,
		path:        "/api/auth/login",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		ip:          "203.0.113.7",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("expected the attempt to count against quota, remaining = %q", got)
	}
	if findCookie(resp, "session") != nil {
		t.Error("oversized login must not set a session cookie")
	}
}
