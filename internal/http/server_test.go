package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fintrack/internal/attachments"
	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger/memory"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

const testSecret = "test-secret"

type fakeRunner struct {
	calls int
}

func (f *fakeRunner) RunPass(_ context.Context, now time.Time) (services.Report, error) {
	f.calls++
	return services.Report{Date: core.DateOf(now), Checked: 2, Due: 1, Created: 1}, nil
}

type fixture struct {
	srv     *Server
	store   *memory.Store
	uploads string
	runner  *fakeRunner
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store := memory.New()
	dash := services.NewDashboardService(store, cache.NewLRUCache[[]core.Transaction](16, time.Minute))
	uploads := t.TempDir()
	files, err := attachments.NewLocalStore(uploads, 1<<20)
	if err != nil {
		t.Fatalf("attachments: %v", err)
	}
	runner := &fakeRunner{}

	srv := NewServer(":0", Deps{
		Transactions: services.NewTransactionService(store, services.WithInvalidator(dash)),
		Auth:         services.NewAuthService(store, auth.NewTokenIssuer(testSecret, time.Hour)),
		Dashboard:    dash,
		Attachments:  files,
		Store:        store,
		Recurrence:   runner,
		Logger:       applog.New(applog.Config{Output: io.Discard, Component: applog.ComponentHTTP}),
	}, opts)
	t.Cleanup(func() { srv.limiter.Stop() })
	return &fixture{srv: srv, store: store, uploads: uploads, runner: runner}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, token string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func formRequest(method, target, token string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func multipartRequest(t *testing.T, method, target, token string, fields map[string]string, fileName, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type sessionBody struct {
	User struct {
		ID        string  `json:"id"`
		Email     string  `json:"email"`
		CreatedAt *string `json:"createdAt"`
	} `json:"user"`
	Token     string `json:"token"`
	ExpiresIn string `json:"expiresIn"`
}

type txBody struct {
	ID             string  `json:"id"`
	Description    string  `json:"description"`
	Amount         float64 `json:"amount"`
	Type           string  `json:"type"`
	Date           string  `json:"date"`
	Category       string  `json:"category"`
	IsRecurring    bool    `json:"isRecurring"`
	RepeatInterval string  `json:"repeatInterval"`
	Attachment     string  `json:"attachment"`
	AttachmentURL  string  `json:"attachmentUrl"`
}

type messageBody struct {
	Message       string          `json:"message"`
	MissingFields map[string]bool `json:"missingFields"`
}

func (f *fixture) register(t *testing.T, name, email string) sessionBody {
	t.Helper()
	rec := f.do(t, jsonRequest(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "s3cret-pass",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body)
	}
	return decode[sessionBody](t, rec)
}

func TestAuthRegisterAndLogin(t *testing.T) {
	f := newFixture(t, Options{})

	s := f.register(t, "Ada", "Ada@Example.com")
	if s.Token == "" || s.ExpiresIn != "1h" {
		t.Errorf("session = %+v", s)
	}
	if s.User.Email != "ada@example.com" || s.User.CreatedAt == nil {
		t.Errorf("user = %+v", s.User)
	}

	tests := []struct {
		name        string
		path        string
		body        map[string]string
		wantStatus  int
		wantMessage string
	}{
		{"duplicate email", "/api/auth/register", map[string]string{"name": "A", "email": "ada@example.com", "password": "x"}, http.StatusBadRequest, "email already registered"},
		{"register missing fields", "/api/auth/register", map[string]string{"name": "A"}, http.StatusBadRequest, "All fields are required"},
		{"login missing password", "/api/auth/login", map[string]string{"email": "ada@example.com"}, http.StatusBadRequest, "Email and password are required"},
		{"login wrong password", "/api/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"}, http.StatusUnauthorized, "Invalid credentials"},
		{"login unknown email", "/api/auth/login", map[string]string{"email": "who@example.com", "password": "nope"}, http.StatusUnauthorized, "Invalid credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, jsonRequest(http.MethodPost, tt.path, "", tt.body))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if msg := decode[messageBody](t, rec).Message; msg != tt.wantMessage {
				t.Errorf("message = %q, want %q", msg, tt.wantMessage)
			}
		})
	}

	rec := f.do(t, jsonRequest(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": " ADA@example.com", "password": "s3cret-pass",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body)
	}
	if got := decode[sessionBody](t, rec); got.User.ID != s.User.ID || got.Token == "" {
		t.Errorf("login session = %+v", got)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestAuthMissingFieldsDetail(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, jsonRequest(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@b.c"}))
	body := decode[messageBody](t, rec)
	if !body.MissingFields["name"] || !body.MissingFields["password"] || body.MissingFields["email"] {
		t.Errorf("missingFields = %v", body.MissingFields)
	}
}

func TestAuthRefresh(t *testing.T) {
	f := newFixture(t, Options{})
	s := f.register(t, "Ada", "ada@example.com")

	expired, _, err := auth.NewTokenIssuer(testSecret, -time.Minute).Issue(s.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	ghost, _, _ := auth.NewTokenIssuer(testSecret, time.Hour).Issue("ghost")
	forged, _, _ := auth.NewTokenIssuer("other-secret", time.Hour).Issue(s.User.ID)

	tests := []struct {
		name        string
		header      string
		wantStatus  int
		wantMessage string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header missing"},
		{"malformed header", "Token " + s.Token, http.StatusUnauthorized, "Malformed authorization header"},
		{"bearer without token", "Bearer", http.StatusUnauthorized, "Malformed authorization header"},
		{"wrong signature", "Bearer " + forged, http.StatusUnauthorized, "Invalid token"},
		{"user gone", "Bearer " + ghost, http.StatusUnauthorized, "User account not found"},
		{"expired but validly signed", "Bearer " + expired, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := f.do(t, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantMessage != "" {
				if msg := decode[messageBody](t, rec).Message; msg != tt.wantMessage {
					t.Errorf("message = %q, want %q", msg, tt.wantMessage)
				}
				return
			}
			if got := decode[sessionBody](t, rec); got.Token == "" {
				t.Error("expected a fresh token")
			}
		})
	}

	u, err := f.store.GetUserByID(context.Background(), s.User.ID)
	if err != nil || u.LastLogin.IsZero() {
		t.Errorf("refresh did not stamp last login: %+v %v", u, err)
	}
}

func TestTransactionsRequireAuth(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if rec.Code != http.StatusUnauthorized || decode[messageBody](t, rec).Message != "Unauthorized" {
		t.Errorf("no token: %d %s", rec.Code, rec.Body)
	}
	rec = f.do(t, jsonRequest(http.MethodGet, "/api/transactions", "not-a-jwt", nil))
	if rec.Code != http.StatusUnauthorized || decode[messageBody](t, rec).Message != "Invalid token" {
		t.Errorf("bad token: %d %s", rec.Code, rec.Body)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	f := newFixture(t, Options{})
	alice := f.register(t, "Alice", "alice@example.com").Token
	bob := f.register(t, "Bob", "bob@example.com").Token

	rec := f.do(t, formRequest(http.MethodPost, "/api/transactions", alice, url.Values{
		"description": {"Groceries"},
		"amount":      {"25.40"},
		"type":        {"expense"},
		"date":        {"2024-03-10"},
		"category":    {"Food"},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	created := decode[txBody](t, rec)
	if created.ID == "" || created.Amount != -25.40 || created.Type != "expense" || created.Date != "2024-03-10" {
		t.Fatalf("created = %+v", created)
	}

	rec = f.do(t, jsonRequest(http.MethodPost, "/api/transactions", alice, map[string]any{
		"description": "Salary", "amount": 1000, "date": "2024-03-01", "category": "Work",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create json: %d %s", rec.Code, rec.Body)
	}

	list := decode[[]txBody](t, f.do(t, jsonRequest(http.MethodGet, "/api/transactions", alice, nil)))
	if len(list) != 2 || list[0].ID != created.ID {
		t.Fatalf("list not newest first: %+v", list)
	}
	if others := decode[[]txBody](t, f.do(t, jsonRequest(http.MethodGet, "/api/transactions", bob, nil))); len(others) != 0 {
		t.Fatalf("bob sees %d records", len(others))
	}

	target := "/api/transactions/" + created.ID
	rec = f.do(t, jsonRequest(http.MethodPut, target, bob, map[string]any{"description": "Hijacked"}))
	if rec.Code != http.StatusNotFound || decode[messageBody](t, rec).Message != "Not found" {
		t.Fatalf("cross-owner update: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, jsonRequest(http.MethodPut, target, alice, map[string]any{"description": "Weekly shop"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	updated := decode[txBody](t, rec)
	if updated.Description != "Weekly shop" || updated.Amount != -25.40 || updated.Category != "Food" {
		t.Fatalf("partial update lost fields: %+v", updated)
	}

	rec = f.do(t, jsonRequest(http.MethodPut, target, alice, map[string]any{"repeatInterval": "weekly"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("interval without recurrence: %d %s", rec.Code, rec.Body)
	}

	if rec = f.do(t, jsonRequest(http.MethodDelete, target, bob, nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("cross-owner delete: %d", rec.Code)
	}
	rec = f.do(t, jsonRequest(http.MethodDelete, target, alice, nil))
	if rec.Code != http.StatusOK || decode[messageBody](t, rec).Message != "Deleted" {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body)
	}
	if rec = f.do(t, jsonRequest(http.MethodDelete, target, alice, nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.register(t, "Ada", "ada@example.com").Token

	tests := []struct {
		name string
		form url.Values
	}{
		{"missing fields", url.Values{"description": {"x"}}},
		{"zero amount", url.Values{"description": {"x"}, "amount": {"0"}, "date": {"2024-01-01"}, "category": {"c"}}},
		{"recurring without interval", url.Values{"description": {"x"}, "amount": {"1"}, "date": {"2024-01-01"}, "category": {"c"}, "isRecurring": {"true"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, formRequest(http.MethodPost, "/api/transactions", token, tt.form))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d (%s)", rec.Code, rec.Body)
			}
		})
	}
}

func TestTransactionAttachments(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.register(t, "Ada", "ada@example.com").Token

	fields := map[string]string{
		"description": "Dinner", "amount": "-40", "date": "2024-02-02", "category": "Food",
	}
	rec := f.do(t, multipartRequest(t, http.MethodPost, "/api/transactions", token, fields, "dinner receipt.txt", "first"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	created := decode[txBody](t, rec)
	if !strings.HasSuffix(created.Attachment, "_dinner_receipt.txt") {
		t.Fatalf("attachment = %q", created.Attachment)
	}
	if created.AttachmentURL != filesPrefix+created.Attachment {
		t.Fatalf("attachmentUrl = %q", created.AttachmentURL)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, created.AttachmentURL, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "first" {
		t.Fatalf("serve attachment: %d %q", rec.Code, rec.Body)
	}

	rec = f.do(t, multipartRequest(t, http.MethodPut, "/api/transactions/"+created.ID, token, nil, "replacement.txt", "second"))
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}
	updated := decode[txBody](t, rec)
	if updated.Attachment == created.Attachment || updated.Description != "Dinner" {
		t.Fatalf("updated = %+v", updated)
	}
	if _, err := os.Stat(filepath.Join(f.uploads, created.Attachment)); !os.IsNotExist(err) {
		t.Errorf("old attachment still on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.uploads, updated.Attachment)); err != nil {
		t.Errorf("new attachment missing: %v", err)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	token := f.register(t, "Ada", "ada@example.com").Token

	for _, tx := range []map[string]any{
		{"description": "Salary", "amount": 1000, "date": "2024-01-01", "category": "Work"},
		{"description": "Lunch", "amount": -100, "date": "2024-01-02", "category": "Food"},
		{"description": "Dinner", "amount": -150, "date": "2024-01-03", "category": "Food"},
	} {
		if rec := f.do(t, jsonRequest(http.MethodPost, "/api/transactions", token, tx)); rec.Code != http.StatusCreated {
			t.Fatalf("seed: %d %s", rec.Code, rec.Body)
		}
	}

	rec := f.do(t, jsonRequest(http.MethodGet, "/api/dashboard?top=2", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: %d %s", rec.Code, rec.Body)
	}
	var body struct {
		Totals struct {
			Income   float64 `json:"income"`
			Expenses float64 `json:"expenses"`
			Balance  float64 `json:"balance"`
		} `json:"totals"`
		Categories []struct {
			Category string  `json:"category"`
			Total    float64 `json:"total"`
			Count    int     `json:"count"`
		} `json:"categories"`
		Top []txBody `json:"top"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Totals.Income != 1000 || body.Totals.Expenses != -250 || body.Totals.Balance != 750 {
		t.Errorf("totals = %+v", body.Totals)
	}
	if len(body.Categories) != 1 || body.Categories[0].Category != "Food" || body.Categories[0].Count != 2 {
		t.Errorf("categories = %+v", body.Categories)
	}
	if len(body.Top) != 2 || body.Top[0].Description != "Salary" {
		t.Errorf("top = %+v", body.Top)
	}

	// A mutation must be visible on the next read.
	f.do(t, jsonRequest(http.MethodPost, "/api/transactions", token, map[string]any{
		"description": "Bonus", "amount": 500, "date": "2024-01-04", "category": "Work",
	}))
	rec = f.do(t, jsonRequest(http.MethodGet, "/api/dashboard", token, nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Totals.Income != 1500 {
		t.Errorf("stale summary: income = %v", body.Totals.Income)
	}
}

func TestRecurrenceTrigger(t *testing.T) {
	disabled := newFixture(t, Options{})
	if rec := disabled.do(t, httptest.NewRequest(http.MethodPost, "/internal/recurrence/run", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled trigger: %d", rec.Code)
	}

	f := newFixture(t, Options{RecurrenceToken: "cron-secret"})
	req := httptest.NewRequest(http.MethodPost, "/internal/recurrence/run", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := f.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/recurrence/run", nil)
	req.Header.Set("X-Trigger-Token", "cron-secret")
	rec := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger: %d %s", rec.Code, rec.Body)
	}
	report := decode[services.Report](t, rec)
	if report.Created != 1 || f.runner.calls != 1 {
		t.Errorf("report = %+v, calls = %d", report, f.runner.calls)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d %s", rec.Code, rec.Body)
	}
	if status := decode[map[string]any](t, rec)["status"]; status != "ready" {
		t.Errorf("status = %v", status)
	}
}

func TestAuthRateLimit(t *testing.T) {
	f := newFixture(t, Options{RateLimitPerMinute: 2})
	body := map[string]string{"email": "x@example.com", "password": "nope"}

	for i := 0; i < 2; i++ {
		if rec := f.do(t, jsonRequest(http.MethodPost, "/api/auth/login", "", body)); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: %d", i, rec.Code)
		}
	}
	rec := f.do(t, jsonRequest(http.MethodPost, "/api/auth/login", "", body))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestRateLimitKeysOnForwardedClient(t *testing.T) {
	// httptest requests arrive from 192.0.2.1.
	f := newFixture(t, Options{RateLimitPerMinute: 1, TrustedProxies: []string{"192.0.2.0/24", "bogus"}})
	body := map[string]string{"email": "x@example.com", "password": "nope"}
	login := func(client string) int {
		req := jsonRequest(http.MethodPost, "/api/auth/login", "", body)
		req.Header.Set("X-Forwarded-For", client)
		return f.do(t, req).Code
	}

	if code := login("198.51.100.1"); code != http.StatusUnauthorized {
		t.Fatalf("first client: %d", code)
	}
	if code := login("198.51.100.2"); code != http.StatusUnauthorized {
		t.Fatalf("second client shares the proxy's budget: %d", code)
	}
	if code := login("198.51.100.1"); code != http.StatusTooManyRequests {
		t.Fatalf("first client over budget: %d", code)
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound || decode[messageBody](t, rec).Message != "Not found" {
		t.Fatalf("got %d %s", rec.Code, rec.Body)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.srv.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.srv.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}
