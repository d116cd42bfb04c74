package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/config"
	"github.com/router-for-me/ModelGovernor/internal/governor"
	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/router-for-me/ModelGovernor/internal/scheduler"
	"github.com/router-for-me/ModelGovernor/internal/security"
	"github.com/tidwall/gjson"
)

type fakeProvider struct {
	err error
}

func (f *fakeProvider) Invoke(ctx context.Context, scope models.Scope, content string, options models.Options) (*models.ProviderResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ProviderResult{Output: "completion", InputTokens: 1000, OutputTokens: 1000, LatencyMs: 42}, nil
}

func newTestServer(t *testing.T, cfg *config.Config, p governor.Provider) (*Server, *governor.Governor) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = "test-secret"
	}
	clock := scheduler.NewManual(time.Date(2026, 8, 5, 10, 0, 0, 0, time.UTC))
	g := governor.New(cfg, p, nil, nil, nil, clock)
	return NewServer(cfg, g, nil), g
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, errGen := security.GenerateToken("test-secret", "ops", time.Hour)
	if errGen != nil {
		t.Fatalf("generate token: %v", errGen)
	}
	return token
}

func doRequest(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

const executeBody = `{"scope":{"caller_id":"svc","provider":"openai","model":"gpt-4o"},"content":"hello"}`

func TestExecuteReturnsProviderResult(t *testing.T) {
	s, _ := newTestServer(t, nil, &fakeProvider{})

	w := doRequest(s, http.MethodPost, "/v1/execute", executeBody, "")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}
	body := gjson.Parse(w.Body.String())
	if body.Get("output").String() != "completion" {
		t.Fatalf("unexpected output: %s", w.Body.String())
	}
	if body.Get("cost_micros").Int() != 12_500 {
		t.Fatalf("unexpected cost: %s", w.Body.String())
	}
	if body.Get("cached").Bool() {
		t.Fatalf("first call must not be cached")
	}
}

func TestExecuteSecondCallIsCached(t *testing.T) {
	s, _ := newTestServer(t, nil, &fakeProvider{})

	doRequest(s, http.MethodPost, "/v1/execute", executeBody, "")
	w := doRequest(s, http.MethodPost, "/v1/execute", executeBody, "")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}
	if !gjson.Get(w.Body.String(), "cached").Bool() {
		t.Fatalf("expected cached result: %s", w.Body.String())
	}
}

func TestExecuteRejectsEmptyContent(t *testing.T) {
	s, _ := newTestServer(t, nil, &fakeProvider{})
	w := doRequest(s, http.MethodPost, "/v1/execute", `{"scope":{},"content":"  "}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestExecuteMapsRateRejectionTo429(t *testing.T) {
	cfg := config.Default()
	cfg.Governance.Limits.MaxRequestsPerMinute = 1
	s, _ := newTestServer(t, cfg, &fakeProvider{})

	doRequest(s, http.MethodPost, "/v1/execute", executeBody, "")
	other := `{"scope":{"caller_id":"svc","provider":"openai","model":"gpt-4o"},"content":"different"}`
	w := doRequest(s, http.MethodPost, "/v1/execute", other, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
	if gjson.Get(w.Body.String(), "reason").String() != "rate" {
		t.Fatalf("expected rate reason: %s", w.Body.String())
	}
}

func TestExecuteMapsBudgetRejectionTo429(t *testing.T) {
	cfg := config.Default()
	cfg.Governance.Limits.PerRequestMicros = 0
	cfg.Governance.Limits.DailyMicros = 1
	s, _ := newTestServer(t, cfg, &fakeProvider{})

	w := doRequest(s, http.MethodPost, "/v1/execute", executeBody, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
	if gjson.Get(w.Body.String(), "reason").String() != "budget" {
		t.Fatalf("expected budget reason: %s", w.Body.String())
	}
}

func TestExecuteMapsProviderFailureTo502(t *testing.T) {
	s, _ := newTestServer(t, nil, &fakeProvider{err: context.DeadlineExceeded})
	w := doRequest(s, http.MethodPost, "/v1/execute", executeBody, "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	if gjson.Get(w.Body.String(), "cause").String() != "timeout" {
		t.Fatalf("expected timeout cause: %s", w.Body.String())
	}
}

func TestAuthorizeReportsWithoutConsuming(t *testing.T) {
	s, g := newTestServer(t, nil, &fakeProvider{})

	w := doRequest(s, http.MethodPost, "/v1/authorize", executeBody, "")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}
	body := gjson.Parse(w.Body.String())
	if !body.Get("allowed").Bool() {
		t.Fatalf("expected allowed: %s", w.Body.String())
	}
	if body.Get("estimated_cost_micros").Int() <= 0 {
		t.Fatalf("expected positive estimate: %s", w.Body.String())
	}
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}
	if usage := g.Usage(scope); usage.DailyMicros != 0 {
		t.Fatalf("authorize must not charge: %d", usage.DailyMicros)
	}
}

func TestManagementRoutesRequireAuth(t *testing.T) {
	s, _ := newTestServer(t, nil, &fakeProvider{})

	if w := doRequest(s, http.MethodGet, "/v0/health", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/v0/health", "", "garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/v0/health", "", operatorToken(t)); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with operator token, got %d", w.Code)
	}
}

func TestManagementKeyAuthenticates(t *testing.T) {
	key, errGen := security.GenerateManagementKey()
	if errGen != nil {
		t.Fatalf("generate key: %v", errGen)
	}
	hash, errHash := security.HashManagementKey(key)
	if errHash != nil {
		t.Fatalf("hash key: %v", errHash)
	}
	cfg := config.Default()
	cfg.Security.ManagementKeys = []string{hash}
	s, _ := newTestServer(t, cfg, &fakeProvider{})

	if w := doRequest(s, http.MethodGet, "/v0/health", "", key); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with management key, got %d", w.Code)
	}
}

func TestHealthEndpointReflectsTraffic(t *testing.T) {
	s, _ := newTestServer(t, nil, &fakeProvider{})
	doRequest(s, http.MethodPost, "/v1/execute", executeBody, "")

	w := doRequest(s, http.MethodGet, "/v0/health", "", operatorToken(t))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	body := gjson.Parse(w.Body.String())
	if body.Get("total_requests").Int() != 1 {
		t.Fatalf("expected 1 request: %s", w.Body.String())
	}
	if body.Get("tier").String() != "healthy" {
		t.Fatalf("expected healthy tier: %s", w.Body.String())
	}
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	cfg := config.Default()
	// A small daily budget the recorded cost will cross: the estimate fits
	// under the limit but the actual 12500µ charge overflows it.
	cfg.Governance.Limits.DailyMicros = 20_000
	cfg.Governance.Limits.PerRequestMicros = 0
	cfg.Governance.Limits.WarningThreshold = 0
	s, g := newTestServer(t, cfg, &fakeProvider{})
	token := operatorToken(t)

	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}
	g.SeedDaily(scope.Key(), 10_000)
	doRequest(s, http.MethodPost, "/v1/execute", executeBody, "")

	w := doRequest(s, http.MethodGet, "/v0/alerts", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	alerts := gjson.Get(w.Body.String(), "alerts").Array()
	if len(alerts) == 0 {
		t.Fatalf("expected open alerts: %s", w.Body.String())
	}
	id := alerts[0].Get("id").String()

	if w := doRequest(s, http.MethodPost, "/v0/alerts/"+id+"/resolve", "", token); w.Code != http.StatusOK {
		t.Fatalf("resolve failed: %d", w.Code)
	}
	w = doRequest(s, http.MethodGet, "/v0/alerts?resolved=true", "", token)
	resolved := gjson.Get(w.Body.String(), "alerts").Array()
	found := false
	for _, alert := range resolved {
		if alert.Get("id").String() == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alert %s resolved: %s", id, w.Body.String())
	}
}

func TestSetLimitsEndpoint(t *testing.T) {
	s, g := newTestServer(t, nil, &fakeProvider{})
	token := operatorToken(t)

	w := doRequest(s, http.MethodPut, "/v0/limits/svc|openai|gpt-4o", `{"per_request_micros":1}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", w.Code, w.Body.String())
	}
	scope := models.Scope{CallerID: "svc", Provider: "openai", Model: "gpt-4o"}
	auth := g.Authorize(scope, "hello", models.Options{})
	if auth.Allowed {
		t.Fatalf("expected tightened limits to reject")
	}
}

func TestSetLimitsRejectsInvalidBody(t *testing.T) {
	s, _ := newTestServer(t, nil, &fakeProvider{})
	token := operatorToken(t)

	if w := doRequest(s, http.MethodPut, "/v0/limits/scope", `{"daily_micros":-5}`, token); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limits, got %d", w.Code)
	}
	if w := doRequest(s, http.MethodPut, "/v0/limits/scope", `{"warning_threshold":2}`, token); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for threshold out of range, got %d", w.Code)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	s, _ := newTestServer(t, nil, &fakeProvider{})
	if w := doRequest(s, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestHealthzChecksDatabaseWhenConfigured(t *testing.T) {
	cfg := config.Default()
	clock := scheduler.NewManual(time.Date(2026, 8, 5, 10, 0, 0, 0, time.UTC))
	g := governor.New(cfg, &fakeProvider{}, nil, nil, nil, clock)

	up := NewServer(cfg, g, &fakePinger{})
	if w := doRequest(up, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with reachable database, got %d", w.Code)
	}

	down := NewServer(cfg, g, &fakePinger{err: errors.New("connection refused")})
	w := doRequest(down, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with unreachable database, got %d", w.Code)
	}
	if gjson.Get(w.Body.String(), "status").String() != "degraded" {
		t.Fatalf("expected degraded status: %s", w.Body.String())
	}
}
