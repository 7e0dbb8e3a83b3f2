package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"warden/cmd/internal/auth/audit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setTestEnv configures an in-memory runtime with cheap password hashing.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WARDEN_ACCESS_CODEC", "jwt")
	t.Setenv("WARDEN_JWT_SIGNING_KEY", strings.Repeat("s", 32))
	t.Setenv("WARDEN_TOKEN_HMAC_KEY", strings.Repeat("h", 32))
	t.Setenv("WARDEN_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("WARDEN_ARGON2_ITERATIONS", "1")
	t.Setenv("WARDEN_ARGON2_PARALLELISM", "1")
	t.Setenv("WARDEN_BLACKLIST_BACKEND", "memory")
	t.Setenv("WARDEN_AUDIT_KAFKA_BROKERS", "")
}

func testConfig() Config {
	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.RequireTokenHMAC = true
	cfg.MetricsEnabled = true
	cfg.BootstrapPrincipals = "alice:wonderland-42:USER|ADMIN"
	return cfg
}

func TestNew_InMemoryEndToEnd(t *testing.T) {
	setTestEnv(t)

	a, err := New(testConfig(), discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.recorder.Close(context.Background()) })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", res.StatusCode)
	}
	if res.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected a correlation id on every response")
	}
	if res.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wonderland-42"})
	res, err = http.Post(srv.URL+"/tokens", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	err = json.NewDecoder(res.Body).Decode(&tokens)
	_ = res.Body.Close()
	if err != nil || res.StatusCode != http.StatusOK || tokens.AccessToken == "" {
		t.Fatalf("login: status=%d err=%v", res.StatusCode, err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/sessions/count", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sessions/count: %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sessions/count: expected 200, got %d", res.StatusCode)
	}

	res, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	for _, want := range []string{"warden_active_sessions 1", `warden_auth_flows_total{flow="login",result="success"} 1`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNew_RejectsMissingHMACKeyUnderPolicy(t *testing.T) {
	setTestEnv(t)
	t.Setenv("WARDEN_TOKEN_HMAC_KEY", "")

	if _, err := New(testConfig(), discardLogger()); err == nil {
		t.Fatalf("expected startup failure without HMAC key")
	}
}

func TestNew_PostgresBlacklistNeedsDatabase(t *testing.T) {
	setTestEnv(t)
	t.Setenv("WARDEN_BLACKLIST_BACKEND", "postgres")

	if _, err := New(testConfig(), discardLogger()); err == nil {
		t.Fatalf("expected config error for postgres blacklist without a database")
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	setTestEnv(t)
	cfg := testConfig()
	cfg.HTTPAddr = "127.0.0.1:0"

	a, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if a.recorder.Record(audit.Event{Outcome: audit.OutcomeLoginSuccess}) {
		t.Fatalf("recorder should be closed after Run")
	}
}
