package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"heliogate/internal/config"
)

type mockMetricsCollector struct {
	mu    sync.Mutex
	calls []metricsCall
}

type metricsCall struct {
	method, endpoint, status string
	duration                 time.Duration
}

func (m *mockMetricsCollector) RecordRequest(_ context.Context, method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, metricsCall{method, endpoint, status, duration})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Server:      config.ServerConfig{RequestTimeout: time.Second, MaxBodyBytes: 1024},
		Gateway:     config.GatewayConfig{Name: "helio", SignatureHeader: "X-Helio-Signature"},
		Build:       config.BuildInfo{Version: "test"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(testConfig(), discardLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	if _, err := NewServer(nil, discardLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(testConfig(), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestMountRoutes_RegistrarsAndFallbacks(t *testing.T) {
	srv := newTestServer(t)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		r.Post("/webhooks/test", func(w http.ResponseWriter, r *http.Request) {
			Text(w, http.StatusOK, "ok")
		})
	})
	srv.MountRoutes()

	tests := []struct {
		method, path string
		wantStatus   int
		wantBody     string
	}{
		{http.MethodPost, "/webhooks/test", http.StatusOK, "ok"},
		{http.MethodGet, "/webhooks/test", http.StatusMethodNotAllowed, "Method not allowed"},
		{http.MethodPost, "/nope", http.StatusNotFound, "Not found"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
		}
		if rec.Body.String() != tt.wantBody {
			t.Errorf("%s %s: body = %q, want %q", tt.method, tt.path, rec.Body.String(), tt.wantBody)
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Errorf("%s %s: missing X-Request-Id", tt.method, tt.path)
		}
	}
}

func TestRedactedHeadersIncludeSignatureHeader(t *testing.T) {
	srv := newTestServer(t)
	found := false
	for _, h := range srv.redactedHeaders() {
		if h == "X-Helio-Signature" {
			found = true
		}
	}
	if !found {
		t.Errorf("signature header not redacted: %v", srv.redactedHeaders())
	}
}

func TestRequestTimeoutFromConfig(t *testing.T) {
	srv := newTestServer(t)
	if srv.requestTimeout() != time.Second {
		t.Errorf("requestTimeout = %v, want 1s", srv.requestTimeout())
	}
	srv.Config.Server.RequestTimeout = 0
	if srv.requestTimeout() != defaultRequestTimeout {
		t.Errorf("requestTimeout = %v, want default", srv.requestTimeout())
	}
}

func TestShutdown_RunsClosers(t *testing.T) {
	srv := newTestServer(t)
	var order []string
	srv.Closers = []func() error{
		func() error { order = append(order, "a"); return nil },
		func() error { order = append(order, "b"); return errors.New("boom") },
		func() error { order = append(order, "c"); return nil },
	}

	err := srv.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined closer error, got %v", err)
	}
	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("closers ran as %v", order)
	}
}
