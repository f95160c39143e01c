package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"

	"tmdb-proxy-go/internal/catalog"
	"tmdb-proxy-go/internal/client"
	"tmdb-proxy-go/internal/config"
	"tmdb-proxy-go/internal/metrics"
	"tmdb-proxy-go/internal/model"
	"tmdb-proxy-go/internal/service"
	"tmdb-proxy-go/internal/upstream"
)

// testStack is a fully wired router in front of a stub TMDB.
type testStack struct {
	e       *echo.Echo
	metrics *metrics.Metrics
	proxy   *ProxyHandler
	calls   *atomic.Int32
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL, apiKey, token string) *config.Config {
	return &config.Config{
		TMDB: config.TMDBConfig{
			APIKey:       apiKey,
			AccessToken:  token,
			ImageBaseURL: "https://image.tmdb.org/t/p",
		},
		Upstream: config.UpstreamConfig{
			BaseURL:         baseURL,
			TimeoutSeconds:  5,
			IdleConnections: 10,
			MaxBodyBytes:    1 << 20,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// newTestStack starts a stub upstream serving h and wires the whole handler
// stack against it. A nil h means the stack points at a closed server.
func newTestStack(t *testing.T, h http.HandlerFunc, apiKey, token string) *testStack {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	if h == nil {
		srv.Close()
	} else {
		t.Cleanup(srv.Close)
	}

	cfg := testConfig(srv.URL+"/3", apiKey, token)
	logger := testLogger()
	m := metrics.New()

	a, err := upstream.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	svc := service.NewProxyServiceForTest(client.NewTMDBClient(cfg, logger, m), a, m, logger)
	cat := catalog.NewService(svc, cfg, logger)

	proxy := NewProxyHandler(svc, logger)
	e := echo.New()
	RegisterRoutes(e, cfg, m, proxy, NewCatalogHandler(cat, a, logger), NewHealthHandler(cfg, "test", a, cat))

	return &testStack{e: e, metrics: m, proxy: proxy, calls: &calls}
}

func (s *testStack) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorEnvelope {
	t.Helper()
	var env model.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal envelope %q: %v", rec.Body.String(), err)
	}
	return env
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	want := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
