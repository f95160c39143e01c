package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestProxy_RoundTrip(t *testing.T) {
	var gotPath, gotKey string
	s := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("api_key")
		jsonHandler(http.StatusOK, `{"ok":true}`)(w, r)
	}, "server-key", "")

	rec := s.do(http.MethodGet, "/api/trending/movie/week")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q, want %q", rec.Body.String(), `{"ok":true}`)
	}
	if v := rec.Header().Get("Cache-Control"); v != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q, want %q", v, "public, max-age=3600")
	}
	if v := rec.Header().Get("Content-Type"); !strings.HasPrefix(v, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", v)
	}
	assertCORS(t, rec)

	if gotPath != "/3/trending/movie/week" {
		t.Errorf("upstream path = %q, want %q", gotPath, "/3/trending/movie/week")
	}
	if gotKey != "server-key" {
		t.Errorf("upstream api_key = %q, want %q", gotKey, "server-key")
	}
}

func TestProxy_PrefixStrippedOnce(t *testing.T) {
	var gotPath string
	s := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		jsonHandler(http.StatusOK, `{}`)(w, r)
	}, "k", "")

	rec := s.do(http.MethodGet, "/api/api/genre/tv/list")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotPath != "/3/api/genre/tv/list" {
		t.Errorf("upstream path = %q, want %q", gotPath, "/3/api/genre/tv/list")
	}
}

func TestProxy_CallerCredentialReplaced(t *testing.T) {
	var gotKeys []string
	var gotQuery string
	s := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		gotKeys = r.URL.Query()["api_key"]
		gotQuery = r.URL.Query().Get("query")
		jsonHandler(http.StatusOK, `{"results":[]}`)(w, r)
	}, "server-key", "")

	rec := s.do(http.MethodGet, "/api/search/multi?query=avatar&api_key=caller-key")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(gotKeys) != 1 || gotKeys[0] != "server-key" {
		t.Errorf("upstream api_key = %v, want [server-key]", gotKeys)
	}
	if gotQuery != "avatar" {
		t.Errorf("upstream query = %q, want %q", gotQuery, "avatar")
	}
}

func TestProxy_BearerMode(t *testing.T) {
	var gotAuth string
	var gotKeys []string
	s := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKeys = r.URL.Query()["api_key"]
		jsonHandler(http.StatusOK, `{"genres":[]}`)(w, r)
	}, "", "read-token")

	rec := s.do(http.MethodGet, "/api/genre/movie/list?api_key=caller-key")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotAuth != "Bearer read-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer read-token")
	}
	if len(gotKeys) != 0 {
		t.Errorf("api_key forwarded in bearer mode: %v", gotKeys)
	}
}

func TestProxy_UpstreamErrorMirrored(t *testing.T) {
	s := newTestStack(t, jsonHandler(http.StatusNotFound, `{"status_message":"not found"}`), "k", "")

	rec := s.do(http.MethodGet, "/api/movie/0")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec.Body.String() != `{"status_message":"not found"}` {
		t.Errorf("body = %q, want upstream body verbatim", rec.Body.String())
	}
	if v := rec.Header().Get("Cache-Control"); v != "" {
		t.Errorf("Cache-Control = %q, want none on errors", v)
	}
	assertCORS(t, rec)
}

func TestProxy_UpstreamErrorNotJSON(t *testing.T) {
	s := newTestStack(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}, "k", "")

	rec := s.do(http.MethodGet, "/api/movie/550")

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	env := decodeEnvelope(t, rec)
	if env.Success || env.StatusCode != http.StatusBadGateway {
		t.Errorf("envelope = %+v", env)
	}
	if env.StatusMessage != "Upstream error: Bad Gateway" {
		t.Errorf("status_message = %q", env.StatusMessage)
	}
}

func TestProxy_NotConfigured(t *testing.T) {
	s := newTestStack(t, jsonHandler(http.StatusOK, `{}`), "", "")

	rec := s.do(http.MethodGet, "/api/trending/movie/week")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	env := decodeEnvelope(t, rec)
	if env.StatusCode != http.StatusUnauthorized || env.Success {
		t.Errorf("envelope = %+v", env)
	}
	if !strings.Contains(env.StatusMessage, "not configured") {
		t.Errorf("status_message = %q, want mention of missing credential", env.StatusMessage)
	}
	if n := s.calls.Load(); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
	assertCORS(t, rec)
}

func TestProxy_DotSegmentsRejected(t *testing.T) {
	s := newTestStack(t, jsonHandler(http.StatusOK, `{}`), "k", "")

	for _, target := range []string{
		"/api/../x",
		"/api/../../x",
		"/api/..%2Fx",
		"/api/..%2F..%2Fx",
		"/api/%2e%2e/x",
		"/api/movie/%2E%2E/%2E%2E/account",
	} {
		t.Run(target, func(t *testing.T) {
			rec := s.do(http.MethodGet, target)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			env := decodeEnvelope(t, rec)
			if env.Success || env.StatusCode != http.StatusBadRequest {
				t.Errorf("envelope = %+v", env)
			}
			assertCORS(t, rec)
		})
	}
	if n := s.calls.Load(); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
}

func TestProxy_TransportError(t *testing.T) {
	s := newTestStack(t, nil, "very-secret-key", "")

	rec := s.do(http.MethodGet, "/api/trending/movie/week")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	env := decodeEnvelope(t, rec)
	if !strings.HasPrefix(env.StatusMessage, "Internal server error:") {
		t.Errorf("status_message = %q, want prefix %q", env.StatusMessage, "Internal server error:")
	}
	if strings.Contains(rec.Body.String(), "very-secret-key") {
		t.Errorf("response leaks the credential: %s", rec.Body.String())
	}
	assertCORS(t, rec)
}

func TestProxy_MalformedSuccess(t *testing.T) {
	s := newTestStack(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}, "k", "")

	rec := s.do(http.MethodGet, "/api/configuration")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if env := decodeEnvelope(t, rec); !strings.HasPrefix(env.StatusMessage, "Internal server error:") {
		t.Errorf("status_message = %q", env.StatusMessage)
	}
}

func TestProxy_Idempotent(t *testing.T) {
	s := newTestStack(t, jsonHandler(http.StatusOK, `{"page":1,"results":[{"id":550}]}`), "k", "")

	first := s.do(http.MethodGet, "/api/movie/popular?page=1")
	second := s.do(http.MethodGet, "/api/movie/popular?page=1")

	if first.Body.String() != second.Body.String() {
		t.Errorf("bodies differ: %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestProxy_Preflight(t *testing.T) {
	s := newTestStack(t, jsonHandler(http.StatusOK, `{}`), "k", "")

	for _, path := range []string{"/api/trending/movie/week", "/catalog/genres"} {
		t.Run(path, func(t *testing.T) {
			rec := s.do(http.MethodOptions, path)
			if rec.Code != http.StatusNoContent {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
			}
			assertCORS(t, rec)
		})
	}
	if n := s.calls.Load(); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
}

func TestHandleError_RouterErrors(t *testing.T) {
	s := newTestStack(t, jsonHandler(http.StatusOK, `{}`), "k", "")

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"unknown route", http.MethodGet, "/unknown", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/movie/550", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			env := decodeEnvelope(t, rec)
			if env.StatusCode != tt.wantStatus || env.Success {
				t.Errorf("envelope = %+v", env)
			}
			assertCORS(t, rec)
		})
	}
}

func TestHandleError_PlainError(t *testing.T) {
	s := newTestStack(t, jsonHandler(http.StatusOK, `{}`), "k", "")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/boom", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	s.proxy.HandleError(errors.New("dial tcp: lookup https://api.themoviedb.org/3/x?api_key=k"), c)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	env := decodeEnvelope(t, rec)
	if strings.Contains(env.StatusMessage, "api_key=k") {
		t.Errorf("status_message not redacted: %q", env.StatusMessage)
	}
}
