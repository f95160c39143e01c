// Package service implements the core proxy forwarding logic.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"tmdb-proxy-go/internal/metrics"
	"tmdb-proxy-go/internal/model"
	"tmdb-proxy-go/internal/upstream"
)

// ErrMalformedUpstream is returned when TMDB answers 2xx with a body that is not JSON.
var ErrMalformedUpstream = errors.New("upstream returned malformed JSON")

// routePrefix is stripped once from inbound paths to obtain the TMDB endpoint.
const routePrefix = "api/"

// SuccessCacheControl is attached to every successful proxy response.
const SuccessCacheControl = "public, max-age=3600"

// allowedUpstreamHosts restricts which hosts the proxy will forward to.
var allowedUpstreamHosts = map[string]bool{
	"api.themoviedb.org": true,
}

// Getter performs one upstream GET. *client.TMDBClient satisfies it.
type Getter interface {
	Get(ctx context.Context, req *model.UpstreamRequest) (*model.UpstreamResponse, error)
}

// ProxyService relays logical TMDB endpoints upstream and classifies the answer.
type ProxyService struct {
	client  Getter
	adapter *upstream.Adapter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(c Getter, a *upstream.Adapter, m *metrics.Metrics, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(a.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if !allowedUpstreamHosts[u.Hostname()] {
		return nil, fmt.Errorf("upstream host %q is not in the allowlist", u.Hostname())
	}
	return NewProxyServiceForTest(c, a, m, logger), nil
}

// NewProxyServiceForTest creates a ProxyService without host allowlist validation.
// This is intended only for tests that use httptest servers on localhost.
func NewProxyServiceForTest(c Getter, a *upstream.Adapter, m *metrics.Metrics, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client:  c,
		adapter: a,
		metrics: m,
		logger:  logger.With("component", "proxy_service"),
	}
}

// Adapter returns the adapter used to build upstream requests.
func (s *ProxyService) Adapter() *upstream.Adapter {
	return s.adapter
}

// ParseEndpoint strips a single leading slash and then the "api/" routing
// prefix exactly once. A path without the prefix is used whole.
func ParseEndpoint(path string) string {
	p := strings.TrimPrefix(path, "/")
	if rest, ok := strings.CutPrefix(p, routePrefix); ok {
		return rest
	}
	if p == strings.TrimSuffix(routePrefix, "/") {
		return ""
	}
	return p
}

// Forward relays an inbound /api request to TMDB.
//
// A missing credential yields an error matching upstream.ErrNotConfigured and
// an endpoint with dot segments one matching upstream.ErrInvalidEndpoint. In
// both cases no network call is made. Transport failures and malformed 2xx
// bodies are returned as errors; every other outcome, including upstream
// errors, is a ProxyResponse.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	return s.Fetch(pr.Ctx, ParseEndpoint(pr.Path), pr.Query, nil)
}

// Fetch runs the build, dispatch and classify steps for a logical endpoint.
func (s *ProxyService) Fetch(ctx context.Context, endpoint string, base url.Values, params upstream.Params) (*model.ProxyResponse, error) {
	ur, err := s.adapter.Build(endpoint, base, params)
	if err != nil {
		if errors.Is(err, upstream.ErrNotConfigured) {
			s.metrics.RecordOutcome(metrics.OutcomeNotConfigured)
		} else {
			s.metrics.RecordOutcome(metrics.OutcomeRejected)
		}
		return nil, err
	}

	s.logger.Debug("forwarding request", "endpoint", endpoint)

	resp, err := s.client.Get(ctx, ur)
	if err != nil {
		s.metrics.RecordOutcome(metrics.OutcomeInternalError)
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	return s.classify(endpoint, resp)
}

func (s *ProxyService) classify(endpoint string, resp *model.UpstreamResponse) (*model.ProxyResponse, error) {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if !gjson.ValidBytes(resp.Body) {
			s.metrics.RecordOutcome(metrics.OutcomeInternalError)
			return nil, fmt.Errorf("%s: %w", endpoint, ErrMalformedUpstream)
		}
		s.metrics.RecordOutcome(metrics.OutcomeSuccess)
		header.Set("Cache-Control", SuccessCacheControl)
		return &model.ProxyResponse{StatusCode: http.StatusOK, Header: header, Body: resp.Body}, nil
	}

	s.metrics.RecordOutcome(metrics.OutcomeUpstreamError)
	s.logger.Warn("upstream error", "endpoint", endpoint, "status", resp.StatusCode)

	if gjson.ValidBytes(resp.Body) {
		return &model.ProxyResponse{StatusCode: resp.StatusCode, Header: header, Body: resp.Body}, nil
	}

	body, err := json.Marshal(model.NewErrorEnvelope(resp.StatusCode, upstreamErrorMessage(resp.StatusCode)))
	if err != nil {
		return nil, fmt.Errorf("encode error envelope: %w", err)
	}
	return &model.ProxyResponse{StatusCode: resp.StatusCode, Header: header, Body: body}, nil
}

func upstreamErrorMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return "Upstream error: " + text
	}
	return fmt.Sprintf("Upstream error: status %d", status)
}
