// Package client provides the upstream HTTP client for the TMDB API.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"tmdb-proxy-go/internal/config"
	"tmdb-proxy-go/internal/metrics"
	"tmdb-proxy-go/internal/model"
)

// ErrBodyTooLarge is returned when the upstream body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("upstream response body too large")

// TMDBClient sends requests to the upstream TMDB API.
type TMDBClient struct {
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxBodyBytes int64
}

// NewTMDBClient creates a TMDBClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewTMDBClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *TMDBClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &TMDBClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:       logger.With("component", "tmdb_client"),
		metrics:      m,
		maxBodyBytes: cfg.Upstream.MaxBodyBytes,
	}
}

// Get issues a GET for the descriptor and reads the whole body. The context
// bounds the upstream call: when the inbound client goes away the call is
// abandoned.
func (c *TMDBClient) Get(ctx context.Context, ur *model.UpstreamRequest) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ur.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = ur.Header.Clone()

	c.logger.Debug("upstream request", "path", req.URL.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(start, "error")
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := c.readBody(resp.Body)
	c.observe(start, strconv.Itoa(resp.StatusCode))
	if err != nil {
		return nil, err
	}

	return &model.UpstreamResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *TMDBClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxBodyBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upstream body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("%w (limit %d bytes)", ErrBodyTooLarge, c.maxBodyBytes)
	}
	return body, nil
}

func (c *TMDBClient) observe(start time.Time, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(http.MethodGet).Observe(time.Since(start).Seconds())
	c.metrics.UpstreamResponses.WithLabelValues(http.MethodGet, status).Inc()
}
