package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tmdb-proxy-go/internal/catalog"
	"tmdb-proxy-go/internal/config"
	"tmdb-proxy-go/internal/upstream"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	adapter *upstream.Adapter
	catalog *catalog.Service
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, a *upstream.Adapter, cat *catalog.Service) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, adapter: a, catalog: cat}
}

// Healthz returns a simple OK response for liveness probes. It never calls TMDB.
func (h *HealthHandler) Healthz(c echo.Context) error {
	setCORSHeaders(c.Response().Header())
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the proxy version, upstream and credential mode, and probes
// TMDB to report whether the configured credential works.
func (h *HealthHandler) Status(c echo.Context) error {
	setCORSHeaders(c.Response().Header())
	return c.JSON(http.StatusOK, map[string]string{
		"status":          "ok",
		"version":         string(h.version),
		"upstream_url":    h.cfg.Upstream.BaseURL,
		"credential_mode": h.adapter.Mode().String(),
		"api_status":      h.catalog.CheckStatus(c.Request().Context()),
	})
}
