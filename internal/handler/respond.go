package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"tmdb-proxy-go/internal/catalog"
	"tmdb-proxy-go/internal/model"
	"tmdb-proxy-go/internal/service"
	"tmdb-proxy-go/internal/upstream"
)

// CORS values attached to every response.
const (
	corsAllowOrigin  = "*"
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type"
)

const notConfiguredMessage = "TMDB API key or access token not configured in environment variables"

func setCORSHeaders(h http.Header) {
	h.Set(echo.HeaderAccessControlAllowOrigin, corsAllowOrigin)
	h.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)
	h.Set(echo.HeaderAccessControlAllowHeaders, corsAllowHeaders)
}

// writeJSONBlob writes a JSON body with CORS headers. Successful catalog and
// proxy answers are marked cacheable.
func writeJSONBlob(c echo.Context, status int, body []byte) error {
	h := c.Response().Header()
	setCORSHeaders(h)
	if status == http.StatusOK {
		h.Set(echo.HeaderCacheControl, service.SuccessCacheControl)
	}
	return c.JSONBlob(status, body)
}

func writeEnvelope(c echo.Context, status int, msg string) error {
	body, err := json.Marshal(model.NewErrorEnvelope(status, msg))
	if err != nil {
		return err
	}
	h := c.Response().Header()
	setCORSHeaders(h)
	h.Del(echo.HeaderCacheControl)
	return c.JSONBlob(status, body)
}

// errorWriter turns errors from the proxy and catalog services into JSON
// envelopes. Messages pass through redact before they are logged or sent.
type errorWriter struct {
	redact func(string) string
	logger *slog.Logger
}

func (w errorWriter) write(c echo.Context, err error) error {
	path := c.Request().URL.Path

	if errors.Is(err, upstream.ErrNotConfigured) {
		w.logger.Warn("credential not configured", "path", path)
		return writeEnvelope(c, http.StatusUnauthorized, notConfiguredMessage)
	}

	if errors.Is(err, upstream.ErrInvalidEndpoint) {
		w.logger.Warn("rejected endpoint", "path", path)
		return writeEnvelope(c, http.StatusBadRequest, err.Error())
	}

	if status := catalog.StatusFor(err); status != 0 {
		return writeEnvelope(c, status, err.Error())
	}

	// Non-2xx bodies were already made JSON by the proxy service.
	var ue *catalog.UpstreamError
	if errors.As(err, &ue) {
		return writeJSONBlob(c, ue.StatusCode, ue.Body)
	}

	msg := w.redact(err.Error())
	w.logger.Error("proxy error", "err", msg, "path", path)
	return writeEnvelope(c, http.StatusInternalServerError, "Internal server error: "+msg)
}
