package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"tmdb-proxy-go/internal/model"
	"tmdb-proxy-go/internal/service"
)

// ProxyHandler relays /api requests to TMDB.
type ProxyHandler struct {
	service *service.ProxyService
	errs    errorWriter
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	logger = logger.With("component", "proxy_handler")
	return &ProxyHandler{
		service: svc,
		errs:    errorWriter{redact: svc.Adapter().Redact, logger: logger},
		logger:  logger,
	}
}

// Handle forwards the request to TMDB and writes exactly one JSON response.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	resp, err := h.service.Forward(&model.ProxyRequest{
		Ctx:   req.Context(),
		Path:  req.URL.Path,
		Query: req.URL.Query(),
	})
	if err != nil {
		return h.errs.write(c, err)
	}

	out := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			out.Add(key, v)
		}
	}
	setCORSHeaders(out)
	return c.JSONBlob(resp.StatusCode, resp.Body)
}

// Preflight answers CORS preflight requests.
func (h *ProxyHandler) Preflight(c echo.Context) error {
	setCORSHeaders(c.Response().Header())
	return c.NoContent(http.StatusNoContent)
}

// HandleError is the central Echo error handler. Router errors (unknown
// route, wrong method, rate limit) and recovered panics are rendered as the
// same envelope the proxy uses.
func (h *ProxyHandler) HandleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != http.StatusInternalServerError {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		err = writeEnvelope(c, he.Code, msg)
	} else {
		err = h.errs.write(c, err)
	}
	if err != nil {
		h.logger.Error("writing error response", "err", err)
	}
}
