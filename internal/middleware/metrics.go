package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"tmdb-proxy-go/internal/metrics"
)

// MetricsMiddleware records inbound request metrics labelled by route family
// (/api, /catalog, ...) and by the matched route template, so /catalog/tv/:id
// is one series however many shows are requested. Router errors, rate-limit
// rejections and envelopes written by handlers all count with the status the
// client receives.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()
			start := time.Now()

			err := next(c)

			family, route := metrics.RouteLabels(c.Path())
			labels := []string{
				metrics.NormalizeMethod(c.Request().Method),
				strconv.Itoa(responseStatus(c, err)),
				family,
				route,
			}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
