package middleware

import (
	"github.com/labstack/echo/v4"
)

// securityHeaders are attached to every response, including errors rendered
// by the central error handler.
var securityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "no-referrer",
}

// SecurityHeaders returns an Echo middleware that adds security headers to
// responses. Headers are set before the handler runs so they survive a
// handler that commits the response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range securityHeaders {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}
