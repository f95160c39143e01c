package middleware

import (
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// limiterExpiry is how long an idle client's bucket is kept.
const limiterExpiry = 3 * time.Minute

// RateLimiter returns a per-client-IP limiter allowing rps requests per
// second with a burst of ceil(rps). Preflight requests and the liveness probe
// are never limited.
func RateLimiter(rps float64) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     int(math.Ceil(rps)),
		ExpiresIn: limiterExpiry,
	})
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Method == http.MethodOptions || c.Path() == "/healthz"
		},
		Store: store,
	})
}
