package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tmdb-proxy-go/internal/config"
	"tmdb-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance and installs
// the proxy's envelope renderer as the central error handler.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, cat *CatalogHandler, health *HealthHandler) {
	e.HTTPErrorHandler = proxy.HandleError

	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.GET("/api/*", proxy.Handle)
	e.OPTIONS("/api/*", proxy.Preflight)

	catalogRoutes := []struct {
		path    string
		handler echo.HandlerFunc
	}{
		{"/trending/:type", cat.Trending},
		{"/now-playing", cat.NowPlaying},
		{"/anime", cat.Anime},
		{"/search", cat.Search},
		{"/genres", cat.Genres},
		{"/discover/:type", cat.Discover},
		{"/credits/:type/:id", cat.Credits},
		{"/recommendations/:type/:id", cat.Recommendations},
		{"/tv/:id", cat.TVDetails},
		{"/tv/:id/season/:season", cat.SeasonEpisodes},
	}
	g := e.Group("/catalog")
	for _, r := range catalogRoutes {
		g.GET(r.path, r.handler)
		g.OPTIONS(r.path, proxy.Preflight)
	}

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
