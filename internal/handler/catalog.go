package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/sjson"

	"tmdb-proxy-go/internal/catalog"
	"tmdb-proxy-go/internal/service"
	"tmdb-proxy-go/internal/upstream"
)

// CatalogHandler serves the typed /catalog routes.
type CatalogHandler struct {
	catalog *catalog.Service
	errs    errorWriter
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(svc *catalog.Service, a *upstream.Adapter, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: svc,
		errs:    errorWriter{redact: a.Redact, logger: logger.With("component", "catalog_handler")},
	}
}

// Trending serves /catalog/trending/:type?window=day|week.
func (h *CatalogHandler) Trending(c echo.Context) error {
	raw, err := h.catalog.Trending(c.Request().Context(), c.Param("type"), c.QueryParam("window"))
	return h.list(c, "results", raw, err)
}

// NowPlaying serves /catalog/now-playing.
func (h *CatalogHandler) NowPlaying(c echo.Context) error {
	raw, err := h.catalog.NowPlaying(c.Request().Context())
	return h.list(c, "results", raw, err)
}

// Anime serves /catalog/anime.
func (h *CatalogHandler) Anime(c echo.Context) error {
	raw, err := h.catalog.Anime(c.Request().Context())
	return h.list(c, "results", raw, err)
}

// Search serves /catalog/search?query=.
func (h *CatalogHandler) Search(c echo.Context) error {
	raw, err := h.catalog.Search(c.Request().Context(), c.QueryParam("query"))
	return h.list(c, "results", raw, err)
}

// Discover serves /catalog/discover/:type. Query parameters override the defaults.
func (h *CatalogHandler) Discover(c echo.Context) error {
	overrides := make(upstream.Params)
	for k, vals := range c.QueryParams() {
		if len(vals) > 0 {
			overrides[k] = vals[0]
		}
	}
	raw, err := h.catalog.Discover(c.Request().Context(), c.Param("type"), overrides)
	return h.list(c, "results", raw, err)
}

// Recommendations serves /catalog/recommendations/:type/:id.
func (h *CatalogHandler) Recommendations(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return h.errs.write(c, err)
	}
	raw, err := h.catalog.Recommendations(c.Request().Context(), c.Param("type"), id)
	return h.list(c, "results", raw, err)
}

// Credits serves /catalog/credits/:type/:id.
func (h *CatalogHandler) Credits(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return h.errs.write(c, err)
	}
	names, err := h.catalog.Credits(c.Request().Context(), c.Param("type"), id)
	if err != nil {
		return h.errs.write(c, err)
	}
	setCORSHeaders(c.Response().Header())
	return c.JSON(http.StatusOK, map[string][]string{"cast": names})
}

// TVDetails serves /catalog/tv/:id.
func (h *CatalogHandler) TVDetails(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return h.errs.write(c, err)
	}
	raw, err := h.catalog.TVDetails(c.Request().Context(), id)
	if err != nil {
		return h.errs.write(c, err)
	}
	return writeJSONBlob(c, http.StatusOK, raw)
}

// SeasonEpisodes serves /catalog/tv/:id/season/:season.
func (h *CatalogHandler) SeasonEpisodes(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return h.errs.write(c, err)
	}
	season, err := intParam(c, "season")
	if err != nil {
		return h.errs.write(c, err)
	}
	raw, err := h.catalog.SeasonEpisodes(c.Request().Context(), id, season)
	return h.list(c, "episodes", raw, err)
}

// Genres serves /catalog/genres.
func (h *CatalogHandler) Genres(c echo.Context) error {
	g, err := h.catalog.Genres(c.Request().Context())
	if err != nil {
		return h.errs.write(c, err)
	}
	setCORSHeaders(c.Response().Header())
	c.Response().Header().Set(echo.HeaderCacheControl, service.SuccessCacheControl)
	return c.JSON(http.StatusOK, g)
}

// list wraps a JSON array under key, or writes the error.
func (h *CatalogHandler) list(c echo.Context, key string, raw []byte, err error) error {
	if err != nil {
		return h.errs.write(c, err)
	}
	body, err := sjson.SetRawBytes([]byte(`{}`), key, raw)
	if err != nil {
		return h.errs.write(c, fmt.Errorf("encode %s: %w", key, err))
	}
	return writeJSONBlob(c, http.StatusOK, body)
}

func intParam(c echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", catalog.ErrInvalidID, name, c.Param(name))
	}
	return v, nil
}
