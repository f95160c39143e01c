// Package catalog implements typed TMDB lookups on top of the proxy service:
// trending lists, search, credits, seasons, discover, recommendations and
// genres, with the defaults the browser client expects.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"github.com/tidwall/gjson"

	"tmdb-proxy-go/internal/config"
	"tmdb-proxy-go/internal/model"
	"tmdb-proxy-go/internal/upstream"
)

var (
	// ErrInvalidMediaType is returned when an unsupported media type is provided.
	ErrInvalidMediaType = errors.New("invalid media type")
	// ErrInvalidID is returned for non-positive TMDB ids or season numbers.
	ErrInvalidID = errors.New("invalid id")
	// ErrInvalidTimeWindow is returned for trending windows other than day and week.
	ErrInvalidTimeWindow = errors.New("invalid time window")
)

// API status values reported by CheckStatus.
const (
	StatusWorking = "working"
	StatusError   = "error"
)

// creditsLimit is how many cast names Credits returns.
const creditsLimit = 4

// UpstreamError carries a non-2xx TMDB answer so it can be mirrored to the caller.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("tmdb responded with status %d", e.StatusCode)
}

// Fetcher resolves a logical endpoint through the proxy pipeline.
// *service.ProxyService satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, base url.Values, params upstream.Params) (*model.ProxyResponse, error)
}

// Service exposes typed TMDB lookups.
type Service struct {
	fetcher Fetcher
	images  Images
	logger  *slog.Logger
}

// NewService creates a catalog Service.
func NewService(f Fetcher, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		fetcher: f,
		images:  NewImages(cfg.TMDB.ImageBaseURL),
		logger:  logger.With("component", "catalog"),
	}
}

var (
	nowPlayingDefaults = upstream.Params{"language": "en-US", "page": 1}
	animeDefaults      = upstream.Params{"with_genres": 16, "with_keywords": 210024, "sort_by": "popularity.desc"}
	searchDefaults     = upstream.Params{"include_adult": false, "language": "en-US"}

	discoverDefaults = map[string]upstream.Params{
		"movie": {
			"sort_by":       "popularity.desc",
			"include_adult": false,
			"include_video": false,
			"language":      "en-US",
			"page":          1,
		},
		"tv": {
			"sort_by":                      "popularity.desc",
			"include_adult":                false,
			"include_null_first_air_dates": false,
			"language":                     "en-US",
			"page":                         1,
		},
	}
)

// Trending returns trending items for mediaType (all, movie, tv or person)
// over window (day or week; empty means week).
func (s *Service) Trending(ctx context.Context, mediaType, window string) ([]byte, error) {
	switch mediaType {
	case "all", "movie", "tv", "person":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMediaType, mediaType)
	}
	if window == "" {
		window = "week"
	}
	if window != "day" && window != "week" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimeWindow, window)
	}

	body, err := s.get(ctx, "trending/"+mediaType+"/"+window, nil)
	if err != nil {
		return nil, err
	}
	return s.images.decorateArray(gjson.GetBytes(body, "results"), nil), nil
}

// NowPlaying returns movies currently in theatres.
func (s *Service) NowPlaying(ctx context.Context) ([]byte, error) {
	body, err := s.get(ctx, "movie/now_playing", nowPlayingDefaults)
	if err != nil {
		return nil, err
	}
	return s.images.decorateArray(gjson.GetBytes(body, "results"), nil), nil
}

// Anime returns popular animated TV shows tagged as anime.
func (s *Service) Anime(ctx context.Context) ([]byte, error) {
	body, err := s.get(ctx, "discover/tv", animeDefaults)
	if err != nil {
		return nil, err
	}
	return s.images.decorateArray(gjson.GetBytes(body, "results"), nil), nil
}

// Search runs a multi search and keeps only movies and TV shows. A blank
// query returns an empty list without calling TMDB.
func (s *Service) Search(ctx context.Context, query string) ([]byte, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []byte("[]"), nil
	}

	body, err := s.get(ctx, "search/multi", upstream.MergeParams(searchDefaults, upstream.Params{"query": query}))
	if err != nil {
		return nil, err
	}
	return s.images.decorateArray(gjson.GetBytes(body, "results"), func(item gjson.Result) bool {
		mt := item.Get("media_type").String()
		return mt == "movie" || mt == "tv"
	}), nil
}

// Credits returns up to four cast names. Upstream and transport failures
// yield an empty list; a missing credential is still reported.
func (s *Service) Credits(ctx context.Context, mediaType string, id int) ([]string, error) {
	if err := checkMovieOrTV(mediaType); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}

	body, err := s.get(ctx, mediaType+"/"+strconv.Itoa(id)+"/credits", nil)
	if err != nil {
		if errors.Is(err, upstream.ErrNotConfigured) {
			return nil, err
		}
		s.logger.Warn("credits lookup failed", "media_type", mediaType, "id", id, "err", s.redact(err))
		return []string{}, nil
	}

	names := make([]string, 0, creditsLimit)
	gjson.GetBytes(body, "cast").ForEach(func(_, actor gjson.Result) bool {
		names = append(names, actor.Get("name").String())
		return len(names) < creditsLimit
	})
	return names, nil
}

// SeasonEpisodes returns the episodes of one season of a TV show.
func (s *Service) SeasonEpisodes(ctx context.Context, tvID, season int) ([]byte, error) {
	if err := checkID(tvID); err != nil {
		return nil, err
	}
	// Season 0 holds specials.
	if season < 0 {
		return nil, fmt.Errorf("%w: season %d", ErrInvalidID, season)
	}

	body, err := s.get(ctx, fmt.Sprintf("tv/%d/season/%d", tvID, season), nil)
	if err != nil {
		return nil, err
	}
	return rawArray(gjson.GetBytes(body, "episodes")), nil
}

// TVDetails returns the full TV show object with image URLs attached.
func (s *Service) TVDetails(ctx context.Context, tvID int) ([]byte, error) {
	if err := checkID(tvID); err != nil {
		return nil, err
	}
	body, err := s.get(ctx, "tv/"+strconv.Itoa(tvID), nil)
	if err != nil {
		return nil, err
	}
	return s.images.decorate(body, gjson.ParseBytes(body)), nil
}

// Discover runs discover/<mediaType> with the browser defaults; overrides win
// over defaults and a nil override removes a default.
func (s *Service) Discover(ctx context.Context, mediaType string, overrides upstream.Params) ([]byte, error) {
	defaults, ok := discoverDefaults[mediaType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMediaType, mediaType)
	}
	body, err := s.get(ctx, "discover/"+mediaType, upstream.MergeParams(defaults, overrides))
	if err != nil {
		return nil, err
	}
	return s.images.decorateArray(gjson.GetBytes(body, "results"), nil), nil
}

// Recommendations returns titles recommended for a movie or TV show.
func (s *Service) Recommendations(ctx context.Context, mediaType string, id int) ([]byte, error) {
	if err := checkMovieOrTV(mediaType); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	body, err := s.get(ctx, mediaType+"/"+strconv.Itoa(id)+"/recommendations", nil)
	if err != nil {
		return nil, err
	}
	return s.images.decorateArray(gjson.GetBytes(body, "results"), nil), nil
}

// Genres maps genre ids to names for movies and TV.
type Genres struct {
	Movie map[int]string `json:"movie"`
	TV    map[int]string `json:"tv"`
}

// Genres fetches the movie and TV genre lists concurrently.
func (s *Service) Genres(ctx context.Context) (*Genres, error) {
	out := &Genres{}
	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		m, err := s.genreList(ctx, "movie")
		out.Movie = m
		return err
	})
	p.Go(func(ctx context.Context) error {
		m, err := s.genreList(ctx, "tv")
		out.TV = m
		return err
	})

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) genreList(ctx context.Context, mediaType string) (map[int]string, error) {
	body, err := s.get(ctx, "genre/"+mediaType+"/list", nil)
	if err != nil {
		return nil, fmt.Errorf("%s genres: %w", mediaType, err)
	}
	genres := make(map[int]string)
	gjson.GetBytes(body, "genres").ForEach(func(_, g gjson.Result) bool {
		genres[int(g.Get("id").Int())] = g.Get("name").String()
		return true
	})
	return genres, nil
}

// CheckStatus probes the configuration endpoint and reports whether TMDB is reachable
// with the configured credential.
func (s *Service) CheckStatus(ctx context.Context) string {
	if _, err := s.get(ctx, "configuration", nil); err != nil {
		s.logger.Warn("api status check failed", "err", s.redact(err))
		return StatusError
	}
	return StatusWorking
}

// get fetches endpoint and returns the body of a 2xx answer; anything else is
// an *UpstreamError.
func (s *Service) get(ctx context.Context, endpoint string, params upstream.Params) ([]byte, error) {
	resp, err := s.fetcher.Fetch(ctx, endpoint, nil, params)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp.Body, nil
}

func (s *Service) redact(err error) string {
	if r, ok := s.fetcher.(interface{ Adapter() *upstream.Adapter }); ok && r.Adapter() != nil {
		return r.Adapter().Redact(err.Error())
	}
	return err.Error()
}

func checkMovieOrTV(mediaType string) error {
	if mediaType != "movie" && mediaType != "tv" {
		return fmt.Errorf("%w: %q", ErrInvalidMediaType, mediaType)
	}
	return nil
}

func checkID(id int) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	return nil
}

// StatusFor maps catalog input errors to an HTTP status; zero means the error
// is not an input error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidMediaType), errors.Is(err, ErrInvalidID), errors.Is(err, ErrInvalidTimeWindow):
		return http.StatusBadRequest
	}
	return 0
}
