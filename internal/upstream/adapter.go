// Package upstream builds outbound TMDB requests: it merges parameters,
// resolves the endpoint against the base URL and injects the configured
// credential.
package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"tmdb-proxy-go/internal/config"
	"tmdb-proxy-go/internal/model"
)

// APIKeyParam is the query parameter TMDB reads the v3 API key from.
const APIKeyParam = "api_key"

const userAgent = "tmdb-proxy-go/1.0"

// ErrNotConfigured is matched by every ConfigurationError.
var ErrNotConfigured = errors.New("TMDB API key or access token not configured in environment variables")

// ErrInvalidEndpoint is returned for endpoints with dot segments, which could
// resolve outside the base path with the credential attached.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// ConfigurationError reports that no credential is available. It is fatal for
// the request and is never retried.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s not configured in environment variables", e.Missing)
}

// Is makes errors.Is(err, ErrNotConfigured) hold for any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrNotConfigured
}

// CredentialMode selects how the secret is presented to TMDB.
type CredentialMode int

const (
	CredentialNone CredentialMode = iota
	CredentialQueryParam
	CredentialBearerHeader
)

func (m CredentialMode) String() string {
	switch m {
	case CredentialQueryParam:
		return "api_key"
	case CredentialBearerHeader:
		return "bearer"
	default:
		return "none"
	}
}

// Credential is the configured TMDB secret together with its mode.
type Credential struct {
	Mode   CredentialMode
	Secret string
}

// NewCredential picks the credential mode from whichever value is set. The
// access token wins if both are given; config validation rejects that case
// before it gets here.
func NewCredential(apiKey, accessToken string) Credential {
	switch {
	case accessToken != "":
		return Credential{Mode: CredentialBearerHeader, Secret: accessToken}
	case apiKey != "":
		return Credential{Mode: CredentialQueryParam, Secret: apiKey}
	default:
		return Credential{Mode: CredentialNone}
	}
}

// Params are caller-supplied query parameters. Values may be strings,
// integers, floats or booleans; nil values are dropped.
type Params map[string]any

// MergeParams returns a new Params with overrides applied on top of defaults.
// An override set to nil removes the default.
func MergeParams(defaults, overrides Params) Params {
	out := make(Params, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// apiKeyPattern matches api_key query values in URLs embedded in error messages.
var apiKeyPattern = regexp.MustCompile(`(?i)(api_key=)[^&\s"]+`)

// Adapter turns a logical endpoint plus parameters into a request descriptor.
// It is immutable after construction and safe for concurrent use.
type Adapter struct {
	baseURL    *url.URL
	credential Credential
}

// New creates an Adapter for the given base URL and credential.
func New(baseURL string, cred Credential) (*Adapter, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return &Adapter{baseURL: u, credential: cred}, nil
}

// NewFromConfig creates an Adapter from the application config.
func NewFromConfig(cfg *config.Config) (*Adapter, error) {
	return New(cfg.Upstream.BaseURL, NewCredential(cfg.TMDB.APIKey, cfg.TMDB.AccessToken))
}

// Mode returns the configured credential mode.
func (a *Adapter) Mode() CredentialMode {
	return a.credential.Mode
}

// BaseURL returns the upstream base URL as a string.
func (a *Adapter) BaseURL() string {
	return a.baseURL.String()
}

// Build resolves endpoint against the base URL. The query is base with params
// merged over it; any api_key the caller supplied is removed before the
// configured credential is applied.
func (a *Adapter) Build(endpoint string, base url.Values, params Params) (*model.UpstreamRequest, error) {
	endpoint, err := cleanEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if a.credential.Mode == CredentialNone || a.credential.Secret == "" {
		return nil, &ConfigurationError{Missing: "TMDB API key or access token"}
	}

	q := make(url.Values, len(base)+len(params)+1)
	for k, vs := range base {
		q[k] = append([]string(nil), vs...)
	}
	for k, v := range params {
		s, ok := formatParam(v)
		if !ok {
			q.Del(k)
			continue
		}
		q.Set(k, s)
	}
	q.Del(APIKeyParam)

	header := make(http.Header)
	header.Set("Accept", "application/json")
	header.Set("User-Agent", userAgent)

	switch a.credential.Mode {
	case CredentialQueryParam:
		q.Set(APIKeyParam, a.credential.Secret)
	case CredentialBearerHeader:
		header.Set("Authorization", "Bearer "+a.credential.Secret)
	}

	u := *a.baseURL
	u.Path = strings.TrimSuffix(a.baseURL.Path, "/") + "/" + endpoint
	u.RawPath = ""
	u.RawQuery = q.Encode()

	return &model.UpstreamRequest{URL: u.String(), Header: header}, nil
}

// cleanEndpoint rejects "." and ".." segments and collapses repeated slashes.
// The endpoint arrives percent-decoded, so %2e%2e and ..%2F are caught too.
func cleanEndpoint(endpoint string) (string, error) {
	ep := strings.TrimLeft(endpoint, "/")
	for _, seg := range strings.Split(ep, "/") {
		if seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
		}
	}
	if ep == "" {
		return "", nil
	}
	return strings.TrimPrefix(path.Clean("/"+ep), "/"), nil
}

// Redact removes the configured secret and any api_key query value from s.
func (a *Adapter) Redact(s string) string {
	s = apiKeyPattern.ReplaceAllString(s, "${1}[REDACTED]")
	if a.credential.Secret != "" {
		s = strings.ReplaceAll(s, a.credential.Secret, "[REDACTED]")
	}
	return s
}

func formatParam(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}
