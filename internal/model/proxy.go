// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/http"
	"net/url"
)

// ProxyRequest represents an inbound request to be relayed to TMDB.
type ProxyRequest struct {
	Ctx   context.Context
	Path  string
	Query url.Values
}

// UpstreamRequest is a fully resolved TMDB request: the URL carries the
// merged query (and the API key in query mode), Header carries Accept and,
// in bearer mode, Authorization.
type UpstreamRequest struct {
	URL    string
	Header http.Header
}

// UpstreamResponse is the raw answer read from TMDB.
type UpstreamResponse struct {
	StatusCode int
	Body       []byte
}

// ProxyResponse is what gets written back to the caller.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ErrorEnvelope is the normalized error body returned when no usable
// upstream body exists.
type ErrorEnvelope struct {
	Success       bool   `json:"success"`
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

// NewErrorEnvelope returns a failed envelope for the given status.
func NewErrorEnvelope(status int, msg string) ErrorEnvelope {
	return ErrorEnvelope{Success: false, StatusCode: status, StatusMessage: msg}
}
