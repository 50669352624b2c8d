package auth

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrMalformedAuthHeader is returned when a Bearer scheme is present but
	// carries no usable token.
	ErrMalformedAuthHeader = errors.New("malformed authorization header")
)

// TokenSource extracts a raw bearer token from a request.
// Implementations should be safe for concurrent use.
type TokenSource interface {
	// Extract returns:
	//   - (token, true, nil): a credential was found
	//   - ("", false, nil): no credential is present in this source
	//   - ("", false, error): a credential is present but unusable
	Extract(r *http.Request) (string, bool, error)
}

// TokenSourceFunc is an adapter to allow plain functions to be used as TokenSources.
type TokenSourceFunc func(r *http.Request) (string, bool, error)

// Extract implements TokenSource.
func (f TokenSourceFunc) Extract(r *http.Request) (string, bool, error) {
	return f(r)
}

// HeaderSource reads "Authorization: Bearer <token>".
type HeaderSource struct {
	header string
}

// NewHeaderSource creates a source reading the standard Authorization header.
func NewHeaderSource() *HeaderSource {
	return &HeaderSource{header: "Authorization"}
}

// Extract implements TokenSource.
// Other schemes (Basic, Digest, ...) are reported as absent, not as errors.
func (s *HeaderSource) Extract(r *http.Request) (string, bool, error) {
	value := r.Header.Get(s.header)
	if value == "" {
		return "", false, nil
	}

	scheme, rest, _ := strings.Cut(value, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false, nil
	}

	token := strings.TrimSpace(rest)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false, ErrMalformedAuthHeader
	}
	return token, true, nil
}

// Method implements SourceDescriptor.
func (s *HeaderSource) Method() string {
	return "header"
}

// CookieSource reads a token from a named cookie.
type CookieSource struct {
	name string
}

// NewCookieSource creates a source reading the cookie called name.
func NewCookieSource(name string) *CookieSource {
	return &CookieSource{name: name}
}

// Extract implements TokenSource.
func (s *CookieSource) Extract(r *http.Request) (string, bool, error) {
	c, err := r.Cookie(s.name)
	if err != nil || c.Value == "" {
		return "", false, nil
	}
	return c.Value, true, nil
}

// Method implements SourceDescriptor.
func (s *CookieSource) Method() string {
	return "cookie:" + s.name
}
