package auth

import (
	"context"

	"connectrpc.com/connect"
	"golang.org/x/oauth2"
)

// TokenInterceptor adds an Authorization header to outgoing connect requests.
// The token is read from an oauth2.TokenSource on every call so that a
// refreshed token is picked up without rebuilding the client.
type TokenInterceptor struct {
	source oauth2.TokenSource
}

// NewTokenInterceptor creates a new token interceptor.
// If source is nil, no header is added.
func NewTokenInterceptor(source oauth2.TokenSource) *TokenInterceptor {
	return &TokenInterceptor{source: source}
}

func (i *TokenInterceptor) header() (string, error) {
	if i.source == nil {
		return "", nil
	}
	tok, err := i.source.Token()
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", nil
	}
	return tok.Type() + " " + tok.AccessToken, nil
}

// WrapUnary implements connect.Interceptor.
func (i *TokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		h, err := i.header()
		if err != nil {
			return nil, connect.NewError(connect.CodeUnauthenticated, err)
		}
		if h != "" {
			req.Header().Set("Authorization", h)
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *TokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if h, err := i.header(); err == nil && h != "" {
			conn.RequestHeader().Set("Authorization", h)
		}
		return conn
	}
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *TokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
