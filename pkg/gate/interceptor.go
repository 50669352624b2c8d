package gate

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"connectrpc.com/connect"

	"github.com/Heahaidu/interest-project/pkg/auth"
)

// Interceptor returns a connect interceptor that applies the gate to RPC
// handlers, using the procedure name ("/pkg.Service/Method") as the path.
// Requests that already carry an identity, because the HTTP handler was
// wrapped by the same gate, pass through untouched.
func (g *Gate) Interceptor() connect.Interceptor {
	return &interceptor{gate: g}
}

type interceptor struct {
	gate *Gate
}

// WrapUnary implements connect.Interceptor.
func (i *interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		ctx, err := i.gate.admitRPC(ctx, req.Spec().Procedure, req.HTTPMethod(), req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.gate.admitRPC(ctx, conn.Spec().Procedure, http.MethodPost, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (g *Gate) admitRPC(ctx context.Context, procedure, method string, header http.Header) (context.Context, error) {
	if id := auth.IdentityFromContext(ctx); id != nil {
		return ctx, nil
	}
	if method == "" {
		method = http.MethodPost
	}

	r := (&http.Request{
		Method: method,
		URL:    &url.URL{Path: procedure},
		Header: header,
	}).WithContext(ctx)

	requestID := header.Get(RequestIDHeader)
	d := g.Decide(r)
	g.record(r, requestID, d)

	if !d.Admitted() {
		return ctx, connectError(d.Rejection, g.realm)
	}
	return auth.ContextWithIdentity(ctx, d.Identity), nil
}

// connectError maps a rejection to the connect error carrying the same text
// the HTTP responder would write.
func connectError(r *auth.Rejection, realm string) *connect.Error {
	status, text := auth.StatusAndBody(r.Cause)
	code := connect.CodeUnauthenticated
	if status == http.StatusForbidden {
		code = connect.CodePermissionDenied
	}
	err := connect.NewError(code, errors.New(text))
	if status == http.StatusUnauthorized {
		rec := &headerRecorder{h: make(http.Header)}
		auth.Render(rec, r, realm)
		err.Meta().Set("WWW-Authenticate", rec.h.Get("WWW-Authenticate"))
	}
	return err
}

// headerRecorder captures the headers auth.Render sets and discards the body.
type headerRecorder struct {
	h http.Header
}

func (r *headerRecorder) Header() http.Header         { return r.h }
func (r *headerRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (r *headerRecorder) WriteHeader(int)             {}
