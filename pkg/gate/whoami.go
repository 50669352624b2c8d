package gate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Heahaidu/interest-project/pkg/auth"
)

// WhoAmIProcedure is the connect procedure that echoes the caller's identity.
const WhoAmIProcedure = "/gate.v1.IdentityService/WhoAmI"

// NewWhoAmIHandler returns the route and handler for WhoAmIProcedure. It must
// be mounted behind a Gate (Wrap or Interceptor) so that an identity is present.
func NewWhoAmIHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	return WhoAmIProcedure, connect.NewUnaryHandler(WhoAmIProcedure, whoAmI, opts...)
}

func whoAmI(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	id := auth.IdentityFromContext(ctx)
	if id == nil || id.Anonymous() {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}

	s, err := structpb.NewStruct(IdentityFields(id))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(s), nil
}

// IdentityFields renders an identity as a JSON-friendly map.
func IdentityFields(id *auth.Identity) map[string]any {
	roles := make([]any, 0, len(id.Roles()))
	for _, r := range id.Roles() {
		roles = append(roles, r)
	}
	fields := map[string]any{
		"subject": id.Subject(),
		"roles":   roles,
	}
	if !id.ExpiresAt().IsZero() {
		fields["expiresAt"] = id.ExpiresAt().UTC().Format(time.RFC3339)
	}
	if id.TokenID() != "" {
		fields["tokenId"] = id.TokenID()
	}
	return fields
}

// NewWhoAmIClient creates a client for WhoAmIProcedure at baseURL.
func NewWhoAmIClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *connect.Client[emptypb.Empty, structpb.Struct] {
	return connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+WhoAmIProcedure, opts...)
}
