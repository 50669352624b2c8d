package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Heahaidu/interest-project/pkg/retry"
)

// maxJWKSBytes bounds remote JWKS and discovery documents.
const maxJWKSBytes = 1 << 20

// ErrEmptyKeySet is returned when a JWKS holds no key usable for the algorithm.
var ErrEmptyKeySet = errors.New("jwks has no usable keys")

// FromJWKS builds verify-only material from a JWK Set document.
// Keys whose "alg" names a different algorithm are skipped at lookup time.
func FromJWKS(method jwt.SigningMethod, raw []byte) (*Material, error) {
	if _, ok := method.(*jwt.SigningMethodHMAC); ok {
		return nil, fmt.Errorf("%w: %s cannot be verified from a public key set", ErrKeyMismatch, method.Alg())
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	var public []jose.JSONWebKey
	for _, k := range set.Keys {
		if !k.Valid() || (k.Algorithm != "" && k.Algorithm != method.Alg()) {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		public = append(public, k.Public())
	}
	if len(public) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrEmptyKeySet, method.Alg())
	}

	kf, err := keyfunc.NewJWKSetJSON(json.RawMessage(raw))
	if err != nil {
		return nil, fmt.Errorf("build keyfunc: %w", err)
	}

	return &Material{
		method:  method,
		keyfunc: kf.Keyfunc,
		public:  public,
		origin:  "jwks",
	}, nil
}

// StatusError reports a non-200 answer from a remote key endpoint.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch jwks %s: unexpected status %s", e.URL, e.Status)
}

// HTTPStatus lets retry.Transient classify the failure.
func (e *StatusError) HTTPStatus() int {
	return e.Code
}

func fetchJWKS(ctx context.Context, cfg retry.Config, client *http.Client, url string) ([]byte, error) {
	return retry.DoWithValue(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return FetchJWKS(ctx, client, url)
	})
}

// FetchJWKS downloads a JWK Set document once.
func FetchJWKS(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("read jwks %s: %w", url, err)
	}
	return body, nil
}

// DiscoverJWKSURL reads the issuer's OpenID discovery document and returns its
// jwks_uri. The issuer in the document must match issuer exactly.
func DiscoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}

	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("decode discovery document: %w", err)
	}
	if meta.JWKSURI == "" {
		return "", fmt.Errorf("oidc discovery for %s: no jwks_uri", issuer)
	}
	return meta.JWKSURI, nil
}

// PublicJWKS returns the public half of the material as a JWK Set.
// HMAC material publishes an empty set.
func (m *Material) PublicJWKS() jose.JSONWebKeySet {
	keys := make([]jose.JSONWebKey, len(m.public))
	copy(keys, m.public)
	return jose.JSONWebKeySet{Keys: keys}
}

// JWKSHandler serves PublicJWKS as application/jwk-set+json.
func (m *Material) JWKSHandler() http.Handler {
	body, err := json.Marshal(m.PublicJWKS())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			http.Error(w, "jwks unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/jwk-set+json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		_, _ = w.Write(body)
	})
}
