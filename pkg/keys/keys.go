// Package keys loads the signing and verification material used by the token
// codec.
//
// Material is resolved exactly once, at startup, from one of: an HMAC secret,
// a PEM private key, a static JWKS document, a JWKS URL, or an OpenID Connect
// issuer whose discovery document names the JWKS URL. Remote documents are
// fetched once, retrying transient failures per Source.Retry; rotating keys
// means loading new Material and building a new gate around it.
package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Heahaidu/interest-project/pkg/retry"
)

var (
	// ErrNoKeyMaterial is returned when no key source is configured.
	ErrNoKeyMaterial = errors.New("no key material configured")

	// ErrAmbiguousSource is returned when more than one key source is configured.
	ErrAmbiguousSource = errors.New("more than one key source configured")

	// ErrUnsupportedAlgorithm is returned for "none" and unknown algorithms.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

	// ErrKeyMismatch is returned when a key does not fit the configured algorithm.
	ErrKeyMismatch = errors.New("key does not match algorithm")

	// ErrWeakSecret is returned when an HMAC secret is shorter than the hash output.
	ErrWeakSecret = errors.New("hmac secret too short")
)

// Source names where key material comes from. Exactly one of Secret,
// PrivateKeyFile, JWKSFile, JWKSURL or OIDCIssuer must be set.
type Source struct {
	Algorithm      string
	KeyID          string
	Secret         []byte
	PrivateKeyFile string
	JWKSFile       string
	JWKSURL        string
	OIDCIssuer     string

	// Retry governs remote fetches. The zero value makes a single attempt.
	Retry retry.Config
}

func (s Source) count() int {
	n := 0
	for _, set := range []bool{
		len(s.Secret) > 0,
		s.PrivateKeyFile != "",
		s.JWKSFile != "",
		s.JWKSURL != "",
		s.OIDCIssuer != "",
	} {
		if set {
			n++
		}
	}
	return n
}

// Material is resolved key material for one algorithm.
// It is immutable once returned.
type Material struct {
	method  jwt.SigningMethod
	keyID   string
	signing any
	keyfunc jwt.Keyfunc
	public  []jose.JSONWebKey
	origin  string
}

// Method returns the pinned signing method.
func (m *Material) Method() jwt.SigningMethod {
	return m.method
}

// Algorithm returns the pinned algorithm name, e.g. "HS256".
func (m *Material) Algorithm() string {
	return m.method.Alg()
}

// KeyID returns the kid stamped into issued token headers, if any.
func (m *Material) KeyID() string {
	return m.keyID
}

// SigningKey returns the key used to sign tokens, or nil for verify-only material.
func (m *Material) SigningKey() any {
	return m.signing
}

// CanSign reports whether tokens can be issued with this material.
func (m *Material) CanSign() bool {
	return m.signing != nil
}

// Keyfunc returns the verification key lookup for the jwt parser.
func (m *Material) Keyfunc() jwt.Keyfunc {
	return m.keyfunc
}

// Origin describes where the material was loaded from, for logs.
// It never contains key bytes.
func (m *Material) Origin() string {
	return m.origin
}

// Load resolves src into Material. Remote sources are fetched with client;
// a nil client uses http.DefaultClient.
func Load(ctx context.Context, src Source, client *http.Client) (*Material, error) {
	method, err := ParseAlgorithm(src.Algorithm)
	if err != nil {
		return nil, err
	}

	switch src.count() {
	case 0:
		return nil, ErrNoKeyMaterial
	case 1:
	default:
		return nil, ErrAmbiguousSource
	}

	switch {
	case len(src.Secret) > 0:
		return FromSecret(method, src.Secret)

	case src.PrivateKeyFile != "":
		data, err := os.ReadFile(src.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		key, err := ParsePrivateKeyPEM(method, data)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", src.PrivateKeyFile, err)
		}
		m, err := FromPrivateKey(method, src.KeyID, key)
		if err != nil {
			return nil, err
		}
		m.origin = "file:" + src.PrivateKeyFile
		return m, nil

	case src.JWKSFile != "":
		raw, err := os.ReadFile(src.JWKSFile)
		if err != nil {
			return nil, fmt.Errorf("read jwks: %w", err)
		}
		m, err := FromJWKS(method, raw)
		if err != nil {
			return nil, fmt.Errorf("jwks %s: %w", src.JWKSFile, err)
		}
		m.origin = "file:" + src.JWKSFile
		return m, nil

	case src.JWKSURL != "":
		raw, err := fetchJWKS(ctx, src.Retry, client, src.JWKSURL)
		if err != nil {
			return nil, err
		}
		m, err := FromJWKS(method, raw)
		if err != nil {
			return nil, fmt.Errorf("jwks %s: %w", src.JWKSURL, err)
		}
		m.origin = src.JWKSURL
		return m, nil

	default:
		jwksURL, err := retry.DoWithValue(ctx, src.Retry, func(ctx context.Context) (string, error) {
			return DiscoverJWKSURL(ctx, client, src.OIDCIssuer)
		})
		if err != nil {
			return nil, err
		}
		raw, err := fetchJWKS(ctx, src.Retry, client, jwksURL)
		if err != nil {
			return nil, err
		}
		m, err := FromJWKS(method, raw)
		if err != nil {
			return nil, fmt.Errorf("jwks %s: %w", jwksURL, err)
		}
		m.origin = "oidc:" + src.OIDCIssuer
		return m, nil
	}
}

// ParseAlgorithm resolves an algorithm name to a jwt signing method.
// "none" and names unknown to the jwt library are rejected.
func ParseAlgorithm(alg string) (jwt.SigningMethod, error) {
	if alg == "" || strings.EqualFold(alg, "none") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	return method, nil
}

// FromSecret builds HMAC material. The secret must be at least as long as the
// hash output (32 bytes for HS256, 48 for HS384, 64 for HS512).
func FromSecret(method jwt.SigningMethod, secret []byte) (*Material, error) {
	hm, ok := method.(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: secret given for %s", ErrKeyMismatch, method.Alg())
	}
	if need := hm.Hash.Size(); len(secret) < need {
		return nil, fmt.Errorf("%w: %s needs at least %d bytes, got %d", ErrWeakSecret, method.Alg(), need, len(secret))
	}

	key := append([]byte(nil), secret...)
	return &Material{
		method:  method,
		signing: key,
		keyfunc: func(*jwt.Token) (any, error) { return key, nil },
		origin:  "secret",
	}, nil
}

// FromPrivateKey builds material that can both sign and verify. When kid is
// empty the RFC 7638 thumbprint of the public key is used.
func FromPrivateKey(method jwt.SigningMethod, kid string, key crypto.Signer) (*Material, error) {
	if err := checkKeyType(method, key.Public()); err != nil {
		return nil, err
	}

	pub := jose.JSONWebKey{
		Key:       key.Public(),
		Algorithm: method.Alg(),
		Use:       "sig",
	}
	if kid == "" {
		tp, err := pub.Thumbprint(crypto.SHA256)
		if err != nil {
			return nil, fmt.Errorf("compute key thumbprint: %w", err)
		}
		kid = base64.RawURLEncoding.EncodeToString(tp)
	}
	pub.KeyID = kid

	verifyKey := key.Public()
	return &Material{
		method:  method,
		keyID:   kid,
		signing: key,
		keyfunc: func(*jwt.Token) (any, error) { return verifyKey, nil },
		public:  []jose.JSONWebKey{pub},
		origin:  "private-key",
	}, nil
}

// checkKeyType verifies that pub can be used with method.
func checkKeyType(method jwt.SigningMethod, pub crypto.PublicKey) error {
	switch m := method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		if _, ok := pub.(*rsa.PublicKey); ok {
			return nil
		}
	case *jwt.SigningMethodECDSA:
		if ec, ok := pub.(*ecdsa.PublicKey); ok {
			if ec.Curve.Params().BitSize == m.CurveBits {
				return nil
			}
			return fmt.Errorf("%w: %s needs a %d-bit curve, got %s", ErrKeyMismatch, method.Alg(), m.CurveBits, curveName(ec.Curve))
		}
	case *jwt.SigningMethodEd25519:
		if _, ok := pub.(ed25519.PublicKey); ok {
			return nil
		}
	case *jwt.SigningMethodHMAC:
		return fmt.Errorf("%w: %s needs a secret, not a private key", ErrKeyMismatch, method.Alg())
	}
	return fmt.Errorf("%w: %T cannot be used with %s", ErrKeyMismatch, pub, method.Alg())
}

func curveName(c elliptic.Curve) string {
	return c.Params().Name
}

// ParsePrivateKeyPEM decodes a PEM private key for the family of method.
func ParsePrivateKeyPEM(method jwt.SigningMethod, data []byte) (crypto.Signer, error) {
	switch method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		return jwt.ParseRSAPrivateKeyFromPEM(data)
	case *jwt.SigningMethodECDSA:
		return jwt.ParseECPrivateKeyFromPEM(data)
	case *jwt.SigningMethodEd25519:
		key, err := jwt.ParseEdPrivateKeyFromPEM(data)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a signer", ErrKeyMismatch, key)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("%w: %s does not use a private key", ErrKeyMismatch, method.Alg())
	}
}
