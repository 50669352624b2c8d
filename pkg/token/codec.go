// Package token verifies and issues the signed bearer tokens the gate accepts.
//
// The signing algorithm is pinned when the Codec is built. A token whose header
// names any other algorithm, including "none", is refused as an invalid
// signature before its claims are considered.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Heahaidu/interest-project/pkg/auth"
	"github.com/Heahaidu/interest-project/pkg/clock"
	"github.com/Heahaidu/interest-project/pkg/keys"
)

// DefaultTTL is used when neither the caller nor the configuration names one.
const DefaultTTL = time.Hour

var (
	// ErrSigningUnavailable is returned by Issue when the codec only holds
	// verification keys.
	ErrSigningUnavailable = errors.New("token signing unavailable")

	// ErrEmptySubject is returned by Issue for an empty subject.
	ErrEmptySubject = errors.New("subject is required")
)

// Claims is the payload carried by gate tokens.
type Claims struct {
	// Roles accepts either a single string or an array on the wire.
	Roles jwt.ClaimStrings `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the codec settings that are not key material.
type Config struct {
	// Issuer, when set, is stamped into issued tokens and required on verify.
	Issuer string

	// Audience, when set, is stamped into issued tokens and required on verify.
	Audience string

	// TTL is the default lifetime for issued tokens.
	TTL time.Duration

	// ClockSkew is tolerated when comparing exp and nbf against now.
	ClockSkew time.Duration
}

// Codec verifies and issues tokens. It is immutable and safe for concurrent use.
type Codec struct {
	material *keys.Material
	cfg      Config
	clock    clock.Clock
}

// NewCodec creates a codec over the given key material.
func NewCodec(material *keys.Material, cfg Config, clk clock.Clock) (*Codec, error) {
	if material == nil {
		return nil, keys.ErrNoKeyMaterial
	}
	if cfg.ClockSkew < 0 {
		return nil, fmt.Errorf("clock skew must be >= 0, got %s", cfg.ClockSkew)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Codec{material: material, cfg: cfg, clock: clk}, nil
}

// Algorithm returns the pinned algorithm.
func (c *Codec) Algorithm() string {
	return c.material.Algorithm()
}

// TTL returns the default token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.cfg.TTL
}

// CanIssue reports whether the codec holds a signing key.
func (c *Codec) CanIssue() bool {
	return c.material.CanSign()
}

func (c *Codec) parser(now time.Time) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.material.Algorithm()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(c.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}
	if c.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.cfg.Audience))
	}
	return jwt.NewParser(opts...)
}

// Verify checks tokenString against the configured key at time now.
//
// Failures are returned as *auth.Rejection with one of MalformedToken,
// ExpiredToken or InvalidSignature. Checks run in this order: structure,
// algorithm pin, required claims, expiry, signature, remaining claims. An
// expired token is therefore reported as expired whatever its signature.
func (c *Codec) Verify(tokenString string, now time.Time) (*Claims, error) {
	var claims Claims
	tok, err := c.parser(now).ParseWithClaims(tokenString, &claims, c.material.Keyfunc())
	if err == nil {
		if claims.Subject == "" {
			return nil, auth.Reject(auth.MalformedToken, "sub claim is empty")
		}
		return &claims, nil
	}

	if errors.Is(err, jwt.ErrTokenMalformed) || tok == nil {
		return nil, auth.Wrap(auth.MalformedToken, err, "decode")
	}

	if alg, _ := tok.Header["alg"].(string); alg != c.material.Algorithm() {
		return nil, auth.Reject(auth.InvalidSignature, "algorithm %q is not accepted", alg)
	}

	if claims.Subject == "" {
		return nil, auth.Reject(auth.MalformedToken, "sub claim is missing")
	}
	if claims.ExpiresAt == nil {
		return nil, auth.Reject(auth.MalformedToken, "exp claim is missing")
	}
	if expired(claims.ExpiresAt.Time, now, c.cfg.ClockSkew) {
		return nil, auth.Reject(auth.ExpiredToken, "expired at %s", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}

	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, auth.Wrap(auth.InvalidSignature, err, "verify")
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, auth.Wrap(auth.ExpiredToken, err, "validate")
	default:
		return nil, auth.Wrap(auth.MalformedToken, err, "validate")
	}
}

// expired reports whether exp is not strictly after now - skew.
func expired(exp, now time.Time, skew time.Duration) bool {
	return !exp.After(now.Add(-skew))
}

// Issue signs a token for subject with iat = now and exp = now + ttl.
// A ttl <= 0 uses the configured default.
func (c *Codec) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	if !c.material.CanSign() {
		return "", ErrSigningUnavailable
	}
	if subject == "" {
		return "", ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}

	now := c.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if len(roles) > 0 {
		claims.Roles = append(jwt.ClaimStrings(nil), roles...)
	}
	if c.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.cfg.Audience}
	}

	tok := jwt.NewWithClaims(c.material.Method(), claims)
	if kid := c.material.KeyID(); kid != "" {
		tok.Header["kid"] = kid
	}

	signed, err := tok.SignedString(c.material.SigningKey())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Identity converts verified claims into the request identity.
func (c *Claims) Identity() *auth.Identity {
	var iat, exp time.Time
	if c.IssuedAt != nil {
		iat = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		exp = c.ExpiresAt.Time
	}
	return auth.NewIdentity(c.Subject, c.Roles, c.ID, iat, exp)
}
