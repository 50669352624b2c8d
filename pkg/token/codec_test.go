package token

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Heahaidu/interest-project/pkg/auth"
	"github.com/Heahaidu/interest-project/pkg/clock"
	"github.com/Heahaidu/interest-project/pkg/keys"
)

var (
	testNow    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testSecret = []byte("0123456789abcdef0123456789abcdef")
)

func hmacCodec(t *testing.T, secret []byte, cfg Config) (*Codec, *clock.FakeClock) {
	t.Helper()
	m, err := keys.FromSecret(jwt.SigningMethodHS256, secret)
	if err != nil {
		t.Fatalf("FromSecret() error = %v", err)
	}
	clk := clock.NewFakeClock(testNow)
	c, err := NewCodec(m, cfg, clk)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return c, clk
}

func signMap(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func wantCause(t *testing.T, err error, want auth.Cause) {
	t.Helper()
	rej, ok := auth.AsRejection(err)
	if !ok {
		t.Fatalf("error = %v, want rejection with cause %v", err, want)
	}
	if rej.Cause != want {
		t.Errorf("cause = %v, want %v (%v)", rej.Cause, want, err)
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	ecKey, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	_, edKey, _ := ed25519.GenerateKey(rand.Reader)

	materials := map[string]func() (*keys.Material, error){
		"HS256": func() (*keys.Material, error) { return keys.FromSecret(jwt.SigningMethodHS256, testSecret) },
		"RS256": func() (*keys.Material, error) { return keys.FromPrivateKey(jwt.SigningMethodRS256, "", rsaKey) },
		"PS256": func() (*keys.Material, error) { return keys.FromPrivateKey(jwt.SigningMethodPS256, "k", rsaKey) },
		"ES384": func() (*keys.Material, error) { return keys.FromPrivateKey(jwt.SigningMethodES384, "k", ecKey) },
		"EdDSA": func() (*keys.Material, error) { return keys.FromPrivateKey(jwt.SigningMethodEdDSA, "k", edKey) },
	}

	subjects := []struct {
		subject string
		roles   []string
	}{
		{"u-123", []string{"USER"}},
		{"u-456", []string{"USER", "ADMIN"}},
		{"svc:indexer", nil},
	}

	for alg, build := range materials {
		t.Run(alg, func(t *testing.T) {
			m, err := build()
			if err != nil {
				t.Fatalf("material: %v", err)
			}
			c, err := NewCodec(m, Config{Issuer: "interest", Audience: "user-service"}, clock.NewFakeClock(testNow))
			if err != nil {
				t.Fatal(err)
			}

			for _, s := range subjects {
				tok, err := c.Issue(s.subject, s.roles, 15*time.Minute)
				if err != nil {
					t.Fatalf("Issue() error = %v", err)
				}
				claims, err := c.Verify(tok, testNow.Add(time.Minute))
				if err != nil {
					t.Fatalf("Verify() error = %v", err)
				}
				if claims.Subject != s.subject {
					t.Errorf("Subject = %q, want %q", claims.Subject, s.subject)
				}
				if !slices.Equal([]string(claims.Roles), s.roles) {
					t.Errorf("Roles = %v, want %v", claims.Roles, s.roles)
				}
				if !claims.ExpiresAt.Time.Equal(testNow.Add(15 * time.Minute)) {
					t.Errorf("ExpiresAt = %v", claims.ExpiresAt.Time)
				}
				if !claims.IssuedAt.Time.Equal(testNow) {
					t.Errorf("IssuedAt = %v", claims.IssuedAt.Time)
				}
				if claims.ID == "" {
					t.Error("Expected a jti")
				}
			}
		})
	}
}

func TestIssue_UniqueJTI(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})
	a, _ := c.Issue("u-1", nil, 0)
	b, _ := c.Issue("u-1", nil, 0)
	if a == b {
		t.Error("Expected distinct tokens for identical inputs")
	}
}

func TestIssue_DefaultTTL(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{TTL: 30 * time.Minute})

	tok, err := c.Issue("u-1", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := c.Verify(tok, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if got := claims.ExpiresAt.Sub(testNow); got != 30*time.Minute {
		t.Errorf("ttl = %v, want 30m", got)
	}

	if c.TTL() != 30*time.Minute {
		t.Errorf("TTL() = %v", c.TTL())
	}
}

func TestIssue_Errors(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})
	if _, err := c.Issue("", nil, 0); !errors.Is(err, ErrEmptySubject) {
		t.Errorf("empty subject: error = %v", err)
	}

	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	signer, _ := keys.FromPrivateKey(jwt.SigningMethodRS256, "k1", priv)
	verifyOnly, err := keys.FromJWKS(jwt.SigningMethodRS256, mustJSON(t, signer.PublicJWKS()))
	if err != nil {
		t.Fatal(err)
	}
	vc, _ := NewCodec(verifyOnly, Config{}, nil)
	if vc.CanIssue() {
		t.Error("Verify-only codec reports it can issue")
	}
	if _, err := vc.Issue("u-1", nil, 0); !errors.Is(err, ErrSigningUnavailable) {
		t.Errorf("verify-only: error = %v, want ErrSigningUnavailable", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})

	tok := signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "u-123",
		"iat": testNow.Add(-time.Hour).Unix(),
		"exp": testNow.Add(-10 * time.Second).Unix(),
	})

	_, err := c.Verify(tok, testNow)
	wantCause(t, err, auth.ExpiredToken)
	if !errors.Is(err, auth.ErrExpiredToken) {
		t.Errorf("errors.Is(err, ErrExpiredToken) = false")
	}
}

func TestVerify_ExpiredRegardlessOfSignature(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})

	foreign := []byte("ffffffffffffffffffffffffffffffff")
	tok := signMap(t, jwt.SigningMethodHS256, foreign, jwt.MapClaims{
		"sub": "u-123",
		"exp": testNow.Add(-time.Minute).Unix(),
	})
	_, err := c.Verify(tok, testNow)
	wantCause(t, err, auth.ExpiredToken)

	parts := strings.Split(signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "u-123",
		"exp": testNow.Add(-time.Minute).Unix(),
	}), ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA"
	_, err = c.Verify(tampered, testNow)
	wantCause(t, err, auth.ExpiredToken)
}

func TestVerify_ClockSkew(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{ClockSkew: 30 * time.Second})

	tests := []struct {
		name   string
		exp    time.Time
		wantOK bool
	}{
		{"inside skew", testNow.Add(-10 * time.Second), true},
		{"at skew boundary", testNow.Add(-30 * time.Second), false},
		{"beyond skew", testNow.Add(-31 * time.Second), false},
		{"future", testNow.Add(time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "u-1", "exp": tt.exp.Unix()})
			_, err := c.Verify(tok, testNow)
			if tt.wantOK && err != nil {
				t.Errorf("Verify() error = %v", err)
			}
			if !tt.wantOK {
				wantCause(t, err, auth.ExpiredToken)
			}
		})
	}
}

func TestVerify_ExpiryBoundaryWithoutSkew(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})

	tok := signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "u-1", "exp": testNow.Unix()})
	_, err := c.Verify(tok, testNow)
	wantCause(t, err, auth.ExpiredToken)

	if _, err := c.Verify(tok, testNow.Add(-time.Second)); err != nil {
		t.Errorf("one second before exp: %v", err)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})

	other, _ := hmacCodec(t, []byte("another-secret-another-secret-32"), Config{})
	tok, err := other.Issue("u-123", []string{"USER"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Verify(tok, testNow)
	wantCause(t, err, auth.InvalidSignature)
}

func TestVerify_WrongKeyAsymmetric(t *testing.T) {
	k1, _ := rsa.GenerateKey(rand.Reader, 2048)
	k2, _ := rsa.GenerateKey(rand.Reader, 2048)
	m1, _ := keys.FromPrivateKey(jwt.SigningMethodRS256, "k", k1)
	m2, _ := keys.FromPrivateKey(jwt.SigningMethodRS256, "k", k2)

	c1, _ := NewCodec(m1, Config{}, clock.NewFakeClock(testNow))
	c2, _ := NewCodec(m2, Config{}, clock.NewFakeClock(testNow))

	tok, _ := c2.Issue("u-1", nil, time.Hour)
	_, err := c1.Verify(tok, testNow)
	wantCause(t, err, auth.InvalidSignature)
}

func TestVerify_AlgorithmPinned(t *testing.T) {
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	m, _ := keys.FromPrivateKey(jwt.SigningMethodRS256, "k", rsaKey)
	c, _ := NewCodec(m, Config{}, clock.NewFakeClock(testNow))

	claims := jwt.MapClaims{"sub": "u-1", "exp": testNow.Add(time.Hour).Unix()}

	t.Run("none", func(t *testing.T) {
		tok := signMap(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claims)
		_, err := c.Verify(tok, testNow)
		wantCause(t, err, auth.InvalidSignature)
	})

	t.Run("hmac with public key bytes", func(t *testing.T) {
		der, _ := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
		tok := signMap(t, jwt.SigningMethodHS256, der, claims)
		_, err := c.Verify(tok, testNow)
		wantCause(t, err, auth.InvalidSignature)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tok.Header["alg"] = "XX999"
		unsigned, _ := tok.SigningString()
		_, err := c.Verify(unsigned+".c2ln", testNow)
		wantCause(t, err, auth.InvalidSignature)
	})

	t.Run("expired none token is still refused as a signature failure", func(t *testing.T) {
		tok := signMap(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{
			"sub": "u-1", "exp": testNow.Add(-time.Hour).Unix(),
		})
		_, err := c.Verify(tok, testNow)
		wantCause(t, err, auth.InvalidSignature)
	})
}

func TestVerify_Malformed(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})
	exp := testNow.Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one part", "abc"},
		{"two parts", "abc.def"},
		{"four parts", "a.b.c.d"},
		{"bad base64 header", "!!!.eyJzdWIiOiJ1In0.sig"},
		{"bad json payload", "eyJhbGciOiJIUzI1NiJ9.bm90LWpzb24.sig"},
		{"missing sub", signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"exp": exp})},
		{"empty sub", signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "", "exp": exp})},
		{"numeric sub", signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": 123, "exp": exp})},
		{"missing exp", signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "u-1"})},
		{"string exp", signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "u-1", "exp": "tomorrow"})},
		{"numeric roles", signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "u-1", "exp": exp, "roles": 7})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Verify(tt.token, testNow)
			wantCause(t, err, auth.MalformedToken)
		})
	}
}

func TestVerify_RolesAsString(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})
	tok := signMap(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "u-1", "exp": testNow.Add(time.Hour).Unix(), "roles": "ADMIN",
	})

	claims, err := c.Verify(tok, testNow)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !slices.Equal([]string(claims.Roles), []string{"ADMIN"}) {
		t.Errorf("Roles = %v, want [ADMIN]", claims.Roles)
	}
}

func TestVerify_IssuerAudienceNotBefore(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{Issuer: "interest", Audience: "user-service"})
	exp := testNow.Add(time.Hour).Unix()

	tests := []struct {
		name   string
		claims jwt.MapClaims
		wantOK bool
	}{
		{"valid", jwt.MapClaims{"sub": "u", "exp": exp, "iss": "interest", "aud": "user-service"}, true},
		{"wrong issuer", jwt.MapClaims{"sub": "u", "exp": exp, "iss": "evil", "aud": "user-service"}, false},
		{"missing audience", jwt.MapClaims{"sub": "u", "exp": exp, "iss": "interest"}, false},
		{"not yet valid", jwt.MapClaims{"sub": "u", "exp": exp, "iss": "interest", "aud": "user-service", "nbf": testNow.Add(time.Minute).Unix()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Verify(signMap(t, jwt.SigningMethodHS256, testSecret, tt.claims), testNow)
			if tt.wantOK {
				if err != nil {
					t.Errorf("Verify() error = %v", err)
				}
				return
			}
			wantCause(t, err, auth.MalformedToken)
		})
	}
}

func TestVerify_Deterministic(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})
	tok, _ := c.Issue("u-1", []string{"USER"}, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := c.Verify(tok, testNow); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		_, err := c.Verify(tok, testNow.Add(2*time.Minute))
		wantCause(t, err, auth.ExpiredToken)
	}
}

func TestClaims_Identity(t *testing.T) {
	c, _ := hmacCodec(t, testSecret, Config{})
	tok, _ := c.Issue("u-123", []string{"USER"}, time.Hour)
	claims, err := c.Verify(tok, testNow)
	if err != nil {
		t.Fatal(err)
	}

	id := claims.Identity()
	if id.Subject() != "u-123" || !id.HasRole("USER") || id.Anonymous() {
		t.Errorf("identity = %q %v anonymous=%v", id.Subject(), id.Roles(), id.Anonymous())
	}
	if id.TokenID() != claims.ID {
		t.Errorf("TokenID() = %q, want %q", id.TokenID(), claims.ID)
	}
}

func TestNewCodec_Validation(t *testing.T) {
	if _, err := NewCodec(nil, Config{}, nil); !errors.Is(err, keys.ErrNoKeyMaterial) {
		t.Errorf("nil material: error = %v", err)
	}
	m, _ := keys.FromSecret(jwt.SigningMethodHS256, testSecret)
	if _, err := NewCodec(m, Config{ClockSkew: -time.Second}, nil); err == nil {
		t.Error("Expected error for negative skew")
	}
}
