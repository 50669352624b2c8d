package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func testSecret(n int) []byte {
	return []byte(strings.Repeat("k", n))
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		alg     string
		wantErr bool
	}{
		{"HS256", false},
		{"RS512", false},
		{"ES384", false},
		{"PS256", false},
		{"EdDSA", false},
		{"none", true},
		{"NONE", true},
		{"", true},
		{"HS1024", true},
	}

	for _, tt := range tests {
		_, err := ParseAlgorithm(tt.alg)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAlgorithm(%q) error = %v, wantErr %v", tt.alg, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrUnsupportedAlgorithm) {
			t.Errorf("ParseAlgorithm(%q) error = %v, want ErrUnsupportedAlgorithm", tt.alg, err)
		}
	}
}

func TestFromSecret(t *testing.T) {
	m, err := FromSecret(jwt.SigningMethodHS256, testSecret(32))
	if err != nil {
		t.Fatalf("FromSecret() error = %v", err)
	}
	if !m.CanSign() || m.Algorithm() != "HS256" {
		t.Errorf("CanSign=%v Algorithm=%q", m.CanSign(), m.Algorithm())
	}
	if len(m.PublicJWKS().Keys) != 0 {
		t.Error("HMAC material must not publish keys")
	}

	if _, err := FromSecret(jwt.SigningMethodHS512, testSecret(32)); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("short HS512 secret: error = %v, want ErrWeakSecret", err)
	}
	if _, err := FromSecret(jwt.SigningMethodRS256, testSecret(64)); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("secret for RS256: error = %v, want ErrKeyMismatch", err)
	}
}

func TestFromPrivateKey(t *testing.T) {
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	_, edKey, _ := ed25519.GenerateKey(rand.Reader)

	t.Run("rsa with thumbprint kid", func(t *testing.T) {
		m, err := FromPrivateKey(jwt.SigningMethodRS256, "", rsaKey)
		if err != nil {
			t.Fatalf("FromPrivateKey() error = %v", err)
		}
		if m.KeyID() == "" {
			t.Error("Expected a derived key id")
		}
		set := m.PublicJWKS()
		if len(set.Keys) != 1 || !set.Keys[0].IsPublic() || set.Keys[0].KeyID != m.KeyID() {
			t.Errorf("PublicJWKS() = %+v", set)
		}
	})

	t.Run("ecdsa curve must match", func(t *testing.T) {
		if _, err := FromPrivateKey(jwt.SigningMethodES256, "k1", ecKey); err != nil {
			t.Errorf("ES256 with P-256: %v", err)
		}
		if _, err := FromPrivateKey(jwt.SigningMethodES384, "k1", ecKey); !errors.Is(err, ErrKeyMismatch) {
			t.Errorf("ES384 with P-256: error = %v, want ErrKeyMismatch", err)
		}
	})

	t.Run("family mismatch", func(t *testing.T) {
		if _, err := FromPrivateKey(jwt.SigningMethodRS256, "k1", edKey); !errors.Is(err, ErrKeyMismatch) {
			t.Errorf("RS256 with ed25519: error = %v, want ErrKeyMismatch", err)
		}
		if _, err := FromPrivateKey(jwt.SigningMethodHS256, "k1", rsaKey); !errors.Is(err, ErrKeyMismatch) {
			t.Errorf("HS256 with rsa: error = %v, want ErrKeyMismatch", err)
		}
	})

	t.Run("eddsa", func(t *testing.T) {
		m, err := FromPrivateKey(jwt.SigningMethodEdDSA, "ed", edKey)
		if err != nil {
			t.Fatalf("FromPrivateKey() error = %v", err)
		}
		if m.KeyID() != "ed" {
			t.Errorf("KeyID() = %q, want ed", m.KeyID())
		}
	})
}

func TestLoad_Sources(t *testing.T) {
	ctx := context.Background()

	if _, err := Load(ctx, Source{Algorithm: "HS256"}, nil); !errors.Is(err, ErrNoKeyMaterial) {
		t.Errorf("no source: error = %v, want ErrNoKeyMaterial", err)
	}

	both := Source{Algorithm: "HS256", Secret: testSecret(32), JWKSURL: "http://example.invalid"}
	if _, err := Load(ctx, both, nil); !errors.Is(err, ErrAmbiguousSource) {
		t.Errorf("two sources: error = %v, want ErrAmbiguousSource", err)
	}

	if _, err := Load(ctx, Source{Algorithm: "none", Secret: testSecret(32)}, nil); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("alg none: error = %v, want ErrUnsupportedAlgorithm", err)
	}

	m, err := Load(ctx, Source{Algorithm: "HS256", Secret: testSecret(32)}, nil)
	if err != nil {
		t.Fatalf("secret source: %v", err)
	}
	if m.Origin() != "secret" {
		t.Errorf("Origin() = %q", m.Origin())
	}
}

func TestLoad_PrivateKeyFile(t *testing.T) {
	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "signing.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := Load(context.Background(), Source{Algorithm: "ES256", PrivateKeyFile: path, KeyID: "k-1"}, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !m.CanSign() || m.KeyID() != "k-1" {
		t.Errorf("CanSign=%v KeyID=%q", m.CanSign(), m.KeyID())
	}
	if !strings.HasPrefix(m.Origin(), "file:") {
		t.Errorf("Origin() = %q", m.Origin())
	}

	if _, err := Load(context.Background(), Source{Algorithm: "RS256", PrivateKeyFile: path}, nil); err == nil {
		t.Error("Expected error loading an EC key for RS256")
	}
}
