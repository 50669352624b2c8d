package config

import (
	"time"

	"github.com/Heahaidu/interest-project/pkg/policy"
)

const (
	APIVersion = "gate.interest.dev/v1alpha1"

	KindGate        = "Gate"
	KindRoutePolicy = "RoutePolicy"
	KindAccount     = "Account"
)

// TypeMeta describes the API version and kind of a resource.
type TypeMeta struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Kind       string `yaml:"kind" json:"kind"`
}

// ObjectMeta contains metadata that all resources have.
type ObjectMeta struct {
	Name        string            `yaml:"name" json:"name"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// Gate configures the gate server.
type Gate struct {
	TypeMeta `yaml:",inline" json:",inline"`
	Metadata ObjectMeta `yaml:"metadata" json:"metadata"`
	Spec     GateSpec   `yaml:"spec" json:"spec"`
}

// GateSpec defines the gate's listener, keys and token settings.
type GateSpec struct {
	Address string `yaml:"address,omitempty" json:"address,omitempty"` // Listen address (default: :8080)
	Realm   string `yaml:"realm,omitempty" json:"realm,omitempty"`     // Advertised in WWW-Authenticate

	Signing SigningSpec `yaml:"signing" json:"signing"`
	Token   TokenSpec   `yaml:"token,omitempty" json:"token,omitempty"`
	CORS    *CORSSpec   `yaml:"cors,omitempty" json:"cors,omitempty"`

	// ExcludedPaths bypass the gate entirely (health probes, metrics).
	ExcludedPaths []string `yaml:"excludedPaths,omitempty" json:"excludedPaths,omitempty"`
}

// SigningSpec selects the key material. Exactly one of Secret,
// PrivateKeyFile, JWKSFile, JWKSURL or OIDCIssuer must be set.
type SigningSpec struct {
	Algorithm      string `yaml:"algorithm" json:"algorithm"`
	KeyID          string `yaml:"keyId,omitempty" json:"keyId,omitempty"`
	Secret         Secret `yaml:"secret,omitempty" json:"secret,omitempty"`
	PrivateKeyFile string `yaml:"privateKeyFile,omitempty" json:"privateKeyFile,omitempty"`
	JWKSFile       string `yaml:"jwksFile,omitempty" json:"jwksFile,omitempty"`
	JWKSURL        string `yaml:"jwksURL,omitempty" json:"jwksURL,omitempty"`
	OIDCIssuer     string `yaml:"oidcIssuer,omitempty" json:"oidcIssuer,omitempty"`
}

// TokenSpec configures token claims and verification tolerance.
type TokenSpec struct {
	Issuer    string   `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience  string   `yaml:"audience,omitempty" json:"audience,omitempty"`
	TTL       Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	ClockSkew Duration `yaml:"clockSkew,omitempty" json:"clockSkew,omitempty"`
	Cookie    string   `yaml:"cookie,omitempty" json:"cookie,omitempty"` // Optional cookie read after the Authorization header
}

// CORSSpec configures cross-origin headers.
type CORSSpec struct {
	AllowedOrigins   []string `yaml:"allowedOrigins,omitempty" json:"allowedOrigins,omitempty"`
	AllowedMethods   []string `yaml:"allowedMethods,omitempty" json:"allowedMethods,omitempty"`
	AllowedHeaders   []string `yaml:"allowedHeaders,omitempty" json:"allowedHeaders,omitempty"`
	ExposedHeaders   []string `yaml:"exposedHeaders,omitempty" json:"exposedHeaders,omitempty"`
	AllowCredentials bool     `yaml:"allowCredentials,omitempty" json:"allowCredentials,omitempty"`
	MaxAge           int      `yaml:"maxAge,omitempty" json:"maxAge,omitempty"` // Seconds
}

// RoutePolicy holds an ordered list of route rules. Multiple RoutePolicy
// documents are concatenated in file order.
type RoutePolicy struct {
	TypeMeta `yaml:",inline" json:",inline"`
	Metadata ObjectMeta    `yaml:"metadata" json:"metadata"`
	Spec     policy.Policy `yaml:"spec" json:"spec"`
}

// Account is a principal that may log in.
type Account struct {
	TypeMeta `yaml:",inline" json:",inline"`
	Metadata ObjectMeta  `yaml:"metadata" json:"metadata"`
	Spec     AccountSpec `yaml:"spec" json:"spec"`
}

// AccountSpec defines an account's identifiers and roles.
type AccountSpec struct {
	Email        string   `yaml:"email,omitempty" json:"email,omitempty"`
	Username     string   `yaml:"username,omitempty" json:"username,omitempty"`
	PasswordHash string   `yaml:"passwordHash" json:"passwordHash"` // bcrypt
	Subject      string   `yaml:"subject" json:"subject"`
	Roles        []string `yaml:"roles,omitempty" json:"roles,omitempty"`
}

// Duration wraps time.Duration for YAML/JSON marshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
