// Package config loads the gate's multi-document YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/Heahaidu/interest-project/pkg/policy"
)

// DefaultAddress is the listen address when none is configured.
const DefaultAddress = ":8080"

// Config holds all loaded configuration resources.
type Config struct {
	Gate     *Gate
	Policies []*RoutePolicy
	Accounts []*Account
}

// Env holds environment overrides. They win over the file so that secrets
// need not be written to disk.
type Env struct {
	Address       string        `env:"GATE_ADDRESS"`
	SigningSecret Secret        `env:"GATE_SIGNING_SECRET"`
	JWKSURL       string        `env:"GATE_JWKS_URL"`
	OIDCIssuer    string        `env:"GATE_OIDC_ISSUER"`
	ClockSkew     time.Duration `env:"GATE_CLOCK_SKEW"`
}

// Load reads configuration from a file path and applies environment overrides
// and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Parse parses configuration from YAML bytes.
// Supports multi-document YAML (separated by ---).
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	decoder := yaml.NewDecoder(bytes.NewReader(data))

	for {
		var raw map[string]any
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode YAML document: %w", err)
		}

		if raw == nil {
			continue
		}

		kind, _ := raw["kind"].(string)
		apiVersion, _ := raw["apiVersion"].(string)

		if apiVersion != "" && apiVersion != APIVersion {
			return nil, fmt.Errorf("unsupported apiVersion: %s (expected %s)", apiVersion, APIVersion)
		}

		docBytes, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to re-marshal document: %w", err)
		}

		switch kind {
		case KindGate:
			var g Gate
			if err := yaml.Unmarshal(docBytes, &g); err != nil {
				return nil, fmt.Errorf("failed to parse Gate: %w", err)
			}
			if cfg.Gate != nil {
				return nil, fmt.Errorf("multiple Gate resources found")
			}
			cfg.Gate = &g

		case KindRoutePolicy:
			var rp RoutePolicy
			if err := yaml.Unmarshal(docBytes, &rp); err != nil {
				return nil, fmt.Errorf("failed to parse RoutePolicy: %w", err)
			}
			cfg.Policies = append(cfg.Policies, &rp)

		case KindAccount:
			var acct Account
			if err := yaml.Unmarshal(docBytes, &acct); err != nil {
				return nil, fmt.Errorf("failed to parse Account: %w", err)
			}
			if acct.Metadata.Name == "" {
				return nil, fmt.Errorf("Account must have metadata.name")
			}
			cfg.Accounts = append(cfg.Accounts, &acct)

		case "":
			return nil, fmt.Errorf("document missing 'kind' field")

		default:
			return nil, fmt.Errorf("unknown kind: %s", kind)
		}
	}

	return cfg, nil
}

// ApplyEnv overlays environment overrides onto the Gate resource, creating
// one if the file had none.
func (c *Config) ApplyEnv() error {
	var env Env
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	c.applyEnv(env)
	return nil
}

func (c *Config) applyEnv(env Env) {
	if c.Gate == nil {
		c.Gate = &Gate{TypeMeta: TypeMeta{APIVersion: APIVersion, Kind: KindGate}}
	}
	spec := &c.Gate.Spec
	if env.Address != "" {
		spec.Address = env.Address
	}
	if env.SigningSecret != "" {
		spec.Signing.Secret = env.SigningSecret
	}
	if env.JWKSURL != "" {
		spec.Signing.JWKSURL = env.JWKSURL
	}
	if env.OIDCIssuer != "" {
		spec.Signing.OIDCIssuer = env.OIDCIssuer
	}
	if env.ClockSkew != 0 {
		spec.Token.ClockSkew = Duration(env.ClockSkew)
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Gate == nil {
		c.Gate = &Gate{TypeMeta: TypeMeta{APIVersion: APIVersion, Kind: KindGate}}
	}
	spec := &c.Gate.Spec
	if spec.Address == "" {
		spec.Address = DefaultAddress
	}
	if spec.Token.TTL == 0 {
		spec.Token.TTL = Duration(time.Hour)
	}
}

// Rules returns the route rules of every RoutePolicy in document order.
func (c *Config) Rules() []policy.Rule {
	var rules []policy.Rule
	for _, rp := range c.Policies {
		rules = append(rules, rp.Spec.Rules...)
	}
	return rules
}

// Validate checks the configuration for errors. Key material and route
// conflicts are checked when the gate is built, not here.
func (c *Config) Validate() error {
	if c.Gate == nil {
		return fmt.Errorf("a Gate resource is required")
	}
	spec := c.Gate.Spec
	if spec.Signing.Algorithm == "" {
		return fmt.Errorf("Gate spec.signing.algorithm is required")
	}
	if spec.Token.TTL < 0 {
		return fmt.Errorf("Gate spec.token.ttl must be >= 0")
	}
	if spec.Token.ClockSkew < 0 {
		return fmt.Errorf("Gate spec.token.clockSkew must be >= 0")
	}
	if spec.CORS != nil && spec.CORS.MaxAge < 0 {
		return fmt.Errorf("Gate spec.cors.maxAge must be >= 0")
	}

	for _, rp := range c.Policies {
		if err := rp.Spec.Validate(); err != nil {
			return fmt.Errorf("RoutePolicy %q: %w", rp.Metadata.Name, err)
		}
	}

	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.Spec.Subject == "" {
			return fmt.Errorf("Account %q must have spec.subject", a.Metadata.Name)
		}
		if a.Spec.Email == "" && a.Spec.Username == "" {
			return fmt.Errorf("Account %q must have spec.email or spec.username", a.Metadata.Name)
		}
		if a.Spec.PasswordHash == "" {
			return fmt.Errorf("Account %q must have spec.passwordHash", a.Metadata.Name)
		}
		if seen[a.Metadata.Name] {
			return fmt.Errorf("duplicate Account name: %s", a.Metadata.Name)
		}
		seen[a.Metadata.Name] = true
	}
	return nil
}

// UnmarshalYAML implements custom YAML unmarshaling for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements custom YAML marshaling for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}
