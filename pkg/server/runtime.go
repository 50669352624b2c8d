// Package server assembles a running gate from configuration: key material,
// token codec, route table, login handler and the HTTP routes around them.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/Heahaidu/interest-project/pkg/auth"
	"github.com/Heahaidu/interest-project/pkg/clock"
	"github.com/Heahaidu/interest-project/pkg/config"
	"github.com/Heahaidu/interest-project/pkg/gate"
	"github.com/Heahaidu/interest-project/pkg/keys"
	"github.com/Heahaidu/interest-project/pkg/login"
	"github.com/Heahaidu/interest-project/pkg/metrics"
	"github.com/Heahaidu/interest-project/pkg/policy"
	"github.com/Heahaidu/interest-project/pkg/retry"
	"github.com/Heahaidu/interest-project/pkg/token"
)

// Paths the server always serves outside the gate.
const (
	HealthzPath = "/healthz"
	ReadyzPath  = "/readyz"
	JWKSPath    = "/.well-known/jwks.json"
	MetricsPath = "/metrics"
)

// Options carries the process-wide collaborators a Runtime is built with.
type Options struct {
	Logger     *slog.Logger
	Metrics    *metrics.PrometheusMetrics
	HTTPClient *http.Client
	Clock      clock.Clock

	// Retry governs remote key fetches. The zero value makes one attempt.
	Retry retry.Config
}

// Runtime is one immutable build of the configuration. Reloading builds a new
// Runtime and swaps it into the Server.
type Runtime struct {
	Material *keys.Material
	Codec    *token.Codec
	Table    *policy.Table
	Gate     *gate.Gate
	CORS     gate.CORS

	// Login is nil when the key material cannot sign.
	Login *login.Handler

	// Findings are lint results for the route rules.
	Findings []policy.Finding

	jwks http.Handler
}

// Build validates cfg and assembles a Runtime. Any error leaves nothing
// running; callers keep serving with the previous Runtime.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	spec := cfg.Gate.Spec

	material, err := keys.Load(ctx, keys.Source{
		Algorithm:      spec.Signing.Algorithm,
		KeyID:          spec.Signing.KeyID,
		Secret:         []byte(spec.Signing.Secret.Value()),
		PrivateKeyFile: spec.Signing.PrivateKeyFile,
		JWKSFile:       spec.Signing.JWKSFile,
		JWKSURL:        spec.Signing.JWKSURL,
		OIDCIssuer:     spec.Signing.OIDCIssuer,
		Retry:          opts.Retry,
	}, opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to load key material: %w", err)
	}

	codec, err := token.NewCodec(material, token.Config{
		Issuer:    spec.Token.Issuer,
		Audience:  spec.Token.Audience,
		TTL:       spec.Token.TTL.Duration(),
		ClockSkew: spec.Token.ClockSkew.Duration(),
	}, opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	rules := cfg.Rules()
	table, err := policy.New(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile route policy: %w", err)
	}

	var source auth.TokenSource = auth.NewHeaderSource()
	if spec.Token.Cookie != "" {
		source = auth.NewChainSource(auth.NewHeaderSource(), auth.NewCookieSource(spec.Token.Cookie))
	}

	excluded := append([]string{HealthzPath, ReadyzPath, JWKSPath}, spec.ExcludedPaths...)
	slices.Sort(excluded)
	excluded = slices.Compact(excluded)

	gcfg := gate.Config{
		Table:         table,
		Verifier:      codec,
		Source:        source,
		Clock:         opts.Clock,
		Logger:        opts.Logger.With(slog.String("component", "gate")),
		Realm:         spec.Realm,
		ExcludedPaths: excluded,
	}
	if opts.Metrics != nil {
		gcfg.Metrics = opts.Metrics
	}
	g, err := gate.New(gcfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Material: material,
		Codec:    codec,
		Table:    table,
		Gate:     g,
		Findings: policy.Lint(rules),
		jwks:     material.JWKSHandler(),
	}
	if c := spec.CORS; c != nil {
		rt.CORS = gate.CORS{
			AllowedOrigins:   c.AllowedOrigins,
			AllowedMethods:   c.AllowedMethods,
			AllowedHeaders:   c.AllowedHeaders,
			ExposedHeaders:   c.ExposedHeaders,
			AllowCredentials: c.AllowCredentials,
			MaxAge:           c.MaxAge,
		}
	}

	if codec.CanIssue() {
		lcfg := login.Config{
			Accounts: accounts(cfg.Accounts),
			Issuer:   codec,
			Logger:   opts.Logger.With(slog.String("component", "login")),
		}
		if opts.Metrics != nil {
			lcfg.Metrics = opts.Metrics
		}
		rt.Login, err = login.NewHandler(lcfg)
		if err != nil {
			return nil, err
		}
	}

	return rt, nil
}

func accounts(in []*config.Account) []login.Account {
	out := make([]login.Account, 0, len(in))
	for _, a := range in {
		out = append(out, login.Account{
			Name:         a.Metadata.Name,
			Email:        a.Spec.Email,
			Username:     a.Spec.Username,
			PasswordHash: a.Spec.PasswordHash,
			Subject:      a.Spec.Subject,
			Roles:        a.Spec.Roles,
		})
	}
	return out
}

// LogFindings writes one warning per lint finding.
func (rt *Runtime) LogFindings(logger *slog.Logger) {
	for _, f := range rt.Findings {
		logger.Warn("route policy finding",
			slog.Int("rule", f.Rule),
			slog.String("pattern", f.Pattern),
			slog.String("severity", string(f.Severity)),
			slog.String("message", f.Message),
		)
	}
}
