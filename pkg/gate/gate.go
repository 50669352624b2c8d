// Package gate admits or rejects requests according to a route policy and the
// bearer token they carry.
//
// A Gate is built once from a policy table, a token codec and a token source
// and is never modified afterwards. Each request walks
// Start -> PolicyResolved -> Admitted | Rejected. Admitted requests reach the
// downstream handler with an auth.Identity in their context; rejected requests
// are answered by auth.Render and go no further.
package gate

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Heahaidu/interest-project/pkg/auth"
	"github.com/Heahaidu/interest-project/pkg/clock"
	"github.com/Heahaidu/interest-project/pkg/policy"
	"github.com/Heahaidu/interest-project/pkg/token"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// State is a step of the per-request state machine.
type State int

const (
	StateStart State = iota
	StatePolicyResolved
	StateAdmitted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StatePolicyResolved:
		return "policy_resolved"
	case StateAdmitted:
		return "admitted"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Verifier checks a raw token at a given time.
// *token.Codec implements it.
type Verifier interface {
	Verify(tokenString string, now time.Time) (*token.Claims, error)
}

// Recorder receives decision metrics. A nil Recorder is allowed.
type Recorder interface {
	ObserveDecision(outcome, cause string)
	ObserveVerify(d time.Duration)
}

// Config wires a Gate. Table and Verifier are required.
type Config struct {
	Table    *policy.Table
	Verifier Verifier

	// Source extracts the raw token. Defaults to the Authorization header.
	Source auth.TokenSource

	// Clock supplies "now" for verification. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives one record per decision. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics, when set, is told about every decision.
	Metrics Recorder

	// Realm is advertised in WWW-Authenticate challenges.
	Realm string

	// ExcludedPaths bypass the gate entirely; no identity is attached.
	ExcludedPaths []string
}

// Gate is an immutable request gate. It is safe for concurrent use.
type Gate struct {
	table    *policy.Table
	verifier Verifier
	source   auth.TokenSource
	clock    clock.Clock
	logger   *slog.Logger
	metrics  Recorder
	realm    string
	excluded map[string]bool
}

var (
	// ErrNoTable is returned by New without a policy table.
	ErrNoTable = errors.New("gate: policy table is required")

	// ErrNoVerifier is returned by New without a token verifier.
	ErrNoVerifier = errors.New("gate: token verifier is required")
)

// New creates a Gate.
func New(cfg Config) (*Gate, error) {
	if cfg.Table == nil {
		return nil, ErrNoTable
	}
	if cfg.Verifier == nil {
		return nil, ErrNoVerifier
	}
	if cfg.Source == nil {
		cfg.Source = auth.NewHeaderSource()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	excluded := make(map[string]bool, len(cfg.ExcludedPaths))
	for _, p := range cfg.ExcludedPaths {
		excluded[p] = true
	}

	return &Gate{
		table:    cfg.Table,
		verifier: cfg.Verifier,
		source:   cfg.Source,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		realm:    cfg.Realm,
		excluded: excluded,
	}, nil
}

// Table returns the policy table the gate enforces.
func (g *Gate) Table() *policy.Table {
	return g.table
}

// Decision is the outcome of running a request through the gate.
type Decision struct {
	State     State
	Match     policy.Match
	Identity  *auth.Identity
	Rejection *auth.Rejection
}

// Admitted reports whether the request may proceed.
func (d Decision) Admitted() bool {
	return d.State == StateAdmitted
}

func (d *Decision) admit(id *auth.Identity) {
	d.State = StateAdmitted
	d.Identity = id
}

func (d *Decision) reject(r *auth.Rejection) {
	d.State = StateRejected
	d.Rejection = r
}

// Decide runs the state machine for r. It never retries verification and has
// no side effects on the gate.
func (g *Gate) Decide(r *http.Request) Decision {
	d := Decision{State: StateStart}

	cleaned := policy.CleanPath(r.URL.Path)
	d.Match = g.table.Resolve(r.Method, cleaned)
	d.State = StatePolicyResolved

	if !d.Match.Requirement.Protected() {
		d.admit(auth.Anonymous())
		return d
	}

	raw, ok, err := g.source.Extract(r)
	if err != nil {
		d.reject(auth.Wrap(auth.MalformedToken, err, "extract"))
		return d
	}
	if !ok {
		d.reject(auth.Reject(auth.MissingToken, "no bearer token"))
		return d
	}

	start := time.Now()
	claims, err := g.verifier.Verify(raw, g.clock.Now())
	if g.metrics != nil {
		g.metrics.ObserveVerify(time.Since(start))
	}
	if err != nil {
		rej, ok := auth.AsRejection(err)
		if !ok {
			rej = auth.Wrap(auth.MalformedToken, err, "verify")
		}
		d.reject(rej)
		return d
	}

	id := claims.Identity()
	if err := d.Match.Permit(id, policy.Request{Method: r.Method, Path: cleaned}); err != nil {
		rej, ok := auth.AsRejection(err)
		if !ok {
			rej = auth.Wrap(auth.InsufficientRole, err, "permit")
		}
		d.reject(rej)
		return d
	}

	d.admit(id)
	return d
}

// Wrap returns middleware that enforces the gate in front of next.
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, next)
	})
}

func (g *Gate) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if g.excluded[r.URL.Path] {
		next.ServeHTTP(w, r)
		return
	}

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	d := g.Decide(r)
	g.record(r, requestID, d)

	if !d.Admitted() {
		auth.Render(w, d.Rejection, g.realm)
		return
	}
	next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), d.Identity)))
}

// record logs and counts a decision. Tokens are never logged.
func (g *Gate) record(r *http.Request, requestID string, d Decision) {
	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("rule", d.Match.Rule),
		slog.String("requirement", d.Match.Requirement.String()),
	}

	if d.Admitted() {
		if g.metrics != nil {
			g.metrics.ObserveDecision("admitted", "")
		}
		if !d.Identity.Anonymous() {
			attrs = append(attrs, slog.String("subject", d.Identity.Subject()))
		}
		g.logger.Debug("request admitted", attrs...)
		return
	}

	cause := d.Rejection.Cause.String()
	if g.metrics != nil {
		g.metrics.ObserveDecision("rejected", cause)
	}
	attrs = append(attrs, slog.String("cause", cause), slog.String("reason", d.Rejection.Message))
	g.logger.Info("request rejected", attrs...)
}

// ExcludedPaths returns the paths that bypass the gate, sorted.
func (g *Gate) ExcludedPaths() []string {
	paths := make([]string, 0, len(g.excluded))
	for p := range g.excluded {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}
