// Package auth holds the request-scoped identity produced by the gate and the
// rejection values it renders when a request is refused.
//
// An Identity is built once per request from verified token claims and is
// never mutated afterwards. A Rejection is an ordinary error value carrying one
// of a fixed set of causes; Render converts it into the wire response.
package auth

import (
	"context"
	"slices"
	"time"
)

// Identity represents the caller of a single request.
// The zero value is not useful; use NewIdentity or Anonymous.
type Identity struct {
	subject   string
	roles     []string
	tokenID   string
	issuedAt  time.Time
	expiresAt time.Time
	anonymous bool
}

// NewIdentity creates an authenticated Identity.
// The roles slice is copied.
func NewIdentity(subject string, roles []string, tokenID string, issuedAt, expiresAt time.Time) *Identity {
	return &Identity{
		subject:   subject,
		roles:     slices.Clone(roles),
		tokenID:   tokenID,
		issuedAt:  issuedAt,
		expiresAt: expiresAt,
	}
}

var anonymous = &Identity{anonymous: true}

// Anonymous returns the identity attached to requests admitted by a public rule.
func Anonymous() *Identity {
	return anonymous
}

// Subject returns the subject identifier, or "" for an anonymous identity.
func (id *Identity) Subject() string {
	return id.subject
}

// Roles returns a copy of the caller's roles.
func (id *Identity) Roles() []string {
	return slices.Clone(id.roles)
}

// HasRole reports whether the caller holds role. Comparison is exact.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.roles, role)
}

// Anonymous reports whether the identity carries no authenticated subject.
func (id *Identity) Anonymous() bool {
	return id.anonymous
}

// TokenID returns the jti of the token the identity was derived from.
func (id *Identity) TokenID() string {
	return id.tokenID
}

// IssuedAt returns the token's iat, or the zero time.
func (id *Identity) IssuedAt() time.Time {
	return id.issuedAt
}

// ExpiresAt returns the token's exp, or the zero time for anonymous identities.
func (id *Identity) ExpiresAt() time.Time {
	return id.expiresAt
}

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	identityKey contextKey = iota
)

// IdentityFromContext retrieves the Identity attached by the gate.
// Returns nil if the request never passed through a gate.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// ContextWithIdentity returns a new context with the given Identity attached.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
