package policy

import (
	"fmt"
	"strings"
)

// Kind is the access level a route demands.
// The zero value is Authenticated so an unset requirement fails closed.
type Kind int

const (
	Authenticated Kind = iota
	Public
	RoleRequired
)

// Access names used in configuration.
const (
	AccessPublic        = "public"
	AccessAuthenticated = "authenticated"
	AccessRole          = "role"
)

func (k Kind) String() string {
	switch k {
	case Public:
		return AccessPublic
	case Authenticated:
		return AccessAuthenticated
	case RoleRequired:
		return AccessRole
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses an access name. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case AccessPublic, "permitall", "permit-all":
		return Public, nil
	case AccessAuthenticated, "":
		return Authenticated, nil
	case AccessRole, "hasrole", "has-role":
		return RoleRequired, nil
	default:
		return 0, fmt.Errorf("unknown access %q (want public, authenticated or role)", s)
	}
}

// Requirement is what a request must present to reach a route.
type Requirement struct {
	Kind Kind
	Role string
}

// PublicAccess admits anyone.
func PublicAccess() Requirement { return Requirement{Kind: Public} }

// AuthenticatedAccess admits any caller with a valid token.
func AuthenticatedAccess() Requirement { return Requirement{Kind: Authenticated} }

// RequireRole admits callers whose token carries role.
func RequireRole(role string) Requirement { return Requirement{Kind: RoleRequired, Role: role} }

// Protected reports whether a token is needed.
func (r Requirement) Protected() bool {
	return r.Kind != Public
}

func (r Requirement) String() string {
	if r.Kind == RoleRequired {
		return "role:" + r.Role
	}
	return r.Kind.String()
}
