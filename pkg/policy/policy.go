// Package policy classifies request paths into access requirements.
//
// A Table is compiled once from an ordered list of rules and never changes
// afterwards. The first rule in declaration order whose pattern (and method
// list, when present) matches the request wins; a path no rule matches
// requires authentication.
package policy

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the ordered rule list as it appears in configuration.
type Policy struct {
	// Rules are evaluated in declaration order. The first match wins.
	Rules []Rule `yaml:"rules" json:"rules"`
}

// Rule maps a path pattern to an access requirement.
type Rule struct {
	// Name identifies the rule in logs and lint output. Optional.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Pattern is a path template. Segments may be literals, "*" (exactly one
	// segment), "{name}" (one segment, captured) or a trailing "**".
	Pattern string `yaml:"pattern" json:"pattern"`

	// Methods restricts the rule to these HTTP methods. Empty means any.
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`

	// Access is one of public, authenticated or role.
	Access string `yaml:"access" json:"access"`

	// Role is required when Access is role.
	Role string `yaml:"role,omitempty" json:"role,omitempty"`

	// Owner names a pattern parameter that must equal the caller's subject.
	Owner string `yaml:"owner,omitempty" json:"owner,omitempty"`

	// Condition is a CEL expression that must evaluate to true. It can read:
	//   - identity.subject (string)
	//   - identity.roles (list of string)
	//   - request.method (string)
	//   - request.path (string)
	//   - request.params (map of string to string)
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Label returns the rule name, or its pattern when unnamed.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Pattern
}

// Requirement parses Access and Role.
func (r Rule) Requirement() (Requirement, error) {
	kind, err := ParseKind(r.Access)
	if err != nil {
		return Requirement{}, err
	}
	switch {
	case kind == RoleRequired && r.Role == "":
		return Requirement{}, fmt.Errorf("access role requires a role")
	case kind != RoleRequired && r.Role != "":
		return Requirement{}, fmt.Errorf("role %q given with access %s", r.Role, kind)
	}
	return Requirement{Kind: kind, Role: r.Role}, nil
}

// LoadPolicy loads a route policy from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	return ParsePolicy(data)
}

// ParsePolicy parses a route policy from YAML data.
func ParsePolicy(data []byte) (*Policy, error) {
	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse policy YAML: %w", err)
	}

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("validate policy: %w", err)
	}

	return &policy, nil
}

// Validate checks each rule in isolation. Cross-rule conflicts are detected
// by New.
func (p *Policy) Validate() error {
	for i, rule := range p.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("rule %d: pattern is required", i)
		}
		if _, err := compilePattern(rule.Pattern); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		req, err := rule.Requirement()
		if err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rule.Label(), err)
		}
		if req.Kind == Public && (rule.Owner != "" || rule.Condition != "") {
			return fmt.Errorf("rule %d (%s): public rules cannot carry owner or condition", i, rule.Label())
		}
		for _, m := range rule.Methods {
			if !validMethod(m) {
				return fmt.Errorf("rule %d (%s): invalid method %q", i, rule.Label(), m)
			}
		}
	}
	return nil
}

func validMethod(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
