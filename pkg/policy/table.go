package policy

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/Heahaidu/interest-project/pkg/auth"
)

// compiledRule is a Rule ready for matching.
type compiledRule struct {
	Rule
	index   int
	req     Requirement
	pat     pattern
	methods map[string]bool // nil means any method
	program cel.Program
}

func (r *compiledRule) allows(method string) bool {
	if r.methods == nil {
		return true
	}
	if method == "" {
		return false
	}
	return r.methods[method]
}

// Table is an immutable, compiled route policy.
// It is safe for concurrent use.
type Table struct {
	rules []*compiledRule

	// literal indexes fully literal patterns by path; wildcard holds the rest.
	// Both preserve declaration order.
	literal  map[string][]*compiledRule
	wildcard []*compiledRule
}

// Match is the result of resolving a request against the table.
type Match struct {
	// Requirement is the access level that applies.
	Requirement Requirement

	// Rule is the index of the winning rule, or -1 when no rule matched.
	Rule int

	// Pattern is the winning rule's pattern, or "" for the default.
	Pattern string

	// Params holds values captured by {name} segments.
	Params map[string]string

	rule *compiledRule
}

// Default reports whether no rule matched.
func (m Match) Default() bool {
	return m.Rule < 0
}

// Label names the matched rule for logs.
func (m Match) Label() string {
	if m.rule == nil {
		return "default"
	}
	return m.rule.Label()
}

// New compiles rules into a Table.
//
// It fails on invalid patterns, unknown access kinds, owner parameters that
// the pattern does not capture, conditions that do not compile to a bool, and
// on two rules with the same pattern and overlapping methods but different
// requirements. Exact duplicates are accepted; the later one is unreachable.
func New(rules []Rule) (*Table, error) {
	p := &Policy{Rules: rules}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	env, err := newConditionEnv()
	if err != nil {
		return nil, err
	}

	t := &Table{literal: make(map[string][]*compiledRule)}
	byShape := make(map[string][]*compiledRule)

	for i, rule := range rules {
		pat, _ := compilePattern(rule.Pattern)
		req, _ := rule.Requirement()

		cr := &compiledRule{Rule: rule, index: i, req: req, pat: pat}
		if len(rule.Methods) > 0 {
			cr.methods = make(map[string]bool, len(rule.Methods))
			for _, m := range rule.Methods {
				cr.methods[strings.ToUpper(m)] = true
			}
		}

		if rule.Owner != "" && !slices.Contains(pat.params(), rule.Owner) {
			return nil, fmt.Errorf("rule %d (%s): owner %q is not a parameter of the pattern", i, rule.Label(), rule.Owner)
		}

		if rule.Condition != "" {
			prg, err := compileCondition(env, rule.Condition)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Label(), err)
			}
			cr.program = prg
		}

		shape := pat.shape()
		for _, prev := range byShape[shape] {
			if conflicts(prev, cr) {
				return nil, fmt.Errorf("rule %d (%s) conflicts with rule %d (%s): same pattern, different requirement",
					i, rule.Label(), prev.index, prev.Label())
			}
		}
		byShape[shape] = append(byShape[shape], cr)

		t.rules = append(t.rules, cr)
		if pat.literal() {
			key := CleanPath(rule.Pattern)
			t.literal[key] = append(t.literal[key], cr)
		} else {
			t.wildcard = append(t.wildcard, cr)
		}
	}

	return t, nil
}

// conflicts reports whether two rules of the same shape disagree for some method.
func conflicts(a, b *compiledRule) bool {
	if !methodsOverlap(a.methods, b.methods) {
		return false
	}
	return a.req != b.req || a.Owner != b.Owner || a.Condition != b.Condition
}

func methodsOverlap(a, b map[string]bool) bool {
	if a == nil || b == nil {
		return true
	}
	for m := range a {
		if b[m] {
			return true
		}
	}
	return false
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Rules returns a copy of the rules in declaration order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.Rule
		out[i].Methods = slices.Clone(r.Methods)
	}
	return out
}

// Classify returns the requirement for path without regard to method.
// Rules restricted to specific methods are skipped.
func (t *Table) Classify(path string) Requirement {
	return t.Resolve("", path).Requirement
}

// Resolve finds the first rule matching method and path.
// An empty method only matches rules without a method list.
func (t *Table) Resolve(method, path string) Match {
	method = strings.ToUpper(method)
	cleaned := CleanPath(path)
	parts := splitPath(cleaned)

	// A literal hit bounds the wildcard scan: only wildcard rules declared
	// before it can still win.
	var hit *compiledRule
	for _, r := range t.literal[cleaned] {
		if r.allows(method) {
			hit = r
			break
		}
	}

	for _, r := range t.wildcard {
		if hit != nil && r.index > hit.index {
			break
		}
		if !r.allows(method) {
			continue
		}
		params := make(map[string]string)
		if r.pat.match(parts, params) {
			return newMatch(r, params)
		}
	}

	if hit != nil {
		return newMatch(hit, nil)
	}
	return Match{Requirement: AuthenticatedAccess(), Rule: -1}
}

func newMatch(r *compiledRule, params map[string]string) Match {
	if len(params) == 0 {
		params = nil
	}
	return Match{
		Requirement: r.req,
		Rule:        r.index,
		Pattern:     r.Pattern,
		Params:      params,
		rule:        r,
	}
}

// Request carries the request attributes rule checks can read.
type Request struct {
	Method string
	Path   string
}

// Permit checks the role, owner and condition of the matched rule against id.
// It returns nil when the caller may proceed and an InsufficientRole
// rejection otherwise. Public matches always pass.
func (m Match) Permit(id *auth.Identity, req Request) error {
	if !m.Requirement.Protected() {
		return nil
	}
	if id == nil || id.Anonymous() {
		return auth.Reject(auth.MissingToken, "no identity")
	}

	if m.Requirement.Kind == RoleRequired && !id.HasRole(m.Requirement.Role) {
		return auth.Reject(auth.InsufficientRole, "rule %s requires role %s", m.Label(), m.Requirement.Role)
	}

	if m.rule == nil {
		return nil
	}

	if owner := m.rule.Owner; owner != "" && m.Params[owner] != id.Subject() {
		return auth.Reject(auth.InsufficientRole, "rule %s requires %s to match subject", m.Label(), owner)
	}

	if m.rule.program != nil {
		ok, err := evalCondition(m.rule.program, id, req, m.Params)
		if err != nil {
			return auth.Wrap(auth.InsufficientRole, err, "rule "+m.Label()+" condition")
		}
		if !ok {
			return auth.Reject(auth.InsufficientRole, "rule %s condition is false", m.Label())
		}
	}
	return nil
}

// ParamNames returns the captured parameter names in sorted order.
func (m Match) ParamNames() []string {
	return slices.Sorted(maps.Keys(m.Params))
}
