package policy

import (
	"fmt"
	"strings"
)

// Severity ranks lint findings.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding is a rule that deserves a second look. Findings never stop a table
// from being built.
type Finding struct {
	Rule     int
	Pattern  string
	Severity Severity
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("rule %d (%s): %s: %s", f.Rule, f.Pattern, f.Severity, f.Message)
}

// mutatingWords mark path segments that usually change state.
var mutatingWords = map[string]bool{
	"add": true, "approve": true, "ban": true, "create": true, "delete": true,
	"edit": true, "follow": true, "join": true, "kick": true, "leave": true,
	"remove": true, "unfollow": true, "update": true, "upload": true,
}

// Lint reports permissive or unreachable rules:
//   - public rules ending in ** expose everything under their prefix
//   - public rules whose literal segments read like state-changing operations
//   - public rules restricted to mutating methods
//   - rules fully covered by an earlier rule, which can never match
func Lint(rules []Rule) []Finding {
	var findings []Finding
	compiled := make([]pattern, len(rules))
	valid := make([]bool, len(rules))

	for i, r := range rules {
		pat, err := compilePattern(r.Pattern)
		if err != nil {
			findings = append(findings, Finding{i, r.Pattern, SeverityWarning, err.Error()})
			continue
		}
		compiled[i], valid[i] = pat, true

		kind, err := ParseKind(r.Access)
		if err != nil || kind != Public {
			continue
		}

		if n := len(pat.segments); n > 0 && pat.segments[n-1].kind == segRest {
			findings = append(findings, Finding{i, r.Pattern, SeverityWarning,
				"public rule matches every path under its prefix"})
		}

		if word := mutatingSegment(pat); word != "" {
			findings = append(findings, Finding{i, r.Pattern, SeverityWarning,
				fmt.Sprintf("public rule looks like a state-changing endpoint (%q)", word)})
		}

		for _, m := range r.Methods {
			switch strings.ToUpper(m) {
			case "PUT", "PATCH", "DELETE":
				findings = append(findings, Finding{i, r.Pattern, SeverityWarning,
					fmt.Sprintf("public rule allows %s without a token", strings.ToUpper(m))})
			}
		}
	}

	for i := range rules {
		if !valid[i] {
			continue
		}
		for j := 0; j < i; j++ {
			if valid[j] && compiled[j].covers(compiled[i]) && methodsCover(rules[j].Methods, rules[i].Methods) {
				findings = append(findings, Finding{i, rules[i].Pattern, SeverityInfo,
					fmt.Sprintf("unreachable: rule %d (%s) always matches first", j, rules[j].Pattern)})
				break
			}
		}
	}

	return findings
}

// mutatingSegment returns the first literal word that suggests a mutation.
func mutatingSegment(p pattern) string {
	for _, s := range p.segments {
		if s.kind != segLiteral {
			continue
		}
		for _, w := range strings.FieldsFunc(strings.ToLower(s.value), func(r rune) bool {
			return r == '-' || r == '_' || r == '.'
		}) {
			if mutatingWords[w] {
				return w
			}
		}
	}
	return ""
}

// methodsCover reports whether earlier applies to every method later does.
func methodsCover(earlier, later []string) bool {
	if len(earlier) == 0 {
		return true
	}
	if len(later) == 0 {
		return false
	}
	set := make(map[string]bool, len(earlier))
	for _, m := range earlier {
		set[strings.ToUpper(m)] = true
	}
	for _, m := range later {
		if !set[strings.ToUpper(m)] {
			return false
		}
	}
	return true
}
