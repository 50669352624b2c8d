package policy

import (
	"fmt"
	"path"
	"strings"
)

type segmentKind int

const (
	segLiteral segmentKind = iota
	segAny                 // *
	segParam               // {name}
	segRest                // ** (last segment only)
)

type segment struct {
	kind  segmentKind
	value string // literal text or parameter name
}

// pattern is a compiled path template.
type pattern struct {
	raw      string
	segments []segment
}

// compilePattern parses a path template. Segments are separated by "/" and
// may be a literal, "*" (one segment), "{name}" (one segment, captured) or a
// trailing "**" (any suffix, including none).
func compilePattern(raw string) (pattern, error) {
	if !strings.HasPrefix(raw, "/") {
		return pattern{}, fmt.Errorf("pattern %q must start with /", raw)
	}
	if raw == "/" {
		return pattern{raw: raw}, nil
	}

	parts := strings.Split(strings.TrimPrefix(raw, "/"), "/")
	segments := make([]segment, 0, len(parts))
	names := make(map[string]bool)

	for i, p := range parts {
		switch {
		case p == "":
			return pattern{}, fmt.Errorf("pattern %q has an empty segment", raw)
		case p == "." || p == "..":
			return pattern{}, fmt.Errorf("pattern %q contains a relative segment", raw)
		case p == "**":
			if i != len(parts)-1 {
				return pattern{}, fmt.Errorf("pattern %q: ** is only allowed as the last segment", raw)
			}
			segments = append(segments, segment{kind: segRest})
		case p == "*":
			segments = append(segments, segment{kind: segAny})
		case strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}"):
			name := p[1 : len(p)-1]
			if !validParamName(name) {
				return pattern{}, fmt.Errorf("pattern %q: invalid parameter name %q", raw, name)
			}
			if names[name] {
				return pattern{}, fmt.Errorf("pattern %q: duplicate parameter %q", raw, name)
			}
			names[name] = true
			segments = append(segments, segment{kind: segParam, value: name})
		case strings.ContainsAny(p, "*{}"):
			return pattern{}, fmt.Errorf("pattern %q: wildcards must span a whole segment, got %q", raw, p)
		default:
			segments = append(segments, segment{kind: segLiteral, value: p})
		}
	}

	return pattern{raw: raw, segments: segments}, nil
}

func validParamName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// literal reports whether the pattern has no wildcard segments.
func (p pattern) literal() bool {
	for _, s := range p.segments {
		if s.kind != segLiteral {
			return false
		}
	}
	return true
}

// params lists the parameter names in order.
func (p pattern) params() []string {
	var names []string
	for _, s := range p.segments {
		if s.kind == segParam {
			names = append(names, s.value)
		}
	}
	return names
}

// shape is the pattern with parameter names erased, so "/u/{id}" and
// "/u/{uid}" compare equal.
func (p pattern) shape() string {
	var b strings.Builder
	for _, s := range p.segments {
		b.WriteByte('/')
		switch s.kind {
		case segLiteral:
			b.WriteString(s.value)
		case segAny:
			b.WriteString("*")
		case segParam:
			b.WriteString("{}")
		case segRest:
			b.WriteString("**")
		}
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// match reports whether the split path matches, filling params when non-nil.
func (p pattern) match(parts []string, params map[string]string) bool {
	for i, s := range p.segments {
		if s.kind == segRest {
			return true
		}
		if i >= len(parts) {
			return false
		}
		switch s.kind {
		case segLiteral:
			if parts[i] != s.value {
				return false
			}
		case segParam:
			if params != nil {
				params[s.value] = parts[i]
			}
		}
	}
	return len(parts) == len(p.segments)
}

// covers reports whether every path matched by q is also matched by p.
func (p pattern) covers(q pattern) bool {
	for i, s := range p.segments {
		if s.kind == segRest {
			return true
		}
		if i >= len(q.segments) {
			return false
		}
		t := q.segments[i]
		switch s.kind {
		case segLiteral:
			if t.kind != segLiteral || t.value != s.value {
				return false
			}
		case segAny, segParam:
			if t.kind == segRest {
				return false
			}
		}
	}
	return len(p.segments) == len(q.segments)
}

// CleanPath normalizes a request path before matching: it resolves "." and
// ".." elements, collapses repeated slashes and drops a trailing slash.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

func splitPath(cleaned string) []string {
	if cleaned == "/" {
		return nil
	}
	return strings.Split(cleaned[1:], "/")
}
