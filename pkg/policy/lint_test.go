package policy

import (
	"strings"
	"testing"
)

func TestLint(t *testing.T) {
	rules := []Rule{
		{Pattern: "/api/v1/user/auth/login", Access: AccessPublic},
		{Pattern: "/api/v1/user/page/delete-page", Access: AccessPublic},
		{Pattern: "/api/v1/user/page/update-page", Access: AccessPublic},
		{Pattern: "/actuator/**", Access: AccessPublic},
		{Pattern: "/api/v1/member/{id}", Methods: []string{"DELETE"}, Access: AccessPublic},
		{Pattern: "/a/*", Access: AccessPublic},
		{Pattern: "/a/b", Access: AccessAuthenticated},
		{Pattern: "/c/{id}", Methods: []string{"GET"}, Access: AccessAuthenticated},
		{Pattern: "/c/x", Access: AccessAuthenticated},
		{Pattern: "/bad/**/x", Access: AccessPublic},
	}

	findings := Lint(rules)
	byRule := make(map[int][]string)
	for _, f := range findings {
		byRule[f.Rule] = append(byRule[f.Rule], f.Message)
	}

	if len(byRule[0]) != 0 {
		t.Errorf("login rule flagged: %v", byRule[0])
	}
	if !containsAny(byRule[1], "delete") {
		t.Errorf("delete-page not flagged: %v", byRule[1])
	}
	if !containsAny(byRule[2], "update") {
		t.Errorf("update-page not flagged: %v", byRule[2])
	}
	if !containsAny(byRule[3], "every path") {
		t.Errorf("actuator wildcard not flagged: %v", byRule[3])
	}
	if !containsAny(byRule[4], "DELETE") {
		t.Errorf("public DELETE not flagged: %v", byRule[4])
	}
	if !containsAny(byRule[6], "unreachable") {
		t.Errorf("shadowed /a/b not flagged: %v", byRule[6])
	}
	if containsAny(byRule[8], "unreachable") {
		t.Errorf("/c/x is reachable for non-GET methods: %v", byRule[8])
	}
	if !containsAny(byRule[9], "last segment") {
		t.Errorf("invalid pattern not reported: %v", byRule[9])
	}
}

func containsAny(msgs []string, sub string) bool {
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func TestPatternCovers(t *testing.T) {
	tests := []struct {
		p, q string
		want bool
	}{
		{"/a/*", "/a/b", true},
		{"/a/{id}", "/a/*", true},
		{"/a/b", "/a/*", false},
		{"/a/**", "/a/b/c", true},
		{"/a/**", "/a", true},
		{"/a/*", "/a/**", false},
		{"/**", "/", true},
		{"/a", "/a/b", false},
	}

	for _, tt := range tests {
		p, _ := compilePattern(tt.p)
		q, _ := compilePattern(tt.q)
		if got := p.covers(q); got != tt.want {
			t.Errorf("%s covers %s = %v, want %v", tt.p, tt.q, got, tt.want)
		}
	}
}
