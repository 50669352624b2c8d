package gate

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t, nil)
	c := CORS{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}
	h := c.Wrap(f.gate.Wrap(echoHandler()))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/user/secure/profile", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("Max-Age = %q", got)
	}
	if len(f.rec.decisions) != 0 {
		t.Errorf("preflight reached the gate: %v", f.rec.decisions)
	}
}

func TestCORS_SimpleRequestStillGated(t *testing.T) {
	f := newFixture(t, nil)
	c := CORS{AllowedOrigins: []string{"*"}, ExposedHeaders: []string{RequestIDHeader}}
	h := c.Wrap(f.gate.Wrap(echoHandler()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/secure/profile", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := rr.Header().Get("Access-Control-Expose-Headers"); got != RequestIDHeader {
		t.Errorf("Expose-Headers = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	f := newFixture(t, nil)
	c := CORS{AllowedOrigins: []string{"https://app.example.com"}, AllowCredentials: true}
	h := c.Wrap(f.gate.Wrap(echoHandler()))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/user/secure/profile", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin received CORS headers")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want the gate's 401", rr.Code)
	}
}

func TestCORS_DisabledIsPassthrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := CORS{}.Wrap(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("empty CORS config added headers")
	}
}
