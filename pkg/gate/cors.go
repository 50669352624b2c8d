package gate

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORS is a static cross-origin policy applied in front of the gate.
type CORS struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

func (c CORS) originAllowed(origin string) bool {
	return slices.Contains(c.AllowedOrigins, "*") || slices.Contains(c.AllowedOrigins, origin)
}

// Wrap adds CORS headers to responses for allowed origins and answers
// preflight requests with 204 before they reach the gate.
func (c CORS) Wrap(next http.Handler) http.Handler {
	if len(c.AllowedOrigins) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !c.originAllowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		// A literal "*" cannot be combined with credentials, so echo the origin.
		if c.AllowCredentials || !slices.Contains(c.AllowedOrigins, "*") {
			h.Set("Access-Control-Allow-Origin", origin)
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		if c.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
		if !preflight {
			if len(c.ExposedHeaders) > 0 {
				h.Set("Access-Control-Expose-Headers", strings.Join(c.ExposedHeaders, ", "))
			}
			next.ServeHTTP(w, r)
			return
		}

		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")
		if len(c.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(c.AllowedMethods, ", "))
		}
		if slices.Contains(c.AllowedHeaders, "*") {
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			}
		} else if len(c.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(c.AllowedHeaders, ", "))
		}
		if c.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
