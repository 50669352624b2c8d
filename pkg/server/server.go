package server

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Heahaidu/interest-project/pkg/gate"
	"github.com/Heahaidu/interest-project/pkg/login"
)

// Paths of the bundled application endpoints.
const (
	LoginPath   = "/api/v1/user/auth/login"
	ProfilePath = "/api/v1/user/secure/profile"
)

// Server routes requests through the gate of the current Runtime.
type Server struct {
	holder  *gate.Holder
	runtime atomic.Pointer[Runtime]
	logger  *slog.Logger
	ready   atomic.Bool
}

// New creates a server around an initial runtime.
func New(rt *Runtime, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		holder: gate.NewHolder(rt.Gate),
		logger: logger,
	}
	s.runtime.Store(rt)
	return s
}

// Runtime returns the runtime in service.
func (s *Server) Runtime() *Runtime {
	return s.runtime.Load()
}

// Swap installs rt. In-flight requests finish on the runtime they started with.
func (s *Server) Swap(rt *Runtime) {
	s.runtime.Store(rt)
	s.holder.Swap(rt.Gate)
	s.logger.Info("runtime swapped",
		slog.String("algorithm", rt.Material.Algorithm()),
		slog.String("keys", rt.Material.Origin()),
		slog.Int("rules", rt.Table.Len()),
	)
}

// SetReady toggles the readiness probe.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the full HTTP handler: CORS, then the gate, then the routes.
// A nil gatherer disables /metrics.
func (s *Server) Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(LoginPath, http.HandlerFunc(s.serveLogin))
	mux.Handle("GET "+ProfilePath, login.ProfileHandler())
	mux.Handle("GET "+JWKSPath, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Runtime().jwks.ServeHTTP(w, r)
	}))
	mux.Handle(gate.NewWhoAmIHandler())
	mux.HandleFunc("GET "+HealthzPath, healthzHandler)
	mux.HandleFunc("GET "+ReadyzPath, s.readyzHandler)
	if gatherer != nil {
		mux.Handle("GET "+MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	gated := s.holder.Wrap(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Runtime().CORS.Wrap(gated).ServeHTTP(w, r)
	})
}

func (s *Server) serveLogin(w http.ResponseWriter, r *http.Request) {
	h := s.Runtime().Login
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
