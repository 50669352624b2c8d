package gate

import (
	"net/http"
	"sync/atomic"
)

// Holder serves requests through whichever Gate was stored last. Reloading
// keys or routes means building a new Gate and calling Swap; a request always
// sees one complete Gate, never a mix of old and new settings.
type Holder struct {
	current atomic.Pointer[Gate]
}

// NewHolder creates a holder around g.
func NewHolder(g *Gate) *Holder {
	h := &Holder{}
	h.current.Store(g)
	return h
}

// Gate returns the gate currently in service.
func (h *Holder) Gate() *Gate {
	return h.current.Load()
}

// Swap installs g and returns the gate it replaced.
func (h *Holder) Swap(g *Gate) *Gate {
	return h.current.Swap(g)
}

// Wrap returns middleware that enforces the current gate in front of next.
func (h *Holder) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.current.Load().serve(w, r, next)
	})
}
