package login

import (
	"net/http"

	"github.com/Heahaidu/interest-project/pkg/auth"
	"github.com/Heahaidu/interest-project/pkg/gate"
)

// ProfileHandler returns the identity the gate attached to the request.
func ProfileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		if id == nil || id.Anonymous() {
			auth.Render(w, auth.Reject(auth.MissingToken, "profile without identity"), "")
			return
		}
		writeJSON(w, http.StatusOK, gate.IdentityFields(id))
	})
}
