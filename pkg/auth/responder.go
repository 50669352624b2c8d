package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// StatusAndBody returns the fixed status code and error text for a cause.
// Unknown causes are treated as an invalid token.
func StatusAndBody(c Cause) (int, string) {
	switch c {
	case MissingToken:
		return http.StatusUnauthorized, "authentication required"
	case ExpiredToken:
		return http.StatusUnauthorized, "token expired"
	case MalformedToken, InvalidSignature:
		return http.StatusUnauthorized, "invalid token"
	case InsufficientRole:
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusUnauthorized, "invalid token"
	}
}

// ErrorBody is the JSON body written for every rejection.
type ErrorBody struct {
	Error string `json:"error"`
}

// Render writes the response for r. 401 responses carry a Bearer challenge;
// the body never includes r.Message or the underlying error.
func Render(w http.ResponseWriter, r *Rejection, realm string) {
	status, text := StatusAndBody(r.Cause)

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", bearerChallenge(realm, r.Cause))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: text})
}

// bearerChallenge builds the RFC 6750 WWW-Authenticate value. A request with
// no credentials gets a bare challenge; token failures add error="invalid_token".
func bearerChallenge(realm string, c Cause) string {
	var params []string
	if realm != "" {
		params = append(params, fmt.Sprintf(`realm="%s"`, escapeQuoted(realm)))
	}
	if c != MissingToken {
		params = append(params, `error="invalid_token"`)
	}
	if len(params) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(params, ", ")
}

func escapeQuoted(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}
