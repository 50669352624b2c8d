// Package login exchanges account credentials for gate bearer tokens and
// serves the caller's profile behind the gate.
package login

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const maxRequestBytes = 1 << 16

// Account is a principal allowed to log in.
type Account struct {
	Name         string
	Email        string
	Username     string
	PasswordHash string
	Subject      string
	Roles        []string
}

// Issuer mints tokens. *token.Codec implements it.
type Issuer interface {
	Issue(subject string, roles []string, ttl time.Duration) (string, error)
	TTL() time.Duration
}

// Observer is told about every login attempt.
type Observer interface {
	ObserveLogin(result string)
}

// ErrorCode is the machine-readable failure body of the login endpoint.
type ErrorCode struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	// LoginFailed is returned for unknown accounts and wrong passwords alike.
	LoginFailed = ErrorCode{Code: "LOGIN_FAILED", Message: "Username, email or password is incorrect"}

	// CreateTokenFailed is returned when the credentials were valid but no
	// token could be issued.
	CreateTokenFailed = ErrorCode{Code: "CREATE_TOKEN_FAILED", Message: "Could not create token"}
)

var (
	ErrNoIssuer          = errors.New("login: token issuer is required")
	ErrDuplicateIdentity = errors.New("login: duplicate account identifier")
)

// Request is the login request body. Either Email or Username identifies the
// account.
type Request struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// Response is the body of a successful login.
type Response struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Config wires a Handler.
type Config struct {
	Accounts []Account
	Issuer   Issuer
	Logger   *slog.Logger
	Metrics  Observer
}

// Handler serves POST requests to the login endpoint.
type Handler struct {
	accounts map[string]*Account
	issuer   Issuer
	logger   *slog.Logger
	metrics  Observer

	// dummyHash is compared against when no account matches, so unknown
	// identifiers cost the same as wrong passwords.
	dummyHash []byte
}

// NewHandler creates a login handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Issuer == nil {
		return nil, ErrNoIssuer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &Handler{
		accounts: make(map[string]*Account, 2*len(cfg.Accounts)),
		issuer:   cfg.Issuer,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}

	cost := bcrypt.DefaultCost
	for i := range cfg.Accounts {
		a := cfg.Accounts[i]
		if a.Subject == "" {
			return nil, fmt.Errorf("login: account %q: subject is required", a.Name)
		}
		c, err := bcrypt.Cost([]byte(a.PasswordHash))
		if err != nil {
			return nil, fmt.Errorf("login: account %q: invalid password hash: %w", a.Name, err)
		}
		cost = c

		for _, key := range []string{a.Email, a.Username} {
			key = normalize(key)
			if key == "" {
				continue
			}
			if _, dup := h.accounts[key]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, key)
			}
			h.accounts[key] = &a
		}
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("login: generate dummy password: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword(buf, cost)
	if err != nil {
		return nil, fmt.Errorf("login: generate dummy hash: %w", err)
	}
	h.dummyHash = dummy

	return h, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Authenticate checks credentials and returns the matching account.
func (h *Handler) Authenticate(identifier, password string) (*Account, bool) {
	a, ok := h.accounts[normalize(identifier)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
		return nil, false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, false
	}
	return a, true
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		h.observe("failure")
		writeJSON(w, http.StatusBadRequest, LoginFailed)
		return
	}

	identifier := req.Email
	if identifier == "" {
		identifier = req.Username
	}
	account, ok := h.Authenticate(identifier, req.Password)
	if !ok {
		h.observe("failure")
		h.logger.Info("login failed")
		writeJSON(w, http.StatusBadRequest, LoginFailed)
		return
	}

	tok, err := h.issuer.Issue(account.Subject, account.Roles, 0)
	if err != nil {
		h.observe("error")
		h.logger.Error("token issue failed", slog.String("subject", account.Subject), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, CreateTokenFailed)
		return
	}

	h.observe("success")
	h.logger.Debug("login succeeded", slog.String("subject", account.Subject))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, Response{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.issuer.TTL() / time.Second),
	})
}

func (h *Handler) observe(result string) {
	if h.metrics != nil {
		h.metrics.ObserveLogin(result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HashPassword returns a bcrypt hash suitable for Account.PasswordHash.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
