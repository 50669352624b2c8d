package auth

import (
	"errors"
	"fmt"
)

// Cause classifies why a request was refused.
type Cause int

const (
	MissingToken Cause = iota + 1
	MalformedToken
	ExpiredToken
	InvalidSignature
	InsufficientRole
)

var (
	ErrMissingToken     = errors.New("missing token")
	ErrMalformedToken   = errors.New("malformed token")
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInsufficientRole = errors.New("insufficient role")
)

// String returns the snake_case name used in logs and metric labels.
func (c Cause) String() string {
	switch c {
	case MissingToken:
		return "missing_token"
	case MalformedToken:
		return "malformed_token"
	case ExpiredToken:
		return "expired_token"
	case InvalidSignature:
		return "invalid_signature"
	case InsufficientRole:
		return "insufficient_role"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error matching the cause.
func (c Cause) Err() error {
	switch c {
	case MissingToken:
		return ErrMissingToken
	case MalformedToken:
		return ErrMalformedToken
	case ExpiredToken:
		return ErrExpiredToken
	case InvalidSignature:
		return ErrInvalidSignature
	case InsufficientRole:
		return ErrInsufficientRole
	default:
		return nil
	}
}

// Authorization reports whether the cause is an authorization failure (403)
// rather than a verification failure (401).
func (c Cause) Authorization() bool {
	return c == InsufficientRole
}

// Rejection is the outcome of a refused request.
// Message is meant for logs; it never reaches the caller.
type Rejection struct {
	Cause   Cause
	Message string
	Err     error
}

// Reject creates a Rejection with a formatted message.
func Reject(cause Cause, format string, args ...any) *Rejection {
	return &Rejection{Cause: cause, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a Rejection around an underlying error.
func Wrap(cause Cause, err error, message string) *Rejection {
	return &Rejection{Cause: cause, Message: message, Err: err}
}

func (r *Rejection) Error() string {
	msg := r.Cause.Err().Error()
	if r.Message != "" {
		msg += ": " + r.Message
	}
	if r.Err != nil {
		msg += ": " + r.Err.Error()
	}
	return msg
}

// Unwrap exposes both the cause sentinel and the underlying error so that
// errors.Is works with either.
func (r *Rejection) Unwrap() []error {
	errs := []error{r.Cause.Err()}
	if r.Err != nil {
		errs = append(errs, r.Err)
	}
	return errs
}

// AsRejection extracts a Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
