// Package clock provides the time source used for token verification and issuance.
//
// In production, use Real() which reads the wall clock in UTC.
// In tests, use NewFakeClock() to pin verification to a known instant.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	// Now returns the current time. Implementations return UTC.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// Until returns the duration until t.
	Until(t time.Time) time.Duration
}
