package clock

import "time"

// realClock implements Clock using the standard time package.
type realClock struct{}

// Real returns a Clock backed by the system clock.
// This is the default for production use.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (realClock) Until(t time.Time) time.Duration {
	return time.Until(t)
}
