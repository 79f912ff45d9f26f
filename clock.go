package linkcore

import "time"

// TimeProvider abstracts the clock so session timing can be driven
// deterministically in tests.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealTimeProvider implements TimeProvider using the system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// Since returns the elapsed system time since t.
func (RealTimeProvider) Since(t time.Time) time.Duration {
	return time.Since(t)
}
