package flowline

import "time"

// Config holds engine-level execution settings.
type Config struct {
	// MaxConcurrentSteps is the maximum number of steps of a single run
	// executing at the same time. Ready steps beyond the bound queue
	// until a slot frees.
	MaxConcurrentSteps int

	// GlobalTimeout bounds the wall-clock duration of a whole run. When
	// exceeded the run terminates as FAILED. Zero means no global timeout.
	GlobalTimeout time.Duration

	// CancelGrace is how long a cancelled step invocation is given to
	// return before its result is recorded as a cancellation failure.
	CancelGrace time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSteps: 5,
		GlobalTimeout:      0,
		CancelGrace:        5 * time.Second,
	}
}
