package orchestrator

import "time"

const (
	// MaxRetries is how many times a failed upload is re-queued before it is marked as an error.
	MaxRetries = 3
	// RetryDelayBase is the backoff unit.
	RetryDelayBase = time.Second
	// MaxConcurrentUploads is the default batch size.
	MaxConcurrentUploads = 3
	// StageDelay separates the simulated pipeline stages.
	StageDelay = 1500 * time.Millisecond
)

// Backoff returns base × 2^retries. retries is the already incremented retry count.
func Backoff(base time.Duration, retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	if retries > 30 {
		retries = 30
	}
	return base * time.Duration(1<<uint(retries))
}
