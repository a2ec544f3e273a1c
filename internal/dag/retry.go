package dag

import "time"

// RetryPolicy bounds how often a failing node is re-attempted. The wait
// between attempts is fixed.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt; 1 disables retries
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`
	BackoffDelay time.Duration `json:"backoff_delay" yaml:"backoff_delay"`
}

// DefaultRetryPolicy is three retries five minutes apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  4,
		BackoffDelay: 5 * time.Minute,
	}
}

// NoRetry runs a node exactly once
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// ShouldRetry returns true if a node that has failed attempts times may run again
func (p RetryPolicy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffDelay < 0 {
		p.BackoffDelay = 0
	}
	return p
}
