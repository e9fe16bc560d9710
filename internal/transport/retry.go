package transport

import (
	"net/http"
	"time"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

type retryDecision int

const (
	retryContinue retryDecision = iota
	retryFail
)

// retryState tracks the progress of a 429 backoff loop across attempts
type retryState struct {
	attempt     int
	elapsed     time.Duration
	nextBackoff time.Duration
}

func newRetryState() retryState {
	return retryState{
		attempt:     1,
		nextBackoff: initialBackoff,
	}
}

// advance records a completed backoff sleep, doubling the next delay up to the cap
func (s *retryState) advance(elapsed time.Duration) {
	s.attempt++
	s.elapsed = elapsed
	s.nextBackoff *= 2
	if s.nextBackoff > maxBackoff {
		s.nextBackoff = maxBackoff
	}
}

// shouldRetry decides whether a response warrants another attempt: only 429
// responses are retried, and only if sleeping for the next backoff interval would
// still leave time within the caller's budget
func shouldRetry(status int, elapsed, nextBackoff, budget time.Duration) retryDecision {
	if status != http.StatusTooManyRequests {
		return retryFail
	}
	if elapsed+nextBackoff > budget {
		return retryFail
	}
	return retryContinue
}
