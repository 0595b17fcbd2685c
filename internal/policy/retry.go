// Package policy classifies remote failures. It never performs retries
// itself; callers own the backoff loop and attempt ceiling, so the sync and
// command handlers can share one policy with different profiles.
package policy

import (
	"bytes"
	"net/http"
	"time"
)

type Class int

const (
	ClassRetryable Class = iota
	ClassPermanent
)

func (c Class) String() string {
	if c == ClassRetryable {
		return "retryable"
	}
	return "permanent"
}

// Business codes some marketplaces return with a 4xx status that are safe to
// retry anyway.
var retryableBusinessCodes = [][]byte{
	[]byte("RATE_LIMITED"),
	[]byte("TEMPORARILY_UNAVAILABLE"),
	[]byte("CONCURRENT_MODIFICATION"),
}

// Classify maps an HTTP outcome to retryable/permanent.
// 429 and any 5xx are retryable. 401/403 are permanent: a credential problem
// does not self-resolve and retrying only burns rate-limit budget. Other 4xx
// are permanent unless the body carries a known safe-to-retry business code.
func Classify(status int, body []byte) Class {
	switch {
	case status == http.StatusTooManyRequests:
		return ClassRetryable
	case status >= 500:
		return ClassRetryable
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassPermanent
	case status >= 400:
		for _, code := range retryableBusinessCodes {
			if bytes.Contains(body, code) {
				return ClassRetryable
			}
		}
		return ClassPermanent
	default:
		return ClassPermanent
	}
}

// Profile bounds one caller's backoff loop. Sync pages retry more
// aggressively than a single user-triggered write.
type Profile struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// Delay returns the exponential backoff for a 1-based failed attempt count,
// clamped to [MinDelay, MaxDelay].
func (p Profile) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.MinDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
