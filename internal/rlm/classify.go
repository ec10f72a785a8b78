package rlm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// FailureKind is the classified cause of a failed engine attempt. The invoker
// state machine transitions on kinds, never on raw error types.
type FailureKind int

const (
	// FailureTransient covers timeouts and 5xx-class conditions worth retrying.
	FailureTransient FailureKind = iota
	// FailureRateLimit covers quota exhaustion; retried, but terminal as
	// rate_limited when it persists through the final attempt.
	FailureRateLimit
	// FailureHard covers everything unrecoverable on the same model
	// (bad credentials, malformed request); retrying is pointless.
	FailureHard
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransient:
		return "transient"
	case FailureRateLimit:
		return "rate_limit"
	default:
		return "hard"
	}
}

// Classifier maps an engine error to a FailureKind. The exact rate-limit
// signal varies by provider and proxy, so the classifier is pluggable; the
// default covers both explicit status codes and message patterns.
type Classifier func(error) FailureKind

// DefaultClassifier recognizes typed client errors first, then falls back to
// message-substring matching for errors surfaced through intermediate layers.
func DefaultClassifier(err error) FailureKind {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return FailureRateLimit
	}

	msg := strings.ToLower(err.Error())
	for _, pat := range []string{"429", "rate limit", "quota"} {
		if strings.Contains(msg, pat) {
			return FailureRateLimit
		}
	}

	var se *ServerError
	if errors.As(err, &se) {
		return FailureTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	for _, pat := range []string{"timeout", "timed out", "connection refused", "connection reset", "temporarily unavailable"} {
		if strings.Contains(msg, pat) {
			return FailureTransient
		}
	}

	return FailureHard
}
