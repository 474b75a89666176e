package util

import (
	"context"
	"errors"
	"net"
)

// Failure taxonomy. Per-item failures are classified once, close to where
// they happen, and every layer above switches on these sentinels.
var (
	ErrMalformed = errors.New("malformed source data") // skip item, keep batch
	ErrTransient = errors.New("transient failure")     // retry with backoff
	ErrTerminal  = errors.New("terminal failure")      // not found / auth, no retry
	ErrQuota     = errors.New("quota exceeded")        // cool down the backend
)

// ClassifyStatus maps an HTTP status code onto the taxonomy.
func ClassifyStatus(code int) error {
	switch {
	case code == 429:
		return ErrQuota
	case code == 401 || code == 403 || code == 404:
		return ErrTerminal
	case code >= 500:
		return ErrTransient
	default:
		return ErrTerminal
	}
}

// Retryable reports whether an error is worth another attempt.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTerminal) || errors.Is(err, ErrMalformed) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrQuota)
}
