package search

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQueryTooLong  = errors.New("search: query too long")
	ErrEmptyBatch    = errors.New("search: empty part number batch")
	ErrBatchTooLarge = errors.New("search: part number batch too large")
)

// RateLimitError is surfaced whenever a limit trips; the UI needs it to
// disable controls and show a countdown, so it is never swallowed.
type RateLimitError struct {
	Category   string
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Category)
}

// TimeoutError means the remote call exceeded its wall-clock budget. The
// pending slot is freed before this is returned, so a retry with the same
// key starts a fresh call.
type TimeoutError struct {
	Key    string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("search %q timed out after %s", e.Key, e.Budget)
}

func (e *TimeoutError) Timeout() bool { return true }
