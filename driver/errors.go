package driver

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is wrapped by every error of an operation that did not
// reach its condition in time.
var ErrTimeout = errors.New("timed out")

// NavigationError is returned when the session rejects or does not finish
// a navigation.
type NavigationError struct {
	URI     string
	Elapsed time.Duration
	Err     error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("loading %q: %v", e.URI, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// NotFoundError is returned when no visible element matched a locator
// before the timeout.
type NotFoundError struct {
	Locator Locator
	Elapsed time.Duration
	Err     error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("finding %s: %v", e.Locator, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// StillExistsError is returned when visible elements kept matching a
// locator until the timeout.
type StillExistsError struct {
	Locator Locator
	Count   int
	Elapsed time.Duration
	Err     error
}

func (e *StillExistsError) Error() string {
	return fmt.Sprintf("waiting for %s to disappear: %d still visible: %v", e.Locator, e.Count, e.Err)
}

func (e *StillExistsError) Unwrap() error { return e.Err }

// ClickError is returned when an element was found but could not be
// clicked, e.g. because it stayed obscured or disabled.
type ClickError struct {
	Locator Locator
	Elapsed time.Duration
	Err     error
}

func (e *ClickError) Error() string {
	return fmt.Sprintf("clicking %s: %v", e.Locator, e.Err)
}

func (e *ClickError) Unwrap() error { return e.Err }

// timeoutError describes a poll that timed out, keeping the last error
// the condition reported.
func timeoutError(timeout time.Duration, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, lastErr)
}
