package driver

import (
	"context"
	"errors"
	"time"
)

// Condition reports whether an awaited DOM predicate holds. Errors are
// retried until the timeout unless wrapped with Permanent.
type Condition func(ctx context.Context) (bool, error)

// PollResult describes how a poll ended.
type PollResult struct {
	Matched  bool
	Attempts int
	Elapsed  time.Duration
	// LastErr is the last error the condition returned, if any.
	LastErr error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Poll stops retrying and returns it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

// finalAttemptTimeout bounds the attempt Poll makes at the deadline.
const finalAttemptTimeout = 250 * time.Millisecond

// Poll evaluates cond every interval until it holds or timeout elapses.
// It evaluates cond at least once, immediately, and once more at the
// deadline. A timeout is not an error: the result is simply not Matched.
// Poll only returns an error when ctx is done or cond returns a Permanent
// error.
func Poll(ctx context.Context, interval, timeout time.Duration, cond Condition) (PollResult, error) {
	var res PollResult
	start := time.Now()
	deadline := start.Add(timeout)

	// Attempts are bounded by the deadline too, so a hung query cannot
	// outlive the poll.
	pctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	final := false
	for {
		actx, acancel := pctx, context.CancelFunc(func() {})
		if final {
			actx, acancel = context.WithTimeout(ctx, finalAttemptTimeout)
		}
		res.Attempts++
		ok, err := cond(actx)
		cut := actx.Err() != nil
		acancel()
		res.Elapsed = time.Since(start)

		var perr *permanentError
		switch {
		case errors.As(err, &perr):
			return res, perr.err
		case err != nil:
			// An attempt cut short by the deadline says nothing new.
			if !cut || res.LastErr == nil {
				res.LastErr = err
			}
		case ok:
			res.Matched = true
			return res, nil
		}

		if err := ctx.Err(); err != nil {
			return res, err
		}
		remaining := time.Until(deadline)
		if final || remaining <= 0 {
			return res, nil
		}
		wait := interval
		if wait >= remaining {
			wait, final = remaining, true
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			res.Elapsed = time.Since(start)
			return res, ctx.Err()
		case <-timer.C:
		}
	}
}
