package docs

import (
	"context"
	"errors"
	"time"
)

// Bounds for calls to external collaborators (object store, metadata
// store, key provider). Each attempt runs under its own deadline;
// transient failures are retried with linear backoff before they
// surface as ErrUnavailable / ErrKeyUnavailable / ErrStorageWrite.
const (
	callAttempts = 3
	callBackoff  = 50 * time.Millisecond
	callTimeout  = 10 * time.Second
)

// call invokes fn with a per-attempt deadline, retrying transient
// failures. Errors matching one of terminal abort the loop at once:
// they are semantic outcomes (missing blob, version conflict), not
// infrastructure faults. A cancelled parent context also stops the
// loop.
func call(ctx context.Context, fn func(context.Context) error, terminal ...error) error {
	var err error
	for attempt := 1; attempt <= callAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, callTimeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		for _, t := range terminal {
			if errors.Is(err, t) {
				return err
			}
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < callAttempts {
			time.Sleep(time.Duration(attempt) * callBackoff)
		}
	}
	return err
}

// callFor is call for operations returning a value.
func callFor[T any](ctx context.Context, fn func(context.Context) (T, error), terminal ...error) (T, error) {
	var out T
	err := call(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	}, terminal...)
	return out, err
}
