// Package retry runs remote calls under the re-authentication protocol: a
// call that comes back with a failure status triggers a recovery action
// (token refresh) and is attempted again, up to a fixed budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// MaxAttempts is the total number of attempts, i.e. two retries.
const MaxAttempts = 3

// ErrAuthExpired is returned when every attempt came back with a failure
// status. It wraps the last failure.
var ErrAuthExpired = errors.New("retry: the authorization is no longer valid")

// Op performs exactly one remote call. status is the HTTP status of the
// response, or 0 when no response was received.
type Op[T any] func(ctx context.Context) (result T, status int, err error)

// RecoverFunc repairs the credential before the next attempt.
type RecoverFunc func(ctx context.Context) error

// Caller binds a recovery action and logger so call sites only supply the op.
type Caller struct {
	recovery RecoverFunc
	logger   *slog.Logger
}

// NewCaller returns a Caller using recovery between attempts.
func NewCaller(recovery RecoverFunc, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Caller{recovery: recovery, logger: logger}
}

// Failed reports whether status counts as a failed attempt.
func Failed(status int) bool {
	return status >= http.StatusMultipleChoices
}

// Do runs op through c's recovery action. Methods cannot be generic, so the
// caller is passed explicitly.
func Do[T any](ctx context.Context, c *Caller, name string, op Op[T]) (T, error) {
	return run(ctx, c.recovery, c.logger, name, op)
}

// Run is Do without a Caller, for one-off call sites and tests.
func Run[T any](ctx context.Context, recovery RecoverFunc, op Op[T]) (T, error) {
	return run(ctx, recovery, slog.Default(), "call", op)
}

func run[T any](ctx context.Context, recovery RecoverFunc, logger *slog.Logger, name string, op Op[T]) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		result, status, err := op(ctx)
		if !Failed(status) {
			if err != nil {
				return zero, err
			}

			if attempt > 1 {
				logger.Debug("call recovered",
					slog.String("op", name),
					slog.Int("attempts", attempt),
				)
			}

			return result, nil
		}

		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("HTTP %d", status)
		}

		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry: %s canceled: %w", name, ctx.Err())
		}

		if attempt == MaxAttempts {
			break
		}

		logger.Warn("call failed, refreshing authorization",
			slog.String("op", name),
			slog.Int("status", status),
			slog.Int("attempt", attempt),
		)

		if recovery != nil {
			if recErr := recovery(ctx); recErr != nil {
				return zero, fmt.Errorf("retry: recovering %s: %w", name, recErr)
			}
		}
	}

	logger.Error("call failed after retries",
		slog.String("op", name),
		slog.Int("attempts", MaxAttempts),
	)

	return zero, fmt.Errorf("%w: %s: %w", ErrAuthExpired, name, lastErr)
}
