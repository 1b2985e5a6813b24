package device

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// WithTimeout bounds every call. A zero duration disables the bound.
func WithTimeout(d time.Duration) Middleware {
	return func(next Driver) Driver {
		if d <= 0 {
			return next
		}
		return Funcs{
			DumpFunc: func(ctx context.Context) (string, error) {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				out, err := next.Dump(ctx)
				return out, timeoutErr(ctx, "dump", err)
			},
			TapFunc: func(ctx context.Context, x, y int) error {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return timeoutErr(ctx, "tap", next.Tap(ctx, x, y))
			},
		}
	}
}

func timeoutErr(ctx context.Context, op string, err error) error {
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &CallTimeoutError{Op: op}
	}
	return err
}

// WithRetry retries failed dumps with exponential backoff. Taps pass
// through untouched: a tap that reported an error may still have landed.
// An open circuit or a done context stops the retries.
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) Middleware {
	return func(next Driver) Driver {
		return Funcs{
			DumpFunc: func(ctx context.Context) (string, error) {
				var lastErr error
				for attempt := 0; attempt <= maxRetries; attempt++ {
					out, err := next.Dump(ctx)
					if err == nil {
						return out, nil
					}
					lastErr = err
					if ctx.Err() != nil {
						return "", lastErr
					}
					var open *CircuitOpenError
					if errors.As(err, &open) {
						return "", err
					}
					if attempt == maxRetries {
						break
					}
					wait := baseBackoff * (1 << uint(attempt))
					if logger != nil {
						logger.WarnContext(ctx, "device: retrying dump",
							"attempt", attempt+1, "max_retries", maxRetries,
							"backoff_ms", wait.Milliseconds(), "error", err)
					}
					select {
					case <-ctx.Done():
						return "", lastErr
					case <-time.After(wait):
					}
				}
				return "", lastErr
			},
			TapFunc: next.Tap,
		}
	}
}

// WithBreaker rejects calls with *CircuitOpenError while cb is open.
func WithBreaker(cb *Breaker, device string) Middleware {
	return func(next Driver) Driver {
		return Funcs{
			DumpFunc: func(ctx context.Context) (string, error) {
				if !cb.Allow() {
					return "", &CircuitOpenError{Device: device}
				}
				out, err := next.Dump(ctx)
				cb.Record(err)
				return out, err
			},
			TapFunc: func(ctx context.Context, x, y int) error {
				if !cb.Allow() {
					return &CircuitOpenError{Device: device}
				}
				err := next.Tap(ctx, x, y)
				cb.Record(err)
				return err
			},
		}
	}
}
