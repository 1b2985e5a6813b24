// CLAUDE:SUMMARY Device transport contract — Driver{Dump,Tap}, composable middleware and typed transport errors.
// Package device is the boundary to the phone: it fetches UI dumps and
// performs taps. Drivers compose with middleware the same way handlers do:
//
//	d := device.Chain(adb,
//		device.WithRetry(2, 50*time.Millisecond, logger),
//		device.WithBreaker(device.NewBreaker(), "pixel-7"),
//		device.WithTimeout(3*time.Second),
//	)
package device

import (
	"context"
	"fmt"
)

// Driver talks to one device.
type Driver interface {
	// Dump returns the current uiautomator XML.
	Dump(ctx context.Context) (string, error)
	// Tap taps the screen at (x, y).
	Tap(ctx context.Context, x, y int) error
}

// Middleware wraps a Driver.
type Middleware func(Driver) Driver

// Chain applies middleware so that the first one listed is the outermost.
func Chain(d Driver, mws ...Middleware) Driver {
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}

// Funcs adapts two functions to a Driver. Nil functions fail.
type Funcs struct {
	DumpFunc func(ctx context.Context) (string, error)
	TapFunc  func(ctx context.Context, x, y int) error
}

func (f Funcs) Dump(ctx context.Context) (string, error) {
	if f.DumpFunc == nil {
		return "", fmt.Errorf("device: dump not supported")
	}
	return f.DumpFunc(ctx)
}

func (f Funcs) Tap(ctx context.Context, x, y int) error {
	if f.TapFunc == nil {
		return fmt.Errorf("device: tap not supported")
	}
	return f.TapFunc(ctx, x, y)
}

// CallTimeoutError is returned when a call exceeds its WithTimeout budget.
type CallTimeoutError struct {
	Op string
}

func (e *CallTimeoutError) Error() string {
	return fmt.Sprintf("device: %s timed out", e.Op)
}

// CircuitOpenError is returned while the breaker rejects calls.
type CircuitOpenError struct {
	Device string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("device: circuit open: %s", e.Device)
}
