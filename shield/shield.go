// CLAUDE:SUMMARY HTTP middleware for the locator API — security headers, JSON body limit, request ids with a per-request logger.
// Package shield provides the HTTP middleware stack in front of the locator
// API: security headers, a request body limit and request id tracing.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultMaxBody bounds request bodies. UI dumps of long feeds run to a few
// hundred kilobytes; two dumps fit in one recover request.
const DefaultMaxBody = 4 << 20

// DefaultAPIStack returns SecurityHeaders, MaxBody and RequestID in that order.
func DefaultAPIStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(DefaultMaxBody),
		RequestID(logger, nil),
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
