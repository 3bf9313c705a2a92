package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Ariya-Dice/tansoo/pkg/logger"
)

// SessionIDHeader carries the shopper's opaque cart session id.
const SessionIDHeader = "X-Session-ID"

// RequestLogger stores a request-scoped logger in the context, carrying the
// correlation id, the cart session id and the active trace/span ids. Mount
// it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := r.Header.Get(SessionIDHeader); id != "" && logger.SessionIDFromContext(ctx) == "" {
				ctx = logger.WithSessionID(ctx, id)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
