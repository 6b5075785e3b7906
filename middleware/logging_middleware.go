package middleware

import (
	"context"
	"log"
	"time"

	"github.com/dermesser/clusterrpc/dispatch"
)

// LoggingMiddleware records the endpoint, duration, and any errors for each
// dispatched call. It captures the start time before calling next, and logs
// the elapsed time after next returns.
//
// Example output:
//
//	endpoint=echo.any duration=42µs
//	Error: bad input
func LoggingMiddleware(endpoint string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, hctx *dispatch.Context) {
			start := time.Now()

			next(ctx, hctx)

			duration := time.Since(start)
			log.Printf("endpoint=%s duration=%s", endpoint, duration)
			if !hctx.Ok && hctx.ErrorString != "" {
				log.Printf("Error: %s", hctx.ErrorString)
			}
		}
	}
}
