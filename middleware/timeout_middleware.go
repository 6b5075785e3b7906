package middleware

import (
	"context"
	"time"

	"github.com/dermesser/clusterrpc/dispatch"
	"github.com/dermesser/clusterrpc/message"
)

// TimeOutMiddleware enforces a maximum duration for a single dispatched
// handler call, giving an embedder a per-call deadline independent of
// whatever deadline (if any) the request itself carried. A handler that
// doesn't complete in time is reported to the client with STATUS_TIMEOUT —
// the status spec.md reserves for exactly this case — rather than a
// generic handler failure.
//
// Implementation:
//  1. Create a context with timeout (ctx.Done() fires when timeout expires)
//  2. Run the next handler in a goroutine
//  3. Select between the handler's completion and ctx.Done()
//
// Note: the handler goroutine is NOT cancelled — it continues running in
// the background, and its eventual write to hctx races with the fallback
// write made here. This is acceptable for a worker about to report failure
// and move to the next request; it is not a cancellation mechanism.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, hctx *dispatch.Context) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan struct{}, 1)
			go func() {
				next(ctx, hctx)
				done <- struct{}{}
			}()

			select {
			case <-done:
			case <-ctx.Done():
				hctx.Ok = false
				hctx.Status = message.StatusTimeout
				hctx.ErrorString = "request timed out"
			}
		}
	}
}
