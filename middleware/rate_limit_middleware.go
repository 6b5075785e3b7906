package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/dermesser/clusterrpc/dispatch"
	"github.com/dermesser/clusterrpc/message"
)

// RateLimitMiddleware enforces an admission rate on the handler calls it
// wraps, independent of the broker's own pending-queue overload shedding
// (broker.Options.AdmissionLimiter): this one runs on the worker, after a
// request has already been dispatched, so it protects the wrapped handlers
// from being hit harder than they can sustain rather than protecting the
// whole broker's queue depth. All calls through one RateLimitMiddleware
// share a single token bucket, whatever their endpoint. A rejected request is reported with STATUS_LOADSHED, not
// STATUS_OVERLOADED_RETRY — the latter is reserved for the broker's own
// queue-admission failure (see broker.sendOverload), and giving the two
// layers distinct statuses lets a client tell which guard fired.
//
// Token bucket: tokens are added at rate r per second, up to a burst size.
// Unlike a leaky bucket (constant drain rate), token bucket allows short
// bursts of traffic — more suitable for RPC workloads with bursty patterns.
//
// The limiter is created in the OUTER closure (once per middleware
// creation), NOT in the inner handler function — it is shared across every
// request, not re-created per call.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, hctx *dispatch.Context) {
			if !limiter.Allow() {
				hctx.Ok = false
				hctx.Status = message.StatusLoadshed
				hctx.ErrorString = "rate limit exceeded"
				return
			}
			next(ctx, hctx)
		}
	}
}
