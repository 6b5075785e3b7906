// Package dispatch defines the embedder-supplied handler contract: the
// (service, procedure) → handler lookup and the per-request handler
// context. The core never implements this lookup itself — it is supplied
// by whoever starts the broker — but this package also ships a reflection-
// based convenience dispatcher for embedders who want one, adapted from the
// same struct-scanning technique clusterrpc's teacher used for its own
// service registry.
package dispatch

import "github.com/dermesser/clusterrpc/message"

// Context is passed to a Handler for a single request. The broker's worker
// fills Input before calling the handler and reads Ok/ErrorString/Response/
// Status after it returns to build the response.
type Context struct {
	Input []byte

	Ok          bool
	ErrorString string
	Response    []byte

	// Status optionally names the exact wire status to report on failure
	// (Ok == false). Middleware that short-circuits for a reason more
	// specific than "the handler failed" — a timeout, a rate limit — sets
	// this so the client sees the precise cause instead of a generic
	// NOT_OK. Left at its zero value (message.StatusUnknown) by a plain
	// handler failure; the worker falls back to NOT_OK in that case.
	Status message.Status
}

// Handler processes one request. It must set ctx.Ok and, on success,
// ctx.Response; on failure, ctx.ErrorString.
type Handler func(ctx *Context)

// Func looks up the handler for a (service, procedure) pair, returning nil
// if no handler is registered. Implementations must be safe to call
// concurrently from every worker goroutine.
type Func func(service, procedure string) Handler
