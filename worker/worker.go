// Package worker implements the per-goroutine request loop that handles
// dispatched requests against a backend ROUTER socket.
//
// Each worker owns one REQ socket connected to the broker's backend
// endpoint. Its lifecycle mirrors the original C implementation's
// _crpc_server_thread: send a READY envelope once at startup, then loop
// forever receiving a 4-frame request, dispatching it, and sending back a
// 4-frame response. A worker never retries and never times out a request
// on its own — those are broker- and middleware-level concerns.
package worker

import (
	"context"
	"log"

	czmq "github.com/zeromq/goczmq/v4"

	"github.com/dermesser/clusterrpc/codec"
	"github.com/dermesser/clusterrpc/dispatch"
	"github.com/dermesser/clusterrpc/message"
	"github.com/dermesser/clusterrpc/middleware"
	"github.com/dermesser/clusterrpc/protocol"
	"github.com/dermesser/clusterrpc/trace"
)

// Worker handles requests for one backend socket.
type Worker struct {
	identity string
	sock     *czmq.Sock
	dispatch dispatch.Func
	chain    middleware.Middleware
}

// New creates a worker bound to the given socket and identity. chain may
// be nil, in which case requests are dispatched directly with no
// middleware wrapping.
func New(identity string, sock *czmq.Sock, dispatchFn dispatch.Func, chain middleware.Middleware) *Worker {
	return &Worker{
		identity: identity,
		sock:     sock,
		dispatch: dispatchFn,
		chain:    chain,
	}
}

// Run sends the READY registration envelope and then loops receiving and
// handling requests until ctx is cancelled or the socket returns an error.
// It is meant to be run in its own goroutine; the caller's WaitGroup should
// track it.
func (w *Worker) Run(ctx context.Context) {
	if err := w.sock.SendMessage(protocol.EncodeReady()); err != nil {
		log.Printf("worker %s: failed to send ready: %v", w.identity, err)
		return
	}

	poller, err := czmq.NewPoller(w.sock)
	if err != nil {
		log.Printf("worker %s: failed to create poller: %v", w.identity, err)
		return
	}
	defer poller.Destroy()

	// Poll with a short timeout rather than blocking forever on RecvMessage
	// so ctx cancellation is noticed promptly even with no traffic.
	const pollTimeoutMillis = 200

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ready, err := poller.Wait(pollTimeoutMillis)
		if err != nil {
			log.Printf("worker %s: poll failed: %v", w.identity, err)
			return
		}
		if ready == nil {
			continue
		}

		frames, err := ready.RecvMessage()
		if err != nil {
			log.Printf("worker %s: recv failed: %v", w.identity, err)
			return
		}
		if len(frames) != 4 {
			log.Printf("worker %s: expected 4 frames, got %d", w.identity, len(frames))
			continue
		}

		env := &protocol.ClientEnvelope{
			ClientID:  frames[0],
			RequestID: frames[1],
			Payload:   frames[3],
		}

		resp := w.handle(ctx, env)
		payload := codec.EncodeResponse(resp)
		if err := w.sock.SendMessage(protocol.EncodeWorkerResponse(env, payload)); err != nil {
			log.Printf("worker %s: send failed: %v", w.identity, err)
			return
		}
	}
}

// handle decodes one request, dispatches it, and builds the response.
// It never returns an error — every failure path is turned into a status
// code on the response, matching send_response's unconditional
// has_response_data.
func (w *Worker) handle(ctx context.Context, env *protocol.ClientEnvelope) *message.RPCResponse {
	req, err := codec.DecodeRequest(env.Payload)
	if err != nil {
		// CLIENT_REQUEST_ERROR is reserved for the client-side equivalent of
		// this failure; the envelope decoded fine, only the payload didn't.
		return message.NewResponse("", message.StatusServerError, err.Error(), nil)
	}

	var rec *trace.Recorder
	if req.HasWantTrace && req.WantTrace {
		rec = trace.Start(req.Endpoint())
	}

	handler := w.dispatch(req.Srvc, req.Procedure)
	if handler == nil {
		resp := message.NewResponse(req.RpcID, message.StatusNotFound, "no handler could be found", nil)
		if rec != nil {
			resp.Traceinfo = rec.Finish()
		}
		return resp
	}

	hctx := &dispatch.Context{Input: req.Data}
	hf := func(ctx context.Context, hctx *dispatch.Context) { handler(hctx) }
	if w.chain != nil {
		hf = w.chain(hf)
	}
	hf(ctx, hctx)

	var resp *message.RPCResponse
	if !hctx.Ok {
		status := hctx.Status
		if status == message.StatusUnknown {
			status = message.StatusNotOK
		}
		resp = message.NewResponse(req.RpcID, status, hctx.ErrorString, nil)
	} else {
		resp = message.NewResponse(req.RpcID, message.StatusOK, "", hctx.Response)
	}

	if rec != nil {
		resp.Traceinfo = rec.Finish()
	}
	return resp
}
