// Package broker implements the single-threaded event loop that owns the
// frontend and backend ROUTER sockets and all scheduling state: the free
// worker pool, the pending-envelope overflow queue, and worker lifecycle.
//
// This is the core described in SPEC_FULL.md §4.6/§4.7, ported from the
// original C server's _crpc_server_main/crpc_start_server. The loop itself
// never shares memory with worker goroutines except through the backend
// socket — scheduler state here has exactly one mutator.
package broker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
	"golang.org/x/time/rate"

	"github.com/dermesser/clusterrpc/codec"
	"github.com/dermesser/clusterrpc/dispatch"
	"github.com/dermesser/clusterrpc/message"
	"github.com/dermesser/clusterrpc/middleware"
	"github.com/dermesser/clusterrpc/protocol"
	"github.com/dermesser/clusterrpc/registry"
	"github.com/dermesser/clusterrpc/transport"
	"github.com/dermesser/clusterrpc/worker"
)

// DefaultWorkerCount matches the original #define number_of_workers 4.
const DefaultWorkerCount = 4

// DefaultQueueCapacity is a conservative default for the pending-envelope
// overflow queue; embedders serving bursty workloads should size this to
// their expected backlog.
const DefaultQueueCapacity = 64

// DefaultDrainTimeout bounds how long graceful shutdown waits for
// in-flight requests to finish before forcing socket teardown.
const DefaultDrainTimeout = 5 * time.Second

// Options configures a Broker. Address and Dispatch are required; every
// other field has a sane default applied by New.
type Options struct {
	// Address is the frontend endpoint clients connect to, e.g.
	// "tcp://0.0.0.0:5555".
	Address string

	// Dispatch resolves (service, procedure) pairs to handlers. Required.
	Dispatch dispatch.Func

	// WorkerCount is the fixed size of the worker pool. Defaults to
	// DefaultWorkerCount.
	WorkerCount int

	// QueueCapacity is the pending-envelope overflow queue's bound (Q).
	// Defaults to DefaultQueueCapacity.
	QueueCapacity int

	// Middleware optionally wraps every dispatched handler invocation on
	// every worker (logging, timeouts, rate limiting). Nil means no
	// wrapping.
	Middleware middleware.Middleware

	// AdmissionLimiter, if set, is consulted whenever a request would be
	// queued to the pending ring (i.e. no worker is immediately free). A
	// request that the limiter refuses is shed with
	// StatusOverloadedRetry even if the pending ring has room — a second
	// line of defense on top of the hard capacity bound.
	AdmissionLimiter *rate.Limiter

	// DrainTimeout bounds graceful shutdown. Defaults to
	// DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Registry, if set, is used to register/deregister ServiceName at
	// AdvertiseAddr for the broker's lifetime. Entirely optional — an
	// embedder that doesn't care about service discovery leaves this nil.
	Registry      registry.Registry
	ServiceName   string
	AdvertiseAddr string
	RegistryTTL   int64
}

func (o *Options) setDefaults() {
	if o.WorkerCount <= 0 {
		o.WorkerCount = DefaultWorkerCount
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
}

// Broker is a running (or not-yet-started) broker instance.
type Broker struct {
	opts Options

	frontend *czmq.Sock
	backend  *czmq.Sock
	pool     *transport.WorkerSocketPool

	identities []string // workers[i].identity, fixed after startup
	freeQ      *workerRing
	pendingQ   *pendingRing

	workerWG sync.WaitGroup
}

// New validates options, applies defaults, and returns an unstarted
// Broker. Call Run to actually bind sockets and serve.
func New(opts Options) (*Broker, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("broker: Address is required")
	}
	if opts.Dispatch == nil {
		return nil, fmt.Errorf("broker: Dispatch is required")
	}
	opts.setDefaults()

	return &Broker{
		opts:       opts,
		identities: make([]string, opts.WorkerCount),
		freeQ:      newWorkerRing(opts.WorkerCount),
		pendingQ:   newPendingRing(opts.QueueCapacity),
	}, nil
}

// Run binds the frontend and backend sockets, spawns the worker pool, and
// serves until ctx is cancelled. It returns once the broker has drained
// in-flight work (bounded by Options.DrainTimeout) and torn down both
// sockets.
func (b *Broker) Run(ctx context.Context) error {
	backendEndpoint := fmt.Sprintf("inproc://backend.router.%d", os.Getpid())

	frontend, err := transport.NewFrontendRouter(b.opts.Address)
	if err != nil {
		return fmt.Errorf("broker: failed to bind frontend: %w", err)
	}
	b.frontend = frontend
	defer frontend.Destroy()

	backend, err := transport.NewBackendRouter(backendEndpoint)
	if err != nil {
		return fmt.Errorf("broker: failed to bind backend: %w", err)
	}
	b.backend = backend
	defer backend.Destroy()

	b.pool = transport.NewWorkerSocketPool(backendEndpoint, b.opts.WorkerCount)
	defer b.pool.Close()

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	seen := make(map[string]bool, b.opts.WorkerCount)
	for i := 0; i < b.opts.WorkerCount; i++ {
		sock, identity, err := b.pool.Acquire()
		if err != nil {
			return fmt.Errorf("broker: failed to create worker socket: %w", err)
		}
		if seen[identity] {
			return fmt.Errorf("broker: duplicate worker identity %q", identity)
		}
		seen[identity] = true
		b.identities[i] = identity

		w := worker.New(identity, sock, b.opts.Dispatch, b.opts.Middleware)
		b.workerWG.Add(1)
		go func() {
			defer b.workerWG.Done()
			w.Run(workerCtx)
		}()
		log.WithFields(log.Fields{"identity": identity}).Info("worker started")
	}

	if b.opts.Registry != nil {
		instance := registry.ServiceInstance{Addr: b.opts.AdvertiseAddr, WorkerCount: b.opts.WorkerCount}
		if err := b.opts.Registry.Register(b.opts.ServiceName, instance, b.opts.RegistryTTL); err != nil {
			log.WithFields(log.Fields{"error": err, "service": b.opts.ServiceName}).Error("failed to register with discovery service")
		}
	}

	poller, err := transport.NewPoller(frontend, backend)
	if err != nil {
		return fmt.Errorf("broker: failed to create poller: %w", err)
	}
	defer poller.Destroy()

	const pollTimeoutMillis = 200
	for {
		select {
		case <-ctx.Done():
			b.shutdown(cancelWorkers)
			return nil
		default:
		}

		ready, err := poller.Wait(pollTimeoutMillis)
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error("poller wait failed")
			b.shutdown(cancelWorkers)
			return err
		}
		if ready == nil {
			continue
		}

		frames, err := ready.RecvMessage()
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error("recv failed")
			continue
		}

		switch ready {
		case frontend:
			b.handleFrontend(frames)
		case backend:
			b.handleBackend(frames)
		}
	}
}

// handleFrontend implements SPEC_FULL.md §4.6's frontend-ready path.
func (b *Broker) handleFrontend(frames [][]byte) {
	env, err := protocol.DecodeFrontend(frames)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("dropping malformed frontend envelope")
		return
	}

	if idx, ok := b.freeQ.dequeue(); ok {
		b.dispatchToWorker(b.identities[idx], env)
		return
	}

	if b.admitToPending() {
		b.pendingQ.enqueue(&pendingEnvelope{
			clientID:  env.ClientID,
			requestID: env.RequestID,
			payload:   env.Payload,
		})
		return
	}

	log.WithFields(log.Fields{"client_id": string(env.ClientID)}).Warn("shedding request: no free worker and queue full")
	b.sendOverload(env)
}

// admitToPending reports whether a request that found no free worker may
// be queued. It is false either when the overflow queue is at capacity,
// or when an optional AdmissionLimiter is configured and out of tokens —
// the latter sheds load earlier than strictly necessary, trading a little
// queue headroom for a smoother admission curve under sustained bursts.
func (b *Broker) admitToPending() bool {
	if b.pendingQ.full() {
		return false
	}
	if b.opts.AdmissionLimiter != nil && !b.opts.AdmissionLimiter.Allow() {
		return false
	}
	return true
}

// handleBackend implements SPEC_FULL.md §4.6's backend-ready path.
func (b *Broker) handleBackend(frames [][]byte) {
	identity, env, isReady, err := protocol.DecodeBackend(frames)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("dropping malformed backend envelope")
		return
	}

	idx := b.findWorkerIndex(identity)
	if idx < 0 {
		log.WithFields(log.Fields{"identity": identity}).Error("backend envelope from unknown worker identity")
		return
	}

	if isReady {
		b.freeQ.enqueue(idx)
		log.WithFields(log.Fields{"identity": identity}).Debug("worker registered")
		return
	}

	if err := b.frontend.SendMessage([][]byte{env.ClientID, env.RequestID, {}, env.Payload}); err != nil {
		log.WithFields(log.Fields{"error": err, "identity": identity}).Error("failed to forward response to frontend")
	}

	if pending, ok := b.pendingQ.dequeue(); ok {
		b.dispatchToWorker(identity, &protocol.ClientEnvelope{
			ClientID:  pending.clientID,
			RequestID: pending.requestID,
			Payload:   pending.payload,
		})
		return
	}

	b.freeQ.enqueue(idx)
}

func (b *Broker) dispatchToWorker(identity string, env *protocol.ClientEnvelope) {
	if err := b.backend.SendMessage(protocol.EncodeBackend(identity, env)); err != nil {
		log.WithFields(log.Fields{"error": err, "identity": identity}).Error("failed to dispatch to worker")
	}
}

// sendOverload replies directly to the client without ever touching a
// worker, matching §14 item 1's resolution of the original's null-
// identity bug.
func (b *Broker) sendOverload(env *protocol.ClientEnvelope) {
	resp := message.NewResponse("", message.StatusOverloadedRetry, "", nil)
	payload := codec.EncodeResponse(resp)
	if err := b.frontend.SendMessage([][]byte{env.ClientID, env.RequestID, {}, payload}); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("failed to send overload reply")
	}
}

func (b *Broker) findWorkerIndex(identity string) int {
	for i, id := range b.identities {
		if id == identity {
			return i
		}
	}
	return -1
}

// shutdown implements §14 item 2: stop admitting new work, wait for the
// free pool to recover to full size (all workers idle) or DrainTimeout to
// elapse, then cancel worker goroutines and let Run's deferred socket
// Destroy calls tear everything down.
func (b *Broker) shutdown(cancelWorkers context.CancelFunc) {
	log.Info("broker shutting down, draining in-flight requests")

	deadline := time.Now().Add(b.opts.DrainTimeout)
	poller, err := transport.NewPoller(b.backend)
	if err == nil {
		defer poller.Destroy()
		for b.freeQ.len() < b.opts.WorkerCount && time.Now().Before(deadline) {
			ready, err := poller.Wait(100)
			if err != nil || ready == nil {
				continue
			}
			frames, err := ready.RecvMessage()
			if err != nil {
				continue
			}
			b.handleBackend(frames)
		}
	}

	if b.opts.Registry != nil {
		if err := b.opts.Registry.Deregister(b.opts.ServiceName, b.opts.AdvertiseAddr); err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("failed to deregister from discovery service")
		}
	}

	cancelWorkers()
	b.workerWG.Wait()
	log.Info("broker shutdown complete")
}
