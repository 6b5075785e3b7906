// Package transport also provides WorkerSocketPool, the bounded set of
// backend REQ sockets one per worker goroutine connects through.
//
// Unlike a borrow/return connection pool, every socket in a
// WorkerSocketPool is owned by exactly one worker goroutine for the
// lifetime of the broker: workers don't hand sockets back and forth, they
// each keep theirs until shutdown. What's reused from the borrow/return
// design is the bounded-creation bookkeeping — a fixed capacity decided
// once at startup, identities assigned deterministically, and a single
// Close path that tears every socket down.
package transport

import (
	"fmt"
	"sync"

	czmq "github.com/zeromq/goczmq/v4"
)

// WorkerSocketPool creates and owns the fixed-size fleet of REQ sockets
// that connect to the broker's backend ROUTER endpoint, one per worker
// goroutine. Each socket is assigned a 4-digit zero-padded identity so the
// broker can recognize and route to it.
type WorkerSocketPool struct {
	mu       sync.Mutex
	endpoint string
	size     int
	created  int
	sockets  []*czmq.Sock
}

// NewWorkerSocketPool creates a pool sized for exactly `size` worker
// sockets, all connecting to the given backend endpoint. Sockets are
// created lazily via Acquire, not eagerly here — this mirrors the
// borrow/return pool's lazy-creation behavior, just without ever giving a
// socket back to the pool once acquired.
func NewWorkerSocketPool(endpoint string, size int) *WorkerSocketPool {
	return &WorkerSocketPool{
		endpoint: endpoint,
		size:     size,
		sockets:  make([]*czmq.Sock, 0, size),
	}
}

// Acquire creates the next worker socket in the fleet and assigns it
// identity index `i` (rendered as a 4-digit zero-padded string, e.g.
// "0003"). Returns an error once `size` sockets have already been
// created — the fleet size is fixed at startup, unlike a growable pool.
func (p *WorkerSocketPool) Acquire() (*czmq.Sock, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.created >= p.size {
		return nil, "", fmt.Errorf("transport: worker socket pool exhausted (size %d)", p.size)
	}

	identity := fmt.Sprintf("%04d", p.created)
	sock, err := czmq.NewReq(p.endpoint)
	if err != nil {
		return nil, "", err
	}
	sock.SetOption(czmq.SockSetIdentity(identity))

	p.created++
	p.sockets = append(p.sockets, sock)
	return sock, identity, nil
}

// Close destroys every socket the pool has created. Called once during
// broker shutdown, after every worker goroutine has returned.
func (p *WorkerSocketPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sock := range p.sockets {
		sock.Destroy()
	}
	p.sockets = nil
	p.created = 0
}
