// Package transport wraps the ZeroMQ ROUTER sockets and poller that carry
// the wire protocol between clients, the broker, and workers.
//
// Two ROUTER sockets are involved:
//
//	frontend — bound to the broker's public endpoint, one peer per client
//	backend  — bound to an inproc endpoint, one peer per worker goroutine
//
// Both are wrapped by a single Poller so the broker's event loop can block
// on either socket becoming readable without spinning.
package transport

import (
	czmq "github.com/zeromq/goczmq/v4"
)

// NewFrontendRouter creates and binds the ROUTER socket clients connect to.
// The high water mark is raised well above the default so a burst of
// client requests can't be silently dropped by libzmq before the broker
// even sees them; admission control past that point is the broker's job,
// not the socket's.
func NewFrontendRouter(endpoint string) (*czmq.Sock, error) {
	sock, err := czmq.NewRouter(endpoint)
	if err != nil {
		return nil, err
	}
	sock.SetOption(czmq.SockSetRcvhwm(100000))
	sock.SetOption(czmq.SockSetRouterMandatory(1))
	return sock, nil
}

// NewBackendRouter creates and binds the ROUTER socket worker sockets
// connect to. It is always an inproc endpoint — workers run as goroutines
// in the same process as the broker, never as separate processes. Mandatory
// routing is set the same as on the frontend: a send to a worker identity
// that has already disconnected (a stale freeQ entry) must fail loudly
// rather than being silently dropped by libzmq.
func NewBackendRouter(endpoint string) (*czmq.Sock, error) {
	sock, err := czmq.NewRouter(endpoint)
	if err != nil {
		return nil, err
	}
	sock.SetOption(czmq.SockSetRcvhwm(100000))
	sock.SetOption(czmq.SockSetRouterMandatory(1))
	return sock, nil
}

// NewPoller wraps one or more sockets in a single poller. Wait blocks
// until any of them has a message pending, or the timeout elapses, and
// returns the socket that became readable (nil on timeout). The broker
// passes both ROUTER sockets during normal operation, and just the
// backend socket alone while draining on shutdown.
func NewPoller(socks ...*czmq.Sock) (*czmq.Poller, error) {
	return czmq.NewPoller(socks...)
}
