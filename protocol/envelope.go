// Package protocol implements the envelope framing for clusterrpc's two-hop
// routing topology.
//
// The frontend socket exchanges a 4-frame envelope with clients:
//
//	[client_id, request_id, "", payload]
//
// The backend socket exchanges a 6-frame envelope with workers — the first
// two frames are the routing prefix a ROUTER socket adds for the sender
// (worker_identity, "") and the last four are the client-facing frames
// forwarded unchanged:
//
//	[worker_identity, "", client_id, request_id, "", payload]
//
// A worker's very first backend send is a READY envelope that has the
// identical 4-frame shape as a normal request so the broker's backend
// receive path stays uniform; the payload frame carries the literal marker
// string "__ready__" instead of a serialized RPCRequest.
package protocol

import "fmt"

// ReadyMarker is the literal payload of a worker's registration envelope.
const ReadyMarker = "__ready__"

// ClientEnvelope is the decoded 4-frame frontend envelope, with the payload
// frame kept opaque — callers decode it into an RPCRequest separately.
type ClientEnvelope struct {
	ClientID  []byte
	RequestID []byte
	Payload   []byte
}

// DecodeFrontend validates and unpacks a frontend-received envelope. Any
// frame count other than 4 is rejected: client_id is required to send a
// reply at all, so a malformed envelope can only be logged and dropped.
func DecodeFrontend(frames [][]byte) (*ClientEnvelope, error) {
	if len(frames) != 4 {
		return nil, fmt.Errorf("protocol: expected 4 frames from frontend, got %d", len(frames))
	}
	if len(frames[2]) != 0 {
		return nil, fmt.Errorf("protocol: expected empty separator frame, got %d bytes", len(frames[2]))
	}
	return &ClientEnvelope{
		ClientID:  frames[0],
		RequestID: frames[1],
		Payload:   frames[3],
	}, nil
}

// EncodeBackend builds the 6-frame envelope dispatched to a specific
// worker: [worker_identity, "", client_id, request_id, "", payload].
func EncodeBackend(workerIdentity string, env *ClientEnvelope) [][]byte {
	return [][]byte{
		[]byte(workerIdentity),
		{},
		env.ClientID,
		env.RequestID,
		{},
		env.Payload,
	}
}

// DecodeBackend unpacks a backend-received envelope. It pops the
// worker_identity and its empty separator, then reports whether the
// remaining 4 frames are a READY registration (to be consumed by the
// broker, never forwarded) or a real client envelope. Malformed backend
// frames are a defensive check only — the broker only ever constructs
// well-formed envelopes for workers to reply to — but a worker's READY
// shares this exact code path so it must be tolerated on day one.
func DecodeBackend(frames [][]byte) (workerIdentity string, env *ClientEnvelope, isReady bool, err error) {
	if len(frames) != 6 {
		return "", nil, false, fmt.Errorf("protocol: expected 6 frames from backend, got %d", len(frames))
	}
	if len(frames[1]) != 0 {
		return "", nil, false, fmt.Errorf("protocol: expected empty separator frame after worker identity, got %d bytes", len(frames[1]))
	}
	workerIdentity = string(frames[0])
	env = &ClientEnvelope{
		ClientID:  frames[2],
		RequestID: frames[3],
		Payload:   frames[5],
	}
	if len(frames[4]) != 0 {
		return "", nil, false, fmt.Errorf("protocol: expected empty separator frame before payload, got %d bytes", len(frames[4]))
	}
	isReady = string(env.Payload) == ReadyMarker
	return workerIdentity, env, isReady, nil
}

// EncodeReady builds the worker's initial registration envelope:
// ["BOGUS_CLIENT_ID", "REQUEST_ID", "", "__ready__"]. It is sent as a plain
// 4-frame message on the worker's own socket; the backend ROUTER socket
// prepends the worker's identity and delimiter on receipt, producing the
// 6-frame shape DecodeBackend expects.
func EncodeReady() [][]byte {
	return [][]byte{
		[]byte("BOGUS_CLIENT_ID"),
		[]byte("REQUEST_ID"),
		{},
		[]byte(ReadyMarker),
	}
}

// EncodeWorkerResponse builds the 4-frame envelope a worker sends back to
// the backend socket after handling a request: [client_id, request_id, "",
// payload]. Like EncodeReady, the ROUTER-side identity/delimiter prefix is
// added by the socket layer, not by this function.
func EncodeWorkerResponse(env *ClientEnvelope, payload []byte) [][]byte {
	return [][]byte{
		env.ClientID,
		env.RequestID,
		{},
		payload,
	}
}
