// Package message defines the wire-level structures exchanged between a
// clusterrpc client and this broker: the decoded request, the encoded
// response, and the optional trace attached to a response.
//
// These mirror the original clusterrpc protobuf schema (rpc.proto) field
// for field, so that a client built against the original definitions can
// still address this server.
package message

// Status is the response status enumeration. Numeric values are part of the
// wire contract and must not be renumbered.
type Status int32

const (
	StatusUnknown            Status = 0
	StatusOK                 Status = 1
	StatusNotFound           Status = 2
	StatusNotOK              Status = 4
	StatusServerError        Status = 5
	StatusTimeout            Status = 6
	StatusOverloadedRetry    Status = 7
	StatusClientRequestError Status = 9
	StatusClientNetworkError Status = 10
	StatusClientCalledWrong  Status = 11
	StatusMissedDeadline     Status = 12
	StatusLoadshed           Status = 13
	StatusUnhealthy          Status = 14
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNotOK:
		return "NOT_OK"
	case StatusServerError:
		return "SERVER_ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusOverloadedRetry:
		return "OVERLOADED_RETRY"
	case StatusClientRequestError:
		return "CLIENT_REQUEST_ERROR"
	case StatusClientNetworkError:
		return "CLIENT_NETWORK_ERROR"
	case StatusClientCalledWrong:
		return "CLIENT_CALLED_WRONG"
	case StatusMissedDeadline:
		return "MISSED_DEADLINE"
	case StatusLoadshed:
		return "LOADSHED"
	case StatusUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

// RPCRequest is the decoded payload of a client envelope's fourth frame.
type RPCRequest struct {
	RpcID     string // Unique-ish ID for this RPC, echoed back on the response
	Srvc      string
	Procedure string
	Data      []byte

	HasDeadline bool
	Deadline    int64 // UNIX microseconds after which the caller no longer wants an answer

	CallerID string

	HasWantTrace bool
	WantTrace    bool
}

// Endpoint returns the "srvc.procedure" string used as the trace endpoint
// name and for dispatch lookups.
func (r *RPCRequest) Endpoint() string {
	return r.Srvc + "." + r.Procedure
}

// TraceInfo carries timing and identity information for a single hop of a
// call. child_calls exists for client-side composition across hops; this
// broker never populates it.
type TraceInfo struct {
	ReceivedTime int64 // UNIX microseconds
	RepliedTime  int64 // UNIX microseconds
	MachineName  string
	EndpointName string
	ErrorMessage string
	Redirect     string
	ChildCalls   []*TraceInfo
}

// RPCResponse is the message encoded back to the client on the frontend
// socket.
type RPCResponse struct {
	RpcID string

	ResponseData    []byte
	HasResponseData bool // always true once a response is built by this server

	ResponseStatus Status
	ErrorMessage   string

	Traceinfo *TraceInfo // nil unless the request opted into tracing
}

// NewResponse builds a response that always marks response data as present,
// matching the original server's send_response behavior of setting
// has_response_data unconditionally.
func NewResponse(rpcID string, status Status, errMsg string, data []byte) *RPCResponse {
	if data == nil {
		data = []byte{}
	}
	return &RPCResponse{
		RpcID:           rpcID,
		ResponseData:    data,
		HasResponseData: true,
		ResponseStatus:  status,
		ErrorMessage:    errMsg,
	}
}
