// Package codec provides the wire serialization layer for the payload
// frame of a clusterrpc envelope.
//
// RPCRequest, RPCResponse, and TraceInfo are encoded using the protobuf
// wire format directly against google.golang.org/protobuf/encoding/protowire
// rather than through generated message code, so the field layout can match
// the original clusterrpc .proto schema byte-for-byte (see SPEC_FULL.md
// §12) without a protoc build step.
package codec

// field numbers, fixed by the original rpc.proto schema. Renumbering these
// breaks wire compatibility with clients built against the original schema.
const (
	fieldRequestRpcID     = 1
	fieldRequestSrvc      = 2
	fieldRequestProcedure = 3
	fieldRequestData      = 4
	fieldRequestDeadline  = 5
	fieldRequestCallerID  = 6
	fieldRequestWantTrace = 7

	fieldTraceReceivedTime = 1
	fieldTraceRepliedTime  = 2
	fieldTraceMachineName  = 3
	fieldTraceEndpointName = 4
	fieldTraceErrorMessage = 5
	fieldTraceRedirect     = 6
	fieldTraceChildCalls   = 7

	fieldResponseRpcID        = 1
	fieldResponseData         = 2
	fieldResponseHasData      = 3
	fieldResponseStatus       = 4
	fieldResponseErrorMessage = 5
	fieldResponseTraceinfo    = 6
)
