package codec

import (
	"fmt"

	"github.com/dermesser/clusterrpc/message"
	"google.golang.org/protobuf/encoding/protowire"
)

// EncodeRequest serializes an RPCRequest using the wire layout described in
// SPEC_FULL.md §12.
func EncodeRequest(req *message.RPCRequest) []byte {
	var b []byte
	b = appendStringField(b, fieldRequestRpcID, req.RpcID)
	b = appendStringField(b, fieldRequestSrvc, req.Srvc)
	b = appendStringField(b, fieldRequestProcedure, req.Procedure)
	b = appendBytesField(b, fieldRequestData, req.Data)
	if req.HasDeadline {
		b = appendVarintField(b, fieldRequestDeadline, uint64(req.Deadline))
	}
	if req.CallerID != "" {
		b = appendStringField(b, fieldRequestCallerID, req.CallerID)
	}
	if req.HasWantTrace {
		b = appendBoolField(b, fieldRequestWantTrace, req.WantTrace)
	}
	return b
}

// DecodeRequest parses bytes previously produced by EncodeRequest (or by an
// original clusterrpc client encoding against the same schema).
func DecodeRequest(data []byte) (*message.RPCRequest, error) {
	req := &message.RPCRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("codec: invalid request tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldRequestRpcID:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			req.RpcID = s
			data = data[n:]
		case fieldRequestSrvc:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			req.Srvc = s
			data = data[n:]
		case fieldRequestProcedure:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			req.Procedure = s
			data = data[n:]
		case fieldRequestData:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			req.Data = v
			data = data[n:]
		case fieldRequestDeadline:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			req.HasDeadline = true
			req.Deadline = int64(v)
			data = data[n:]
		case fieldRequestCallerID:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			req.CallerID = s
			data = data[n:]
		case fieldRequestWantTrace:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			req.HasWantTrace = true
			req.WantTrace = protowire.DecodeBool(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("codec: invalid request field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return req, nil
}

// EncodeResponse serializes an RPCResponse, including a nested TraceInfo
// when present.
func EncodeResponse(resp *message.RPCResponse) []byte {
	var b []byte
	b = appendStringField(b, fieldResponseRpcID, resp.RpcID)
	b = appendBytesField(b, fieldResponseData, resp.ResponseData)
	b = appendBoolField(b, fieldResponseHasData, resp.HasResponseData)
	b = appendVarintField(b, fieldResponseStatus, uint64(resp.ResponseStatus))
	if resp.ErrorMessage != "" {
		b = appendStringField(b, fieldResponseErrorMessage, resp.ErrorMessage)
	}
	if resp.Traceinfo != nil {
		sub := encodeTraceInfo(resp.Traceinfo)
		b = protowire.AppendTag(b, fieldResponseTraceinfo, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b
}

// DecodeResponse parses bytes previously produced by EncodeResponse.
func DecodeResponse(data []byte) (*message.RPCResponse, error) {
	resp := &message.RPCResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("codec: invalid response tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldResponseRpcID:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			resp.RpcID = s
			data = data[n:]
		case fieldResponseData:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			resp.ResponseData = v
			data = data[n:]
		case fieldResponseHasData:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			resp.HasResponseData = protowire.DecodeBool(v)
			data = data[n:]
		case fieldResponseStatus:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			resp.ResponseStatus = message.Status(int32(v))
			data = data[n:]
		case fieldResponseErrorMessage:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			resp.ErrorMessage = s
			data = data[n:]
		case fieldResponseTraceinfo:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			ti, err := decodeTraceInfo(v)
			if err != nil {
				return nil, err
			}
			resp.Traceinfo = ti
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("codec: invalid response field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return resp, nil
}

func encodeTraceInfo(t *message.TraceInfo) []byte {
	var b []byte
	b = appendVarintField(b, fieldTraceReceivedTime, uint64(t.ReceivedTime))
	b = appendVarintField(b, fieldTraceRepliedTime, uint64(t.RepliedTime))
	b = appendStringField(b, fieldTraceMachineName, t.MachineName)
	b = appendStringField(b, fieldTraceEndpointName, t.EndpointName)
	if t.ErrorMessage != "" {
		b = appendStringField(b, fieldTraceErrorMessage, t.ErrorMessage)
	}
	if t.Redirect != "" {
		b = appendStringField(b, fieldTraceRedirect, t.Redirect)
	}
	for _, child := range t.ChildCalls {
		sub := encodeTraceInfo(child)
		b = protowire.AppendTag(b, fieldTraceChildCalls, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	return b
}

func decodeTraceInfo(data []byte) (*message.TraceInfo, error) {
	t := &message.TraceInfo{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("codec: invalid traceinfo tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldTraceReceivedTime:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			t.ReceivedTime = int64(v)
			data = data[n:]
		case fieldTraceRepliedTime:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			t.RepliedTime = int64(v)
			data = data[n:]
		case fieldTraceMachineName:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			t.MachineName = s
			data = data[n:]
		case fieldTraceEndpointName:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			t.EndpointName = s
			data = data[n:]
		case fieldTraceErrorMessage:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			t.ErrorMessage = s
			data = data[n:]
		case fieldTraceRedirect:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			t.Redirect = s
			data = data[n:]
		case fieldTraceChildCalls:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			child, err := decodeTraceInfo(v)
			if err != nil {
				return nil, err
			}
			t.ChildCalls = append(t.ChildCalls, child)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("codec: invalid traceinfo field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return t, nil
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(s))
	return b
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, v)
	return b
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	b = protowire.AppendVarint(b, v)
	return b
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	return appendVarintField(b, num, protowire.EncodeBool(v))
}

func consumeString(data []byte, typ protowire.Type) (string, int, error) {
	v, n, err := consumeBytes(data, typ)
	if err != nil {
		return "", 0, err
	}
	return string(v), n, nil
}

func consumeBytes(data []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("codec: expected bytes wire type, got %d", typ)
	}
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, fmt.Errorf("codec: invalid length-delimited field: %w", protowire.ParseError(n))
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

func consumeVarint(data []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("codec: expected varint wire type, got %d", typ)
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("codec: invalid varint field: %w", protowire.ParseError(n))
	}
	return v, n, nil
}
