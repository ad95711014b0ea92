package rpc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Request is a single named method invocation with keyword-style arguments.
// ReplyTo is worker-local and never transmitted.
type Request struct {
	ClientID  string
	RequestID string
	Method    string
	Kwargs    map[string]interface{}
	ReplyTo   chan *Response `msgpack:"-"`
}

// Reply constructs a Response from this request and, if a reply channel is
// bound, pushes it there.
func (r *Request) Reply(kind Kind, content interface{}) *Response {
	resp := &Response{
		ClientID:  r.ClientID,
		RequestID: r.RequestID,
		Kind:      kind,
		Content:   content,
	}
	if r.ReplyTo != nil {
		r.ReplyTo <- resp
	}
	return resp
}

// Response is a framed outcome routed from worker to client.
type Response struct {
	ClientID  string
	RequestID string
	Kind      Kind
	Content   interface{}
}

// EncodeRequest renders a Request as three wire frames:
// [request_id, method_name_utf8, kwargs_binary]. ClientID is not encoded:
// the receiving ROUTER socket sees the sending DEALER socket's transport
// identity instead.
func EncodeRequest(req *Request) ([][]byte, error) {
	kwargs, err := msgpack.Marshal(req.Kwargs)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding kwargs: %s", ErrInvalidFrame, err)
	}
	return [][]byte{
		[]byte(req.RequestID),
		[]byte(req.Method),
		kwargs,
	}, nil
}

// DecodeRequest parses the three request frames produced by EncodeRequest.
// clientID is supplied by the caller (recovered from routing identity); the
// codec itself never produces routing identity frames.
func DecodeRequest(clientID string, frames [][]byte) (*Request, error) {
	if len(frames) != 3 {
		return nil, fmt.Errorf("%w: request needs 3 frames, got %d", ErrInvalidFrame, len(frames))
	}
	var kwargs map[string]interface{}
	if len(frames[2]) > 0 {
		if err := msgpack.Unmarshal(frames[2], &kwargs); err != nil {
			return nil, fmt.Errorf("%w: decoding kwargs: %s", ErrInvalidFrame, err)
		}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	return &Request{
		ClientID:  clientID,
		RequestID: string(frames[0]),
		Method:    string(frames[1]),
		Kwargs:    kwargs,
	}, nil
}

// EncodeResponse renders a Response as four wire frames:
// [client_id, request_id, kind_binary, content_binary].
func EncodeResponse(resp *Response) ([][]byte, error) {
	kind, err := msgpack.Marshal(int(resp.Kind))
	if err != nil {
		return nil, fmt.Errorf("%w: encoding kind: %s", ErrInvalidFrame, err)
	}
	content, err := msgpack.Marshal(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding content: %s", ErrInvalidFrame, err)
	}
	return [][]byte{
		[]byte(resp.ClientID),
		[]byte(resp.RequestID),
		kind,
		content,
	}, nil
}

// DecodeResponse parses the four response frames produced by EncodeResponse.
func DecodeResponse(frames [][]byte) (*Response, error) {
	if len(frames) != 4 {
		return nil, fmt.Errorf("%w: response needs 4 frames, got %d", ErrInvalidFrame, len(frames))
	}
	var kind int
	if err := msgpack.Unmarshal(frames[2], &kind); err != nil {
		return nil, fmt.Errorf("%w: decoding kind: %s", ErrInvalidFrame, err)
	}
	if _, known := kindNames[Kind(kind)]; !known {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidFrame, kind)
	}
	var content interface{}
	if len(frames[3]) > 0 {
		if err := msgpack.Unmarshal(frames[3], &content); err != nil {
			return nil, fmt.Errorf("%w: decoding content: %s", ErrInvalidFrame, err)
		}
	}
	return &Response{
		ClientID:  string(frames[0]),
		RequestID: string(frames[1]),
		Kind:      Kind(kind),
		Content:   content,
	}, nil
}

// heartbeatFrames builds the unsolicited worker->broker liveness frame:
// [b"", b"heartbeat", encode(HEARTBEAT), b""].
func heartbeatFrames() [][]byte {
	kind, _ := msgpack.Marshal(int(KindHeartbeat))
	return [][]byte{
		[]byte(""),
		[]byte("heartbeat"),
		kind,
		[]byte(""),
	}
}

// isHeartbeatFrame reports whether frames carry no request binding and
// should be treated as a pure liveness signal. Any receiver must check this
// before attempting request-id correlation.
func isHeartbeatFrame(frames [][]byte) bool {
	if len(frames) != 4 {
		return false
	}
	var kind int
	if err := msgpack.Unmarshal(frames[2], &kind); err != nil {
		return false
	}
	return Kind(kind) == KindHeartbeat
}
