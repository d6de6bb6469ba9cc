// Package daemonproto classifies the newline-delimited JSON lines
// emitted by the UI-framework daemon subprocess into Event, Response,
// or Log messages, mirroring the shape discrimination the teacher's
// wsFrameParser applies to raw websocket frames (proxy/ws_interceptor.go),
// generalized to JSON-RPC daemon lines instead of WS frame headers.
package daemonproto

import "encoding/json"

// Kind discriminates a classified Message.
type Kind int

const (
	// KindUnknown marks a line that parsed but matched no known shape;
	// callers must drop it silently.
	KindUnknown Kind = iota
	KindEvent
	KindResponse
	KindLog
)

// Event is a daemon-emitted notification.
type Event struct {
	Name   string          `json:"event"`
	Params json.RawMessage `json:"params"`
}

// RPCError is the error object of a JSON-RPC-2.0-shaped Response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Response is a reply to a request this client previously sent.
type Response struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Log is a daemon-emitted log line, distinct from stderr forwarding.
type Log struct {
	Message    string `json:"log"`
	ErrorFlag  bool   `json:"error,omitempty"`
	StackTrace string `json:"stackTrace,omitempty"`
}

// Message is the classified result of one daemon line.
type Message struct {
	Kind     Kind
	Event    *Event
	Response *Response
	Log      *Log
}

type rawMessage struct {
	Event  *string         `json:"event"`
	ID     *int            `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Log    *string         `json:"log"`
	Params json.RawMessage `json:"params"`
	ErrFl  bool            `json:"error_flag"`
	Stack  string          `json:"stackTrace"`
}

// Classify parses one line of daemon output. It returns ok=false for
// lines that fail to parse as JSON or that decode to none of the known
// shapes; callers must drop those silently rather than treat them as
// errors, since the child also prints human-readable startup banners.
func Classify(line []byte) (Message, bool) {
	var raw rawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return classifyArray(line)
	}
	return classifyOne(raw)
}

func classifyArray(line []byte) (Message, bool) {
	var arr []rawMessage
	if err := json.Unmarshal(line, &arr); err != nil || len(arr) == 0 {
		return Message{}, false
	}
	// A top-level array carries exactly one object in practice; classify
	// the first and ignore the rest rather than guessing how to merge them.
	return classifyOne(arr[0])
}

func classifyOne(raw rawMessage) (Message, bool) {
	switch {
	case raw.Event != nil:
		return Message{Kind: KindEvent, Event: &Event{Name: *raw.Event, Params: raw.Params}}, true
	case raw.ID != nil && (raw.Result != nil || raw.Error != nil):
		return Message{Kind: KindResponse, Response: &Response{ID: *raw.ID, Result: raw.Result, Error: raw.Error}}, true
	case raw.Log != nil:
		return Message{Kind: KindLog, Log: &Log{Message: *raw.Log, ErrorFlag: raw.ErrFl, StackTrace: raw.Stack}}, true
	default:
		return Message{}, false
	}
}
