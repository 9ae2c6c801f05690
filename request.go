package krema

import "encoding/json"

// Request is the decoded call envelope delivered by the transport: the
// command name and the raw argument tree. It lives for one invocation.
//
// Handlers that declare a *Request parameter receive the full envelope
// regardless of the argument shape. That is the escape hatch for procedures
// that need the command name or want to decode the arguments themselves.
type Request struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Outcome is the result of one invocation: either a value to serialize back
// to the frontend, or a failure. It is produced once per request and
// immediately encoded; it is never stored.
type Outcome struct {
	Value interface{}
	Err   *Error
}

// OK reports whether the invocation succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

func success(v interface{}) Outcome { return Outcome{Value: v} }

func failure(e *Error) Outcome { return Outcome{Err: e} }

// failureBody is the wire shape of a failed response; the frontend bridge
// rejects the pending promise with its message.
type failureBody struct {
	Message string `json:"message"`
}
