// Package envelope defines the message structure exchanged between a client
// channel and a hub dispatcher.
//
// Envelope is the unit of wire communication. One message on the transport is
// exactly one JSON-serialized envelope string, tagged by the transport with
// the sender's declared origin.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Action identifies what an envelope asks for (request side) or reports
// (response side).
type Action string

const (
	// Request actions — issued by the client channel, executed by the hub.
	ActionGetItem    Action = "getItem"
	ActionSetItem    Action = "setItem"
	ActionRemoveItem Action = "removeItem"
	ActionClear      Action = "clear"
	ActionLength     Action = "length"
	ActionKey        Action = "key"

	// Response actions — issued by the hub, echoing the request's ref.
	ActionSuccess Action = "success"
	ActionError   Action = "error"

	// ActionReady is announced once by the hub when its dispatcher is
	// installed and listening. It carries no ref and receives no reply.
	ActionReady Action = "ready"
)

// Envelope carries the data for a single request or response.
//
//   - On request:  Action is one of the request actions, Ref correlates the
//     eventual response (empty ref = fire-and-forget, no response expected by
//     the caller), Key/Value are set as the action requires.
//   - On response: Action is "success" or "error", Ref echoes the request's
//     ref verbatim, Value carries the result, Message carries the error text.
type Envelope struct {
	Action  Action `json:"action"`
	Ref     string `json:"ref,omitempty"`
	Key     string `json:"key,omitempty"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// IsRequest reports whether the action belongs to the request vocabulary.
func (a Action) IsRequest() bool {
	switch a {
	case ActionGetItem, ActionSetItem, ActionRemoveItem, ActionClear, ActionLength, ActionKey:
		return true
	}
	return false
}

// IsResponse reports whether the action belongs to the response vocabulary.
func (a Action) IsResponse() bool {
	return a == ActionSuccess || a == ActionError
}

// Encode serializes the envelope to its single-string wire form.
func (e *Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses one wire string back into an envelope.
//
// Values round-trip losslessly for null, string, and number (numbers decode
// as float64 per encoding/json). A parse failure is a protocol error: the
// caller must drop the message, never crash on it.
func Decode(data string) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if e.Action == "" {
		return nil, fmt.Errorf("malformed envelope: missing action")
	}
	return &e, nil
}

// Success builds the success response for a request, echoing its ref and key.
func Success(req *Envelope, value any) *Envelope {
	return &Envelope{Action: ActionSuccess, Ref: req.Ref, Key: req.Key, Value: value}
}

// Error builds the error response for a request, echoing its ref and key.
func Error(req *Envelope, message string) *Envelope {
	return &Envelope{Action: ActionError, Ref: req.Ref, Key: req.Key, Message: message}
}
