// Package protocol defines the wire surface a remote master uses to
// drive model instances: a JSON message envelope, the action set with
// typed payloads, and the transport abstraction the websocket and quic
// implementations plug into.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MessageKind classifies an envelope.
type MessageKind string

const (
	KindRequest  MessageKind = "request"
	KindResponse MessageKind = "response"
	KindEvent    MessageKind = "event"
	KindError    MessageKind = "error"
)

// Message is the envelope every frame carries.
type Message struct {
	ID        string          `json:"id"`
	Kind      MessageKind     `json:"kind"`
	Action    Action          `json:"action"`
	Instance  string          `json:"instance,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// GenerateMessageID returns a fresh message id.
func GenerateMessageID() string { return uuid.NewString() }

// GenerateInstanceHandle returns a fresh remote instance handle.
func GenerateInstanceHandle() string { return uuid.NewString() }

// GenerateSessionID returns a fresh session id.
func GenerateSessionID() string { return uuid.NewString() }

// NewRequest builds a request envelope. A nil payload leaves the
// payload empty.
func NewRequest(action Action, instance string, payload any) (*Message, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        GenerateMessageID(),
		Kind:      KindRequest,
		Action:    action,
		Instance:  instance,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponse builds the success response to req.
func NewResponse(req *Message, payload any) (*Message, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        req.ID,
		Kind:      KindResponse,
		Action:    req.Action,
		Instance:  req.Instance,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorResponse builds the failure response to req.
func NewErrorResponse(req *Message, failure error) *Message {
	return &Message{
		ID:        req.ID,
		Kind:      KindError,
		Action:    req.Action,
		Instance:  req.Instance,
		Error:     ErrorInfoFrom(failure),
		Timestamp: time.Now().UTC(),
	}
}

// NewEvent builds an unsolicited server-to-client envelope.
func NewEvent(action Action, instance string, payload any) (*Message, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        GenerateMessageID(),
		Kind:      KindEvent,
		Action:    action,
		Instance:  instance,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	return raw, nil
}

// Bind unmarshals the payload into v.
func (m *Message) Bind(v any) error {
	if len(m.Payload) == 0 {
		return errors.Wrap(ErrBadPayload, "empty payload")
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return errors.Wrap(ErrBadPayload, err.Error())
	}
	return nil
}

// IsError reports whether the envelope carries a failure.
func (m *Message) IsError() bool { return m.Kind == KindError || m.Error != nil }

// Err returns the carried failure, or nil.
func (m *Message) Err() error {
	if m.Error == nil {
		return nil
	}
	return m.Error.Err()
}

// Encode serializes the envelope to its wire form.
func Encode(m *Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode message")
	}
	return data, nil
}

// Decode parses a wire frame back into an envelope.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if m.ID == "" || m.Kind == "" {
		return nil, errors.Wrap(ErrInvalidMessage, "missing id or kind")
	}
	return &m, nil
}
