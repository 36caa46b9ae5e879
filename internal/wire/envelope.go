// ABOUTME: Frame types for the JSON protocol spoken with the Autai shell
// ABOUTME: Requests carry correlation ids, responses answer them, events are pushed

package wire

import (
	"encoding/json"
	"fmt"
)

// Kind classifies an inbound frame.
type Kind int

const (
	// KindInvalid marks a frame that is neither a response nor an event.
	KindInvalid Kind = iota
	// KindResponse is an answer to a request, matched by correlation id.
	KindResponse
	// KindEvent is an unsolicited push from the peer.
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "invalid"
	}
}

// Request is an outbound command frame. The id correlates the eventual
// response; Params must marshal to a JSON object.
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Response is an answer frame. Exactly one of Result and Error is set.
type Response struct {
	ID     string       `json:"id"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the error body of a failed response.
type ErrorDetail struct {
	Message string `json:"message"`
}

// Frame is the decoded header of one inbound frame. Raw holds the complete
// frame bytes so event payloads can be decoded again with their extra fields.
type Frame struct {
	ID     string
	Type   string
	Result json.RawMessage
	Err    *ErrorDetail
	Raw    json.RawMessage
}

// Decode parses one frame. The caller must not reuse data afterwards; the
// returned Frame retains it.
func Decode(data []byte) (Frame, error) {
	var aux struct {
		ID     string          `json:"id"`
		Type   string          `json:"type"`
		Result json.RawMessage `json:"result"`
		Error  *ErrorDetail    `json:"error"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return Frame{
		ID:     aux.ID,
		Type:   aux.Type,
		Result: aux.Result,
		Err:    aux.Error,
		Raw:    data,
	}, nil
}

// Kind classifies the frame. A "type" field wins over an "id" field, so an
// event that happens to carry an id stays an event.
func (f Frame) Kind() Kind {
	switch {
	case f.Type != "":
		return KindEvent
	case f.ID != "":
		return KindResponse
	default:
		return KindInvalid
	}
}

// Event is one push event received from, or synthesized about, the peer.
type Event struct {
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the full event frame into a typed payload struct.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Raw, v)
}

// MustEvent builds an Event from a payload that is known to marshal cleanly.
// It panics on marshal failure and is meant for locally synthesized events.
func MustEvent(eventType string, payload any) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("wire: marshal %s event: %v", eventType, err))
	}
	return Event{Type: eventType, Raw: raw}
}
