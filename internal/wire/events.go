// ABOUTME: Event vocabulary for both shell channels and their typed payloads
// ABOUTME: Includes the synthetic events raised locally on connection trouble

package wire

import "encoding/json"

// Event types pushed by the shell or synthesized locally. Matching is by
// exact name; there are no wildcard subscriptions.
const (
	// EventUserInput answers an input_request; it carries the request's input_id.
	EventUserInput = "user_input"
	// EventCommand is a control command from the UI (pause, resume, stop).
	EventCommand = "command"
	// EventAgentEvent streams agent progress to the UI.
	EventAgentEvent = "agent_event"
	// EventInputRequest asks the human a question through the UI.
	EventInputRequest = "input_request"
	// EventNotification shows a transient message in the UI.
	EventNotification = "notification"
	// EventPageEvent reports a page lifecycle event for one window.
	EventPageEvent = "page_event"

	// EventConnectionLost is synthesized locally when the socket drops
	// without a Close call.
	EventConnectionLost = "connection_lost"
	// EventProtocolError is synthesized locally for frames that cannot be
	// classified. The connection stays up.
	EventProtocolError = "protocol_error"
)

// UserInput is the UI's answer to an input request.
type UserInput struct {
	Type    string          `json:"type"`
	InputID string          `json:"input_id"`
	Value   json.RawMessage `json:"value"`
}

// UICommand is a control command typed or clicked in the UI.
type UICommand struct {
	Type    string          `json:"type"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// AgentEvent is one agent progress update forwarded to the UI. Timestamp is
// Unix milliseconds.
type AgentEvent struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// InputRequest asks the human a question. InputID correlates the eventual
// user_input answer; Options, when present, constrain the choices.
type InputRequest struct {
	Type    string   `json:"type"`
	InputID string   `json:"input_id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// Notification is a transient UI message. Level is info, warning, or error.
type Notification struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

// PageEvent reports a page lifecycle event for the window that registered a
// listener for it.
type PageEvent struct {
	Type     string          `json:"type"`
	WindowID string          `json:"window_id"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ConnectionLost is synthesized when the peer goes away uninvited.
type ConnectionLost struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ProtocolError is synthesized for a frame the dispatcher could not place.
type ProtocolError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
