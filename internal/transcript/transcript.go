// ABOUTME: Store interface and entry types for the UI traffic transcript
// ABOUTME: Every frame exchanged with the shell can be appended for later review

package transcript

import (
	"context"
	"encoding/json"
	"time"
)

// Channel identifies which shell endpoint a frame was exchanged with.
type Channel string

const (
	ChannelCommand Channel = "command"
	ChannelUI      Channel = "ui"
)

// Direction indicates whether a frame was received from or sent to the shell.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Entry is one recorded frame. Kind is the request method or event type;
// Payload holds the frame verbatim.
type Entry struct {
	ID        string
	Timestamp time.Time
	Channel   Channel
	Direction Direction
	Kind      string
	Payload   json.RawMessage
}

// Store persists transcript entries. Implementations must be safe for
// concurrent use; the UI bridge appends from its event handlers while the
// probe reads.
type Store interface {
	// Append records one entry.
	Append(ctx context.Context, entry *Entry) error

	// Recent returns the most recent entries, newest first. limit is
	// clamped to a sane range.
	Recent(ctx context.Context, limit int) ([]*Entry, error)

	// RecentByChannel is Recent restricted to one channel.
	RecentByChannel(ctx context.Context, channel Channel, limit int) ([]*Entry, error)

	// Close releases any resources held by the store.
	Close() error
}
