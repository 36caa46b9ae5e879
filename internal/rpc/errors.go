// ABOUTME: Error taxonomy for the correlated request/response layer
// ABOUTME: Sentinels wrap their causes so errors.Is works across packages

package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectFailed wraps a failed dial or handshake.
	ErrConnectFailed = errors.New("connect failed")
	// ErrClosed resolves calls that were pending when the connection went
	// away, and rejects calls issued after close.
	ErrClosed = errors.New("connection closed")
	// ErrTimeout resolves a call whose deadline passed with no response.
	ErrTimeout = errors.New("call timed out")
	// ErrSendFailed means the request frame never made it onto the wire.
	// The pending entry is cleaned up before the caller sees this.
	ErrSendFailed = errors.New("send failed")
	// ErrDuplicateID rejects a register for a correlation id already in flight.
	ErrDuplicateID = errors.New("duplicate correlation id")
)

// RemoteError is a failure reported by the peer for one call. It carries the
// peer's message verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: %s", e.Message)
}
