// Package rpc implements the asynchronous request/response protocol spoken
// with the Autai shell over its command and UI sockets.
//
// # Overview
//
// Both shell channels multiplex traffic over one persistent socket. Outbound
// requests carry a correlation id; the peer answers with a response frame
// bearing the same id, in whatever order it likes, and pushes unsolicited
// event frames in between. This package turns that interleaved stream back
// into ordinary blocking calls plus an ordered event feed.
//
// # Conn
//
// A Conn owns exactly one socket. One goroutine reads every inbound frame
// and classifies it: responses resolve entries in the pending table, events
// go to the EventSink, and anything else becomes a logged protocol_error
// event. Writers are serialized on their own mutex, so reads are never
// blocked by a slow write and concurrent calls never interleave frames.
//
// Calls register their pending entry before the request frame is written.
// Removal from the table is the linearization point: whether a response, a
// deadline, a cancellation, or teardown gets there first, exactly one of
// them resolves the call and the rest find nothing.
//
// # Ordering
//
// Events are dispatched by a single goroutine in arrival order, and the
// handlers for one event name run in registration order. The dispatch queue
// is bounded; when handlers fall too far behind, new events are dropped with
// a warning rather than stalling the reader.
//
// # Teardown
//
// Conn never reconnects. On socket loss every pending call resolves with
// ErrClosed, then a connection_lost event fires; a queue slot stays reserved
// for that event, so even a full backlog cannot shed it. After Close the
// same drain happens silently. Either way no caller is left suspended.
package rpc
