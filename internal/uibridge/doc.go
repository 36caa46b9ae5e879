// Package uibridge connects an agent to the person watching it through the
// shell's UI socket.
//
// Three things go out: agent progress events (ForwardEvent), transient
// notifications (Notify), and input requests (RequestInput). Two things
// come in: control commands like pause and stop (OnCommand and its
// shortcuts), and answers to input requests.
//
// Answers ride the protocol's second resolution path. An input request is
// not a method call; it goes out as a bare frame carrying an input_id, and
// the UI answers with a user_input event naming that id. The bridge plugs
// a resolver into the rpc layer so such events complete the blocked
// RequestInput instead of reaching event subscribers. Answers nobody is
// waiting for fall through to OnCommand-style subscribers and the log.
//
// When Options.Transcript is set, every frame crossing the channel is
// appended to the store, both directions, including answers consumed by
// the resolver. The store belongs to the caller and survives Close.
package uibridge
