// Package connect owns the request/response correlation engine that sits between
// application code and a bidirectional transport adapter.
//
// Ownership boundary:
// - correlation id allocation
// - pending command table and guaranteed command queue
// - inbound routing (correlated response vs push event)
// - connect/disconnect lifecycle transitions and guaranteed replay
//
// Not owned here:
// - sockets, framing, TLS (see internal/transport)
// - payload encode/decode (see internal/codec)
// - timeouts; Await layers cancellation on top of the engine
package connect
