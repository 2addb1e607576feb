// Package transport owns the building blocks shared by concrete adapters.
//
// Ownership boundary:
// - listener fan-out and current-state tracking (Hub)
// - dial/serve/backoff reconnect loop (Runner)
// - transport timeouts, backoff and TLS settings
//
// Concrete adapters live in subpackages: memory, stream (framed TCP/TLS) and
// wsock (WebSocket).
package transport
