package connect

import "fmt"

// State is the adapter connection state observed by the engine.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Message is one decoded envelope exchanged with an Adapter. Payload is opaque to
// the engine; its shape is owned by the codec in use.
type Message struct {
	PayloadType   uint32
	Payload       any
	CorrelationID string
}

// Adapter is the transport capability the engine binds to.
//
// OnStateChange and OnMessage register a listener and return a function that
// removes it. An adapter that is already connected when a state listener
// registers should deliver Connected to that listener.
//
// Send may fail synchronously by returning an error. Asynchronous failures are
// expected to surface as a Disconnected transition.
type Adapter interface {
	OnStateChange(fn func(State)) (cancel func())
	OnMessage(fn func(Message)) (cancel func())
	Send(msg Message) error
}

// Command is an application-issued request.
type Command struct {
	PayloadType uint32
	Payload     any

	// Guaranteed commands are queued while disconnected and replayed on the
	// next Connected transition instead of failing.
	Guaranteed bool
	// MultiResponse commands stay installed after a match until unsubscribed.
	MultiResponse bool

	// OnResponse receives correlated responses. A nil OnResponse means nothing
	// is installed in the pending table and replies route as push events.
	OnResponse func(Message)
	OnError    func(error)

	// onSent fires once a command that awaits no response reaches the adapter.
	onSent func()
}

func (c Command) message(id string) Message {
	return Message{
		PayloadType:   c.PayloadType,
		Payload:       c.Payload,
		CorrelationID: id,
	}
}

// EntryState is the lifecycle tag of one command inside the engine.
type EntryState int

const (
	StatePending EntryState = iota
	StateQueued
	StateResolved
	StateFailed
	StateCancelled
)

func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateQueued:
		return "queued"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("entry_state(%d)", int(s))
	}
}

// EntrySnapshot is a read-only view of one tracked command.
type EntrySnapshot struct {
	CorrelationID string
	PayloadType   uint32
	State         EntryState
	Guaranteed    bool
	MultiResponse bool
	Seq           uint64
}

// Stats summarizes the engine's tables.
type Stats struct {
	Connected bool
	Pending   int
	Queued    int
}
