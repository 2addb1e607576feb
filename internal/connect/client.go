package connect

import (
	"sync"

	"github.com/rs/zerolog"
)

// Client correlates outbound commands with inbound responses over one Adapter.
//
// State mutation is serialized by one mutex. Callbacks and Adapter.Send are never
// invoked while it is held, so callbacks may call back into the Client.
type Client struct {
	instanceID  string
	notAwaiting map[uint32]struct{}
	generateID  IDGenerator
	log         zerolog.Logger
	observer    Observer

	mu      sync.Mutex
	adapter Adapter
	gen     uint64
	cancels []func()
	state   State
	closed  bool
	seq     uint64
	arena   *arena
	push    pushSink

	listeners    []stateListener
	nextListener uint64
}

type stateListener struct {
	id uint64
	fn func(State)
}

// New binds a Client to cfg.Adapter. The adapter's listeners are registered
// before New returns.
func New(cfg Config) (*Client, error) {
	if cfg.Adapter == nil {
		return nil, ErrAdapterRequired
	}
	cfg = cfg.WithDefaults()
	c := &Client{
		instanceID:  cfg.InstanceID,
		notAwaiting: make(map[uint32]struct{}, len(cfg.PayloadTypesNotAwaitingResponse)),
		generateID:  cfg.GenerateID,
		log:         cfg.Logger.With().Str("instance", cfg.InstanceID).Logger(),
		observer:    cfg.Observer,
		adapter:     cfg.Adapter,
		state:       Disconnected,
		arena:       newArena(),
	}
	for _, pt := range cfg.PayloadTypesNotAwaitingResponse {
		c.notAwaiting[pt] = struct{}{}
	}
	c.gen = 1
	c.bind(cfg.Adapter, c.gen)
	return c, nil
}

func (c *Client) InstanceID() string {
	return c.instanceID
}

// Subscription is the handle returned by SendCommand.
type Subscription struct {
	c *Client
	e *entry
}

// Unsubscribe removes the command from whichever table holds it. It is safe to
// call repeatedly and after the command has resolved or failed.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.c == nil || s.e == nil {
		return
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if !s.c.arena.holds(s.e) {
		return
	}
	s.c.arena.remove(s.e.id)
	s.e.state = StateCancelled
	s.c.log.Debug().Str("correlation_id", s.e.id).Msg("connect.Subscription unsubscribe")
	s.c.observeDepthLocked()
}

// CorrelationID returns the id bound to the command; empty for an inert handle
// created without an entry.
func (s *Subscription) CorrelationID() string {
	if s == nil || s.e == nil {
		return ""
	}
	return s.e.id
}

// State returns the command's current lifecycle tag.
func (s *Subscription) State() EntryState {
	if s == nil || s.e == nil {
		return StateFailed
	}
	if s.c == nil {
		return s.e.state
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.e.state
}

func inertSubscription(e *entry) *Subscription {
	return &Subscription{e: e}
}

// SendCommand allocates a correlation id and dispatches cmd. Failures are
// reported through cmd.OnError; SendCommand itself never fails.
func (c *Client) SendCommand(cmd Command) *Subscription {
	c.mu.Lock()
	c.seq++
	e := &entry{
		id:       c.generateID(),
		cmd:      cmd,
		seq:      c.seq,
		awaiting: c.awaitsResponse(cmd),
	}

	if c.closed {
		e.state = StateFailed
		c.mu.Unlock()
		c.fail(e, ErrClosed, nil)
		return inertSubscription(e)
	}
	if c.arena.has(e.id) {
		e.state = StateFailed
		c.mu.Unlock()
		c.fail(e, ErrDuplicateID, nil)
		return inertSubscription(e)
	}

	if c.state == Connected {
		adapter := c.adapter
		if e.awaiting {
			c.arena.insertPending(e)
			c.observeDepthLocked()
		} else {
			e.state = StateResolved
		}
		c.mu.Unlock()
		c.sendNow(adapter, e)
		return &Subscription{c: c, e: e}
	}

	if !cmd.Guaranteed && cmd.OnError != nil {
		e.state = StateFailed
		c.mu.Unlock()
		c.log.Debug().
			Str("correlation_id", e.id).
			Uint32("payload_type", cmd.PayloadType).
			Msg("connect.Client reject while disconnected")
		c.fail(e, ErrNotConnected, nil)
		return inertSubscription(e)
	}

	c.arena.enqueue(e)
	c.observeDepthLocked()
	c.mu.Unlock()
	c.log.Debug().
		Str("correlation_id", e.id).
		Uint32("payload_type", cmd.PayloadType).
		Msg("connect.Client queued until connected")
	return &Subscription{c: c, e: e}
}

// Send transmits a fire-and-forget message with a fresh correlation id. Nothing
// is installed for a reply.
func (c *Client) Send(payloadType uint32, payload any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	adapter := c.adapter
	msg := Message{PayloadType: payloadType, Payload: payload, CorrelationID: c.generateID()}
	c.mu.Unlock()

	if err := adapter.Send(msg); err != nil {
		c.observer.CommandFailed(payloadType, ErrSendFailed)
		return &CommandError{Kind: ErrSendFailed, PayloadType: payloadType, CorrelationID: msg.CorrelationID, Cause: err}
	}
	c.observer.CommandSent(payloadType, false)
	return nil
}

// sendNow hands e to the adapter. On failure a non-guaranteed entry leaves the
// pending table; a guaranteed one is held there until the next disconnect
// requeues it. Guaranteed commands are never retried inline.
func (c *Client) sendNow(adapter Adapter, e *entry) {
	err := adapter.Send(e.cmd.message(e.id))
	if err == nil {
		c.observer.CommandSent(e.cmd.PayloadType, false)
		e.sent()
		return
	}

	c.mu.Lock()
	switch {
	case e.cmd.Guaranteed:
		if !c.arena.holds(e) && !c.closed {
			if c.state == Connected {
				c.arena.insertPending(e)
			} else {
				c.arena.enqueue(e)
			}
		}
	case c.arena.holds(e):
		c.arena.remove(e.id)
		e.state = StateFailed
	default:
		e.state = StateFailed
	}
	c.observeDepthLocked()
	c.mu.Unlock()
	c.log.Debug().
		Str("correlation_id", e.id).
		Uint32("payload_type", e.cmd.PayloadType).
		Err(err).
		Msg("connect.Client send failed")
	c.fail(e, ErrSendFailed, err)
}

// fail reports kind to the command's OnError when present.
func (c *Client) fail(e *entry, kind error, cause error) {
	c.observer.CommandFailed(e.cmd.PayloadType, kind)
	if e.cmd.OnError == nil {
		return
	}
	e.cmd.OnError(newCommandError(kind, e, cause))
}

func (c *Client) awaitsResponse(cmd Command) bool {
	if cmd.OnResponse == nil {
		return false
	}
	_, skip := c.notAwaiting[cmd.PayloadType]
	return !skip
}

// SetPushEventHandler registers the consumer of unmatched inbound messages,
// replacing any previous one. The most recent push event, if any, is delivered
// to fn before SetPushEventHandler returns. The replay runs after the lock is
// released, so a push arriving concurrently from a transport goroutine may
// reach fn ahead of the replayed event. Callers on one goroutine never see
// that reordering.
func (c *Client) SetPushEventHandler(fn func(Message)) {
	c.mu.Lock()
	replay, ok := c.push.setHandler(fn)
	c.mu.Unlock()
	if ok {
		fn(replay)
	}
}

// LastPushEvent returns the most recent push event.
func (c *Client) LastPushEvent() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.push.lastEvent()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected
}

// Snapshot lists every pending and queued command in submission order.
func (c *Client) Snapshot() []EntrySnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arena.snapshot()
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending, queued := c.arena.counts()
	return Stats{
		Connected: c.state == Connected,
		Pending:   pending,
		Queued:    queued,
	}
}

func (c *Client) observeDepthLocked() {
	pending, queued := c.arena.counts()
	c.observer.TableDepth(pending, queued)
}
