package connect

// bind registers the engine's listeners on adapter under generation gen. The
// message listener goes first so a reply to a command replayed from inside the
// state listener is never missed.
func (c *Client) bind(adapter Adapter, gen uint64) {
	cancelMsg := adapter.OnMessage(func(msg Message) {
		c.handleMessage(gen, msg)
	})
	cancelState := adapter.OnStateChange(func(s State) {
		c.handleState(gen, s)
	})

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		callAll([]func(){cancelMsg, cancelState})
		return
	}
	c.cancels = append(c.cancels, cancelMsg, cancelState)
	c.mu.Unlock()
}

// handleState drives the two-state lifecycle. Duplicate consecutive states are
// no-ops.
func (c *Client) handleState(gen uint64, s State) {
	c.mu.Lock()
	if c.closed || gen != c.gen || s == c.state {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.log.Info().Str("state", s.String()).Msg("connect.Client state")
	c.observer.StateChanged(s)

	listeners := c.stateListenersLocked()

	switch s {
	case Connected:
		replay := c.prepareReplayLocked()
		adapter := c.adapter
		c.mu.Unlock()
		c.replay(adapter, replay)
	case Disconnected:
		failed := c.closeTablesLocked()
		c.mu.Unlock()
		for _, e := range failed {
			c.fail(e, ErrConnectionDropped, nil)
		}
	default:
		c.mu.Unlock()
	}
	notifyState(listeners, s)
}

// OnStateChange registers fn for every lifecycle transition. Listeners run in
// registration order once the engine has applied the transition, outside the
// lock, so they may call back into the Client. The returned func removes fn.
func (c *Client) OnStateChange(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, stateListener{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) stateListenersLocked() []func(State) {
	out := make([]func(State), 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l.fn)
	}
	return out
}

func notifyState(listeners []func(State), s State) {
	for _, fn := range listeners {
		fn(s)
	}
}

// prepareReplayLocked drains the guaranteed queue in FIFO order and moves every
// entry back into the pending table ahead of its send, so an Unsubscribe that
// lands before the send still finds it.
func (c *Client) prepareReplayLocked() []*entry {
	queued := c.arena.drainQueued()
	for _, e := range queued {
		c.arena.insertPending(e)
	}
	c.observeDepthLocked()
	return queued
}

// replay resends queued guaranteed commands. Entries no longer live by the time
// their turn comes are skipped. A failed send drops the entry from the pending
// table without calling OnError; delivery is retried only if the caller sends
// again.
func (c *Client) replay(adapter Adapter, list []*entry) {
	for _, e := range list {
		c.mu.Lock()
		live := c.arena.holds(e) && e.state == StatePending
		c.mu.Unlock()
		if !live {
			continue
		}

		err := adapter.Send(e.cmd.message(e.id))
		if err == nil {
			if !e.awaiting {
				c.mu.Lock()
				if c.arena.holds(e) && e.state == StatePending {
					c.arena.remove(e.id)
					e.state = StateResolved
					c.observeDepthLocked()
				}
				c.mu.Unlock()
			}
			c.observer.CommandSent(e.cmd.PayloadType, true)
			e.sent()
			continue
		}
		c.mu.Lock()
		if c.arena.holds(e) && e.state == StatePending {
			c.arena.remove(e.id)
		}
		if !c.arena.holds(e) && e.state != StateCancelled {
			e.state = StateFailed
		}
		c.observeDepthLocked()
		c.mu.Unlock()
		c.observer.CommandFailed(e.cmd.PayloadType, ErrSendFailed)
		c.log.Warn().
			Str("correlation_id", e.id).
			Uint32("payload_type", e.cmd.PayloadType).
			Err(err).
			Msg("connect.Client guaranteed replay send failed")
	}
}

// closeTablesLocked applies the disconnect transition to the tables: pending
// non-guaranteed commands are returned for failure, pending guaranteed commands
// join the queue.
func (c *Client) closeTablesLocked() []*entry {
	failed := c.arena.drainNonGuaranteed()
	for _, e := range failed {
		e.state = StateFailed
	}
	for _, e := range c.arena.drainGuaranteed() {
		c.arena.enqueue(e)
	}
	c.observeDepthLocked()
	return failed
}

// SetAdapter swaps the transport. Listeners on the previous adapter are removed
// and the swap is treated as a disconnect before the new adapter is bound.
func (c *Client) SetAdapter(adapter Adapter) error {
	if adapter == nil {
		return ErrAdapterRequired
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	cancels := c.cancels
	c.cancels = nil
	c.gen++
	gen := c.gen
	var failed []*entry
	var listeners []func(State)
	if c.state == Connected {
		c.state = Disconnected
		c.observer.StateChanged(Disconnected)
		failed = c.closeTablesLocked()
		listeners = c.stateListenersLocked()
	}
	c.adapter = adapter
	c.mu.Unlock()

	callAll(cancels)
	c.log.Info().Msg("connect.Client adapter swapped")
	for _, e := range failed {
		c.fail(e, ErrConnectionDropped, nil)
	}
	notifyState(listeners, Disconnected)
	c.bind(adapter, gen)
	return nil
}

// Close unbinds the adapter. Pending non-guaranteed commands fail with
// ErrClosed; guaranteed commands are discarded since the queue is not
// persisted. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	cancels := c.cancels
	c.cancels = nil
	var listeners []func(State)
	if c.state == Connected {
		listeners = c.stateListenersLocked()
	}
	c.listeners = nil
	c.state = Disconnected
	var failed []*entry
	for _, e := range c.arena.drainAll() {
		if e.state == StatePending && !e.cmd.Guaranteed {
			e.state = StateFailed
			failed = append(failed, e)
			continue
		}
		e.state = StateCancelled
	}
	c.observeDepthLocked()
	c.mu.Unlock()

	callAll(cancels)
	c.log.Info().Int("failed", len(failed)).Msg("connect.Client closed")
	for _, e := range failed {
		c.fail(e, ErrClosed, nil)
	}
	notifyState(listeners, Disconnected)
	return nil
}

func callAll(fns []func()) {
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}
