package connect

// handleMessage routes one inbound message. A correlation id bound to a pending
// command resolves it; everything else, including ids that were already resolved
// or unsubscribed, becomes a push event. Nothing is dropped.
func (c *Client) handleMessage(gen uint64, msg Message) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}

	if msg.CorrelationID != "" {
		if e := c.arena.lookupPending(msg.CorrelationID); e != nil && e.awaiting {
			if !e.cmd.MultiResponse {
				c.arena.remove(e.id)
				e.state = StateResolved
				c.observeDepthLocked()
			}
			c.mu.Unlock()
			c.log.Debug().
				Str("correlation_id", e.id).
				Uint32("payload_type", msg.PayloadType).
				Bool("multi_response", e.cmd.MultiResponse).
				Msg("connect.Client response")
			c.observer.ResponseMatched(msg.PayloadType)
			e.cmd.OnResponse(stripCorrelation(msg))
			return
		}
	}

	event := stripCorrelation(msg)
	handler := c.push.publish(event)
	c.mu.Unlock()
	c.log.Debug().
		Str("correlation_id", msg.CorrelationID).
		Uint32("payload_type", msg.PayloadType).
		Msg("connect.Client push event")
	c.observer.PushEvent(msg.PayloadType)
	if handler != nil {
		handler(event)
	}
}

func stripCorrelation(msg Message) Message {
	return Message{PayloadType: msg.PayloadType, Payload: msg.Payload}
}
