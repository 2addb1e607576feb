package connect

// pushSink is the single-consumer destination for unmatched inbound messages.
// It remembers the last event so a newly registered handler starts from it.
type pushSink struct {
	handler func(Message)
	last    Message
	hasLast bool
}

// setHandler replaces the consumer and returns the event to replay, if any.
func (p *pushSink) setHandler(fn func(Message)) (Message, bool) {
	p.handler = fn
	if fn == nil {
		return Message{}, false
	}
	return p.last, p.hasLast
}

// publish records msg as the last event and returns the consumer to deliver it
// to; nil when no consumer is registered.
func (p *pushSink) publish(msg Message) func(Message) {
	p.last = msg
	p.hasLast = true
	return p.handler
}

func (p *pushSink) lastEvent() (Message, bool) {
	return p.last, p.hasLast
}
