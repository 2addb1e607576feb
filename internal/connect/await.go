package connect

import "context"

// AwaitOptions tunes Await.
type AwaitOptions struct {
	Guaranteed bool
	// IsError classifies a response as a failure; Await then returns a
	// *ResponseError carrying it.
	IsError func(Message) bool
}

type awaitResult struct {
	msg Message
	err error
}

// Await sends one command and blocks until its first response, its OnError,
// or ctx is done. Payload types that await no response return once the command
// reaches the adapter, which for a guaranteed command may be after a
// reconnect. The command is unsubscribed on every return; a transport send
// already in flight is not aborted.
func Await(ctx context.Context, c *Client, payloadType uint32, payload any, opts AwaitOptions) (Message, error) {
	done := make(chan awaitResult, 1)
	deliver := func(r awaitResult) {
		select {
		case done <- r:
		default:
		}
	}

	sub := c.SendCommand(Command{
		PayloadType: payloadType,
		Payload:     payload,
		Guaranteed:  opts.Guaranteed,
		OnResponse: func(msg Message) {
			if opts.IsError != nil && opts.IsError(msg) {
				deliver(awaitResult{err: &ResponseError{Response: msg}})
				return
			}
			deliver(awaitResult{msg: msg})
		},
		OnError: func(err error) {
			deliver(awaitResult{err: err})
		},
		onSent: func() {
			deliver(awaitResult{})
		},
	})
	defer sub.Unsubscribe()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}
