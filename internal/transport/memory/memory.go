// Package memory provides an in-process connect.Adapter whose lifecycle and
// inbound traffic are driven by hand.
package memory

import (
	"sync"

	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/transport"
)

// Responder produces the replies for one sent message. Replies are delivered
// synchronously from inside Send.
type Responder func(msg connect.Message) []connect.Message

type Adapter struct {
	*transport.Hub

	mu        sync.Mutex
	sent      []connect.Message
	sendErr   error
	responder Responder
}

func New() *Adapter {
	return &Adapter{Hub: transport.NewHub()}
}

func (a *Adapter) Connect() {
	a.SetState(connect.Connected)
}

func (a *Adapter) Disconnect() {
	a.SetState(connect.Disconnected)
}

// Deliver injects one inbound message.
func (a *Adapter) Deliver(msg connect.Message) {
	a.Publish(msg)
}

// FailSends makes every subsequent Send return err; nil restores success.
func (a *Adapter) FailSends(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sendErr = err
}

func (a *Adapter) SetResponder(fn Responder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responder = fn
}

// Send records msg. A failed send is still recorded.
func (a *Adapter) Send(msg connect.Message) error {
	a.mu.Lock()
	a.sent = append(a.sent, msg)
	err := a.sendErr
	responder := a.responder
	a.mu.Unlock()

	if err != nil {
		return err
	}
	if a.State() != connect.Connected {
		return transport.ErrNotConnected
	}
	if responder != nil {
		for _, reply := range responder(msg) {
			a.Publish(reply)
		}
	}
	return nil
}

// Sent returns a copy of every message passed to Send.
func (a *Adapter) Sent() []connect.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]connect.Message, len(a.sent))
	copy(out, a.sent)
	return out
}

func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = nil
}

// Echo answers every correlated message with itself.
func Echo(msg connect.Message) []connect.Message {
	if msg.CorrelationID == "" {
		return nil
	}
	return []connect.Message{msg}
}
