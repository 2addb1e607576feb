package transport

import (
	"sort"
	"sync"

	"github.com/danmuck/edgelink/internal/connect"
)

// Hub fans adapter notifications out to listeners and remembers the current
// connection state. It implements the listener half of connect.Adapter.
type Hub struct {
	mu       sync.Mutex
	state    connect.State
	nextID   uint64
	stateFns map[uint64]func(connect.State)
	msgFns   map[uint64]func(connect.Message)
}

func NewHub() *Hub {
	return &Hub{
		state:    connect.Disconnected,
		stateFns: make(map[uint64]func(connect.State)),
		msgFns:   make(map[uint64]func(connect.Message)),
	}
}

// OnStateChange registers fn. When the hub is already connected fn receives
// Connected before OnStateChange returns.
func (h *Hub) OnStateChange(fn func(connect.State)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.stateFns[id] = fn
	current := h.state
	h.mu.Unlock()

	if current == connect.Connected {
		fn(current)
	}
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.stateFns, id)
	}
}

func (h *Hub) OnMessage(fn func(connect.Message)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.msgFns[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.msgFns, id)
	}
}

func (h *Hub) State() connect.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetState records s and notifies listeners. Repeating the current state is a
// no-op and returns false.
func (h *Hub) SetState(s connect.State) bool {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return false
	}
	h.state = s
	fns := orderedListeners(h.stateFns)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
	return true
}

// Publish delivers msg to every message listener.
func (h *Hub) Publish(msg connect.Message) {
	h.mu.Lock()
	fns := orderedListeners(h.msgFns)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func orderedListeners[T any](m map[uint64]T) []T {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}
