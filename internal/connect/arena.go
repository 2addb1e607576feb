package connect

import "sort"

// entry is one command tracked by the engine. The same entry moves between the
// pending table and the guaranteed queue by changing its state tag.
type entry struct {
	id       string
	cmd      Command
	seq      uint64
	state    EntryState
	awaiting bool
}

// sent reports a successful hand-off of a command that awaits no response.
func (e *entry) sent() {
	if e.awaiting || e.cmd.onSent == nil {
		return
	}
	e.cmd.onSent()
}

// arena stores every live entry keyed by correlation id. Pending and queued
// entries share the map; their state tag decides which view they belong to.
type arena struct {
	entries map[string]*entry
	pending int
	queued  int
}

func newArena() *arena {
	return &arena{entries: make(map[string]*entry)}
}

// has reports whether id is bound to any live entry.
func (a *arena) has(id string) bool {
	_, ok := a.entries[id]
	return ok
}

// holds reports whether e is still the live entry for its id.
func (a *arena) holds(e *entry) bool {
	cur, ok := a.entries[e.id]
	return ok && cur == e
}

// put binds e under its id with the given state. A different entry already bound
// to the id wins; put is then a no-op and returns false.
func (a *arena) put(e *entry, state EntryState) bool {
	if cur, ok := a.entries[e.id]; ok && cur != e {
		return false
	}
	if _, ok := a.entries[e.id]; ok {
		a.track(e.state, -1)
	}
	e.state = state
	a.entries[e.id] = e
	a.track(state, 1)
	return true
}

func (a *arena) insertPending(e *entry) bool {
	return a.put(e, StatePending)
}

func (a *arena) enqueue(e *entry) bool {
	return a.put(e, StateQueued)
}

func (a *arena) remove(id string) {
	e, ok := a.entries[id]
	if !ok {
		return
	}
	delete(a.entries, id)
	a.track(e.state, -1)
}

// lookupPending returns the pending entry for id, or nil.
func (a *arena) lookupPending(id string) *entry {
	e, ok := a.entries[id]
	if !ok || e.state != StatePending {
		return nil
	}
	return e
}

// drainNonGuaranteed removes and returns every pending non-guaranteed entry in
// submission order.
func (a *arena) drainNonGuaranteed() []*entry {
	return a.drain(func(e *entry) bool {
		return e.state == StatePending && !e.cmd.Guaranteed
	})
}

// drainGuaranteed removes and returns every pending guaranteed entry in
// submission order.
func (a *arena) drainGuaranteed() []*entry {
	return a.drain(func(e *entry) bool {
		return e.state == StatePending && e.cmd.Guaranteed
	})
}

// drainQueued removes and returns the guaranteed queue in FIFO order.
func (a *arena) drainQueued() []*entry {
	return a.drain(func(e *entry) bool {
		return e.state == StateQueued
	})
}

// drainAll empties the arena.
func (a *arena) drainAll() []*entry {
	return a.drain(func(*entry) bool { return true })
}

func (a *arena) drain(match func(*entry) bool) []*entry {
	out := make([]*entry, 0)
	for id, e := range a.entries {
		if !match(e) {
			continue
		}
		delete(a.entries, id)
		a.track(e.state, -1)
		out = append(out, e)
	}
	sortBySeq(out)
	return out
}

func (a *arena) counts() (pending, queued int) {
	return a.pending, a.queued
}

func (a *arena) track(state EntryState, delta int) {
	switch state {
	case StatePending:
		a.pending += delta
	case StateQueued:
		a.queued += delta
	}
}

func (a *arena) snapshot() []EntrySnapshot {
	list := make([]*entry, 0, len(a.entries))
	for _, e := range a.entries {
		list = append(list, e)
	}
	sortBySeq(list)
	out := make([]EntrySnapshot, 0, len(list))
	for _, e := range list {
		out = append(out, EntrySnapshot{
			CorrelationID: e.id,
			PayloadType:   e.cmd.PayloadType,
			State:         e.state,
			Guaranteed:    e.cmd.Guaranteed,
			MultiResponse: e.cmd.MultiResponse,
			Seq:           e.seq,
		})
	}
	return out
}

func sortBySeq(list []*entry) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].seq < list[j].seq
	})
}
