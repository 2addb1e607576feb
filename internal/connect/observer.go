package connect

// Observer receives engine activity for metrics. Implementations must not call
// back into the Client.
type Observer interface {
	StateChanged(s State)
	CommandSent(payloadType uint32, replay bool)
	ResponseMatched(payloadType uint32)
	PushEvent(payloadType uint32)
	CommandFailed(payloadType uint32, kind error)
	TableDepth(pending, queued int)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) StateChanged(State)             {}
func (NopObserver) CommandSent(uint32, bool)       {}
func (NopObserver) ResponseMatched(uint32)         {}
func (NopObserver) PushEvent(uint32)               {}
func (NopObserver) CommandFailed(uint32, error)    {}
func (NopObserver) TableDepth(pending, queued int) {}
