package connect

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultInstanceID = "connect"

// Config defines one engine instance.
type Config struct {
	Adapter Adapter
	// InstanceID is diagnostic only; it tags logs and metrics.
	InstanceID string
	// PayloadTypesNotAwaitingResponse are fire-and-forget: commands of these
	// types are sent but never installed in the pending table.
	PayloadTypesNotAwaitingResponse []uint32
	GenerateID                      IDGenerator
	Logger                          *zerolog.Logger
	Observer                        Observer
}

// WithDefaults returns a copy with unset optional fields filled in.
func (c Config) WithDefaults() Config {
	c.InstanceID = strings.TrimSpace(c.InstanceID)
	if c.InstanceID == "" {
		c.InstanceID = DefaultInstanceID
	}
	if c.GenerateID == nil {
		c.GenerateID = NewID
	}
	if c.Logger == nil {
		l := log.Logger
		c.Logger = &l
	}
	if c.Observer == nil {
		c.Observer = NopObserver{}
	}
	return c
}
