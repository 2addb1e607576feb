package connect

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator returns a fresh correlation id per call.
type IDGenerator func() string

// NewID returns a random 32 character hex token. It only needs to avoid
// collisions with live ids; it carries no security properties.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SequentialIDs returns a deterministic generator yielding prefix-1, prefix-2, ...
func SequentialIDs(prefix string) IDGenerator {
	var n atomic.Uint64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}
