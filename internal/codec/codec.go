// Package codec maps engine messages to wire bytes and back.
//
// The engine treats payloads as opaque; each codec defines what a decoded
// payload looks like: JSON yields json.RawMessage, Frame yields []byte.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/edgelink/internal/connect"
)

var (
	ErrUnknownCodec   = errors.New("codec: unknown codec")
	ErrInvalidMessage = errors.New("codec: invalid message")
)

// Codec encodes one message per wire unit.
type Codec interface {
	Name() string
	// Binary reports whether encoded messages are binary rather than text.
	Binary() bool
	Encode(msg connect.Message) ([]byte, error)
	Decode(data []byte) (connect.Message, error)
}

// ByName returns the codec registered under name ("json" or "frame").
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON{}, nil
	case "frame", "binary":
		return NewFrame(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// payloadBytes renders an opaque payload as raw bytes. Byte-like payloads pass
// through; anything else is JSON encoded.
func payloadBytes(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("codec: encode payload: %w", err)
		}
		return b, nil
	}
}
