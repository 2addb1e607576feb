package schema

import (
	"fmt"

	"github.com/danmuck/edgelink/internal/protocol/tlv"
)

// Envelope field IDs.
const (
	FieldCorrelationID uint16 = 1
	FieldPayload       uint16 = 2
)

type Requirement struct {
	ID       uint16
	Type     uint8
	Optional bool
}

type ValidationError struct {
	PayloadType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: payload_type=%d: %s", e.PayloadType, e.Reason)
	}
	return fmt.Sprintf("schema: payload_type=%d field=%d: %s", e.PayloadType, e.FieldID, e.Reason)
}

// Envelope lists the fields of every framed message. Payload types are
// application-defined, so one layout covers all of them.
var Envelope = []Requirement{
	{ID: FieldCorrelationID, Type: tlv.TypeString, Optional: true},
	{ID: FieldPayload, Type: tlv.TypeBytes},
}

// Validate enforces required fields and field types of the envelope. Unknown
// fields are ignored so peers can extend the envelope.
func Validate(payloadType uint32, fields []tlv.Field) error {
	for _, req := range Envelope {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			if req.Optional {
				continue
			}
			return ValidationError{PayloadType: payloadType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			return ValidationError{PayloadType: payloadType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
