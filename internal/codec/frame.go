package codec

import (
	"fmt"
	"sync/atomic"

	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/protocol/schema"
	"github.com/danmuck/edgelink/internal/protocol/tlv"
)

// Frame encodes messages as binary frames: the header's MessageType carries the
// payload type and the TLV body carries the correlation id and payload bytes.
// Decoded payloads are []byte.
type Frame struct {
	Limits frame.Limits
	nextID atomic.Uint64
}

func NewFrame() *Frame {
	return &Frame{Limits: frame.DefaultLimits()}
}

func (*Frame) Name() string { return "frame" }

func (*Frame) Binary() bool { return true }

func (c *Frame) Encode(msg connect.Message) ([]byte, error) {
	f, err := c.ToFrame(msg)
	if err != nil {
		return nil, err
	}
	return frame.Marshal(f, c.Limits)
}

func (c *Frame) Decode(data []byte) (connect.Message, error) {
	f, err := frame.Unmarshal(data, c.Limits)
	if err != nil {
		return connect.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return FromFrame(f)
}

// ToFrame builds the frame for msg, stamping the next per-codec message id.
func (c *Frame) ToFrame(msg connect.Message) (frame.Frame, error) {
	body, err := payloadBytes(msg.Payload)
	if err != nil {
		return frame.Frame{}, err
	}
	fields := make([]tlv.Field, 0, 2)
	flags := frame.FlagIsPush
	if msg.CorrelationID != "" {
		fields = append(fields, tlv.String(schema.FieldCorrelationID, msg.CorrelationID))
		flags = 0
	}
	fields = append(fields, tlv.Bytes(schema.FieldPayload, body))
	return frame.Frame{
		Header: frame.Header{
			MessageID:   c.nextID.Add(1),
			MessageType: msg.PayloadType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, nil
}

// FromFrame decodes one envelope frame.
func FromFrame(f frame.Frame) (connect.Message, error) {
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return connect.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := schema.Validate(f.Header.MessageType, fields); err != nil {
		return connect.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg := connect.Message{PayloadType: f.Header.MessageType}
	if idField, ok := tlv.GetField(fields, schema.FieldCorrelationID); ok {
		msg.CorrelationID = string(idField.Value)
	}
	payload, _ := tlv.GetField(fields, schema.FieldPayload)
	if len(payload.Value) > 0 {
		msg.Payload = payload.Value
	}
	return msg, nil
}
