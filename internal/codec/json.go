package codec

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/edgelink/internal/connect"
)

// envelope is the JSON wire shape. Field names follow the clientMsgId
// convention used by JSON peers.
type envelope struct {
	PayloadType   uint32          `json:"payloadType"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"clientMsgId,omitempty"`
}

// JSON encodes one message per JSON object. Decoded payloads are
// json.RawMessage.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Binary() bool { return false }

func (JSON) Encode(msg connect.Message) ([]byte, error) {
	raw, err := jsonPayload(msg.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		PayloadType:   msg.PayloadType,
		Payload:       raw,
		CorrelationID: msg.CorrelationID,
	})
}

// inboundEnvelope tells a missing payloadType apart from payload type zero.
type inboundEnvelope struct {
	PayloadType   *uint32         `json:"payloadType"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"clientMsgId"`
}

// Decode rejects any JSON value that is not an envelope carrying payloadType,
// so callers can surface the raw bytes instead.
func (JSON) Decode(data []byte) (connect.Message, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return connect.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if env.PayloadType == nil {
		return connect.Message{}, fmt.Errorf("%w: missing payloadType", ErrInvalidMessage)
	}
	msg := connect.Message{
		PayloadType:   *env.PayloadType,
		CorrelationID: env.CorrelationID,
	}
	if len(env.Payload) > 0 {
		msg.Payload = env.Payload
	}
	return msg, nil
}

// jsonPayload embeds byte-like payloads verbatim when they already hold JSON;
// other bytes become a JSON string.
func jsonPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		if json.Valid(v) {
			return json.RawMessage(v), nil
		}
		payload = string(v)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("codec: encode payload: %w", err)
	}
	return b, nil
}
