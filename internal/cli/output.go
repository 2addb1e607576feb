package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/danmuck/edgelink/internal/connect"
)

type messageLine struct {
	Kind        string `json:"kind"`
	PayloadType uint32 `json:"payloadType"`
	Payload     any    `json:"payload,omitempty"`
}

// writeMessage prints one message as a JSON line. JSON payloads are embedded,
// other bytes are printed as a string.
func writeMessage(w io.Writer, kind string, msg connect.Message) error {
	line := messageLine{Kind: kind, PayloadType: msg.PayloadType, Payload: displayPayload(msg.Payload)}
	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func displayPayload(payload any) any {
	switch v := payload.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return v
	case []byte:
		if json.Valid(v) {
			return json.RawMessage(v)
		}
		return string(v)
	default:
		return v
	}
}
