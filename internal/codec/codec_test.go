package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/protocol/tlv"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func TestByName(t *testing.T) {
	testlog.Start(t)
	for _, name := range []string{"", "json", " JSON "} {
		c, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, "json", c.Name())
	}
	c, err := ByName("binary")
	require.NoError(t, err)
	assert.Equal(t, "frame", c.Name())
	assert.True(t, c.Binary())

	_, err = ByName("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestJSONEnvelopeShape(t *testing.T) {
	testlog.Start(t)
	b, err := JSON{}.Encode(connect.Message{PayloadType: 2100, Payload: map[string]int{"a": 1}, CorrelationID: "cm-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"payloadType":2100,"payload":{"a":1},"clientMsgId":"cm-1"}`, string(b))

	b, err = JSON{}.Encode(connect.Message{PayloadType: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"payloadType":5}`, string(b))
}

func TestJSONPayloadForms(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name    string
		payload any
		want    string
	}{
		{"raw json bytes", []byte(`{"x":true}`), `{"x":true}`},
		{"plain bytes", []byte("hello"), `"hello"`},
		{"raw message", json.RawMessage(`[1,2]`), `[1,2]`},
		{"string", "hi", `"hi"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := JSON{}.Encode(connect.Message{PayloadType: 1, Payload: tc.payload})
			require.NoError(t, err)
			msg, err := JSON{}.Decode(b)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(msg.Payload.(json.RawMessage)))
		})
	}
}

func TestJSONDecodeRejectsGarbage(t *testing.T) {
	testlog.Start(t)
	_, err := JSON{}.Decode([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestJSONDecodeRequiresPayloadType(t *testing.T) {
	testlog.Start(t)
	for _, body := range []string{`{"foo":1}`, `{}`, `null`, `{"payload":{"a":1},"clientMsgId":"x"}`} {
		_, err := JSON{}.Decode([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidMessage, body)
	}

	msg, err := JSON{}.Decode([]byte(`{"payloadType":0}`))
	require.NoError(t, err)
	assert.Equal(t, connect.Message{}, msg)
}

func TestJSONDecodeKeepsCorrelation(t *testing.T) {
	testlog.Start(t)
	msg, err := JSON{}.Decode([]byte(`{"payloadType":7,"clientMsgId":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, connect.Message{PayloadType: 7, CorrelationID: "abc"}, msg)
}

func TestFrameCodecCarriesEnvelope(t *testing.T) {
	testlog.Start(t)
	c := NewFrame()
	b, err := c.Encode(connect.Message{PayloadType: 12, Payload: []byte("body"), CorrelationID: "id-1"})
	require.NoError(t, err)

	msg, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, connect.Message{PayloadType: 12, Payload: []byte("body"), CorrelationID: "id-1"}, msg)
}

func TestFrameFlagsAndMessageIDs(t *testing.T) {
	testlog.Start(t)
	c := NewFrame()
	push, err := c.ToFrame(connect.Message{PayloadType: 50})
	require.NoError(t, err)
	assert.NotZero(t, push.Header.Flags&frame.FlagIsPush)

	cmd, err := c.ToFrame(connect.Message{PayloadType: 51, CorrelationID: "x"})
	require.NoError(t, err)
	assert.Zero(t, cmd.Header.Flags&frame.FlagIsPush)
	assert.Greater(t, cmd.Header.MessageID, push.Header.MessageID)
}

func TestFromFrameRejectsMissingPayloadField(t *testing.T) {
	testlog.Start(t)
	f := frame.Frame{
		Header:  frame.Header{MessageType: 3},
		Payload: tlv.EncodeFields([]tlv.Field{tlv.String(99, "stray")}),
	}
	_, err := FromFrame(f)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
