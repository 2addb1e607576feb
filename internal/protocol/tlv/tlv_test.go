package tlv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	testlog.Start(t)
	in := []Field{
		String(1, "corr-1"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}},
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
	s, err := out[0].AsString()
	if err != nil || s != "corr-1" {
		t.Fatalf("string field got=%q err=%v", s, err)
	}
}

func TestAccessorsRejectWrongType(t *testing.T) {
	testlog.Start(t)
	f := U32(4, 42)
	if v, err := f.AsU32(); err != nil || v != 42 {
		t.Fatalf("u32 got=%d err=%v", v, err)
	}
	if _, err := f.AsString(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestBytesCopiesInput(t *testing.T) {
	testlog.Start(t)
	src := []byte("abc")
	f := Bytes(2, src)
	src[0] = 'z'
	if string(f.Value) != "abc" {
		t.Fatalf("field aliased caller buffer: %q", f.Value)
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	testlog.Start(t)
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}
