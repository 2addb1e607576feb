package auth

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
			log.Debug().Str("stored", tc.stored).Str("input", tc.input).AnErr("result", err).Msg("auth static token")
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestAttachAndCheckFrameOverWire(t *testing.T) {
	testlog.Start(t)
	f := frame.Frame{Header: frame.Header{MessageID: 1, MessageType: 9}, Payload: []byte("x")}
	Attach(&f, "edge-secret")

	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, f, frame.DefaultLimits()); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := frame.ReadFrame(&buf, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if err := CheckFrame(StaticToken{Token: "edge-secret"}, got); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if err := CheckFrame(StaticToken{Token: "other"}, got); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCheckFrameRequiresToken(t *testing.T) {
	testlog.Start(t)
	f := frame.Frame{Header: frame.Header{MessageType: 9}}
	Attach(&f, "")
	if len(f.Auth) != 0 {
		t.Fatalf("empty token attached auth bytes")
	}
	if err := CheckFrame(StaticToken{Token: "edge-secret"}, f); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
}
