package stream

import (
	"bytes"
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
	"github.com/danmuck/edgelink/internal/testutil/tlstest"
	"github.com/danmuck/edgelink/internal/transport"
)

func TestNewValidatesInput(t *testing.T) {
	testlog.Start(t)
	_, err := New(" ", transport.DefaultConfig(), zerolog.Nop())
	assert.ErrorIs(t, err, ErrAddressRequired)

	cfg := transport.DefaultConfig()
	cfg.SecurityMode = transport.SecurityModeProduction
	_, err = New("127.0.0.1:1", cfg, zerolog.Nop())
	assert.ErrorIs(t, err, transport.ErrTLSRequired)
}

func TestConnRoundTripOverPipe(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	client := NewConn(a, transport.Config{})
	server := NewConn(b, transport.Config{})
	defer client.Close()
	defer server.Close()

	go func() {
		_ = client.WriteMessage(connect.Message{PayloadType: 12, Payload: []byte("hi"), CorrelationID: "c-1"})
	}()
	got, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, connect.Message{PayloadType: 12, Payload: []byte("hi"), CorrelationID: "c-1"}, got)
}

func TestMalformedBodySurfacesVerbatim(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	server := NewConn(b, transport.Config{})
	defer a.Close()
	defer server.Close()

	go func() {
		_ = frame.WriteFrame(a, frame.Frame{
			Header:  frame.Header{MessageID: 1, MessageType: 77},
			Payload: []byte{0xff},
		}, frame.DefaultLimits())
	}()
	got, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, uint32(77), got.PayloadType)
	assert.Empty(t, got.CorrelationID)
	assert.True(t, bytes.Equal([]byte{0xff}, got.Payload.([]byte)))
}

func TestAdapterRunsAgainstListener(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		peer := NewConn(raw, transport.Config{})
		defer peer.Close()
		for {
			msg, err := peer.ReadMessage()
			if err != nil {
				return
			}
			if err := peer.WriteMessage(msg); err != nil {
				return
			}
		}
	}()

	adapter, err := New(ln.Addr().String(), transport.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	c, err := connect.New(connect.Config{Adapter: adapter})
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = adapter.Run(ctx) }()

	msg, err := connect.Await(ctx, c, 5, []byte("ping"), connect.AwaitOptions{Guaranteed: true})
	require.NoError(t, err)
	assert.Equal(t, connect.Message{PayloadType: 5, Payload: []byte("ping")}, msg)
	require.Eventually(t, c.IsConnected, time.Second, 5*time.Millisecond)
}

func TestDialMutualTLSInProductionMode(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "edgelink-test-ca")
	serverCert, serverKey := ca.IssueServerCert(t, dir, "echo")
	clientCert, clientKey := ca.IssueClientCert(t, dir, "linkctl")

	ln, err := tls.Listen("tcp", "127.0.0.1:0", ca.ServerConfig(t, serverCert, serverKey, true))
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		peer := NewConn(raw, transport.Config{})
		defer peer.Close()
		msg, err := peer.ReadMessage()
		if err != nil {
			return
		}
		_ = peer.WriteMessage(msg)
	}()

	cfg := transport.DefaultConfig()
	cfg.SecurityMode = transport.SecurityModeProduction
	cfg.TLS = transport.TLSConfig{
		Enabled:  true,
		Mutual:   true,
		CAFile:   ca.CAFile(),
		CertFile: clientCert,
		KeyFile:  clientKey,
	}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, ln.Addr().String(), cfg)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(connect.Message{PayloadType: 2, Payload: []byte("secure"), CorrelationID: "s-1"}))
	got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.CorrelationID)
	assert.Equal(t, []byte("secure"), got.Payload)
}
