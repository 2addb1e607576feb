// Package stream is a connect.Adapter carrying binary frames over TCP or TLS,
// reconnecting with backoff.
package stream

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/edgelink/internal/auth"
	"github.com/danmuck/edgelink/internal/codec"
	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/transport"
)

var ErrAddressRequired = errors.New("stream: address required")

// Adapter dials Address and keeps the session alive while Run is active.
type Adapter struct {
	*transport.Runner
	address string
}

func New(address string, cfg transport.Config, logger zerolog.Logger) (*Adapter, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Adapter{address: address}
	a.Runner = transport.NewRunner("stream", cfg, func(ctx context.Context) (transport.Conn, error) {
		return Dial(ctx, address, cfg)
	}, logger.With().Str("address", address).Logger())
	return a, nil
}

// Dial opens one framed session to address.
func Dial(ctx context.Context, address string, cfg transport.Config) (*Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.ClientTLSConfig(address)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	if tlsCfg == nil {
		return NewConn(raw, cfg), nil
	}

	conn := tls.Client(raw, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return NewConn(conn, cfg), nil
}

// Conn frames messages over one net.Conn. Writes are serialized.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	codec  *codec.Frame
	cfg    transport.Config
	verify auth.Validator

	writeMu sync.Mutex
}

func NewConn(conn net.Conn, cfg transport.Config) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		codec:  codec.NewFrame(),
		cfg:    cfg,
	}
}

// RequireAuth makes ReadMessage reject frames whose auth block v refuses. The
// session is expected to end on the first rejection.
func (c *Conn) RequireAuth(v auth.Validator) {
	c.verify = v
}

// ReadMessage blocks for the next frame. A frame whose body fails envelope
// validation is surfaced verbatim, without a correlation id, so it reaches the
// push event sink instead of being dropped.
func (c *Conn) ReadMessage() (connect.Message, error) {
	if c.cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	f, err := frame.ReadFrame(c.reader, c.codec.Limits)
	if err != nil {
		return connect.Message{}, err
	}
	if c.verify != nil {
		if err := auth.CheckFrame(c.verify, f); err != nil {
			return connect.Message{}, fmt.Errorf("stream: %w", err)
		}
	}
	msg, err := codec.FromFrame(f)
	if err != nil {
		return connect.Message{PayloadType: f.Header.MessageType, Payload: f.Payload}, nil
	}
	return msg, nil
}

func (c *Conn) WriteMessage(msg connect.Message) error {
	f, err := c.codec.ToFrame(msg)
	if err != nil {
		return err
	}
	return c.WriteFrame(f)
}

// WriteFrame writes a prepared frame; peers use it to set response flags. The
// configured auth token is attached unless f already carries one.
func (c *Conn) WriteFrame(f frame.Frame) error {
	if len(f.Auth) == 0 {
		auth.Attach(&f, c.cfg.AuthToken)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return frame.WriteFrame(c.conn, f, c.codec.Limits)
}

func (c *Conn) Codec() *codec.Frame {
	return c.codec
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
