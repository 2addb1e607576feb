// Package wsock is a connect.Adapter carrying codec-encoded messages over a
// WebSocket, one message per WebSocket frame, reconnecting with backoff.
package wsock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"github.com/danmuck/edgelink/internal/codec"
	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/transport"
)

var (
	ErrURLRequired  = errors.New("wsock: url required")
	ErrInvalidURL   = errors.New("wsock: invalid url")
	ErrCodecMissing = errors.New("wsock: codec required")
)

type Adapter struct {
	*transport.Runner
	url string
}

// New builds an adapter for rawURL (ws:// or wss://). An empty origin defaults
// to the http(s) form of rawURL.
func New(rawURL, origin string, c codec.Codec, cfg transport.Config, logger zerolog.Logger) (*Adapter, error) {
	if c == nil {
		return nil, ErrCodecMissing
	}
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if u.Scheme == "wss" {
		cfg.TLS.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Adapter{url: u.String()}
	a.Runner = transport.NewRunner("wsock", cfg, func(ctx context.Context) (transport.Conn, error) {
		return Dial(ctx, u.String(), origin, c, cfg)
	}, logger.With().Str("url", u.String()).Str("codec", c.Name()).Logger())
	return a, nil
}

// Dial opens one WebSocket session. An empty origin defaults to the http(s)
// form of rawURL.
func Dial(ctx context.Context, rawURL, origin string, c codec.Codec, cfg transport.Config) (*Conn, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(origin) == "" {
		origin = defaultOrigin(u)
	}
	wsCfg, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, err
	}
	wsCfg.Dialer = &net.Dialer{Timeout: cfg.ConnectTimeout}
	if u.Scheme == "wss" {
		tlsCfg, err := cfg.ClientTLSConfig(hostPort(u))
		if err != nil {
			return nil, err
		}
		wsCfg.TlsConfig = tlsCfg
	}
	ws, err := wsCfg.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return NewConn(ws, c, cfg), nil
}

// Conn wraps one websocket.Conn. Writes are serialized.
type Conn struct {
	ws    *websocket.Conn
	codec codec.Codec
	cfg   transport.Config

	writeMu sync.Mutex
}

func NewConn(ws *websocket.Conn, c codec.Codec, cfg transport.Config) *Conn {
	return &Conn{ws: ws, codec: c, cfg: cfg}
}

// ReadMessage returns the next decoded message. Undecodable frames come back
// verbatim as a payload without correlation id.
func (c *Conn) ReadMessage() (connect.Message, error) {
	if c.cfg.ReadTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	var data []byte
	if err := websocket.Message.Receive(c.ws, &data); err != nil {
		return connect.Message{}, err
	}
	msg, err := c.codec.Decode(data)
	if err != nil {
		return connect.Message{Payload: data}, nil
	}
	return msg, nil
}

func (c *Conn) WriteMessage(msg connect.Message) error {
	b, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if c.codec.Binary() {
		return websocket.Message.Send(c.ws, b)
	}
	return websocket.Message.Send(c.ws, string(b))
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

func parseURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrURLRequired
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

func defaultOrigin(u *url.URL) string {
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "wss" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}
