package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

type chanConn struct {
	in      chan connect.Message
	mu      sync.Mutex
	written []connect.Message
	closed  chan struct{}
	once    sync.Once
}

func newChanConn() *chanConn {
	return &chanConn{in: make(chan connect.Message, 8), closed: make(chan struct{})}
}

func (c *chanConn) ReadMessage() (connect.Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return connect.Message{}, io.EOF
	}
}

func (c *chanConn) WriteMessage(msg connect.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, msg)
	return nil
}

func (c *chanConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *chanConn) Written() []connect.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]connect.Message(nil), c.written...)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	return cfg
}

func waitState(t *testing.T, ch <-chan connect.State, want connect.State) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("state got=%v want=%v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func TestRunnerReconnectsAfterSessionEnds(t *testing.T) {
	testlog.Start(t)
	conns := make(chan *chanConn, 4)
	r := NewRunner("test", fastConfig(), func(ctx context.Context) (Conn, error) {
		c := newChanConn()
		conns <- c
		return c, nil
	}, zerolog.Nop())

	if err := r.Send(connect.Message{PayloadType: 1}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	states := make(chan connect.State, 8)
	r.OnStateChange(func(s connect.State) { states <- s })
	inbound := make(chan connect.Message, 8)
	r.OnMessage(func(m connect.Message) { inbound <- m })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	first := <-conns
	waitState(t, states, connect.Connected)
	if err := r.Send(connect.Message{PayloadType: 2, CorrelationID: "a"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := first.Written(); len(got) != 1 || got[0].CorrelationID != "a" {
		t.Fatalf("written=%v", got)
	}

	first.in <- connect.Message{PayloadType: 3, CorrelationID: "a"}
	select {
	case msg := <-inbound:
		if msg.PayloadType != 3 {
			t.Fatalf("inbound=%v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("inbound not published")
	}

	first.Close()
	waitState(t, states, connect.Disconnected)
	second := <-conns
	waitState(t, states, connect.Connected)

	if err := r.Run(ctx); !errors.Is(err, ErrRunnerAlreadyStart) {
		t.Fatalf("expected ErrRunnerAlreadyStart, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop")
	}
	select {
	case <-second.closed:
	default:
		t.Fatalf("session conn left open")
	}
}

func TestRunnerGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	cfg := fastConfig()
	cfg.MaxConnectAttempts = 3
	dials := 0
	r := NewRunner("test", cfg, func(ctx context.Context) (Conn, error) {
		dials++
		return nil, errors.New("refused")
	}, zerolog.Nop())

	err := r.Run(context.Background())
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
	if dials != 3 {
		t.Fatalf("dials=%d", dials)
	}
}
