package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/edgelink/internal/connect"
)

var (
	ErrNotConnected       = errors.New("transport: not connected")
	ErrAttemptsExhausted  = errors.New("transport: connect attempts exhausted")
	ErrRunnerAlreadyStart = errors.New("transport: runner already started")
)

// Conn is one live transport session carrying decoded messages.
type Conn interface {
	ReadMessage() (connect.Message, error)
	WriteMessage(msg connect.Message) error
	Close() error
}

// DialFunc opens one session.
type DialFunc func(ctx context.Context) (Conn, error)

// Runner keeps a session open: it dials, reports Connected, serves reads until
// the session fails, reports Disconnected, backs off and dials again. It
// satisfies connect.Adapter.
type Runner struct {
	*Hub

	name string
	cfg  Config
	dial DialFunc
	log  zerolog.Logger
	rng  *rand.Rand

	mu      sync.Mutex
	conn    Conn
	started bool
}

func NewRunner(name string, cfg Config, dial DialFunc, logger zerolog.Logger) *Runner {
	return &Runner{
		Hub:  NewHub(),
		name: name,
		cfg:  cfg.WithDefaults(),
		dial: dial,
		log:  logger.With().Str("transport", name).Logger(),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Send writes msg on the live session.
func (r *Runner) Send(msg connect.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return ErrNotConnected
	}
	if err := r.conn.WriteMessage(msg); err != nil {
		return fmt.Errorf("%s write: %w", r.name, err)
	}
	return nil
}

// Run blocks until ctx is done or MaxConnectAttempts consecutive dials fail.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrRunnerAlreadyStart
	}
	r.started = true
	r.mu.Unlock()

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		conn, err := r.dial(ctx)
		if err != nil {
			r.log.Warn().Int("attempt", attempt).Err(err).Msg("transport.Runner dial")
			if !r.shouldRetry(attempt) {
				return fmt.Errorf("%w: %v", ErrAttemptsExhausted, err)
			}
			if err := r.sleepBackoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		attempt = 0
		err = r.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Warn().Err(err).Msg("transport.Runner session ended")
		if err := r.sleepBackoff(ctx, 1); err != nil {
			return err
		}
	}
}

// serve publishes inbound messages until the session fails or ctx ends.
func (r *Runner) serve(ctx context.Context, conn Conn) error {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	r.log.Info().Msg("transport.Runner connected")
	r.SetState(connect.Connected)

	var readErr error
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		r.Publish(msg)
	}

	r.mu.Lock()
	r.conn = nil
	r.mu.Unlock()
	_ = conn.Close()
	r.SetState(connect.Disconnected)
	return readErr
}

func (r *Runner) shouldRetry(attempt int) bool {
	if r.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < r.cfg.MaxConnectAttempts
}

func (r *Runner) sleepBackoff(ctx context.Context, attempt int) error {
	r.mu.Lock()
	delay := NextBackoffDelay(r.cfg.Backoff, attempt, r.rng)
	r.mu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
