package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/edgelink/internal/codec"
	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/transport/stream"
	"github.com/danmuck/edgelink/internal/transport/wsock"
)

// runAdapter is an adapter that owns its reconnect loop.
type runAdapter interface {
	connect.Adapter
	Run(ctx context.Context) error
}

// session is one engine bound to a running transport.
type session struct {
	Client  *connect.Client
	adapter runAdapter
	log     zerolog.Logger

	cancel  context.CancelFunc
	runErr  chan error
	metrics *http.Server

	closeOnce sync.Once
}

func newAdapter(cfg config.ClientConfig, logger zerolog.Logger) (runAdapter, error) {
	tc := cfg.TransportConfig()
	switch cfg.Transport {
	case config.TransportTCP:
		return stream.New(cfg.Address, tc, logger)
	case config.TransportWS:
		c, err := codec.ByName(cfg.Codec)
		if err != nil {
			return nil, err
		}
		return wsock.New(cfg.Address, cfg.WSOrigin, c, tc, logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// openSession builds the adapter and engine and starts the transport loop.
func openSession(ctx context.Context, cfg config.ClientConfig) (*session, error) {
	logger := observability.InitLogger("linkctl")
	adapter, err := newAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	client, err := connect.New(connect.Config{
		Adapter:                         adapter,
		InstanceID:                      cfg.InstanceID,
		PayloadTypesNotAwaitingResponse: cfg.PayloadTypesNotAwaitingResponse,
		Logger:                          &logger,
		Observer:                        observability.NewEngineObserver(cfg.InstanceID),
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{
		Client:  client,
		adapter: adapter,
		log:     logger,
		cancel:  cancel,
		runErr:  make(chan error, 1),
	}
	go func() { s.runErr <- adapter.Run(runCtx) }()

	if cfg.MetricsAddr != "" {
		if err := s.serveMetrics(cfg.MetricsAddr); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.metrics = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn().Err(err).Msg("linkctl metrics server")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("linkctl metrics serving")
	return nil
}

// WaitConnected blocks until the adapter reports Connected, the transport loop
// gives up, or ctx is done.
func (s *session) WaitConnected(ctx context.Context) error {
	ready := make(chan struct{})
	var once sync.Once
	cancel := s.adapter.OnStateChange(func(st connect.State) {
		if st == connect.Connected {
			once.Do(func() { close(ready) })
		}
	})
	defer cancel()

	select {
	case <-ready:
		return nil
	case err := <-s.runErr:
		s.runErr <- err
		return fmt.Errorf("transport stopped: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close fails or discards outstanding commands and stops the transport.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.Client.Close()
		s.cancel()
		runErr := <-s.runErr
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			err = runErr
		}
		if s.metrics != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = s.metrics.Shutdown(shutdownCtx)
		}
	})
	return err
}
