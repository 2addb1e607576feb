// Package echo is a test peer for linkctl clients. It answers every correlated
// envelope with the same payload type, payload and correlation id, and emits
// periodic push events to every open session.
package echo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/edgelink/internal/auth"
	"github.com/danmuck/edgelink/internal/codec"
	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/connect"
	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/transport"
	"github.com/danmuck/edgelink/internal/transport/stream"
	"github.com/danmuck/edgelink/internal/transport/wsock"
)

var ErrNotListening = errors.New("echo: listeners not bound")

// Heartbeat is the push event payload.
type Heartbeat struct {
	Seq uint64 `json:"seq"`
}

type session struct {
	id   uint64
	kind string
	conn transport.Conn
}

type Server struct {
	cfg     config.PeerConfig
	log     zerolog.Logger
	wsCodec codec.Codec
	started time.Time

	tcpLn  net.Listener
	httpLn net.Listener

	mu       sync.Mutex
	sessions map[uint64]*session
	nextID   uint64
	pushSeq  uint64
}

func New(cfg config.PeerConfig, logger zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := codec.ByName(cfg.WSCodec)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		log:      logger.With().Str("peer", cfg.Name).Logger(),
		wsCodec:  c,
		started:  time.Now(),
		sessions: make(map[uint64]*session),
	}, nil
}

// Listen binds the configured listeners without serving them.
func (s *Server) Listen() error {
	if s.cfg.TCPAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.TCPAddr)
		if err != nil {
			return fmt.Errorf("echo listen tcp %s: %w", s.cfg.TCPAddr, err)
		}
		s.tcpLn = ln
	}
	if s.cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
		if err != nil {
			if s.tcpLn != nil {
				_ = s.tcpLn.Close()
			}
			return fmt.Errorf("echo listen http %s: %w", s.cfg.HTTPAddr, err)
		}
		s.httpLn = ln
	}
	return nil
}

func (s *Server) TCPAddr() string {
	if s.tcpLn == nil {
		return ""
	}
	return s.tcpLn.Addr().String()
}

func (s *Server) HTTPAddr() string {
	if s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

// Run binds and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the bound listeners and the push ticker until ctx is done or one
// of them fails.
func (s *Server) Serve(ctx context.Context) error {
	if s.tcpLn == nil && s.httpLn == nil {
		return ErrNotListening
	}
	g, ctx := errgroup.WithContext(ctx)

	if s.tcpLn != nil {
		ln := s.tcpLn
		g.Go(func() error { return s.serveTCP(ctx, ln) })
	}
	if s.httpLn != nil {
		srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
		ln := s.httpLn
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if s.cfg.PushInterval > 0 {
		g.Go(func() error { return s.pushLoop(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		s.closeSessions()
		return nil
	})

	s.log.Info().Str("tcp", s.TCPAddr()).Str("http", s.HTTPAddr()).Msg("echo.Server serving")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler is the HTTP surface: health, metrics and the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.log))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.Name))
	if len(s.cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.started).String(),
			"service":  s.cfg.Name,
			"sessions": s.SessionCount(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ws := websocket.Handler(func(conn *websocket.Conn) {
		wc := wsock.NewConn(conn, s.wsCodec, transport.Config{})
		s.serveSession("ws", wc, wc.WriteMessage)
	})
	r.GET("/ws", gin.WrapH(ws))
	return r
}

func (s *Server) serveTCP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("echo accept: %w", err)
		}
		conn := stream.NewConn(raw, transport.Config{})
		if s.cfg.AuthToken != "" {
			conn.RequireAuth(auth.StaticToken{Token: s.cfg.AuthToken})
		}
		go s.serveSession("tcp", conn, func(msg connect.Message) error {
			f, err := conn.Codec().ToFrame(msg)
			if err != nil {
				return err
			}
			f.Header.Flags |= frame.FlagIsResponse
			return conn.WriteFrame(f)
		})
	}
}

// serveSession echoes correlated envelopes until the connection fails.
func (s *Server) serveSession(kind string, conn transport.Conn, respond func(connect.Message) error) {
	sess := s.register(kind, conn)
	log := s.log.With().Str("transport", kind).Uint64("session", sess.id).Logger()
	log.Info().Msg("echo.Server session opened")
	defer func() {
		s.unregister(sess.id)
		_ = conn.Close()
		log.Info().Msg("echo.Server session closed")
	}()

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) || errors.Is(err, auth.ErrTokenRequired) {
				log.Warn().Err(err).Msg("echo.Server rejected session")
			}
			return
		}
		if msg.CorrelationID == "" {
			log.Debug().Uint32("payload_type", msg.PayloadType).Msg("echo.Server ignore uncorrelated")
			continue
		}
		if err := respond(msg); err != nil {
			log.Warn().Err(err).Str("correlation_id", msg.CorrelationID).Msg("echo.Server respond")
			return
		}
	}
}

func (s *Server) register(kind string, conn transport.Conn) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sess := &session{id: s.nextID, kind: kind, conn: conn}
	s.sessions[sess.id] = sess
	return sess
}

func (s *Server) unregister(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Push sends one heartbeat push event to every open session and returns how
// many sessions accepted it.
func (s *Server) Push() int {
	s.mu.Lock()
	s.pushSeq++
	msg := connect.Message{
		PayloadType: s.cfg.PushPayloadType,
		Payload:     Heartbeat{Seq: s.pushSeq},
	}
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	delivered := 0
	for _, sess := range targets {
		if err := sess.conn.WriteMessage(msg); err != nil {
			s.log.Debug().Err(err).Str("transport", sess.kind).Uint64("session", sess.id).Msg("echo.Server push")
			continue
		}
		delivered++
	}
	return delivered
}

func (s *Server) pushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Push()
		}
	}
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()
	for _, sess := range targets {
		_ = sess.conn.Close()
	}
}
