// Package relay exposes the NIP-77 reconciliation over websocket connections.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/slok/go-http-metrics/middleware/std"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nostrsync/relay/log"
	"github.com/nostrsync/relay/metrics/public"
	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sync2/negsync"
)

const shutdownTimeout = 5 * time.Second

// ServerOption is a type to configure a server.
type ServerOption func(s *Server)

// WithServerLogger configures logger for the server.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithServerConfig configures the websocket endpoint.
func WithServerConfig(cfg Config) ServerOption {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithVersion sets the software version advertised in the relay information document.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// WithSyncConfig configures the reconciliation settings of the responders.
func WithSyncConfig(cfg negsync.Config) ServerOption {
	return func(s *Server) {
		s.syncCfg = cfg
	}
}

// Server accepts websocket connections and answers the NIP-77 reconciliation
// requests using the records from the snapshot source. Each connection gets its own
// set of reconciliation sessions.
type Server struct {
	logger   *zap.Logger
	cfg      Config
	syncCfg  negsync.Config
	version  string
	source   negsync.SnapshotSource
	upgrader websocket.Upgrader
	handler  http.Handler
}

// NewServer creates a new Server.
func NewServer(source negsync.SnapshotSource, opts ...ServerOption) *Server {
	s := &Server{
		logger:  zap.NewNop(),
		cfg:     DefaultConfig(),
		syncCfg: negsync.DefaultConfig(),
		source:  source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Nostr clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		panic("BUG: bad relay config: " + err.Error())
	}
	// the information document must be readable from the browsers
	s.handler = cors.AllowAll().Handler(std.Handler("", httpMetrics, http.HandlerFunc(s.serve)))
	return s
}

// Run serves the websocket connections on the listener until the context is canceled.
func (s *Server) Run(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("relay listening", zap.Stringer("addr", l.Addr()))
	var eg errgroup.Group
	eg.Go(func() error {
		if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Debug("relay shutdown", zap.Error(err))
			srv.Close()
		}
		return nil
	})
	return eg.Wait()
}

// ServeHTTP upgrades the request to a websocket connection and serves it. The plain
// HTTP requests accepting application/nostr+json get the relay information document.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		if wantsInfo(r) {
			s.serveInfo(w)
			return
		}
		http.Error(w, "expected a websocket upgrade", http.StatusUpgradeRequired)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", log.ZRemote(r.RemoteAddr), zap.Error(err))
		return
	}
	s.serveConn(r.Context(), conn)
}

func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn) {
	logger := s.logger.With(log.ZRemote(conn.RemoteAddr().String()))
	start := time.Now()
	connections.Inc()
	public.Connections.WithLabelValues("inbound").Inc()
	defer func() {
		public.Connections.WithLabelValues("inbound").Dec()
		connectionDuration.Observe(time.Since(start).Seconds())
		conn.Close()
	}()
	logger.Debug("connection accepted")

	ctx, cancel := context.WithCancel(ctx)
	responder := negsync.NewResponder(s.source,
		negsync.WithResponderLogger(logger),
		negsync.WithResponderConfig(s.syncCfg),
		negsync.WithMaxSessions(s.cfg.MaxSessions),
		negsync.WithMaxRecords(s.cfg.MaxRecords))
	defer responder.Close()

	pongWait := 2 * s.cfg.PingInterval
	conn.SetReadLimit(s.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var eg errgroup.Group
	eg.Go(func() error {
		s.pingLoop(ctx, conn)
		return nil
	})
	defer eg.Wait()
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.MessageBurst)
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		framesIn.Inc()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		reply := s.handleMessage(ctx, logger, responder, typ, data)
		if reply == nil {
			continue
		}
		if err := s.write(conn, *reply); err != nil {
			logger.Debug("write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleMessage(
	ctx context.Context,
	logger *zap.Logger,
	responder *negsync.Responder,
	typ int,
	data []byte,
) *nip77.Frame {
	if typ != websocket.TextMessage {
		noticeMalformed.Inc()
		notice := nip77.Notice("error: expected a text message")
		return &notice
	}
	f, err := nip77.ParseFrame(data)
	switch {
	case errors.Is(err, nip77.ErrUnsupportedFrame):
		logger.Debug("unsupported frame", zap.String("type", string(f.Type)))
		noticeUnsupported.Inc()
		notice := nip77.Notice(fmt.Sprintf("unsupported: %s", f.Type))
		return &notice
	case err != nil:
		logger.Debug("malformed frame", zap.Error(err))
		noticeMalformed.Inc()
		notice := nip77.Notice("error: " + err.Error())
		return &notice
	}
	return responder.Handle(ctx, f)
}

func (s *Server) write(conn *websocket.Conn, f nip77.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", f.Type, err)
	}
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	framesOut.Inc()
	return nil
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// unblocks the reader on shutdown
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
