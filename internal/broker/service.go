package broker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/stompctl/internal/auth"
	"github.com/danmuck/stompctl/internal/logging"
	"github.com/danmuck/stompctl/internal/observability"
	"github.com/danmuck/stompctl/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Service accepts STOMP clients on TCP and on a WebSocket route.
type Service struct {
	cfg      Config
	hub      *Hub
	log      zerolog.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time

	connsMu sync.Mutex
	conns   map[*peer]struct{}
}

func NewService(cfg Config) *Service {
	observability.RegisterMetrics()
	cfg = cfg.WithDefaults()
	s := &Service{
		cfg:     cfg,
		hub:     NewHub(auth.NewRegistry(cfg.PasscodeCost)),
		log:     logging.Component("broker"),
		started: time.Now(),
		conns:   make(map[*peer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.router = s.newRouter()
	return s
}

func (s *Service) Hub() *Hub {
	return s.hub
}

// Handler serves the HTTP routes: WebSocket endpoint, /metrics, /healthz.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Run listens on the configured addresses until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp listening")

	errs := make(chan error, 2)
	go func() { errs <- s.Serve(ctx, ln) }()

	var httpSrv *http.Server
	if addr := strings.TrimSpace(s.cfg.HTTPAddr); addr != "" {
		httpSrv = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			s.log.Info().Str("addr", addr).Str("websocket_path", s.cfg.WebSocketPath).Msg("http listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errs:
	}
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	_ = ln.Close()
	s.closeAll()
	return err
}

// Serve accepts TCP clients on ln until ctx is done or ln fails.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAll()
		_ = ln.Close()
	}()

	tcfg := s.transportConfig()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.serveConn(transport.NewTCPChannel(conn, tcfg), conn.RemoteAddr().String())
	}
}

func (s *Service) serveWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(int64(s.cfg.Limits.MaxFrameBytes))
	s.serveConn(transport.NewWebSocketChannel(conn, s.transportConfig()), c.ClientIP())
}

func (s *Service) transportConfig() transport.Config {
	return transport.Config{
		WriteTimeout:  s.cfg.WriteTimeout,
		WebSocketPath: s.cfg.WebSocketPath,
		Limits:        s.cfg.Limits,
	}
}

func (s *Service) track(p *peer) {
	s.connsMu.Lock()
	s.conns[p] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Service) untrack(p *peer) {
	s.connsMu.Lock()
	delete(s.conns, p)
	s.connsMu.Unlock()
}

// Connections reports how many client connections are open.
func (s *Service) Connections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

func (s *Service) closeAll() {
	s.connsMu.Lock()
	peers := make([]*peer, 0, len(s.conns))
	for p := range s.conns {
		peers = append(peers, p)
	}
	s.connsMu.Unlock()
	for _, p := range peers {
		_ = p.ch.Close()
	}
}
