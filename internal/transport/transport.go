package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/stompctl/internal/protocol/frame"
)

// Kinds of line channel Dial can open.
const (
	KindTCP       = "tcp"
	KindWebSocket = "websocket"
)

var (
	ErrClosed             = errors.New("transport: channel closed")
	ErrUnknownKind        = errors.New("transport: unknown kind")
	ErrAddressRequired    = errors.New("transport: address required")
	ErrUnexpectedWSOpcode = errors.New("transport: unexpected websocket message type")
)

// LineChannel moves whole frame texts. A line is one frame including its
// terminator. ReceiveLine returns io.EOF once the peer has closed the stream.
type LineChannel interface {
	SendLine(text string) error
	ReceiveLine() (string, error)
	Close() error
}

// Config selects and tunes the transport.
type Config struct {
	Kind          string
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	WebSocketPath string
	Limits        frame.Limits
}

func DefaultConfig() Config {
	return Config{
		Kind:          KindTCP,
		DialTimeout:   5 * time.Second,
		WriteTimeout:  10 * time.Second,
		WebSocketPath: "/ws",
		Limits:        frame.DefaultLimits(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	if c.Kind == "" {
		c.Kind = def.Kind
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if strings.TrimSpace(c.WebSocketPath) == "" {
		c.WebSocketPath = def.WebSocketPath
	}
	if c.Limits.MaxFrameBytes <= 0 {
		c.Limits = def.Limits
	}
	return c
}

func (c Config) Validate() error {
	switch c.Kind {
	case KindTCP, KindWebSocket:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
}

// Dialer opens line channels. The client depends on this seam so tests can
// hand it in-memory pipes.
type Dialer interface {
	Dial(ctx context.Context, addr string) (LineChannel, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, addr string) (LineChannel, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (LineChannel, error) {
	return f(ctx, addr)
}

// NetDialer dials TCP or WebSocket according to its Config.
type NetDialer struct {
	cfg Config
}

func NewDialer(cfg Config) (*NetDialer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &NetDialer{cfg: cfg}, nil
}

func (d *NetDialer) Config() Config {
	return d.cfg
}

func (d *NetDialer) Dial(ctx context.Context, addr string) (LineChannel, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, ErrAddressRequired
	}
	switch d.cfg.Kind {
	case KindWebSocket:
		return DialWebSocket(ctx, d.cfg, addr)
	default:
		return DialTCP(ctx, d.cfg, addr)
	}
}
