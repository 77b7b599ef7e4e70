package broker

import (
	"strings"
	"time"

	"github.com/danmuck/stompctl/internal/protocol/frame"
)

type Config struct {
	TCPAddr       string
	HTTPAddr      string
	WebSocketPath string
	WriteTimeout  time.Duration
	Limits        frame.Limits
	// PasscodeCost is the bcrypt cost for registered passcodes; zero picks
	// the library default.
	PasscodeCost int
}

func DefaultConfig() Config {
	return Config{
		TCPAddr:       ":7777",
		HTTPAddr:      ":7780",
		WebSocketPath: "/ws",
		WriteTimeout:  10 * time.Second,
		Limits:        frame.DefaultLimits(),
	}
}

// WithDefaults fills empty fields. HTTPAddr stays empty when unset so the
// HTTP listener can be disabled.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.WebSocketPath) == "" {
		c.WebSocketPath = def.WebSocketPath
	}
	if !strings.HasPrefix(c.WebSocketPath, "/") {
		c.WebSocketPath = "/" + c.WebSocketPath
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Limits.MaxFrameBytes <= 0 {
		c.Limits = def.Limits
	}
	return c
}
