package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/stompctl/internal/broker"
	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/danmuck/stompctl/internal/transport"
	"golang.org/x/crypto/bcrypt"
)

// ClientConfig is the resolved stompctl configuration.
type ClientConfig struct {
	Session     session.Config
	Transport   transport.Config
	MetricsAddr string
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Session:   session.DefaultConfig(),
		Transport: transport.DefaultConfig(),
	}
}

type clientFile struct {
	Session struct {
		HandshakeTimeout  string `toml:"handshake_timeout"`
		ReceiptTimeout    string `toml:"receipt_timeout"`
		DisconnectTimeout string `toml:"disconnect_timeout"`
	} `toml:"session"`
	Transport struct {
		Kind          string `toml:"kind"`
		DialTimeout   string `toml:"dial_timeout"`
		WriteTimeout  string `toml:"write_timeout"`
		WebSocketPath string `toml:"websocket_path"`
		MaxFrameBytes int    `toml:"max_frame_bytes"`
	} `toml:"transport"`
	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`
}

type brokerFile struct {
	TCPAddr       string `toml:"tcp_addr"`
	HTTPAddr      string `toml:"http_addr"`
	WebSocketPath string `toml:"websocket_path"`
	WriteTimeout  string `toml:"write_timeout"`
	MaxFrameBytes int    `toml:"max_frame_bytes"`
	PasscodeCost  int    `toml:"passcode_cost"`
}

// LoadClientConfig reads a client file. Keys missing from the file keep
// their defaults; unknown keys are an error.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := rejectUndecoded(meta); err != nil {
		return ClientConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	durations := []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"session", "handshake_timeout"}, raw.Session.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{[]string{"session", "receipt_timeout"}, raw.Session.ReceiptTimeout, &cfg.Session.ReceiptTimeout},
		{[]string{"session", "disconnect_timeout"}, raw.Session.DisconnectTimeout, &cfg.Session.DisconnectTimeout},
		{[]string{"transport", "dial_timeout"}, raw.Transport.DialTimeout, &cfg.Transport.DialTimeout},
		{[]string{"transport", "write_timeout"}, raw.Transport.WriteTimeout, &cfg.Transport.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := parseDuration(strings.Join(d.key, "."), d.raw)
		if err != nil {
			return ClientConfig{}, err
		}
		*d.dst = v
	}

	if meta.IsDefined("transport", "kind") {
		cfg.Transport.Kind = strings.ToLower(strings.TrimSpace(raw.Transport.Kind))
	}
	if meta.IsDefined("transport", "websocket_path") {
		cfg.Transport.WebSocketPath = strings.TrimSpace(raw.Transport.WebSocketPath)
	}
	if meta.IsDefined("transport", "max_frame_bytes") {
		if raw.Transport.MaxFrameBytes <= 0 {
			return ClientConfig{}, fmt.Errorf("transport.max_frame_bytes must be positive")
		}
		cfg.Transport.Limits = frame.Limits{MaxFrameBytes: raw.Transport.MaxFrameBytes}
	}
	if meta.IsDefined("metrics", "addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.Metrics.Addr)
	}

	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if err := cfg.Transport.WithDefaults().Validate(); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"session.handshake_timeout":  cfg.Session.HandshakeTimeout,
		"session.receipt_timeout":    cfg.Session.ReceiptTimeout,
		"session.disconnect_timeout": cfg.Session.DisconnectTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// LoadBrokerConfig reads a broker file over broker.DefaultConfig.
func LoadBrokerConfig(path string) (broker.Config, error) {
	cfg := broker.DefaultConfig()
	var raw brokerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return broker.Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := rejectUndecoded(meta); err != nil {
		return broker.Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if meta.IsDefined("tcp_addr") {
		cfg.TCPAddr = strings.TrimSpace(raw.TCPAddr)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("websocket_path") {
		cfg.WebSocketPath = strings.TrimSpace(raw.WebSocketPath)
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration("write_timeout", raw.WriteTimeout)
		if err != nil {
			return broker.Config{}, err
		}
		cfg.WriteTimeout = d
	}
	if meta.IsDefined("max_frame_bytes") {
		if raw.MaxFrameBytes <= 0 {
			return broker.Config{}, fmt.Errorf("max_frame_bytes must be positive")
		}
		cfg.Limits = frame.Limits{MaxFrameBytes: raw.MaxFrameBytes}
	}
	if meta.IsDefined("passcode_cost") {
		cfg.PasscodeCost = raw.PasscodeCost
	}
	if err := ValidateBrokerConfig(cfg); err != nil {
		return broker.Config{}, err
	}
	return cfg, nil
}

func ValidateBrokerConfig(cfg broker.Config) error {
	if strings.TrimSpace(cfg.TCPAddr) == "" {
		return fmt.Errorf("broker config missing tcp_addr")
	}
	if cfg.PasscodeCost != 0 && (cfg.PasscodeCost < bcrypt.MinCost || cfg.PasscodeCost > bcrypt.MaxCost) {
		return fmt.Errorf("passcode_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func rejectUndecoded(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}
