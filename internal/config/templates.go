package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	KindClient = "client"
	KindBroker = "broker"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindClient:
		return clientTemplate, nil
	case KindBroker:
		return brokerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// DefaultPath is where each command looks for its config.
func DefaultPath(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindClient:
		return "cmd/stompctl/config.toml", nil
	case KindBroker:
		return "cmd/stompd/config.toml", nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Validate loads path as the given kind.
func Validate(path, kind string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindClient:
		_, err := LoadClientConfig(path)
		return err
	case KindBroker:
		_, err := LoadBrokerConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const clientTemplate = `[session]
handshake_timeout = "5s"
receipt_timeout = "5s"
disconnect_timeout = "5s"

[transport]
kind = "tcp"            # tcp | websocket
dial_timeout = "5s"
write_timeout = "10s"
websocket_path = "/ws"
max_frame_bytes = 1048576

[metrics]
addr = ""               # e.g. "127.0.0.1:9464" to expose /metrics
`

const brokerTemplate = `tcp_addr = ":7777"
http_addr = ":7780"
websocket_path = "/ws"
write_timeout = "10s"
max_frame_bytes = 1048576
passcode_cost = 10
`
