package transport

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketChannel carries one frame per text message.
type WebSocketChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex // serialises all conn writes
	closeOnce sync.Once
	closeErr  error
}

func DialWebSocket(ctx context.Context, cfg Config, addr string) (*WebSocketChannel, error) {
	cfg = cfg.WithDefaults()
	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, webSocketURL(addr, cfg.WebSocketPath), nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(int64(cfg.Limits.MaxFrameBytes))
	return NewWebSocketChannel(conn, cfg), nil
}

// NewWebSocketChannel wraps an established connection; the broker uses it
// after upgrading an HTTP request.
func NewWebSocketChannel(conn *websocket.Conn, cfg Config) *WebSocketChannel {
	cfg = cfg.WithDefaults()
	return &WebSocketChannel{conn: conn, writeTimeout: cfg.WriteTimeout}
}

func (c *WebSocketChannel) SendLine(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	err := c.conn.WriteMessage(websocket.TextMessage, []byte(text))
	if errors.Is(err, websocket.ErrCloseSent) {
		return ErrClosed
	}
	return err
}

func (c *WebSocketChannel) ReceiveLine() (string, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return "", io.EOF
		}
		return "", err
	}
	if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
		return "", ErrUnexpectedWSOpcode
	}
	return string(data), nil
}

// Close sends a close frame before dropping the connection.
func (c *WebSocketChannel) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func webSocketURL(addr, path string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: path}
	return u.String()
}
