package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/stompctl/internal/protocol/frame"
)

// TCPChannel frames a byte stream on the frame terminator.
type TCPChannel struct {
	conn         net.Conn
	reader       *bufio.Reader
	limits       frame.Limits
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func DialTCP(ctx context.Context, cfg Config, addr string) (*TCPChannel, error) {
	cfg = cfg.WithDefaults()
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPChannel(conn, cfg), nil
}

// NewTCPChannel wraps an established connection; the broker uses it for
// accepted sockets.
func NewTCPChannel(conn net.Conn, cfg Config) *TCPChannel {
	cfg = cfg.WithDefaults()
	return &TCPChannel{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		limits:       cfg.Limits,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *TCPChannel) SendLine(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := io.WriteString(c.conn, text)
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (c *TCPChannel) ReceiveLine() (string, error) {
	line, err := frame.ReadRaw(c.reader, c.limits)
	if errors.Is(err, net.ErrClosed) {
		return "", io.EOF
	}
	return line, err
}

func (c *TCPChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *TCPChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
