package session

import "time"

// Config defines session confirmation timeouts.
type Config struct {
	// HandshakeTimeout bounds the wait for CONNECTED or ERROR after CONNECT.
	HandshakeTimeout time.Duration
	// ReceiptTimeout bounds synchronous waits on SUBSCRIBE/UNSUBSCRIBE receipts.
	ReceiptTimeout time.Duration
	// DisconnectTimeout bounds the wait for the DISCONNECT receipt; the
	// session is torn down when it elapses.
	DisconnectTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  5 * time.Second,
		ReceiptTimeout:    5 * time.Second,
		DisconnectTimeout: 5 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = def.ReceiptTimeout
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = def.DisconnectTimeout
	}
	return c
}
