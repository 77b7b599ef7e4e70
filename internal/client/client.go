package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/stompctl/internal/events"
	"github.com/danmuck/stompctl/internal/logging"
	"github.com/danmuck/stompctl/internal/observability"
	"github.com/danmuck/stompctl/internal/protocol"
	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/danmuck/stompctl/internal/transport"
	"github.com/rs/zerolog"
)

var (
	ErrDialerRequired  = errors.New("client: dialer required")
	ErrAlreadyLoggedIn = fmt.Errorf("%w: already logged in", protocol.ErrOperationRejected)
	ErrNotLoggedIn     = fmt.Errorf("%w: not logged in", protocol.ErrOperationRejected)
)

type Config struct {
	Session session.Config
	Limits  frame.Limits
	Dialer  transport.Dialer
	// Out receives user-facing feedback lines. Defaults to io.Discard.
	Out io.Writer
}

// link is one login: its session, transport and reader task.
type link struct {
	sess *session.Session
	ch   transport.LineChannel
	done chan struct{}
}

type Client struct {
	cfg Config
	log zerolog.Logger

	outMu sync.Mutex
	out   io.Writer

	mu     sync.Mutex
	active *link
	store  *events.Store
}

func New(cfg Config) (*Client, error) {
	if cfg.Dialer == nil {
		return nil, ErrDialerRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.Limits.MaxFrameBytes <= 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	return &Client{
		cfg:   cfg,
		log:   logging.Component("client"),
		out:   out,
		store: events.NewStore(),
	}, nil
}

// LoggedIn reports whether a login is in progress or established.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Status returns the current session status, Disconnected when idle.
func (c *Client) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return session.Disconnected
	}
	return c.active.sess.Status()
}

func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return c.active.sess.Subscriptions()
}

// Login dials addr, sends CONNECT and waits for the server's answer bounded
// by the handshake timeout. On any failure the transport is closed and the
// client is idle again.
func (c *Client) Login(ctx context.Context, addr, user, passcode string) error {
	c.mu.Lock()
	busy := c.active != nil
	c.mu.Unlock()
	if busy {
		return ErrAlreadyLoggedIn
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: address %q: %v", protocol.ErrOperationRejected, addr, err)
	}

	ch, err := c.cfg.Dialer.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", protocol.ErrTransportFailure, addr, err)
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		_ = ch.Close()
		return ErrAlreadyLoggedIn
	}
	l := &link{ch: ch, done: make(chan struct{})}
	l.sess = session.New(ch, c.store, c.cfg.Session)
	waiter, err := l.sess.Login(host, user, passcode)
	if err != nil {
		c.mu.Unlock()
		_ = ch.Close()
		return err
	}
	c.active = l
	c.mu.Unlock()
	go c.readLoop(l)

	timer := time.NewTimer(c.cfg.Session.HandshakeTimeout)
	defer timer.Stop()
	select {
	case err = <-waiter:
	case <-timer.C:
		err = fmt.Errorf("%w: no answer to CONNECT within %s", protocol.ErrTimeout, c.cfg.Session.HandshakeTimeout)
	case <-ctx.Done():
		err = fmt.Errorf("%w: login: %v", protocol.ErrSessionTerminated, ctx.Err())
	}
	if err != nil {
		c.release(l, err, true)
		c.log.Warn().Err(err).Str("addr", addr).Str("user", user).Msg("login failed")
		return err
	}
	c.log.Info().Str("addr", addr).Str("user", user).Str("session_id", l.sess.ID()).Msg("login successful")
	c.printf("Login successful")
	return nil
}

// Join subscribes to channel. The subscription is usable immediately; the
// server's receipt is announced by the reader task.
func (c *Client) Join(channel string) (session.Subscription, error) {
	var sub session.Subscription
	err := c.withSession(func(s *session.Session) error {
		var err error
		sub, err = s.Subscribe(channel)
		return err
	})
	return sub, err
}

// Exit unsubscribes from channel.
func (c *Client) Exit(channel string) (session.Subscription, error) {
	var sub session.Subscription
	err := c.withSession(func(s *session.Session) error {
		var err error
		sub, err = s.Unsubscribe(channel)
		return err
	})
	return sub, err
}

// Send publishes one body to channel.
func (c *Client) Send(channel string, body []byte) error {
	return c.withSession(func(s *session.Session) error {
		return s.Send(channel, body)
	})
}

// Report sends every event of an events file to the file's channel, owned
// by the logged in user. Received copies reach the store through dispatch.
// The lock is taken once per event so echoes are dispatched between
// writes.
func (c *Client) Report(path string) (int, error) {
	c.mu.Lock()
	l := c.active
	c.mu.Unlock()
	if l == nil {
		return 0, ErrNotLoggedIn
	}
	file, err := events.LoadFile(path)
	if err != nil {
		return 0, err
	}
	var user string
	if err := c.withLink(l, func(s *session.Session) error {
		user = s.User()
		return nil
	}); err != nil {
		return 0, err
	}
	sent := 0
	for _, e := range file.Records(user) {
		body := events.FormatBody(e)
		err := c.withLink(l, func(s *session.Session) error {
			return s.Send(file.ChannelName, body)
		})
		if err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Summarize snapshots the store for user's events on channel.
func (c *Client) Summarize(channel, user string) (events.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return events.Summary{}, ErrNotLoggedIn
	}
	return c.store.Summarize(channel, user), nil
}

// Summary writes the summary of user's events on channel to path.
func (c *Client) Summary(channel, user, path string) error {
	sum, err := c.Summarize(channel, user)
	if err != nil {
		return err
	}
	return events.WriteSummaryFile(path, sum)
}

// JoinAndWait subscribes to channel and waits for the server's receipt.
func (c *Client) JoinAndWait(ctx context.Context, channel string) (session.Subscription, error) {
	c.mu.Lock()
	l := c.active
	if l == nil {
		c.mu.Unlock()
		return session.Subscription{}, ErrNotLoggedIn
	}
	sub, err := l.sess.Subscribe(channel)
	var waiter <-chan error
	if err == nil {
		waiter, _ = l.sess.AwaitReceipt(sub.ReceiptID)
	}
	c.mu.Unlock()
	if err != nil {
		if errors.Is(err, protocol.ErrTransportFailure) && c.release(l, err, true) {
			c.printf("Connection to server lost")
		}
		return sub, err
	}
	return sub, c.await(ctx, l, sub.ReceiptID, waiter)
}

// Await blocks until receiptID resolves, bounded by the receipt timeout. A
// timeout ends the login.
func (c *Client) Await(ctx context.Context, receiptID string) error {
	c.mu.Lock()
	l := c.active
	if l == nil {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	waiter, ok := l.sess.AwaitReceipt(receiptID)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: receipt %q is not outstanding", protocol.ErrOperationRejected, receiptID)
	}
	return c.await(ctx, l, receiptID, waiter)
}

func (c *Client) await(ctx context.Context, l *link, receiptID string, waiter <-chan error) error {
	timer := time.NewTimer(c.cfg.Session.ReceiptTimeout)
	defer timer.Stop()
	select {
	case err := <-waiter:
		return err
	case <-timer.C:
		err := fmt.Errorf("%w: receipt %s after %s", protocol.ErrTimeout, receiptID, c.cfg.Session.ReceiptTimeout)
		c.release(l, err, true)
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: receipt %s: %v", protocol.ErrSessionTerminated, receiptID, ctx.Err())
	}
}

// Logout sends DISCONNECT and waits for its receipt bounded by the
// disconnect timeout. The transport is closed either way.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	l := c.active
	if l == nil {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	waiter, err := l.sess.Logout()
	c.mu.Unlock()
	if err != nil {
		if errors.Is(err, protocol.ErrTransportFailure) {
			c.release(l, err, true)
		}
		return err
	}

	timer := time.NewTimer(c.cfg.Session.DisconnectTimeout)
	defer timer.Stop()
	select {
	case err = <-waiter:
	case <-timer.C:
		err = fmt.Errorf("%w: no receipt for DISCONNECT within %s", protocol.ErrTimeout, c.cfg.Session.DisconnectTimeout)
	case <-ctx.Done():
		err = fmt.Errorf("%w: logout: %v", protocol.ErrSessionTerminated, ctx.Err())
	}
	c.release(l, err, true)
	if err != nil {
		c.log.Warn().Err(err).Msg("logout ended without receipt")
	}
	return err
}

// Close ends the current login, if any, without a DISCONNECT exchange.
func (c *Client) Close() error {
	c.mu.Lock()
	l := c.active
	c.mu.Unlock()
	if l == nil {
		return nil
	}
	c.release(l, protocol.ErrSessionTerminated, true)
	return nil
}

// withSession runs op under the lock. A transport failure ends the login.
func (c *Client) withSession(op func(*session.Session) error) error {
	c.mu.Lock()
	l := c.active
	c.mu.Unlock()
	if l == nil {
		return ErrNotLoggedIn
	}
	return c.withLink(l, op)
}

// withLink is withSession pinned to l; it fails with ErrNotLoggedIn once l
// is no longer the active login.
func (c *Client) withLink(l *link, op func(*session.Session) error) error {
	c.mu.Lock()
	if c.active != l {
		c.mu.Unlock()
		return ErrNotLoggedIn
	}
	err := op(l.sess)
	c.mu.Unlock()
	if err != nil && errors.Is(err, protocol.ErrTransportFailure) {
		c.log.Error().Err(err).Msg("transport failure")
		if c.release(l, err, true) {
			c.printf("Connection to server lost")
		}
	}
	return err
}

// release tears l down, closes its transport and waits for its reader task
// when wait is set. It reports whether l was still the active login.
func (c *Client) release(l *link, cause error, wait bool) bool {
	c.mu.Lock()
	detached := c.detachLocked(l, cause)
	c.mu.Unlock()
	_ = l.ch.Close()
	if wait {
		<-l.done
	}
	return detached
}

func (c *Client) detachLocked(l *link, cause error) bool {
	l.sess.Teardown(cause)
	if c.active != l {
		return false
	}
	c.active = nil
	c.store.Reset()
	return true
}

func (c *Client) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, _ = io.WriteString(c.out, line)
}

// readLoop is the reader task of one login. A pump goroutine drains the
// transport into an inbox; readLoop dispatches from it under the lock.
func (c *Client) readLoop(l *link) {
	defer close(l.done)
	in := newInbox()
	go c.pump(l, in)
	for {
		raws, err := in.next()
		if err != nil {
			c.lost(l, err)
			return
		}
		for _, raw := range raws {
			c.deliver(l, raw)
		}
	}
}

func (c *Client) pump(l *link, in *inbox) {
	splitter := frame.NewSplitter(c.cfg.Limits)
	for {
		chunk, err := l.ch.ReceiveLine()
		if err != nil {
			in.finish(err)
			return
		}
		raws, err := splitter.Feed(chunk)
		in.push(raws...)
		if err != nil {
			observability.RecordAnomaly(observability.RoleClient, "oversized_frame")
			c.log.Warn().Err(err).Msg("inbound frame dropped")
		}
	}
}

func (c *Client) deliver(l *link, raw string) {
	f, err := frame.Decode(raw)
	if err != nil {
		observability.RecordAnomaly(observability.RoleClient, "parse")
		c.log.Warn().Err(err).Msg("undecodable frame")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != l {
		return
	}
	d, err := l.sess.Dispatch(f)
	c.announce(d, err)
}

// announce prints feedback for a dispatched frame. Called with c.mu held.
func (c *Client) announce(d session.Dispatched, err error) {
	if err != nil {
		if serr, ok := session.AsServerError(err); ok && d.Status != session.Disconnected {
			c.printf("Error from server: %s", serr.Message)
			if serr.Detail != "" {
				c.printf("%s", serr.Detail)
			}
		}
		return
	}
	if d.Command != frame.Receipt {
		return
	}
	switch d.Receipt.Kind {
	case session.ReceiptSubscribe:
		c.printf("Joined channel %s", d.Receipt.Channel)
	case session.ReceiptUnsubscribe:
		c.printf("Exited channel %s", d.Receipt.Channel)
	case session.ReceiptDisconnect:
		c.printf("Logout successful")
	}
}

// lost handles the end of l's stream.
func (c *Client) lost(l *link, err error) {
	c.mu.Lock()
	ended := l.sess.Ended()
	detached := c.detachLocked(l, fmt.Errorf("%w: %v", protocol.ErrTransportFailure, err))
	c.mu.Unlock()
	_ = l.ch.Close()
	if detached && !ended {
		c.log.Error().Err(err).Str("session_id", l.sess.ID()).Msg("connection lost")
		c.printf("Connection to server lost")
	}
}
