package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/stompctl/internal/logging"
	"github.com/danmuck/stompctl/internal/observability"
	"github.com/danmuck/stompctl/internal/protocol"
	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status is the connection state of a Session.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Disconnecting
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Sender writes one frame's wire text to the transport.
type Sender interface {
	SendLine(text string) error
}

// MessageHandler receives MESSAGE payloads for subscribed channels.
type MessageHandler interface {
	HandleMessage(channel string, body []byte) error
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(channel string, body []byte) error

func (f MessageHandlerFunc) HandleMessage(channel string, body []byte) error {
	return f(channel, body)
}

// Subscription is one (channel, id) binding plus the receipt that confirms it.
type Subscription struct {
	Channel   string
	ID        int
	ReceiptID string
}

// Session is one login's protocol state. See the package doc for locking.
type Session struct {
	id      string
	cfg     Config
	out     Sender
	handler MessageHandler
	log     zerolog.Logger

	status Status
	ended  bool
	host   string
	user   string

	subs     *Registry
	receipts *Receipts

	loginDone     chan error
	loginSignaled bool
}

// New creates a Disconnected session writing through out. handler may be nil.
func New(out Sender, handler MessageHandler, cfg Config) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		cfg:       cfg.WithDefaults(),
		out:       out,
		handler:   handler,
		log:       logging.Component("session").With().Str("session_id", id).Logger(),
		subs:      NewRegistry(),
		receipts:  NewReceipts(),
		loginDone: make(chan error, 1),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Status() Status { return s.status }
func (s *Session) User() string   { return s.user }
func (s *Session) Host() string   { return s.host }
func (s *Session) Config() Config { return s.cfg }
func (s *Session) Ended() bool    { return s.ended }

// PendingReceipts lists outstanding receipts in issue order.
func (s *Session) PendingReceipts() []Pending {
	return s.receipts.List()
}

// Subscriptions lists subscribed channels in id order.
func (s *Session) Subscriptions() []string {
	return s.subs.Channels()
}

// SubscriptionID returns the id bound to channel.
func (s *Session) SubscriptionID(channel string) (int, bool) {
	return s.subs.IDFor(channel)
}

// Login sends CONNECT and moves to Connecting. The returned channel receives
// nil once CONNECTED is dispatched, or the reason the handshake failed.
func (s *Session) Login(host, login, passcode string) (<-chan error, error) {
	if s.ended {
		return nil, rejected("session already ended")
	}
	if s.status != Disconnected {
		return nil, rejected("login while %s", s.status)
	}
	f := frame.New(frame.Connect,
		frame.HdrAcceptVersion, frame.AcceptVersion,
		frame.HdrHost, host,
		frame.HdrLogin, login,
		frame.HdrPasscode, passcode,
	)
	if err := s.send(f); err != nil {
		return nil, err
	}
	s.host = host
	s.user = login
	s.status = Connecting
	s.log.Info().Str("host", host).Str("user", login).Msg("connect sent")
	return s.loginDone, nil
}

// Subscribe registers channel optimistically and sends SUBSCRIBE with a
// receipt. The registration is rolled back if the server answers that
// receipt with an ERROR.
func (s *Session) Subscribe(channel string) (Subscription, error) {
	if err := s.requireConnected("subscribe"); err != nil {
		return Subscription{}, err
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return Subscription{}, rejected("subscribe needs a channel name")
	}
	if id, ok := s.subs.IDFor(channel); ok {
		return Subscription{}, rejected("already subscribed to %q (id %d)", channel, id)
	}
	if err := frame.CheckValue(channel); err != nil {
		return Subscription{}, err
	}

	id := s.subs.NextID()
	receiptID := s.receipts.NewReceipt()
	f := frame.New(frame.Subscribe,
		frame.HdrDestination, channel,
		frame.HdrID, strconv.Itoa(id),
		frame.HdrReceipt, receiptID,
	)
	if err := s.send(f); err != nil {
		return Subscription{}, err
	}
	s.subs.Register(channel, id)
	s.receipts.Await(Pending{ID: receiptID, Kind: ReceiptSubscribe, Channel: channel, SubscriptionID: id})
	s.log.Debug().Str("channel", channel).Int("id", id).Str("receipt", receiptID).Msg("subscribed")
	return Subscription{Channel: channel, ID: id, ReceiptID: receiptID}, nil
}

// Unsubscribe sends UNSUBSCRIBE with a receipt and drops the registry entry
// immediately.
func (s *Session) Unsubscribe(channel string) (Subscription, error) {
	if err := s.requireConnected("unsubscribe"); err != nil {
		return Subscription{}, err
	}
	channel = strings.TrimSpace(channel)
	id, ok := s.subs.IDFor(channel)
	if !ok {
		return Subscription{}, rejected("not subscribed to %q", channel)
	}
	receiptID := s.receipts.NewReceipt()
	f := frame.New(frame.Unsubscribe,
		frame.HdrID, strconv.Itoa(id),
		frame.HdrReceipt, receiptID,
	)
	if err := s.send(f); err != nil {
		return Subscription{}, err
	}
	s.subs.Unregister(channel)
	s.receipts.Await(Pending{ID: receiptID, Kind: ReceiptUnsubscribe, Channel: channel, SubscriptionID: id})
	s.log.Debug().Str("channel", channel).Int("id", id).Str("receipt", receiptID).Msg("unsubscribed")
	return Subscription{Channel: channel, ID: id, ReceiptID: receiptID}, nil
}

// Send publishes body to channel. No subscription is required.
func (s *Session) Send(channel string, body []byte) error {
	if err := s.requireConnected("send"); err != nil {
		return err
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return rejected("send needs a destination")
	}
	return s.send(frame.New(frame.Send, frame.HdrDestination, channel).WithBody(body))
}

// Logout sends DISCONNECT with a receipt and moves to Disconnecting. The
// returned channel is released when the receipt arrives or the session is
// torn down; the caller bounds the wait with Config.DisconnectTimeout.
func (s *Session) Logout() (<-chan error, error) {
	if err := s.requireConnected("logout"); err != nil {
		return nil, err
	}
	receiptID := s.receipts.NewReceipt()
	if err := s.send(frame.New(frame.Disconnect, frame.HdrReceipt, receiptID)); err != nil {
		return nil, err
	}
	s.status = Disconnecting
	s.log.Info().Str("receipt", receiptID).Msg("disconnect sent")
	return s.receipts.Await(Pending{ID: receiptID, Kind: ReceiptDisconnect}), nil
}

// AwaitReceipt returns the waiter of an outstanding receipt.
func (s *Session) AwaitReceipt(id string) (<-chan error, bool) {
	return s.receipts.Waiter(id)
}

// Teardown ends the session: status Disconnected, registry and receipts
// cleared, every waiter released with cause. Safe to call more than once.
func (s *Session) Teardown(cause error) {
	if s.ended {
		return
	}
	if cause == nil {
		cause = protocol.ErrSessionTerminated
	}
	if s.status == Connected || s.status == Disconnecting {
		observability.SessionEnded(observability.RoleClient)
	}
	s.ended = true
	s.status = Disconnected
	s.subs.Clear()
	s.receipts.Abort(cause)
	s.signalLogin(cause)
	s.log.Info().Err(cause).Msg("session ended")
}

func (s *Session) requireConnected(op string) error {
	if s.status != Connected {
		return rejected("%s while %s", op, s.status)
	}
	return nil
}

func (s *Session) send(f frame.Frame) error {
	text, err := frame.Encode(f)
	if err != nil {
		return err
	}
	if err := s.out.SendLine(text); err != nil {
		return fmt.Errorf("%w: send %s: %v", protocol.ErrTransportFailure, f.Command, err)
	}
	observability.RecordFrameSent(observability.RoleClient, string(f.Command))
	s.log.Debug().Str("frame", f.Summary()).Msg("frame sent")
	return nil
}

func (s *Session) signalLogin(err error) {
	if s.loginSignaled {
		return
	}
	s.loginSignaled = true
	s.loginDone <- err
}

// abortHandshake tears the session down while Connecting.
func (s *Session) abortHandshake(cause error) error {
	s.Teardown(cause)
	return cause
}
