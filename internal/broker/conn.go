package broker

import (
	"errors"
	"strings"

	"github.com/danmuck/stompctl/internal/auth"
	"github.com/danmuck/stompctl/internal/observability"
	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// peer is one client connection.
type peer struct {
	id     string
	ch     transport.LineChannel
	remote string
	log    zerolog.Logger

	// Guarded by Hub.mu.
	user string
	subs map[string]string

	// Owned by the connection goroutine.
	connected bool
}

// requestError is answered with an ERROR frame before the connection is
// closed.
type requestError struct {
	message string
	detail  string
}

func (e *requestError) Error() string {
	if e.detail == "" {
		return e.message
	}
	return e.message + ": " + e.detail
}

func reject(message, detail string) *requestError {
	return &requestError{message: message, detail: detail}
}

var wireMessages = map[error]string{
	auth.ErrUnauthorized:  "Wrong password",
	auth.ErrLoginRequired: "Missing 'login' header",
	errAlreadyLoggedIn:    "User already logged in",
	errSubscriptionID:     "Subscription id already in use",
	errUnknownSub:         "Unknown subscription",
}

func rejectHub(err error, detail string) *requestError {
	for sentinel, msg := range wireMessages {
		if errors.Is(err, sentinel) {
			return reject(msg, detail)
		}
	}
	return reject(err.Error(), detail)
}

// serveConn runs one connection until it disconnects, fails a request, or
// the transport ends.
func (s *Service) serveConn(ch transport.LineChannel, remote string) {
	p := &peer{
		id:     uuid.NewString(),
		ch:     ch,
		remote: remote,
		subs:   make(map[string]string),
	}
	p.log = s.log.With().Str("conn_id", p.id).Str("remote", remote).Logger()
	s.track(p)
	defer s.untrack(p)
	defer ch.Close()
	defer s.drop(p)

	p.log.Debug().Msg("client connected")
	splitter := frame.NewSplitter(s.cfg.Limits)
	for {
		chunk, err := ch.ReceiveLine()
		if err != nil {
			p.log.Debug().Err(err).Msg("client stream ended")
			return
		}
		raws, ferr := splitter.Feed(chunk)
		for _, raw := range raws {
			if !s.handleRaw(p, raw) {
				return
			}
		}
		if ferr != nil {
			s.fail(p, "", reject("Frame too large", ferr.Error()))
			return
		}
	}
}

func (s *Service) drop(p *peer) {
	s.hub.Drop(p)
	if p.connected {
		p.connected = false
		observability.SessionEnded(observability.RoleBroker)
		p.log.Info().Msg("client logged out")
	}
}

// handleRaw reports whether the connection stays open.
func (s *Service) handleRaw(p *peer, raw string) bool {
	f, err := frame.Decode(raw)
	if err != nil {
		s.fail(p, "", reject("malformed frame received", err.Error()))
		return false
	}
	observability.RecordFrameReceived(observability.RoleBroker, string(f.Command))
	p.log.Debug().Str("frame", f.Summary()).Msg("frame received")

	receipt := f.Header(frame.HdrReceipt)
	if rerr := s.handle(p, f); rerr != nil {
		s.fail(p, receipt, rerr)
		return false
	}
	if receipt != "" {
		if err := s.send(p, frame.New(frame.Receipt, frame.HdrReceiptID, receipt)); err != nil {
			return false
		}
	}
	return f.Command != frame.Disconnect
}

func (s *Service) handle(p *peer, f frame.Frame) *requestError {
	if !p.connected && f.Command != frame.Connect {
		return reject("Not connected", string(f.Command)+" before CONNECT")
	}
	switch f.Command {
	case frame.Connect:
		return s.onConnect(p, f)
	case frame.Subscribe:
		destination := f.Header(frame.HdrDestination)
		id := f.Header(frame.HdrID)
		if destination == "" {
			return reject("Missing 'destination' header", "SUBSCRIBE frame must include a 'destination' header.")
		}
		if id == "" {
			return reject("Missing 'id' header", "SUBSCRIBE frame must include an 'id' header.")
		}
		if err := s.hub.Subscribe(p, destination, id); err != nil {
			return rejectHub(err, "id "+id)
		}
		p.log.Debug().Str("destination", destination).Str("id", id).Msg("subscribed")
	case frame.Unsubscribe:
		id := f.Header(frame.HdrID)
		if id == "" {
			return reject("Missing 'id' header", "UNSUBSCRIBE frame must include an 'id' header.")
		}
		if _, err := s.hub.Unsubscribe(p, id); err != nil {
			return rejectHub(err, "id "+id)
		}
	case frame.Send:
		destination := f.Header(frame.HdrDestination)
		if destination == "" {
			return reject("Missing 'destination' header", "SEND frame must include a 'destination' header.")
		}
		if len(f.Body) == 0 {
			return reject("Missing message body", "SEND frame must include a non-empty body.")
		}
		s.publish(destination, f.Body)
	case frame.Disconnect:
		s.drop(p)
	default:
		return reject("Unknown command", "The command '"+string(f.Command)+"' isn't legal.")
	}
	return nil
}

func (s *Service) onConnect(p *peer, f frame.Frame) *requestError {
	if p.connected {
		return reject("Already connected", "CONNECT sent twice")
	}
	versions, ok := f.Headers.Get(frame.HdrAcceptVersion)
	if !ok {
		return reject("Missing 'accept-version' header", "CONNECT frame must include an 'accept-version' header")
	}
	if !acceptsVersion(versions) {
		return reject("Unsupported protocol version", "supported version is "+frame.AcceptVersion)
	}
	login := f.Header(frame.HdrLogin)
	if login == "" {
		return reject("Missing 'login' header", "CONNECT frame must include a 'login' header")
	}
	if err := s.hub.Connect(p, login, f.Header(frame.HdrPasscode)); err != nil {
		return rejectHub(err, "login "+login)
	}
	p.connected = true
	observability.SessionStarted(observability.RoleBroker)
	p.log = p.log.With().Str("user", login).Logger()
	p.log.Info().Msg("client logged in")
	if err := s.send(p, frame.New(frame.Connected, frame.HdrVersion, frame.AcceptVersion)); err != nil {
		return reject("Write failed", err.Error())
	}
	return nil
}

func acceptsVersion(list string) bool {
	for _, v := range strings.Split(list, ",") {
		if strings.TrimSpace(v) == frame.AcceptVersion {
			return true
		}
	}
	return false
}

// publish fans body out to every subscriber of destination.
func (s *Service) publish(destination string, body []byte) {
	for _, d := range s.hub.Subscribers(destination) {
		msg := frame.New(frame.Message,
			frame.HdrSubscription, d.subscriptionID,
			frame.HdrMessageID, uuid.NewString(),
			frame.HdrDestination, destination,
		).WithBody(body)
		if err := s.send(d.peer, msg); err != nil {
			d.peer.log.Warn().Err(err).Str("destination", destination).Msg("message delivery failed")
		}
	}
}

func (s *Service) send(p *peer, f frame.Frame) error {
	text, err := frame.Encode(f)
	if err != nil {
		return err
	}
	if err := p.ch.SendLine(text); err != nil {
		return err
	}
	observability.RecordFrameSent(observability.RoleBroker, string(f.Command))
	return nil
}

// fail answers with ERROR. The caller closes the connection afterwards.
func (s *Service) fail(p *peer, receipt string, rerr *requestError) {
	observability.RecordAnomaly(observability.RoleBroker, "request_error")
	p.log.Warn().Str("message", rerr.message).Str("detail", rerr.detail).Msg("request rejected")
	f := frame.New(frame.Error, frame.HdrMessage, rerr.message)
	if receipt != "" {
		f = f.With(frame.HdrReceiptID, receipt)
	}
	if rerr.detail != "" {
		f = f.WithBody([]byte(rerr.detail))
	}
	_ = s.send(p, f)
}
