package session

import (
	"fmt"

	"github.com/danmuck/stompctl/internal/observability"
	"github.com/danmuck/stompctl/internal/protocol/frame"
)

// Dispatched describes what one inbound frame did to the session.
type Dispatched struct {
	Command frame.Command
	// Status is the session status after the frame was applied.
	Status Status
	// Receipt is the resolved receipt for RECEIPT frames and the rolled back
	// receipt for ERROR frames that name one.
	Receipt Pending
	// Channel is the MESSAGE destination handed to the MessageHandler.
	Channel string
}

// Dispatch applies one inbound frame. Errors are reports: a ProtocolAnomaly
// or *ServerError never tears the session down unless it arrives during the
// handshake.
func (s *Session) Dispatch(f frame.Frame) (Dispatched, error) {
	observability.RecordFrameReceived(observability.RoleClient, string(f.Command))
	s.log.Debug().Str("frame", f.Summary()).Msg("frame received")

	var (
		d   = Dispatched{Command: f.Command}
		err error
	)
	switch f.Command {
	case frame.Connected:
		err = s.onConnected(f)
	case frame.Error:
		err = s.onError(f, &d)
	case frame.Receipt:
		err = s.onReceipt(f, &d)
	case frame.Message:
		err = s.onMessage(f, &d)
	default:
		err = s.unexpected(anomaly("unexpected %s frame while %s", f.Command, s.status))
	}
	d.Status = s.status
	if err != nil {
		s.report(f, err)
	}
	return d, err
}

func (s *Session) onConnected(f frame.Frame) error {
	if s.status != Connecting {
		return anomaly("CONNECTED while %s", s.status)
	}
	if v := f.Header(frame.HdrVersion); v != "" && v != frame.AcceptVersion {
		return s.abortHandshake(anomaly("server negotiated version %q, want %s", v, frame.AcceptVersion))
	}
	s.status = Connected
	s.signalLogin(nil)
	observability.SessionStarted(observability.RoleClient)
	s.log.Info().Str("user", s.user).Msg("connected")
	return nil
}

func (s *Session) onError(f frame.Frame, d *Dispatched) error {
	serr := serverErrorFrom(f)
	if s.status == Connecting {
		return s.abortHandshake(serr)
	}
	if serr.ReceiptID == "" {
		return serr
	}
	p, ok := s.receipts.Fail(serr.ReceiptID, serr)
	if !ok {
		return serr
	}
	d.Receipt = p
	if p.Kind == ReceiptSubscribe {
		if id, bound := s.subs.IDFor(p.Channel); bound && id == p.SubscriptionID {
			s.subs.Unregister(p.Channel)
			s.log.Warn().Str("channel", p.Channel).Int("id", id).Msg("subscription rolled back")
		}
	}
	return serr
}

func (s *Session) onReceipt(f frame.Frame, d *Dispatched) error {
	if s.status == Connecting {
		return s.abortHandshake(anomaly("RECEIPT during handshake"))
	}
	id, ok := f.Headers.Get(frame.HdrReceiptID)
	if !ok || id == "" {
		return anomaly("RECEIPT without %s", frame.HdrReceiptID)
	}
	p, ok := s.receipts.Resolve(id)
	if !ok {
		return anomaly("unmatched receipt %q", id)
	}
	d.Receipt = p
	if p.Kind == ReceiptDisconnect {
		s.Teardown(nil)
	}
	return nil
}

func (s *Session) onMessage(f frame.Frame, d *Dispatched) error {
	if s.status == Connecting {
		return s.abortHandshake(anomaly("MESSAGE during handshake"))
	}
	channel := f.Header(frame.HdrDestination)
	if channel == "" {
		return anomaly("MESSAGE without %s", frame.HdrDestination)
	}
	if _, ok := s.subs.IDFor(channel); !ok {
		return anomaly("MESSAGE for unknown destination %q", channel)
	}
	d.Channel = channel
	if s.handler == nil {
		return nil
	}
	if err := s.handler.HandleMessage(channel, f.Body); err != nil {
		return fmt.Errorf("session: message on %q: %w", channel, err)
	}
	return nil
}

func (s *Session) unexpected(err error) error {
	if s.status == Connecting {
		return s.abortHandshake(err)
	}
	return err
}

func (s *Session) report(f frame.Frame, err error) {
	kind := "anomaly"
	if _, ok := AsServerError(err); ok {
		kind = "server_error"
	}
	observability.RecordAnomaly(observability.RoleClient, kind)
	s.log.Warn().Err(err).Str("command", string(f.Command)).Str("status", s.status.String()).Msg("dispatch reported")
}
