package session

import (
	"errors"
	"testing"

	"github.com/danmuck/stompctl/internal/protocol"
	"github.com/danmuck/stompctl/internal/protocol/frame"
	"github.com/danmuck/stompctl/internal/testutil/testlog"
)

type recordingSender struct {
	lines []string
	fail  error
}

func (r *recordingSender) SendLine(text string) error {
	if r.fail != nil {
		return r.fail
	}
	r.lines = append(r.lines, text)
	return nil
}

func (r *recordingSender) last(t *testing.T) frame.Frame {
	t.Helper()
	if len(r.lines) == 0 {
		t.Fatalf("no frame sent")
	}
	f, err := frame.Decode(r.lines[len(r.lines)-1])
	if err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	return f
}

type message struct {
	channel string
	body    string
}

func mustDecode(t *testing.T, wire string) frame.Frame {
	t.Helper()
	f, err := frame.Decode(wire)
	if err != nil {
		t.Fatalf("decode %q: %v", wire, err)
	}
	return f
}

func newConnectedSession(t *testing.T) (*Session, *recordingSender, *[]message) {
	t.Helper()
	out := &recordingSender{}
	var got []message
	s := New(out, MessageHandlerFunc(func(channel string, body []byte) error {
		got = append(got, message{channel: channel, body: string(body)})
		return nil
	}), DefaultConfig())
	if _, err := s.Login("example.com", "alice", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := s.Dispatch(mustDecode(t, "CONNECTED\nversion:1.2\n\n\x00")); err != nil {
		t.Fatalf("dispatch CONNECTED: %v", err)
	}
	return s, out, &got
}

func TestLoginScenario(t *testing.T) {
	testlog.Start(t)
	out := &recordingSender{}
	s := New(out, nil, DefaultConfig())

	done, err := s.Login("example.com", "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	want := "CONNECT\naccept-version:1.2\nhost:example.com\nlogin:alice\npasscode:secret\n\n\x00"
	if len(out.lines) != 1 || out.lines[0] != want {
		t.Fatalf("unexpected CONNECT wire: %q", out.lines)
	}
	if s.Status() != Connecting {
		t.Fatalf("status=%s want=connecting", s.Status())
	}

	d, err := s.Dispatch(mustDecode(t, "CONNECTED\nversion:1.2\n\n\x00"))
	if err != nil {
		t.Fatalf("dispatch CONNECTED: %v", err)
	}
	if d.Status != Connected || s.Status() != Connected {
		t.Fatalf("status=%s want=connected", s.Status())
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("login waiter: %v", err)
		}
	default:
		t.Fatalf("login waiter not released")
	}
	if s.User() != "alice" {
		t.Fatalf("user=%q", s.User())
	}
}

func TestConnectedOutsideHandshakeIsAnomaly(t *testing.T) {
	testlog.Start(t)
	s := New(&recordingSender{}, nil, DefaultConfig())
	if _, err := s.Dispatch(mustDecode(t, "CONNECTED\n\n\x00")); !errors.Is(err, protocol.ErrProtocolAnomaly) {
		t.Fatalf("expected anomaly, got %v", err)
	}
	if s.Status() != Disconnected {
		t.Fatalf("status changed to %s", s.Status())
	}

	connected, _, _ := newConnectedSession(t)
	if _, err := connected.Dispatch(mustDecode(t, "CONNECTED\n\n\x00")); !errors.Is(err, protocol.ErrProtocolAnomaly) {
		t.Fatalf("expected anomaly, got %v", err)
	}
	if connected.Status() != Connected {
		t.Fatalf("status changed to %s", connected.Status())
	}
}

func TestLoginRejectedByServer(t *testing.T) {
	testlog.Start(t)
	s := New(&recordingSender{}, nil, DefaultConfig())
	done, err := s.Login("example.com", "alice", "wrong")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, err = s.Dispatch(mustDecode(t, "ERROR\nmessage:Wrong password\n\n\x00"))
	serr, ok := AsServerError(err)
	if !ok || serr.Message != "Wrong password" {
		t.Fatalf("expected server error, got %v", err)
	}
	if s.Status() != Disconnected || !s.Ended() {
		t.Fatalf("status=%s ended=%v", s.Status(), s.Ended())
	}
	if err := <-done; err == nil {
		t.Fatalf("login waiter should carry the rejection")
	}
}

func TestHandshakeAnomalyAbortsLogin(t *testing.T) {
	testlog.Start(t)
	s := New(&recordingSender{}, nil, DefaultConfig())
	done, err := s.Login("example.com", "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := s.Dispatch(mustDecode(t, "RECEIPT\nreceipt-id:1\n\n\x00")); !errors.Is(err, protocol.ErrProtocolAnomaly) {
		t.Fatalf("expected anomaly, got %v", err)
	}
	if s.Status() != Disconnected {
		t.Fatalf("status=%s", s.Status())
	}
	if err := <-done; !errors.Is(err, protocol.ErrProtocolAnomaly) {
		t.Fatalf("login waiter=%v", err)
	}
}

func TestSubscribeUnsubscribeScenario(t *testing.T) {
	testlog.Start(t)
	s, out, _ := newConnectedSession(t)

	alerts, err := s.Subscribe("alerts")
	if err != nil {
		t.Fatalf("subscribe alerts: %v", err)
	}
	f := out.last(t)
	if f.Command != frame.Subscribe || f.Header(frame.HdrDestination) != "alerts" || f.Header(frame.HdrID) != "1" || f.Header(frame.HdrReceipt) == "" {
		t.Fatalf("unexpected SUBSCRIBE: %s", f.Summary())
	}
	news, err := s.Subscribe("news")
	if err != nil {
		t.Fatalf("subscribe news: %v", err)
	}
	if alerts.ID != 1 || news.ID != 2 {
		t.Fatalf("ids alerts=%d news=%d", alerts.ID, news.ID)
	}
	if alerts.ReceiptID == news.ReceiptID {
		t.Fatalf("receipt ids must differ")
	}

	if _, err := s.Unsubscribe("alerts"); err != nil {
		t.Fatalf("unsubscribe alerts: %v", err)
	}
	f = out.last(t)
	if f.Command != frame.Unsubscribe || f.Header(frame.HdrID) != "1" || f.Header(frame.HdrReceipt) == "" {
		t.Fatalf("unexpected UNSUBSCRIBE: %s", f.Summary())
	}
	if _, ok := s.SubscriptionID("alerts"); ok {
		t.Fatalf("alerts should be gone")
	}
	if id, ok := s.SubscriptionID("news"); !ok || id != 2 {
		t.Fatalf("news id=%d ok=%v", id, ok)
	}

	again, err := s.Subscribe("alerts")
	if err != nil {
		t.Fatalf("resubscribe alerts: %v", err)
	}
	if again.ID != 3 {
		t.Fatalf("ids must not be reused, got %d", again.ID)
	}
}

func TestDoubleSubscribeRejected(t *testing.T) {
	testlog.Start(t)
	s, out, _ := newConnectedSession(t)
	if _, err := s.Subscribe("police"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sent := len(out.lines)
	if _, err := s.Subscribe("police"); !errors.Is(err, protocol.ErrOperationRejected) {
		t.Fatalf("expected ErrOperationRejected, got %v", err)
	}
	if len(out.lines) != sent {
		t.Fatalf("rejected subscribe must not send a frame")
	}
	if got := s.Subscriptions(); len(got) != 1 || got[0] != "police" {
		t.Fatalf("registry changed: %v", got)
	}
	if _, err := s.Unsubscribe("fire"); !errors.Is(err, protocol.ErrOperationRejected) {
		t.Fatalf("expected ErrOperationRejected, got %v", err)
	}
}

func TestOperationsRequireConnected(t *testing.T) {
	testlog.Start(t)
	s := New(&recordingSender{}, nil, DefaultConfig())
	if _, err := s.Subscribe("police"); !errors.Is(err, protocol.ErrOperationRejected) {
		t.Fatalf("subscribe: %v", err)
	}
	if err := s.Send("police", []byte("x")); !errors.Is(err, protocol.ErrOperationRejected) {
		t.Fatalf("send: %v", err)
	}
	if _, err := s.Logout(); !errors.Is(err, protocol.ErrOperationRejected) {
		t.Fatalf("logout: %v", err)
	}

	connected, _, _ := newConnectedSession(t)
	if _, err := connected.Login("example.com", "alice", "secret"); !errors.Is(err, protocol.ErrOperationRejected) {
		t.Fatalf("second login: %v", err)
	}
}

func TestSendWithoutSubscription(t *testing.T) {
	testlog.Start(t)
	s, out, _ := newConnectedSession(t)
	if err := s.Send("fire", []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}
	f := out.last(t)
	if f.Command != frame.Send || f.Header(frame.HdrDestination) != "fire" || string(f.Body) != "hello" {
		t.Fatalf("unexpected SEND: %s", f.Summary())
	}
}

func TestUnencodableChannelLeavesStateUnchanged(t *testing.T) {
	testlog.Start(t)
	s, out, _ := newConnectedSession(t)
	sent := len(out.lines)
	if _, err := s.Subscribe("bad\tname"); !errors.Is(err, protocol.ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
	if len(out.lines) != sent || len(s.Subscriptions()) != 0 {
		t.Fatalf("state changed after encoding error")
	}
	sub, err := s.Subscribe("good")
	if err != nil || sub.ID != 1 {
		t.Fatalf("expected id 1 after rejected encode, got %+v %v", sub, err)
	}
}

func TestTransportFailureOnSubscribe(t *testing.T) {
	testlog.Start(t)
	s, out, _ := newConnectedSession(t)
	out.fail = errors.New("broken pipe")
	if _, err := s.Subscribe("police"); !errors.Is(err, protocol.ErrTransportFailure) {
		t.Fatalf("expected ErrTransportFailure, got %v", err)
	}
	if len(s.Subscriptions()) != 0 || len(s.PendingReceipts()) != 0 {
		t.Fatalf("failed send must not register: subs=%v receipts=%v", s.Subscriptions(), s.PendingReceipts())
	}
}

func TestReceiptCorrelation(t *testing.T) {
	testlog.Start(t)
	s, _, _ := newConnectedSession(t)
	sub, err := s.Subscribe("police")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	wait, ok := s.AwaitReceipt(sub.ReceiptID)
	if !ok {
		t.Fatalf("receipt %s not outstanding", sub.ReceiptID)
	}

	if _, err := s.Dispatch(mustDecode(t, "RECEIPT\nreceipt-id:999\n\n\x00")); !errors.Is(err, protocol.ErrProtocolAnomaly) {
		t.Fatalf("expected anomaly for unknown receipt, got %v", err)
	}
	if len(s.PendingReceipts()) != 1 || s.Status() != Connected {
		t.Fatalf("unknown receipt resolved something: %+v", s.PendingReceipts())
	}

	d, err := s.Dispatch(mustDecode(t, "RECEIPT\nreceipt-id:"+sub.ReceiptID+"\n\n\x00"))
	if err != nil {
		t.Fatalf("dispatch receipt: %v", err)
	}
	if d.Receipt.Kind != ReceiptSubscribe || d.Receipt.Channel != "police" {
		t.Fatalf("unexpected resolved receipt: %+v", d.Receipt)
	}
	if err := <-wait; err != nil {
		t.Fatalf("waiter: %v", err)
	}

	if _, err := s.Dispatch(mustDecode(t, "RECEIPT\nreceipt-id:"+sub.ReceiptID+"\n\n\x00")); !errors.Is(err, protocol.ErrProtocolAnomaly) {
		t.Fatalf("duplicate receipt should be an anomaly, got %v", err)
	}
}

func TestErrorRollsBackSubscription(t *testing.T) {
	testlog.Start(t)
	s, _, _ := newConnectedSession(t)
	sub, err := s.Subscribe("restricted")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	d, err := s.Dispatch(mustDecode(t, "ERROR\nmessage:not allowed\nreceipt-id:"+sub.ReceiptID+"\n\ndetails\x00"))
	serr, ok := AsServerError(err)
	if !ok || serr.Detail != "details" {
		t.Fatalf("expected server error, got %v", err)
	}
	if d.Receipt.Channel != "restricted" {
		t.Fatalf("rolled back receipt not reported: %+v", d.Receipt)
	}
	if _, ok := s.SubscriptionID("restricted"); ok {
		t.Fatalf("subscription should be rolled back")
	}
	if s.Status() != Connected {
		t.Fatalf("non-fatal ERROR must not end the session, status=%s", s.Status())
	}
}

func TestUncorrelatedErrorKeepsSession(t *testing.T) {
	testlog.Start(t)
	s, _, _ := newConnectedSession(t)
	if _, err := s.Subscribe("police"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := s.Dispatch(mustDecode(t, "ERROR\nmessage:something odd\n\n\x00")); err == nil {
		t.Fatalf("ERROR should be reported")
	}
	if s.Status() != Connected || len(s.Subscriptions()) != 1 {
		t.Fatalf("session changed: status=%s subs=%v", s.Status(), s.Subscriptions())
	}
}

func TestMessageDispatch(t *testing.T) {
	testlog.Start(t)
	s, _, got := newConnectedSession(t)
	if _, err := s.Subscribe("police"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	d, err := s.Dispatch(mustDecode(t, "MESSAGE\ndestination:police\nsubscription:1\nmessage-id:m1\n\nuser:bob\n\x00"))
	if err != nil {
		t.Fatalf("dispatch message: %v", err)
	}
	if d.Channel != "police" || len(*got) != 1 || (*got)[0].body != "user:bob\n" {
		t.Fatalf("handler saw %+v", *got)
	}

	if _, err := s.Dispatch(mustDecode(t, "MESSAGE\ndestination:fire\n\nx\x00")); !errors.Is(err, protocol.ErrProtocolAnomaly) {
		t.Fatalf("expected anomaly for unknown destination, got %v", err)
	}
	if len(*got) != 1 {
		t.Fatalf("unknown destination reached the handler")
	}
	if _, err := s.Dispatch(mustDecode(t, "BEGIN\ntransaction:t\n\n\x00")); !errors.Is(err, protocol.ErrProtocolAnomaly) {
		t.Fatalf("expected anomaly for unknown command, got %v", err)
	}
	if s.Status() != Connected {
		t.Fatalf("status=%s", s.Status())
	}
}

func TestHandlerErrorIsReported(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("bad body")
	s := New(&recordingSender{}, MessageHandlerFunc(func(string, []byte) error { return boom }), DefaultConfig())
	if _, err := s.Login("h", "u", "p"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := s.Dispatch(mustDecode(t, "CONNECTED\n\n\x00")); err != nil {
		t.Fatalf("connected: %v", err)
	}
	if _, err := s.Subscribe("police"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := s.Dispatch(mustDecode(t, "MESSAGE\ndestination:police\n\nx\x00")); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if s.Status() != Connected {
		t.Fatalf("status=%s", s.Status())
	}
}

func TestLogoutLifecycle(t *testing.T) {
	testlog.Start(t)
	s, out, _ := newConnectedSession(t)
	sub, err := s.Subscribe("police")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	subWait, _ := s.AwaitReceipt(sub.ReceiptID)

	done, err := s.Logout()
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	f := out.last(t)
	if f.Command != frame.Disconnect || f.Header(frame.HdrReceipt) == "" {
		t.Fatalf("unexpected DISCONNECT: %s", f.Summary())
	}
	if s.Status() != Disconnecting {
		t.Fatalf("status=%s want=disconnecting", s.Status())
	}

	d, err := s.Dispatch(mustDecode(t, "RECEIPT\nreceipt-id:"+f.Header(frame.HdrReceipt)+"\n\n\x00"))
	if err != nil {
		t.Fatalf("dispatch receipt: %v", err)
	}
	if d.Receipt.Kind != ReceiptDisconnect || d.Status != Disconnected {
		t.Fatalf("unexpected dispatch: %+v", d)
	}
	if err := <-done; err != nil {
		t.Fatalf("logout waiter: %v", err)
	}
	if err := <-subWait; !errors.Is(err, protocol.ErrSessionTerminated) {
		t.Fatalf("pending subscribe receipt should be released with termination, got %v", err)
	}
	if len(s.Subscriptions()) != 0 || len(s.PendingReceipts()) != 0 {
		t.Fatalf("teardown left state: subs=%v receipts=%v", s.Subscriptions(), s.PendingReceipts())
	}
}

func TestTeardownReleasesWaiters(t *testing.T) {
	testlog.Start(t)
	out := &recordingSender{}
	s := New(out, nil, DefaultConfig())
	done, err := s.Login("example.com", "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	cause := errors.New("eof")
	s.Teardown(cause)
	s.Teardown(errors.New("second call ignored"))
	if err := <-done; !errors.Is(err, cause) {
		t.Fatalf("login waiter=%v want %v", err, cause)
	}
	if _, err := s.Login("example.com", "alice", "secret"); !errors.Is(err, protocol.ErrOperationRejected) {
		t.Fatalf("ended session must not log in again, got %v", err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	testlog.Start(t)
	a, _, _ := newConnectedSession(t)
	b, _, _ := newConnectedSession(t)
	if _, err := a.Subscribe("x"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub, err := b.Subscribe("y")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.ID != 1 || sub.ReceiptID != "1" {
		t.Fatalf("counters leaked across sessions: %+v", sub)
	}
	if a.ID() == b.ID() {
		t.Fatalf("session ids must differ")
	}
}
