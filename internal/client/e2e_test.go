package client

import (
	"context"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/stompctl/internal/broker"
	"github.com/danmuck/stompctl/internal/protocol/session"
	"github.com/danmuck/stompctl/internal/testutil/testlog"
	"github.com/danmuck/stompctl/internal/transport"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const eventsJSON = `{
  "channel_name": "police",
  "events": [
    {
      "event_name": "Burglary",
      "city": "Springfield",
      "date_time": 1700000200,
      "description": "Window smashed at the hardware store on Main",
      "general_information": {"active": true, "forces_arrival_at_scene": true}
    },
    {
      "event_name": "Accident",
      "city": "Springfield",
      "date_time": 1700000100,
      "description": "Minor collision",
      "general_information": {"active": false, "forces_arrival_at_scene": true}
    }
  ]
}`

func runBrokerTCP(t *testing.T) string {
	t.Helper()
	svc := broker.NewService(broker.Config{PasscodeCost: bcrypt.MinCost})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func exerciseBroker(t *testing.T, addr string, dialer transport.Dialer) {
	t.Helper()
	ctx := context.Background()
	out := &syncBuffer{}
	c := newTestClient(t, dialer, out, session.Config{})

	if err := c.Login(ctx, addr, "alice", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := c.JoinAndWait(ctx, "police"); err != nil {
		t.Fatalf("join: %v", err)
	}

	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.json")
	if err := os.WriteFile(eventsPath, []byte(eventsJSON), 0o644); err != nil {
		t.Fatalf("write events: %v", err)
	}
	n, err := c.Report(eventsPath)
	if err != nil || n != 2 {
		t.Fatalf("report: n=%d err=%v", n, err)
	}
	waitFor(t, "echoed events", func() bool {
		sum, err := c.Summarize("police", "alice")
		return err == nil && sum.Total == 2
	})

	summaryPath := filepath.Join(dir, "summary.txt")
	if err := c.Summary("police", "alice", summaryPath); err != nil {
		t.Fatalf("summary: %v", err)
	}
	raw, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	text := string(raw)
	for _, want := range []string{
		"Channel police\n",
		"Total: 2\n",
		"active: 1\n",
		"forces arrival at scene: 2\n",
		"Report_1:\n  city: Springfield\n",
		"  event name: Accident\n",
		"  summary: Window smashed at the hardw...\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "Accident") > strings.Index(text, "Burglary") {
		t.Fatalf("reports out of order:\n%s", text)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// The broker keeps registered users across logins.
	if err := c.Login(ctx, addr, "alice", "wrong"); err == nil {
		t.Fatalf("expected wrong password rejection")
	}
	if err := c.Login(ctx, addr, "alice", "pw"); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestEndToEndTCP(t *testing.T) {
	testlog.Start(t)
	addr := runBrokerTCP(t)
	dialer, err := transport.NewDialer(transport.Config{Kind: transport.KindTCP})
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	exerciseBroker(t, addr, dialer)
}

func TestEndToEndWebSocket(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	svc := broker.NewService(broker.Config{PasscodeCost: bcrypt.MinCost})
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	dialer, err := transport.NewDialer(transport.Config{Kind: transport.KindWebSocket, DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	exerciseBroker(t, strings.TrimPrefix(srv.URL, "http://"), dialer)
}

func TestServerDropEndsLogin(t *testing.T) {
	testlog.Start(t)
	addr := runBrokerTCP(t)
	dialer, err := transport.NewDialer(transport.Config{})
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	out := &syncBuffer{}
	c := newTestClient(t, dialer, out, session.Config{})
	if err := c.Login(context.Background(), addr, "dave", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	// A SEND without a body is a request error; the broker answers ERROR and
	// closes the connection.
	if err := c.Send("police", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "connection loss", func() bool { return !c.LoggedIn() })
	waitFor(t, "feedback", func() bool {
		return strings.Contains(out.String(), "Error from server: Missing message body") &&
			strings.Contains(out.String(), "Connection to server lost")
	})
}

func TestLargeReportWithEchoOverTCP(t *testing.T) {
	testlog.Start(t)
	addr := runBrokerTCP(t)
	dialer, err := transport.NewDialer(transport.Config{Kind: transport.KindTCP})
	if err != nil {
		t.Fatalf("dialer: %v", err)
	}
	c := newTestClient(t, dialer, nil, session.Config{})
	ctx := context.Background()
	if err := c.Login(ctx, addr, "erin", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := c.JoinAndWait(ctx, "police"); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Enough echoed bytes to overflow both loopback socket buffers.
	const total = 1500
	path := writeEventsFile(t, "police", total, 8<<10)
	n, err := c.Report(path)
	if err != nil || n != total {
		t.Fatalf("report: n=%d err=%v status=%s", n, err, c.Status())
	}
	waitForWithin(t, "echoed events", 20*time.Second, func() bool {
		sum, err := c.Summarize("police", "erin")
		return err == nil && sum.Total == total
	})
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
}
