package frame

import (
	"fmt"
	"strings"

	"github.com/danmuck/stompctl/internal/protocol"
)

// Terminator ends every frame on the wire.
const Terminator byte = 0x00

// AcceptVersion is the only protocol version this module speaks.
const AcceptVersion = "1.2"

// Command is the first line of a frame.
type Command string

const (
	Connect     Command = "CONNECT"
	Connected   Command = "CONNECTED"
	Send        Command = "SEND"
	Subscribe   Command = "SUBSCRIBE"
	Unsubscribe Command = "UNSUBSCRIBE"
	Disconnect  Command = "DISCONNECT"
	Message     Command = "MESSAGE"
	Receipt     Command = "RECEIPT"
	Error       Command = "ERROR"
)

// Well-known header keys.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrLogin         = "login"
	HdrPasscode      = "passcode"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrMessage       = "message"
	HdrContentType   = "content-type"
)

var knownCommands = map[Command]struct{}{
	Connect: {}, Connected: {}, Send: {}, Subscribe: {}, Unsubscribe: {},
	Disconnect: {}, Message: {}, Receipt: {}, Error: {},
}

// Known reports whether c is one of the recognized protocol commands.
func (c Command) Known() bool {
	_, ok := knownCommands[c]
	return ok
}

func (c Command) String() string {
	return string(c)
}

// Header is one key:value line.
type Header struct {
	Key   string
	Value string
}

// Headers keeps wire order. Keys may repeat; lookups return the first match.
type Headers []Header

// Get returns the first value for key.
func (h Headers) Get(key string) (string, bool) {
	for _, hdr := range h {
		if hdr.Key == key {
			return hdr.Value, true
		}
	}
	return "", false
}

// Value returns the first value for key or "".
func (h Headers) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// Frame is one protocol message unit. Treat it as an immutable value; With
// returns a copy instead of mutating the receiver.
type Frame struct {
	Command Command
	Headers Headers
	Body    []byte
}

// New builds a frame from alternating key, value pairs.
func New(cmd Command, kv ...string) Frame {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("frame: odd header list for %s", cmd))
	}
	headers := make(Headers, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		headers = append(headers, Header{Key: kv[i], Value: kv[i+1]})
	}
	return Frame{Command: cmd, Headers: headers}
}

// WithBody returns a copy of f carrying body.
func (f Frame) WithBody(body []byte) Frame {
	out := f.clone()
	out.Body = append([]byte(nil), body...)
	return out
}

// With returns a copy of f with one extra header appended.
func (f Frame) With(key, value string) Frame {
	out := f.clone()
	out.Headers = append(out.Headers, Header{Key: key, Value: value})
	return out
}

// Header returns the first value for key or "".
func (f Frame) Header(key string) string {
	return f.Headers.Value(key)
}

func (f Frame) clone() Frame {
	out := Frame{Command: f.Command}
	if f.Headers != nil {
		out.Headers = append(make(Headers, 0, len(f.Headers)+1), f.Headers...)
	}
	if f.Body != nil {
		out.Body = append([]byte(nil), f.Body...)
	}
	return out
}

// Summary is a compact single-line rendering for logs.
func (f Frame) Summary() string {
	var b strings.Builder
	b.WriteString(string(f.Command))
	for _, h := range f.Headers {
		if h.Key == HdrPasscode {
			b.WriteString(" passcode=***")
			continue
		}
		fmt.Fprintf(&b, " %s=%q", h.Key, h.Value)
	}
	if len(f.Body) > 0 {
		fmt.Fprintf(&b, " body=%dB", len(f.Body))
	}
	return b.String()
}

// Limits constrains frame decode memory use.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 1024 * 1024}
}

func encodingErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", protocol.ErrEncoding, fmt.Sprintf(format, args...))
}

func parseErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", protocol.ErrParse, fmt.Sprintf(format, args...))
}
