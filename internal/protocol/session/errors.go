package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/stompctl/internal/protocol"
	"github.com/danmuck/stompctl/internal/protocol/frame"
)

var errReceiptReplaced = fmt.Errorf("%w: receipt id reissued", protocol.ErrProtocolAnomaly)

// ServerError is an ERROR frame reported by the server.
type ServerError struct {
	Message   string
	Detail    string
	ReceiptID string
}

func (e *ServerError) Error() string {
	var b strings.Builder
	b.WriteString("server error")
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.ReceiptID != "" {
		fmt.Fprintf(&b, " (receipt %s)", e.ReceiptID)
	}
	return b.String()
}

func serverErrorFrom(f frame.Frame) *ServerError {
	return &ServerError{
		Message:   f.Header(frame.HdrMessage),
		Detail:    strings.TrimSpace(string(f.Body)),
		ReceiptID: f.Header(frame.HdrReceiptID),
	}
}

// AsServerError unwraps err into a *ServerError when it holds one.
func AsServerError(err error) (*ServerError, bool) {
	var serr *ServerError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}

func anomaly(format string, args ...any) error {
	return fmt.Errorf("%w: %s", protocol.ErrProtocolAnomaly, fmt.Sprintf(format, args...))
}

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", protocol.ErrOperationRejected, fmt.Sprintf(format, args...))
}
