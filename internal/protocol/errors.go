package protocol

import "errors"

// Error classes shared by every layer. Concrete errors wrap exactly one of
// these so callers can classify with errors.Is.
var (
	ErrEncoding          = errors.New("protocol: encoding error")
	ErrParse             = errors.New("protocol: parse error")
	ErrProtocolAnomaly   = errors.New("protocol: anomaly")
	ErrOperationRejected = errors.New("protocol: operation rejected")
	ErrTransportFailure  = errors.New("protocol: transport failure")
	ErrTimeout           = errors.New("protocol: timeout")
	ErrSessionTerminated = errors.New("protocol: session terminated")
)

// IsTerminal reports whether err ends the session it was raised in.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrTransportFailure) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrSessionTerminated)
}
