package transport

import (
	"io"
	"sync"
)

// Pipe returns two connected in-memory channels. Lines sent on one are
// received on the other in order. Closing either end ends both directions.
func Pipe() (LineChannel, LineChannel) {
	shared := &pipeState{done: make(chan struct{})}
	ab := make(chan string, 64)
	ba := make(chan string, 64)
	return &pipeEnd{state: shared, out: ab, in: ba}, &pipeEnd{state: shared, out: ba, in: ab}
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

type pipeEnd struct {
	state *pipeState
	out   chan<- string
	in    <-chan string
}

func (p *pipeEnd) SendLine(text string) error {
	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- text:
		return nil
	case <-p.state.done:
		return ErrClosed
	}
}

// ReceiveLine drains lines already queued before reporting io.EOF.
func (p *pipeEnd) ReceiveLine() (string, error) {
	select {
	case line := <-p.in:
		return line, nil
	default:
	}
	select {
	case line := <-p.in:
		return line, nil
	case <-p.state.done:
		select {
		case line := <-p.in:
			return line, nil
		default:
			return "", io.EOF
		}
	}
}

func (p *pipeEnd) Close() error {
	p.state.once.Do(func() { close(p.state.done) })
	return nil
}
