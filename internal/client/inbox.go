package client

import "sync"

// inbox queues frame texts between the transport pump and the reader task.
// It never blocks the pump, so the socket keeps draining while a command
// holds the client lock.
type inbox struct {
	mu     sync.Mutex
	frames []string
	err    error
	ready  chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

func (in *inbox) push(raws ...string) {
	if len(raws) == 0 {
		return
	}
	in.mu.Lock()
	in.frames = append(in.frames, raws...)
	in.mu.Unlock()
	in.signal()
}

// finish records the error that ended the stream. Frames already queued
// are still handed out first.
func (in *inbox) finish(err error) {
	in.mu.Lock()
	in.err = err
	in.mu.Unlock()
	in.signal()
}

// next blocks until frames are queued or the stream ended. err is set only
// once the queue is empty.
func (in *inbox) next() ([]string, error) {
	for {
		in.mu.Lock()
		if len(in.frames) > 0 {
			batch := in.frames
			in.frames = nil
			in.mu.Unlock()
			return batch, nil
		}
		if in.err != nil {
			err := in.err
			in.mu.Unlock()
			return nil, err
		}
		in.mu.Unlock()
		<-in.ready
	}
}

func (in *inbox) signal() {
	select {
	case in.ready <- struct{}{}:
	default:
	}
}
