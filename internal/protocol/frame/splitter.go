package frame

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var (
	ErrFrameTooLarge = errors.New("frame: frame exceeds size limit")
	ErrTruncated     = errors.New("frame: stream ended inside a frame")
)

// Splitter accumulates transport chunks and yields whole frame texts, each
// ending in the terminator. Heart-beat EOLs between frames are dropped.
type Splitter struct {
	limits Limits
	buf    strings.Builder
}

func NewSplitter(limits Limits) *Splitter {
	return &Splitter{limits: limits}
}

// Feed appends chunk and returns every frame it completed. Frames over the
// limit, complete or not, are dropped and reported as ErrFrameTooLarge;
// the frames around them are still returned.
func (s *Splitter) Feed(chunk string) ([]string, error) {
	var (
		out []string
		err error
	)
	for chunk != "" {
		idx := strings.IndexByte(chunk, Terminator)
		if idx < 0 {
			s.write(chunk)
			break
		}
		s.write(chunk[:idx+1])
		chunk = chunk[idx+1:]
		raw := s.buf.String()
		s.buf.Reset()
		if s.tooLarge(len(raw)) {
			err = ErrFrameTooLarge
			continue
		}
		out = append(out, raw)
	}
	if s.tooLarge(s.buf.Len()) {
		s.buf.Reset()
		err = ErrFrameTooLarge
	}
	return out, err
}

func (s *Splitter) tooLarge(n int) bool {
	return s.limits.MaxFrameBytes > 0 && n > s.limits.MaxFrameBytes
}

// Pending reports how many bytes of an incomplete frame are buffered.
func (s *Splitter) Pending() int {
	return s.buf.Len()
}

func (s *Splitter) write(chunk string) {
	if s.buf.Len() == 0 {
		chunk = strings.TrimLeft(chunk, "\r\n")
	}
	s.buf.WriteString(chunk)
}

// ReadRaw reads one frame's text, terminator included, from r.
func ReadRaw(r *bufio.Reader, limits Limits) (string, error) {
	var b strings.Builder
	for {
		chunk, err := r.ReadSlice(Terminator)
		if b.Len() == 0 {
			chunk = trimLeadingEOL(chunk)
		}
		b.Write(chunk)
		if limits.MaxFrameBytes > 0 && b.Len() > limits.MaxFrameBytes {
			return "", ErrFrameTooLarge
		}
		switch {
		case err == nil:
			return b.String(), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && b.Len() > 0:
			return "", ErrTruncated
		default:
			return "", err
		}
	}
}

func trimLeadingEOL(chunk []byte) []byte {
	for len(chunk) > 0 && (chunk[0] == '\n' || chunk[0] == '\r') {
		chunk = chunk[1:]
	}
	return chunk
}
