package capture

import (
	"io"
	"sync"
)

// SharedReader lets successive recordings read from one long-lived stream,
// such as stdin, that cannot be closed between them. A single goroutine reads
// the stream; each Handle takes its bytes from that goroutine, and closing a
// Handle unblocks its Read without consuming anything meant for the next one.
type SharedReader struct {
	r    io.Reader
	once sync.Once
	data chan []byte
	err  error

	mu       sync.Mutex
	leftover [][]byte
}

func NewSharedReader(r io.Reader) *SharedReader {
	return &SharedReader{r: r, data: make(chan []byte)}
}

// Handle returns a new handle on the stream. Only one handle should be open
// at a time.
func (s *SharedReader) Handle(format string) Handle {
	s.once.Do(func() { go s.pump() })
	return &sharedHandle{src: s, format: format, closed: make(chan struct{})}
}

// Unread returns b to the front of the stream for the next reader.
func (s *SharedReader) Unread(b []byte) {
	if len(b) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leftover = append([][]byte{append([]byte(nil), b...)}, s.leftover...)
}

func (s *SharedReader) takeLeftover() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.leftover) == 0 {
		return nil
	}
	b := s.leftover[0]
	s.leftover = s.leftover[1:]
	return b
}

func (s *SharedReader) pump() {
	for {
		buf := make([]byte, 4096)
		n, err := s.r.Read(buf)
		if n > 0 {
			s.data <- buf[:n]
		}
		if err != nil {
			s.err = err
			close(s.data)
			return
		}
	}
}

type sharedHandle struct {
	src    *SharedReader
	format string
	closed chan struct{}
	once   sync.Once
	// pending is only touched by Read.
	pending []byte
}

func (h *sharedHandle) Read(p []byte) (int, error) {
	select {
	case <-h.closed:
		h.src.Unread(h.pending)
		h.pending = nil
		return 0, io.ErrClosedPipe
	default:
	}

	if len(h.pending) == 0 {
		if b := h.src.takeLeftover(); b != nil {
			h.pending = b
		} else {
			select {
			case <-h.closed:
				return 0, io.ErrClosedPipe
			case b, ok := <-h.src.data:
				if !ok {
					return 0, h.src.err
				}
				select {
				case <-h.closed:
					h.src.Unread(b)
					return 0, io.ErrClosedPipe
				default:
				}
				h.pending = b
			}
		}
	}

	n := copy(p, h.pending)
	h.pending = h.pending[n:]
	return n, nil
}

// Unread hands bytes a stopped recording read too late back to the stream.
func (h *sharedHandle) Unread(b []byte) { h.src.Unread(b) }

func (h *sharedHandle) Format() string { return h.format }

func (h *sharedHandle) Close() error {
	h.once.Do(func() {
		close(h.closed)
	})
	return nil
}
