// Package streamer cuts a live capture stream into fixed-interval chunks.
package streamer

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/livescribe/capture"
	"github.com/mrsingh-rishi/livescribe/model"
)

// DefaultInterval matches the cadence the transcription backend expects.
const DefaultInterval = 500 * time.Millisecond

const readSize = 4096

// releaseWait bounds how long Stop waits for a reader blocked on a handle
// whose Close does not interrupt Read.
const releaseWait = time.Second

var (
	ErrAlreadyStarted  = errors.New("streamer already started")
	ErrInvalidInterval = errors.New("chunk interval must be positive")
)

// Streamer reads a capture handle and hands the audio to onChunk roughly
// every interval. Empty chunks are never delivered, and onChunk is never
// called after Stop returns.
type Streamer struct {
	logger zerolog.Logger

	lifecycle sync.Mutex

	mu      sync.Mutex
	buf     []byte
	running bool
	seq     uint64
	// gen identifies the current recording so a reader left blocked on an
	// earlier handle cannot append to it.
	gen uint64

	handle  capture.Handle
	onChunk func(model.AudioChunk)
	emitMu  sync.Mutex

	stop        chan struct{}
	emitterDone chan struct{}
	readDone    chan struct{}
	done        chan struct{}
}

// unreader is implemented by handles on streams shared across recordings,
// so bytes read after Stop can be handed to the next recording.
type unreader interface {
	Unread(b []byte)
}

func New(logger zerolog.Logger) *Streamer {
	return &Streamer{logger: logger}
}

// Start begins reading from h. The streamer takes ownership of h and closes
// it on Stop.
func (s *Streamer) Start(h capture.Handle, interval time.Duration, onChunk func(model.AudioChunk)) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	s.buf = nil
	s.seq = 0
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.handle = h
	s.onChunk = onChunk
	s.stop = make(chan struct{})
	s.emitterDone = make(chan struct{})
	s.done = make(chan struct{})

	s.readDone = make(chan struct{})
	go s.read(h, gen, s.readDone)
	go s.emit(interval, s.readDone)

	s.logger.Debug().Dur("interval", interval).Str("format", h.Format()).Msg("Streamer started")
	return nil
}

// Stop flushes the audio captured since the last chunk, releases the
// capture handle and returns once no further chunks can be delivered.
// Stopping a stopped streamer does nothing.
func (s *Streamer) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil
	}

	close(s.stop)
	<-s.emitterDone

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.flush()

	err := s.handle.Close()
	select {
	case <-s.readDone:
	case <-time.After(releaseWait):
		s.logger.Warn().Msg("Capture reader did not exit after release")
	}
	s.handle = nil
	s.onChunk = nil
	s.logger.Debug().Msg("Streamer stopped")
	return errors.Wrap(err, "release capture handle")
}

// Running reports whether the streamer is between Start and Stop.
func (s *Streamer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done is closed when the capture stream ends on its own, e.g. a file source
// reaching EOF. It is nil before the first Start.
func (s *Streamer) Done() <-chan struct{} {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.done
}

// read appends captured audio to the buffer until the handle fails or the
// recording it belongs to is stopped.
func (s *Streamer) read(h capture.Handle, gen uint64, readDone chan<- struct{}) {
	defer close(readDone)

	p := make([]byte, readSize)
	for {
		n, err := h.Read(p)

		s.mu.Lock()
		current := s.running && s.gen == gen
		if current && n > 0 {
			s.buf = append(s.buf, p[:n]...)
		}
		s.mu.Unlock()

		if !current {
			if u, ok := h.(unreader); ok && n > 0 {
				u.Unread(p[:n])
			}
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn().Err(err).Msg("Capture read error")
			}
			return
		}
	}
}

func (s *Streamer) emit(interval time.Duration, readDone <-chan struct{}) {
	defer close(s.emitterDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.flush()
		case <-readDone:
			s.flush()
			s.logger.Info().Msg("Capture stream ended")
			close(s.done)
			<-s.stop
			return
		}
	}
}

// flush delivers the buffered audio as one chunk, dropping it if empty.
func (s *Streamer) flush() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	data := s.buf
	s.buf = nil
	if len(data) == 0 {
		s.mu.Unlock()
		return
	}
	s.seq++
	chunk := model.AudioChunk{Data: data, Format: s.handle.Format(), Seq: s.seq, At: time.Now()}
	s.mu.Unlock()

	if s.onChunk != nil {
		s.onChunk(chunk)
	}
}
