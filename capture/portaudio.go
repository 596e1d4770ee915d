//go:build portaudio

package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
)

// PortAudioSource captures 16-bit mono PCM from the default input device.
// It is only built with the portaudio tag since it needs cgo and libportaudio.
type PortAudioSource struct {
	SampleRate      float64
	FramesPerBuffer int
}

func (s *PortAudioSource) Name() string { return "portaudio" }

func (s *PortAudioSource) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rate := s.SampleRate
	if rate == 0 {
		rate = 16000
	}
	frames := s.FramesPerBuffer
	if frames == 0 {
		frames = 512
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, deviceUnavailable(s.Name(), err)
	}

	buf := make([]int16, frames)
	stream, err := portaudio.OpenDefaultStream(1, 0, rate, frames, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, deviceUnavailable(s.Name(), err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, deviceUnavailable(s.Name(), errors.Wrap(err, "start stream"))
	}

	return &portAudioHandle{
		stream:  stream,
		samples: buf,
		format:  fmt.Sprintf("audio/l16;rate=%d", int(rate)),
	}, nil
}

type portAudioHandle struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	samples []int16
	pending []byte
	format  string
	closed  bool
	once    sync.Once
}

// Read blocks for one device buffer and returns it as little-endian bytes.
func (h *portAudioHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pending) == 0 {
		if h.closed {
			return 0, errors.New("portaudio: handle closed")
		}
		if err := h.stream.Read(); err != nil {
			return 0, err
		}
		out := make([]byte, 2*len(h.samples))
		for i, v := range h.samples {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
		h.pending = out
	}

	n := copy(p, h.pending)
	h.pending = h.pending[n:]
	return n, nil
}

func (h *portAudioHandle) Format() string { return h.format }

func (h *portAudioHandle) Close() error {
	var err error
	h.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.closed = true
		err = h.stream.Stop()
		if cerr := h.stream.Close(); err == nil {
			err = cerr
		}
		if terr := portaudio.Terminate(); err == nil {
			err = terr
		}
	})
	return err
}
