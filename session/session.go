// Package session owns the recording lifecycle: it toggles between Idle and
// Recording, acquiring the capture source and wiring the chunk streamer to
// the transcription channel.
package session

//go:generate mockgen -destination=mock_session_test.go -package=session . Streamer,Channel
//go:generate mockgen -destination=mock_capture_test.go -package=session github.com/mrsingh-rishi/livescribe/capture Source,Handle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/livescribe/capture"
	"github.com/mrsingh-rishi/livescribe/model"
	"github.com/mrsingh-rishi/livescribe/streamer"
)

var ErrClosed = errors.New("session closed")

// State is the recording state of a session.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// Label is the text of the toggle control for this state.
func (s State) Label() string {
	if s == Recording {
		return "Stop Recording"
	}
	return "Start Recording"
}

// Streamer cuts a capture handle into chunks.
type Streamer interface {
	Start(h capture.Handle, interval time.Duration, onChunk func(model.AudioChunk)) error
	Stop() error
}

// Channel is the outbound side of the transcription channel.
type Channel interface {
	SendChunk(chunk model.AudioChunk)
	Disconnect() error
}

// Controller is a single recording session. Toggle and Close may be called
// from any goroutine; they are serialized.
type Controller struct {
	id       uuid.UUID
	logger   zerolog.Logger
	source   capture.Source
	streamer Streamer
	channel  Channel
	interval time.Duration

	mu      sync.Mutex
	state   State
	handle  capture.Handle
	closed  bool
	started time.Time

	listenersMu sync.RWMutex
	listeners   []func(State)
}

// New creates an Idle session. A zero interval selects
// streamer.DefaultInterval.
func New(source capture.Source, s Streamer, channel Channel, interval time.Duration, logger zerolog.Logger) *Controller {
	if interval <= 0 {
		interval = streamer.DefaultInterval
	}
	id := uuid.New()
	return &Controller{
		id:       id,
		logger:   logger.With().Str("session_id", id.String()).Logger(),
		source:   source,
		streamer: s,
		channel:  channel,
		interval: interval,
	}
}

func (c *Controller) ID() uuid.UUID { return c.id }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn to be called after every transition. fn runs
// while the session is locked and must not call back into it.
func (c *Controller) OnStateChange(fn func(State)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Toggle starts recording from Idle or stops it from Recording, and returns
// the resulting state. If the capture source cannot be acquired the session
// stays Idle and the acquisition error is returned.
func (c *Controller) Toggle(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.state, ErrClosed
	}

	var err error
	if c.state == Idle {
		err = c.start(ctx)
	} else {
		err = c.stop()
	}
	return c.state, err
}

// Close stops any recording and disconnects the channel. It is safe to call
// more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var stopErr error
	if c.state == Recording {
		stopErr = c.stop()
	}
	if err := c.channel.Disconnect(); err != nil {
		c.logger.Warn().Err(err).Msg("Disconnect failed")
		if stopErr == nil {
			stopErr = err
		}
	}
	c.logger.Info().Msg("Session closed")
	return stopErr
}

func (c *Controller) start(ctx context.Context) error {
	h, err := c.source.Acquire(ctx)
	if err != nil {
		c.logger.Error().Err(err).Str("source", c.source.Name()).Msg("Error accessing microphone")
		return errors.Wrap(err, "start recording")
	}

	if err := c.streamer.Start(h, c.interval, c.channel.SendChunk); err != nil {
		_ = h.Close()
		c.logger.Error().Err(err).Msg("Error starting recording")
		return errors.Wrap(err, "start recording")
	}

	c.handle = h
	c.started = time.Now()
	c.transition(Recording)
	c.logger.Info().
		Str("source", c.source.Name()).
		Str("format", h.Format()).
		Dur("interval", c.interval).
		Msg("Microphone opened")
	return nil
}

// stop always returns the session to Idle; release errors are reported but
// do not keep it Recording.
func (c *Controller) stop() error {
	err := c.streamer.Stop()
	if cerr := c.handle.Close(); err == nil {
		err = cerr
	}
	c.handle = nil
	c.transition(Idle)

	c.logger.Info().Dur("duration", time.Since(c.started)).Msg("Microphone closed")
	if err != nil {
		c.logger.Warn().Err(err).Msg("Capture release reported an error")
		return errors.Wrap(err, "stop recording")
	}
	return nil
}

func (c *Controller) transition(to State) {
	c.state = to

	c.listenersMu.RLock()
	listeners := c.listeners
	c.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(to)
	}
}
