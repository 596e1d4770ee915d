// Package stt is the client side of the live transcription channel: audio
// chunks go out as binary WebSocket frames and transcript events come back
// as JSON text frames.
package stt

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/livescribe/model"
	"github.com/mrsingh-rishi/livescribe/queue"
	"github.com/mrsingh-rishi/livescribe/transcript"
)

// DefaultEndpoint is the hosted relay backend.
const DefaultEndpoint = "wss://backend-483783451101.us-central1.run.app/listen"

// Options configures a Client.
type Options struct {
	// APIKey is sent as "Authorization: Token <key>" when set.
	APIKey           string
	HandshakeTimeout time.Duration
	// WriteTimeout bounds a single chunk write so a stalled socket cannot
	// block the streamer.
	WriteTimeout time.Duration
	// Registerer receives the traffic counters. Nil keeps them private to
	// the Client.
	Registerer prometheus.Registerer
	Logger     zerolog.Logger
}

// Stats counts traffic over the lifetime of a Client.
type Stats struct {
	ChunksSent     uint64 `json:"chunks_sent"`
	ChunksDropped  uint64 `json:"chunks_dropped"`
	EventsReceived uint64 `json:"events_received"`
	Malformed      uint64 `json:"malformed"`
}

// conn is one established channel.
type conn struct {
	ws       *gws.Conn
	writeMu  sync.Mutex
	closing  atomic.Bool
	events   *queue.Queue[transcript.Event]
	readDone chan struct{}
	dispDone chan struct{}
}

// Client maintains the duplex channel to the transcription backend.
type Client struct {
	opts   Options
	logger zerolog.Logger
	dialer *gws.Dialer

	mu      sync.Mutex
	conn    *conn
	dialing bool

	hooksMu      sync.RWMutex
	handlers     []func(transcript.Event)
	onConnect    []func()
	onDisconnect []func(error)

	metrics *metrics
}

func NewClient(opts Options) *Client {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Client{
		opts:    opts,
		logger:  opts.Logger,
		metrics: newMetrics(opts.Registerer),
		dialer: &gws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
	}
}

// OnEvent registers a handler invoked once per received transcript event,
// in arrival order. Handlers run on a single dispatch goroutine and must not
// call Disconnect.
func (c *Client) OnEvent(handler func(transcript.Event)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// OnConnect registers a hook run after each successful Connect.
func (c *Client) OnConnect(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnDisconnect registers a hook run once per lost or closed channel. The
// error is nil when the channel was closed by Disconnect.
func (c *Client) OnDisconnect(fn func(error)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Connect dials endpoint. Calling Connect while connected, or while another
// Connect is dialing, does nothing.
func (c *Client) Connect(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		c.logger.Debug().Msg("Already connected")
		return nil
	}
	c.dialing = true
	c.mu.Unlock()

	header := http.Header{}
	if c.opts.APIKey != "" {
		header.Set("Authorization", fmt.Sprintf("Token %s", c.opts.APIKey))
	}

	ws, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		c.mu.Lock()
		c.dialing = false
		c.mu.Unlock()
		if resp != nil {
			return errors.Wrapf(err, "dial %s: status %s", endpoint, resp.Status)
		}
		return errors.Wrapf(err, "dial %s", endpoint)
	}

	cn := &conn{
		ws:       ws,
		events:   queue.New[transcript.Event](),
		readDone: make(chan struct{}),
		dispDone: make(chan struct{}),
	}

	c.mu.Lock()
	c.dialing = false
	c.conn = cn
	c.mu.Unlock()

	go c.readPump(cn)
	go c.dispatch(cn)

	c.logger.Info().Str("endpoint", endpoint).Msg("Connected to transcription backend")

	c.hooksMu.RLock()
	hooks := c.onConnect
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Connected reports whether the channel is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SendChunk sends one audio chunk as a binary frame. Empty chunks, and
// chunks sent while the channel is not open, are dropped without error.
func (c *Client) SendChunk(chunk model.AudioChunk) {
	if chunk.Size() == 0 {
		return
	}

	c.mu.Lock()
	cn := c.conn
	c.mu.Unlock()

	if cn == nil || cn.closing.Load() {
		c.metrics.ChunksDropped.Inc()
		c.logger.Debug().Uint64("seq", chunk.Seq).Int("bytes", chunk.Size()).Msg("Channel not open, dropping chunk")
		return
	}

	cn.writeMu.Lock()
	_ = cn.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	err := cn.ws.WriteMessage(gws.BinaryMessage, chunk.Data)
	cn.writeMu.Unlock()

	if err != nil {
		c.metrics.ChunksDropped.Inc()
		c.logger.Debug().Err(err).Uint64("seq", chunk.Seq).Msg("Chunk write failed, dropping chunk")
		return
	}

	c.metrics.ChunksSent.Inc()
	c.logger.Trace().Uint64("seq", chunk.Seq).Int("bytes", chunk.Size()).Msg("Chunk sent")
}

// Disconnect closes the channel and waits for pending events to be
// dispatched. Later SendChunk calls are no-ops.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cn := c.conn
	if cn != nil {
		cn.closing.Store(true)
	}
	c.mu.Unlock()

	if cn == nil {
		return nil
	}

	// Send a normal closure message to the server.
	cn.writeMu.Lock()
	werr := cn.ws.WriteControl(gws.CloseMessage,
		gws.FormatCloseMessage(gws.CloseNormalClosure, "Closing connection"),
		time.Now().Add(time.Second))
	cn.writeMu.Unlock()

	err := cn.ws.Close()
	<-cn.readDone
	<-cn.dispDone

	if werr != nil && !errors.Is(werr, gws.ErrCloseSent) {
		c.logger.Debug().Err(werr).Msg("Close frame not sent")
	}
	return errors.Wrap(err, "close channel")
}

// Stats returns the traffic counters.
func (c *Client) Stats() Stats {
	return c.metrics.stats()
}

// readPump reads transcript frames until the connection fails or is closed.
func (c *Client) readPump(cn *conn) {
	var reason error
	defer func() {
		cn.events.Close()

		c.mu.Lock()
		if c.conn == cn {
			c.conn = nil
		}
		c.mu.Unlock()

		if cn.closing.Load() {
			reason = nil
			c.logger.Info().Msg("Disconnected from transcription backend")
		} else {
			_ = cn.ws.Close()
			c.logger.Warn().Err(reason).Msg("Transcription backend connection lost")
		}

		c.hooksMu.RLock()
		hooks := c.onDisconnect
		c.hooksMu.RUnlock()
		for _, fn := range hooks {
			fn(reason)
		}
		close(cn.readDone)
	}()

	for {
		msgType, message, err := cn.ws.ReadMessage()
		if err != nil {
			reason = err
			return
		}
		if msgType != gws.TextMessage {
			c.logger.Debug().Int("bytes", len(message)).Msg("Ignoring binary frame from backend")
			continue
		}

		frame := DecodeFrame(message)
		if frame.Event != EventTranscript {
			c.logger.Debug().Str("event", frame.Event).Msg("Ignoring backend event")
			continue
		}
		if frame.Malformed > 0 {
			c.metrics.Malformed.Add(float64(frame.Malformed))
			c.logger.Debug().Int("count", frame.Malformed).Msg("Skipped malformed transcript payload")
		}
		for _, ev := range frame.Events {
			c.metrics.EventsReceived.Inc()
			cn.events.Enqueue(ev)
		}
	}
}

// dispatch hands queued events to the registered handlers in order.
func (c *Client) dispatch(cn *conn) {
	defer close(cn.dispDone)

	for {
		ev, ok := cn.events.Wait()
		if !ok {
			return
		}

		c.hooksMu.RLock()
		handlers := c.handlers
		c.hooksMu.RUnlock()
		for _, h := range handlers {
			h(ev)
		}
	}
}
