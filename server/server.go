// Package server is the local control surface: one toggle, a status view and
// the live transcript, over HTTP and WebSocket.
package server

import (
	"context"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/livescribe/session"
	"github.com/mrsingh-rishi/livescribe/stt"
	"github.com/mrsingh-rishi/livescribe/transcript"
)

// Session is the recording session driven by the toggle.
type Session interface {
	ID() uuid.UUID
	State() session.State
	Toggle(ctx context.Context) (session.State, error)
}

// Channel reports the transcription channel status.
type Channel interface {
	Connected() bool
	Stats() stt.Stats
}

type stateResponse struct {
	State string `json:"state"`
	Label string `json:"label"`
	Error string `json:"error,omitempty"`
}

type statusResponse struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Label     string    `json:"label"`
	Connected bool      `json:"connected"`
	Stats     stt.Stats `json:"stats"`
}

// Server serves the control surface.
type Server struct {
	app     *fiber.App
	session Session
	channel Channel
	log     *transcript.Accumulator
	logger  zerolog.Logger
	// ToggleTimeout bounds how long a toggle may wait for the capture device.
	ToggleTimeout time.Duration
}

// New builds the control surface. Metrics from gatherer are served on
// /metrics; a nil gatherer serves the default registry.
func New(sess Session, channel Channel, acc *transcript.Accumulator, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		app:           fiber.New(fiber.Config{DisableStartupMessage: true}),
		session:       sess,
		channel:       channel,
		log:           acc,
		logger:        logger,
		ToggleTimeout: 30 * time.Second,
	}

	s.app.Post("/toggle", s.handleToggle)
	s.app.Get("/status", s.handleStatus)
	s.app.Get("/transcript", s.handleTranscript)

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	s.app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))

	// Middleware to require WebSocket upgrade on /ws
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleUpdates))

	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	ln, err := s.Bind(addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Bind opens the listening socket without serving, so callers learn about a
// bad address before any request can arrive.
func (s *Server) Bind(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Control surface listening")
	return ln, nil
}

// Serve handles requests on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

func (s *Server) handleToggle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.ToggleTimeout)
	defer cancel()

	state, err := s.session.Toggle(ctx)
	resp := stateResponse{State: state.String(), Label: state.Label()}
	if err != nil {
		resp.Error = err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	state := s.session.State()
	return c.JSON(statusResponse{
		SessionID: s.session.ID().String(),
		State:     state.String(),
		Label:     state.Label(),
		Connected: s.channel.Connected(),
		Stats:     s.channel.Stats(),
	})
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	return c.JSON(s.log.Snapshot())
}

// handleUpdates pushes the transcript log to the client on every change.
func (s *Server) handleUpdates(conn *websocket.Conn) {
	defer conn.Close()

	updates, unsubscribe := s.log.Subscribe()
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.log.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-gone:
			return
		case l := <-updates:
			if err := conn.WriteJSON(l); err != nil {
				s.logger.Debug().Err(err).Msg("Transcript subscriber write failed")
				return
			}
		}
	}
}
