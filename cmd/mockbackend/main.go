// Command mockbackend is a stand-in transcription backend for local
// development. It accepts binary audio frames on /listen and answers with
// partial transcripts that become final every few chunks.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/livescribe/logger"
)

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type transcriptPayload struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

type envelope struct {
	Event string            `json:"event"`
	Data  transcriptPayload `json:"data"`
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	finalEvery := flag.Int("final-every", 4, "chunks per utterance")
	flag.Parse()

	log := logger.New(logger.Config{Level: "debug"})

	if err := validateFinalEvery(*finalEvery); err != nil {
		log.Error().Err(err).Msg("Invalid flags")
		os.Exit(2)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	// Middleware to require WebSocket upgrade on /listen
	app.Use("/listen", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/listen", websocket.New(func(ws *websocket.Conn) {
		handleStream(ws, *finalEvery, log.With().Str("stream_id", uuid.NewString()).Logger())
	}))

	log.Info().Str("addr", *addr).Msg("Mock backend listening")
	if err := app.Listen(*addr); err != nil {
		log.Error().Err(err).Msg("Listen failed")
		os.Exit(1)
	}
}

func validateFinalEvery(n int) error {
	if n <= 0 {
		return errors.Errorf("-final-every must be positive, got %d", n)
	}
	return nil
}

func handleStream(ws *websocket.Conn, finalEvery int, log zerolog.Logger) {
	defer ws.Close()
	log.Info().Msg("Client connected")

	var chunks, bytes, utterance int
	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msg("Client disconnected")
			} else {
				log.Warn().Err(err).Msg("Read error")
			}
			return
		}
		if msgType != websocket.BinaryMessage || len(msg) == 0 {
			continue
		}

		chunks++
		bytes += len(msg)

		var ev envelope
		ev.Event = "transcript"
		ev.Data.IsFinal = chunks%finalEvery == 0
		ev.Data.Channel.Alternatives = []alternative{{
			Transcript: fmt.Sprintf("utterance %d: %d bytes", utterance+1, bytes),
			Confidence: 0.5,
		}}
		if ev.Data.IsFinal {
			utterance++
			bytes = 0
		}

		if err := ws.WriteJSON(ev); err != nil {
			log.Warn().Err(err).Msg("Write error")
			return
		}
	}
}
