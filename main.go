package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/livescribe/capture"
	"github.com/mrsingh-rishi/livescribe/config"
	"github.com/mrsingh-rishi/livescribe/logger"
	"github.com/mrsingh-rishi/livescribe/render"
	"github.com/mrsingh-rishi/livescribe/server"
	"github.com/mrsingh-rishi/livescribe/session"
	"github.com/mrsingh-rishi/livescribe/streamer"
	"github.com/mrsingh-rishi/livescribe/stt"
	"github.com/mrsingh-rishi/livescribe/transcript"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("Exiting")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	acc := transcript.NewAccumulator()

	client := stt.NewClient(stt.Options{
		APIKey:           cfg.APIKey,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Registerer:       prometheus.DefaultRegisterer,
		Logger:           logger.Component(log, "stt"),
	})
	client.OnEvent(func(ev transcript.Event) {
		acc.Apply(ev)
		log.Debug().Str("text", ev.Text).Bool("is_final", ev.IsFinal).Msg("Transcript")
	})
	client.OnConnect(func() { log.Info().Msg("Connected to transcription server") })
	client.OnDisconnect(func(err error) { log.Info().AnErr("reason", err).Msg("Disconnected from transcription server") })

	str := streamer.New(logger.Component(log, "streamer"))
	sess := session.New(source, str, client, cfg.ChunkInterval, logger.Component(log, "session"))
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("Session teardown")
		}
	}()

	sess.OnStateChange(func(s session.State) {
		log.Info().Str("state", s.String()).Msg(s.Label())
	})

	// No retry: a failed connect leaves the session usable with chunks dropped.
	if err := client.Connect(ctx, cfg.Endpoint); err != nil {
		log.Error().Err(err).Msg("Could not connect to transcription server")
	}

	term := render.NewTerminal(os.Stdout, terminalWidth())
	term.Clear = isatty.IsTerminal(os.Stdout.Fd())
	updates, unsubscribe := acc.Subscribe()
	defer unsubscribe()
	go func() {
		if err := term.Run(ctx, updates); err != nil {
			log.Warn().Err(err).Msg("Render failed")
		}
	}()

	if cfg.ControlAddr != "" {
		srv := server.New(sess, client, acc, prometheus.DefaultGatherer, logger.Component(log, "server"))
		ln, err := srv.Bind(cfg.ControlAddr)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Serve(ln); err != nil {
				log.Error().Err(err).Msg("Control surface stopped")
			}
		}()
		defer func() {
			if err := srv.Shutdown(); err != nil {
				log.Warn().Err(err).Msg("Control surface shutdown")
			}
		}()
	}

	if cfg.Source != config.SourceFile || cfg.SourcePath != capture.Stdin {
		go toggleOnEnter(ctx, sess, log)
	}

	if cfg.AutoStart {
		if _, err := sess.Toggle(ctx); err != nil {
			log.Error().Err(err).Msg("Error starting recording")
		}
	}

	<-ctx.Done()
	return nil
}

func newSource(cfg config.Config) (capture.Source, error) {
	switch cfg.Source {
	case config.SourceFile:
		return &capture.FileSource{Path: cfg.SourcePath, Format: cfg.CaptureFormat}, nil
	case config.SourcePortAudio:
		return newPortAudioSource()
	default:
		return &capture.CommandSource{Args: cfg.CaptureCmd, Format: cfg.CaptureFormat}, nil
	}
}

// toggleOnEnter flips the session every time a line is read from stdin.
func toggleOnEnter(ctx context.Context, sess *session.Controller, log zerolog.Logger) {
	log.Info().Msg("Press Enter to start or stop recording")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if _, err := sess.Toggle(ctx); err != nil {
			log.Error().Err(err).Msg("Toggle failed")
		}
	}
}

func terminalWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return 80
}
