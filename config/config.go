// Package config loads livescribe settings from .env, the environment and
// command line flags, in increasing order of precedence.
package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/livescribe/logger"
	"github.com/mrsingh-rishi/livescribe/streamer"
	"github.com/mrsingh-rishi/livescribe/stt"
)

const (
	SourceCommand   = "command"
	SourceFile      = "file"
	SourcePortAudio = "portaudio"
)

// Config holds the client configuration.
type Config struct {
	Endpoint         string
	APIKey           string
	ChunkInterval    time.Duration
	HandshakeTimeout time.Duration

	Source        string
	SourcePath    string
	CaptureCmd    []string
	CaptureFormat string

	// ControlAddr is the listen address of the HTTP control surface; empty
	// disables it.
	ControlAddr string
	// AutoStart begins recording as soon as the channel is connected.
	AutoStart bool

	Logging logger.Config
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:         stt.DefaultEndpoint,
		ChunkInterval:    streamer.DefaultInterval,
		HandshakeTimeout: 10 * time.Second,
		Source:           SourceCommand,
		ControlAddr:      "127.0.0.1:3000",
		Logging:          logger.Config{Level: "info", Format: logger.FormatAuto},
	}
}

// Load builds the configuration. Missing .env files are not an error.
func Load(args []string, envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Endpoint, "LIVESCRIBE_ENDPOINT")
	setString(&c.APIKey, "DEEPGRAM_API_KEY")
	setString(&c.Source, "LIVESCRIBE_SOURCE")
	setString(&c.SourcePath, "LIVESCRIBE_SOURCE_PATH")
	setString(&c.CaptureFormat, "LIVESCRIBE_CAPTURE_FORMAT")
	setString(&c.ControlAddr, "LIVESCRIBE_CONTROL_ADDR")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	if v := os.Getenv("LIVESCRIBE_CAPTURE_CMD"); v != "" {
		c.CaptureCmd = strings.Fields(v)
	}
	if v := os.Getenv("LIVESCRIBE_CHUNK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "LIVESCRIBE_CHUNK_INTERVAL")
		}
		c.ChunkInterval = d
	}
	if v := os.Getenv("LIVESCRIBE_AUTOSTART"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "LIVESCRIBE_AUTOSTART")
		}
		c.AutoStart = b
	}
	return nil
}

func (c *Config) applyFlags(args []string) error {
	fs := flag.NewFlagSet("livescribe", flag.ContinueOnError)

	captureCmd := strings.Join(c.CaptureCmd, " ")
	fs.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "transcription backend WebSocket URL")
	fs.DurationVar(&c.ChunkInterval, "interval", c.ChunkInterval, "audio chunk interval")
	fs.StringVar(&c.Source, "source", c.Source, "capture source: command, file or portaudio")
	fs.StringVar(&c.SourcePath, "file", c.SourcePath, "audio file for the file source ('-' for stdin)")
	fs.StringVar(&captureCmd, "capture-cmd", captureCmd, "recorder command line for the command source")
	fs.StringVar(&c.CaptureFormat, "format", c.CaptureFormat, "override the captured audio format label")
	fs.StringVar(&c.ControlAddr, "control", c.ControlAddr, "control surface listen address, empty to disable")
	fs.BoolVar(&c.AutoStart, "autostart", c.AutoStart, "start recording once connected")
	fs.StringVar(&c.Logging.Level, "log-level", c.Logging.Level, "log level")
	fs.StringVar(&c.Logging.Format, "log-format", c.Logging.Format, "log format: console, json or auto")

	if err := fs.Parse(args); err != nil {
		return err
	}
	c.CaptureCmd = strings.Fields(captureCmd)
	return nil
}

// Validate checks the configuration for obviously wrong values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return errors.Wrap(err, "endpoint")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint must be a ws:// or wss:// URL (got: %s)", c.Endpoint)
	}
	if c.ChunkInterval <= 0 {
		return fmt.Errorf("chunk interval must be positive (got: %s)", c.ChunkInterval)
	}
	switch c.Source {
	case SourceCommand, SourcePortAudio:
	case SourceFile:
		if c.SourcePath == "" {
			return errors.New("file source requires a path (use '-' for stdin)")
		}
	default:
		return fmt.Errorf("source must be one of command, file, portaudio (got: %s)", c.Source)
	}
	return c.Logging.Validate()
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
