// Package logger builds the zerolog loggers shared by every component.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatAuto    = "auto"
)

// Config contains logging configuration.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// ApplyDefaults fills in the zero values.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatAuto
	}
}

// Validate validates logging configuration.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("log level must be one of trace, debug, info, warn, error (got: %s)", c.Level)
	}
	switch c.Format {
	case FormatConsole, FormatJSON, FormatAuto:
		return nil
	default:
		return fmt.Errorf("log format must be one of console, json, auto (got: %s)", c.Format)
	}
}

// New creates the root logger. An unknown level falls back to info.
func New(cfg Config) zerolog.Logger {
	cfg.ApplyDefaults()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	console := cfg.Format == FormatConsole
	if out == nil {
		if cfg.Format == FormatAuto {
			console = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		}
		if console {
			out = colorable.NewColorableStderr()
		} else {
			out = os.Stderr
		}
	}

	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
