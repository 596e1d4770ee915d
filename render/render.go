// Package render draws the transcript log on a terminal.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/mrsingh-rishi/livescribe/transcript"
)

const clearScreen = "\x1b[H\x1b[2J"

// Terminal redraws the whole log on every update.
type Terminal struct {
	out   io.Writer
	width int
	// Clear erases the screen before each redraw; disable it when out is not
	// a terminal.
	Clear bool
}

func NewTerminal(out io.Writer, width int) *Terminal {
	if width <= 0 {
		width = 80
	}
	return &Terminal{out: out, width: width}
}

// Run renders every log received from updates until ctx is done or updates
// is closed.
func (t *Terminal) Run(ctx context.Context, updates <-chan transcript.Log) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-updates:
			if !ok {
				return nil
			}
			if err := t.Render(l); err != nil {
				return err
			}
		}
	}
}

func (t *Terminal) Render(l transcript.Log) error {
	var b strings.Builder
	if t.Clear {
		b.WriteString(clearScreen)
	}
	b.WriteString(Format(l, t.width))
	_, err := io.WriteString(t.out, b.String())
	return err
}

// Format lays out the log as a numbered list. The pending line is marked
// with "…" and every line is cut to width display columns.
func Format(l transcript.Log, width int) string {
	var b strings.Builder
	b.WriteString("Transcriptions:\n")
	for i, line := range l.Lines {
		prefix := fmt.Sprintf("%3d. ", i+1)
		suffix := ""
		if l.Pending && i == len(l.Lines)-1 {
			suffix = " …"
		}
		avail := width - runewidth.StringWidth(prefix) - runewidth.StringWidth(suffix)
		if avail < 1 {
			avail = 1
		}
		b.WriteString(prefix)
		b.WriteString(runewidth.Truncate(line, avail, "…"))
		b.WriteString(suffix)
		b.WriteByte('\n')
	}
	return b.String()
}
