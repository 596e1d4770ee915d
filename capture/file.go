package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Stdin is the FileSource path that reads audio from standard input.
const Stdin = "-"

// FileSource reads pre-recorded or piped audio, e.g.
// `ffmpeg -f pulse -i default -f webm - | livescribe -source -`.
type FileSource struct {
	Path string
	// Format overrides the format derived from the file extension.
	Format string
}

func (s *FileSource) Name() string {
	if s.Path == Stdin {
		return "stdin"
	}
	return "file:" + s.Path
}

func (s *FileSource) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := s.Format
	if format == "" {
		format = formatForPath(s.Path)
	}

	if s.Path == Stdin {
		return stdin().Handle(format), nil
	}

	f, err := os.Open(s.Path)
	switch {
	case err == nil:
		return &fileHandle{f: f, format: format}, nil
	case errors.Is(err, os.ErrPermission):
		return nil, permissionDenied(s.Name(), err)
	default:
		return nil, deviceUnavailable(s.Name(), err)
	}
}

var (
	stdinOnce   sync.Once
	stdinShared *SharedReader
)

// stdin is shared by every recording of the process since it cannot be
// reopened.
func stdin() *SharedReader {
	stdinOnce.Do(func() { stdinShared = NewSharedReader(os.Stdin) })
	return stdinShared
}

type fileHandle struct {
	f      *os.File
	format string
	once   sync.Once
	err    error
}

func (h *fileHandle) Read(p []byte) (int, error) { return h.f.Read(p) }

func (h *fileHandle) Format() string { return h.format }

func (h *fileHandle) Close() error {
	h.once.Do(func() { h.err = h.f.Close() })
	return h.err
}

func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webm":
		return "audio/webm"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
