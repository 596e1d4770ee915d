package capture

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultCommand records 16 kHz mono linear PCM from the default ALSA device.
var DefaultCommand = []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"}

// CommandSource captures audio by running an external recorder and reading
// its standard output.
type CommandSource struct {
	Args   []string
	Format string
}

func (s *CommandSource) Name() string {
	if len(s.Args) == 0 {
		return "command"
	}
	return "command:" + s.Args[0]
}

// Acquire starts the recorder and waits for its first audio bytes. A
// recorder that exits before producing audio is classified from its stderr.
func (s *CommandSource) Acquire(ctx context.Context) (Handle, error) {
	args := s.Args
	if len(args) == 0 {
		args = DefaultCommand
	}

	var stderr bytes.Buffer
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, permissionDenied(s.Name(), err)
		}
		return nil, deviceUnavailable(s.Name(), err)
	}

	br := bufio.NewReader(stdout)
	peeked := make(chan error, 1)
	go func() {
		_, err := br.Peek(1)
		peeked <- err
	}()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, ctx.Err()
	case err := <-peeked:
		if err != nil {
			waitErr := cmd.Wait()
			if waitErr == nil {
				waitErr = err
			}
			return nil, classifyRecorderFailure(s.Name(), stderr.String(), waitErr)
		}
	}

	format := s.Format
	if format == "" {
		format = "audio/l16"
	}
	return &commandHandle{cmd: cmd, r: br, format: format}, nil
}

func classifyRecorderFailure(source, stderr string, err error) error {
	msg := strings.ToLower(stderr)
	for _, hint := range []string{"permission denied", "not permitted", "access denied"} {
		if strings.Contains(msg, hint) {
			return permissionDenied(source, errors.Wrap(err, strings.TrimSpace(stderr)))
		}
	}
	if s := strings.TrimSpace(stderr); s != "" {
		err = errors.Wrap(err, s)
	}
	return deviceUnavailable(source, err)
}

type commandHandle struct {
	cmd    *exec.Cmd
	r      *bufio.Reader
	format string
	once   sync.Once
}

func (h *commandHandle) Read(p []byte) (int, error) { return h.r.Read(p) }

func (h *commandHandle) Format() string { return h.format }

// Close stops the recorder. The recorder is killed, so its exit status is
// not reported.
func (h *commandHandle) Close() error {
	h.once.Do(func() {
		_ = h.cmd.Process.Kill()
		_ = h.cmd.Wait()
	})
	return nil
}
