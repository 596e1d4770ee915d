// Package capture acquires live audio sources.
//
// A Source is acquired once per recording session and yields a Handle that
// streams raw audio bytes until it is closed. Acquisition failures are
// reported as *Error values matching ErrPermissionDenied or
// ErrDeviceUnavailable.
package capture

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("device unavailable")
)

// Error describes a failed acquisition.
type Error struct {
	Source string
	// Kind is ErrPermissionDenied or ErrDeviceUnavailable.
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture %s: %v", e.Source, e.Kind)
	}
	return fmt.Sprintf("capture %s: %v: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Handle is an open capture stream. It is owned by a single recording
// session; Close releases the underlying device and may be called more than
// once.
type Handle interface {
	io.ReadCloser
	// Format names the container/codec of the bytes returned by Read.
	Format() string
}

// Source opens capture handles.
type Source interface {
	// Acquire blocks until the device is opened or access fails.
	Acquire(ctx context.Context) (Handle, error)
	Name() string
}

func permissionDenied(source string, err error) error {
	return &Error{Source: source, Kind: ErrPermissionDenied, Err: err}
}

func deviceUnavailable(source string, err error) error {
	return &Error{Source: source, Kind: ErrDeviceUnavailable, Err: err}
}
