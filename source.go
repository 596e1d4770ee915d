//go:build !portaudio

package main

import (
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/livescribe/capture"
)

func newPortAudioSource() (capture.Source, error) {
	return nil, errors.New("portaudio source requires building with -tags portaudio")
}
