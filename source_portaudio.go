//go:build portaudio

package main

import "github.com/mrsingh-rishi/livescribe/capture"

func newPortAudioSource() (capture.Source, error) {
	return &capture.PortAudioSource{}, nil
}
