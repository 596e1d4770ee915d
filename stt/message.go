package stt

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/livescribe/transcript"
)

// EventTranscript is the only inbound event name the client consumes.
const EventTranscript = "transcript"

var (
	// ErrMalformedEvent marks payloads without channel.alternatives.
	ErrMalformedEvent = errors.New("malformed transcript event")

	errEmptyTranscript = errors.New("empty transcript")
)

// envelope is the named-event framing used by the relay backend.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TranscriptionMessage represents a Deepgram-style live transcription result.
type TranscriptionMessage struct {
	IsFinal bool `json:"is_final"`
	Channel *struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Frame is the decoded content of one inbound text message.
type Frame struct {
	Event     string
	Events    []transcript.Event
	Malformed int
}

// DecodeFrame parses an inbound text message. It accepts a bare
// TranscriptionMessage, a JSON array of them, or either one wrapped in a
// {"event": ..., "data": ...} envelope. Malformed payloads are counted and
// skipped; empty transcripts are skipped silently.
func DecodeFrame(msg []byte) Frame {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return Frame{Event: EventTranscript}
	}

	if msg[0] == '{' {
		var env envelope
		if err := json.Unmarshal(msg, &env); err == nil && env.Event != "" {
			if env.Event != EventTranscript {
				return Frame{Event: env.Event}
			}
			msg = bytes.TrimSpace(env.Data)
		}
	}

	f := Frame{Event: EventTranscript}
	if len(msg) == 0 {
		f.Malformed++
		return f
	}

	switch msg[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(msg, &arr); err != nil {
			f.Malformed++
			return f
		}
		for _, raw := range arr {
			f.add(raw)
		}
	case '{':
		f.add(msg)
	default:
		f.Malformed++
	}
	return f
}

func (f *Frame) add(raw []byte) {
	ev, err := decodePayload(raw)
	switch {
	case err == nil:
		f.Events = append(f.Events, ev)
	case errors.Is(err, ErrMalformedEvent):
		f.Malformed++
	}
}

func decodePayload(raw []byte) (transcript.Event, error) {
	var msg TranscriptionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return transcript.Event{}, errors.Wrap(ErrMalformedEvent, err.Error())
	}
	if msg.Channel == nil || len(msg.Channel.Alternatives) == 0 {
		return transcript.Event{}, ErrMalformedEvent
	}
	text := msg.Channel.Alternatives[0].Transcript
	if text == "" {
		return transcript.Event{}, errEmptyTranscript
	}
	return transcript.Event{Text: text, IsFinal: msg.IsFinal}, nil
}
