package stt

import (
	"reflect"
	"testing"

	"github.com/mrsingh-rishi/livescribe/transcript"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		event     string
		events    []transcript.Event
		malformed int
	}{
		{
			name:   "bare payload",
			msg:    `{"is_final":true,"channel":{"alternatives":[{"transcript":"hello","confidence":0.9}]}}`,
			event:  EventTranscript,
			events: []transcript.Event{{Text: "hello", IsFinal: true}},
		},
		{
			name:   "envelope",
			msg:    `{"event":"transcript","data":{"is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}}`,
			event:  EventTranscript,
			events: []transcript.Event{{Text: "hel"}},
		},
		{
			name:  "array keeps order",
			msg:   `[{"channel":{"alternatives":[{"transcript":"a"}]}},{"is_final":true,"channel":{"alternatives":[{"transcript":"ab"}]}}]`,
			event: EventTranscript,
			events: []transcript.Event{
				{Text: "a"},
				{Text: "ab", IsFinal: true},
			},
		},
		{
			name:      "missing channel",
			msg:       `{"type":"Metadata","request_id":"x"}`,
			event:     EventTranscript,
			malformed: 1,
		},
		{
			name:      "missing alternatives",
			msg:       `{"is_final":true,"channel":{"alternatives":[]}}`,
			event:     EventTranscript,
			malformed: 1,
		},
		{
			name:      "not json",
			msg:       `hello`,
			event:     EventTranscript,
			malformed: 1,
		},
		{
			name:  "empty transcript is skipped",
			msg:   `{"is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
			event: EventTranscript,
		},
		{
			name:  "other event",
			msg:   `{"event":"status","data":{"ready":true}}`,
			event: "status",
		},
		{
			name:      "array with one bad element",
			msg:       `[{"channel":{}},{"channel":{"alternatives":[{"transcript":"ok"}]}}]`,
			event:     EventTranscript,
			events:    []transcript.Event{{Text: "ok"}},
			malformed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DecodeFrame([]byte(tt.msg))
			if f.Event != tt.event {
				t.Errorf("expected event %q, got %q", tt.event, f.Event)
			}
			if !reflect.DeepEqual(f.Events, tt.events) {
				t.Errorf("expected events %+v, got %+v", tt.events, f.Events)
			}
			if f.Malformed != tt.malformed {
				t.Errorf("expected %d malformed, got %d", tt.malformed, f.Malformed)
			}
		})
	}
}
