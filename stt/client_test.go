package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/livescribe/model"
	"github.com/mrsingh-rishi/livescribe/transcript"
)

var upgrader = gws.Upgrader{}

func newBackend(t *testing.T, handler func(ws *gws.Conn, r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		handler(ws, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type collector struct {
	mu     sync.Mutex
	events []transcript.Event
	got    chan struct{}
}

func newCollector() *collector { return &collector{got: make(chan struct{}, 16)} }

func (c *collector) handle(ev transcript.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []transcript.Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transcript.Event(nil), c.events...)
}

func TestClientRoundTrip(t *testing.T) {
	received := make(chan []byte, 4)
	auth := make(chan string, 1)

	endpoint := newBackend(t, func(ws *gws.Conn, r *http.Request) {
		auth <- r.Header.Get("Authorization")

		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType == gws.BinaryMessage {
			received <- data
		}

		ws.WriteMessage(gws.TextMessage, []byte(`{"event":"transcript","data":{"channel":{"alternatives":[{"transcript":"hel"}]}}}`))
		ws.WriteMessage(gws.TextMessage, []byte(`{"type":"Metadata"}`))
		ws.WriteMessage(gws.TextMessage, []byte(`{"is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`))

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	client := NewClient(Options{APIKey: "secret", Logger: zerolog.Nop()})
	col := newCollector()
	client.OnEvent(col.handle)

	connected := make(chan struct{}, 1)
	client.OnConnect(func() { connected <- struct{}{} })

	if err := client.Connect(context.Background(), endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-connected
	if !client.Connected() {
		t.Fatal("expected client to be connected")
	}
	if got := <-auth; got != "Token secret" {
		t.Errorf("expected Authorization 'Token secret', got %q", got)
	}

	client.SendChunk(model.AudioChunk{})
	client.SendChunk(model.AudioChunk{Data: []byte("audio"), Seq: 1})

	select {
	case data := <-received:
		if string(data) != "audio" {
			t.Errorf("expected 'audio', got %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backend did not receive chunk")
	}

	events := col.wait(t, 2)
	want := []transcript.Event{{Text: "hel"}, {Text: "hello", IsFinal: true}}
	if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
		t.Errorf("expected %+v, got %+v", want, events)
	}

	if err := client.Disconnect(); err != nil {
		t.Errorf("Disconnect: %v", err)
	}

	stats := client.Stats()
	if stats.ChunksSent != 1 {
		t.Errorf("expected 1 chunk sent, got %d", stats.ChunksSent)
	}
	if stats.EventsReceived != 2 {
		t.Errorf("expected 2 events received, got %d", stats.EventsReceived)
	}
	if stats.Malformed != 1 {
		t.Errorf("expected 1 malformed payload, got %d", stats.Malformed)
	}
}

func TestClientDropsWhenNotOpen(t *testing.T) {
	endpoint := newBackend(t, func(ws *gws.Conn, r *http.Request) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	client := NewClient(Options{Logger: zerolog.Nop()})
	client.SendChunk(model.AudioChunk{Data: []byte("early")})

	if err := client.Connect(context.Background(), endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := client.Connect(context.Background(), endpoint); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if client.Connected() {
		t.Error("expected client to be disconnected")
	}
	client.SendChunk(model.AudioChunk{Data: []byte("late")})
	if err := client.Disconnect(); err != nil {
		t.Errorf("second Disconnect: %v", err)
	}

	stats := client.Stats()
	if stats.ChunksDropped != 2 || stats.ChunksSent != 0 {
		t.Errorf("expected 2 dropped and 0 sent, got %+v", stats)
	}
}

func TestClientRegistersCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := NewClient(Options{Registerer: reg, Logger: zerolog.Nop()})
	client.SendChunk(model.AudioChunk{Data: []byte("nowhere")})
	client.SendChunk(model.AudioChunk{Data: []byte("to go")})

	expected := `
# HELP livescribe_chunks_dropped_total Total number of audio chunks dropped because the channel was not open
# TYPE livescribe_chunks_dropped_total counter
livescribe_chunks_dropped_total 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "livescribe_chunks_dropped_total"); err != nil {
		t.Error(err)
	}
	if n := client.Stats().ChunksDropped; n != 2 {
		t.Errorf("expected Stats to report 2 dropped, got %d", n)
	}

	// A second client on its own registry starts from zero.
	other := NewClient(Options{Registerer: prometheus.NewRegistry(), Logger: zerolog.Nop()})
	if n := other.Stats().ChunksDropped; n != 0 {
		t.Errorf("expected a fresh client to report 0 dropped, got %d", n)
	}
}

func TestClientServerClose(t *testing.T) {
	endpoint := newBackend(t, func(ws *gws.Conn, r *http.Request) {
		ws.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseGoingAway, "bye"))
	})

	client := NewClient(Options{Logger: zerolog.Nop()})
	lost := make(chan error, 1)
	client.OnDisconnect(func(err error) { lost <- err })

	if err := client.Connect(context.Background(), endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case err := <-lost:
		if err == nil {
			t.Error("expected a non-nil reason for a server-side close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called")
	}
	if client.Connected() {
		t.Error("expected client to be disconnected")
	}
}

func TestClientDialFailure(t *testing.T) {
	client := NewClient(Options{Logger: zerolog.Nop(), HandshakeTimeout: time.Second})
	err := client.Connect(context.Background(), "ws://127.0.0.1:1/listen")
	if err == nil {
		t.Fatal("expected dial error")
	}
	if client.Connected() {
		t.Error("expected client to stay disconnected")
	}
}
