package stt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// metrics holds the channel traffic counters of one Client.
type metrics struct {
	ChunksSent     prometheus.Counter
	ChunksDropped  prometheus.Counter
	EventsReceived prometheus.Counter
	Malformed      prometheus.Counter
}

// newMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered, which keeps several clients in one process from
// colliding.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		ChunksSent: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_chunks_sent_total",
			Help: "Total number of audio chunks written to the transcription channel",
		}),
		ChunksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_chunks_dropped_total",
			Help: "Total number of audio chunks dropped because the channel was not open",
		}),
		EventsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_transcript_events_total",
			Help: "Total number of transcript events received",
		}),
		Malformed: f.NewCounter(prometheus.CounterOpts{
			Name: "livescribe_malformed_payloads_total",
			Help: "Total number of transcript payloads skipped as malformed",
		}),
	}
}

func (m *metrics) stats() Stats {
	return Stats{
		ChunksSent:     counterValue(m.ChunksSent),
		ChunksDropped:  counterValue(m.ChunksDropped),
		EventsReceived: counterValue(m.EventsReceived),
		Malformed:      counterValue(m.Malformed),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}
