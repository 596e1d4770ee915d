package model

import "time"

// AudioChunk is an opaque fragment of recorded audio cut from a capture
// stream at a fixed interval.
type AudioChunk struct {
	Data   []byte
	Format string
	// Seq numbers chunks within one recording, starting at 1.
	Seq uint64
	At  time.Time
}

// Size returns the number of audio bytes in the chunk.
func (c AudioChunk) Size() int { return len(c.Data) }
