package transcribe

import "murmur/internal/services/whisper"

// AudioChunk describes one planned time-range of the source audio.
type AudioChunk struct {
	ID      int
	StartMS int64
	EndMS   int64
}

// StartSeconds returns the chunk start in seconds.
func (c AudioChunk) StartSeconds() float64 {
	return float64(c.StartMS) / 1000
}

// EndSeconds returns the chunk end in seconds.
func (c AudioChunk) EndSeconds() float64 {
	return float64(c.EndMS) / 1000
}

// DurationSeconds returns the chunk length in seconds.
func (c AudioChunk) DurationSeconds() float64 {
	return float64(c.EndMS-c.StartMS) / 1000
}

// ChunkResult pairs a chunk descriptor with its transcript. Segment
// timestamps are already shifted to global time.
type ChunkResult struct {
	Chunk    AudioChunk
	Segments []whisper.Segment
}

// Result is the final merged transcript returned to callers.
type Result struct {
	Text     string            `json:"text"`
	Segments []whisper.Segment `json:"segments"`
	Language string            `json:"language"`
}
