package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"murmur/internal/services"
	"murmur/internal/services/whisper"
)

// SpeechService is the subset of the whisper service the pipeline uses.
type SpeechService interface {
	ExtractFullAudio(ctx context.Context, source string, audioIndex int, dest string) error
	ExtractSegment(ctx context.Context, source string, audioIndex int, start, duration float64, dest string) error
	TranscribeFile(ctx context.Context, source, outputDir, language string) (whisper.TranscribeResult, error)
}

// ChunkTranscriber extracts one chunk into a standalone file and runs the
// speech model on it.
type ChunkTranscriber struct {
	svc SpeechService
}

// NewChunkTranscriber wraps a speech service.
func NewChunkTranscriber(svc SpeechService) *ChunkTranscriber {
	return &ChunkTranscriber{svc: svc}
}

// TranscribeChunk processes a single chunk. The extracted chunk file is
// removed before returning, success or not. Failures are returned rather
// than swallowed; the engine decides whether a missing chunk is tolerable.
// Returned segment timestamps are shifted to global time.
func (t *ChunkTranscriber) TranscribeChunk(ctx context.Context, source string, audioIndex int, chunk AudioChunk, workDir, language string) (ChunkResult, error) {
	result := ChunkResult{Chunk: chunk}

	chunkPath := filepath.Join(workDir, fmt.Sprintf("chunk_%03d.wav", chunk.ID))
	if err := t.svc.ExtractSegment(ctx, source, audioIndex, chunk.StartSeconds(), chunk.DurationSeconds(), chunkPath); err != nil {
		return result, services.Wrap(services.ErrChunk, "transcribe", "extract", fmt.Sprintf("chunk %d", chunk.ID), err)
	}
	defer os.Remove(chunkPath)

	info, err := os.Stat(chunkPath)
	if err != nil || info.Size() == 0 {
		return result, services.Wrap(services.ErrChunk, "transcribe", "extract", fmt.Sprintf("chunk %d produced no audio", chunk.ID), err)
	}

	transcript, err := t.svc.TranscribeFile(ctx, chunkPath, workDir, language)
	if err != nil {
		return result, services.Wrap(services.ErrChunk, "transcribe", "model", fmt.Sprintf("chunk %d", chunk.ID), err)
	}
	if len(transcript.Segments) == 0 {
		return result, services.Wrap(services.ErrChunk, "transcribe", "model", fmt.Sprintf("chunk %d returned no segments", chunk.ID), nil)
	}

	result.Segments = shiftSegments(transcript.Segments, chunk.StartSeconds())
	return result, nil
}

// shiftSegments moves chunk-local timestamps to global time.
func shiftSegments(segments []whisper.Segment, offset float64) []whisper.Segment {
	shifted := make([]whisper.Segment, len(segments))
	for i, seg := range segments {
		seg.Start += offset
		seg.End += offset
		words := make([]whisper.Word, len(seg.Words))
		for j, word := range seg.Words {
			word.Start += offset
			word.End += offset
			words[j] = word
		}
		seg.Words = words
		shifted[i] = seg
	}
	return shifted
}
