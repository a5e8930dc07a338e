package transcribe

import (
	"sort"
	"strings"

	"murmur/internal/services/whisper"
	"murmur/internal/textutil"
)

// trailing segment count compared during overlap deduplication.
const dedupLookback = 3

// MergeOptions tunes overlap deduplication.
type MergeOptions struct {
	// OverlapSeconds must match the overlap the planner used.
	OverlapSeconds int
	// DuplicateThreshold is the Jaccard similarity above which a segment
	// in the overlap window counts as a repeat and is dropped.
	DuplicateThreshold float64
}

// Merge combines chunk transcripts into one globally ordered transcript.
// Chunks are sorted by start time first; caller ordering is not trusted.
// The first chunk's segments are kept unmodified. For later chunks,
// segments starting at least half an overlap before the previous chunk's
// end are clearly new and kept; segments starting earlier fall inside the
// overlap region and are kept only if they are not near-duplicates of the
// trailing retained segments.
func Merge(results []ChunkResult, language string, opts MergeOptions) Result {
	merged := Result{Language: language}
	if len(results) == 0 {
		return merged
	}

	sorted := make([]ChunkResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Chunk.StartMS < sorted[j].Chunk.StartMS
	})

	var kept []whisper.Segment
	for i, chunk := range sorted {
		if i == 0 {
			kept = append(kept, chunk.Segments...)
			continue
		}
		overlapEnd := sorted[i-1].Chunk.EndSeconds()
		keepFrom := overlapEnd - float64(opts.OverlapSeconds)*0.5
		for _, seg := range chunk.Segments {
			if seg.Start >= keepFrom {
				kept = append(kept, seg)
				continue
			}
			if !isDuplicate(seg, kept, opts.DuplicateThreshold) {
				kept = append(kept, seg)
			}
		}
	}

	merged.Segments = kept
	merged.Text = joinSegments(kept)
	return merged
}

func isDuplicate(seg whisper.Segment, kept []whisper.Segment, threshold float64) bool {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return false
	}
	start := len(kept) - dedupLookback
	if start < 0 {
		start = 0
	}
	for _, prev := range kept[start:] {
		if textutil.JaccardSimilarity(text, prev.Text) > threshold {
			return true
		}
	}
	return false
}

func joinSegments(segments []whisper.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
