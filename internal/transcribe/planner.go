package transcribe

import (
	"context"
	"log/slog"
	"math"

	"murmur/internal/logging"
	"murmur/internal/media/silence"
)

// PlanOptions bounds chunk sizes for the planner.
type PlanOptions struct {
	OptimalSeconds int
	MaxSeconds     int
	MinSeconds     int
	OverlapSeconds int
}

// SilenceDetector locates silent intervals in an audio file.
type SilenceDetector interface {
	Detect(ctx context.Context, source string) ([]silence.Interval, error)
}

// Planner splits audio into overlapping chunks, preferring cuts at
// silence midpoints.
type Planner struct {
	detector SilenceDetector
	opts     PlanOptions
	logger   *slog.Logger
}

// NewPlanner creates a planner using the given silence detector.
func NewPlanner(detector SilenceDetector, opts PlanOptions, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{detector: detector, opts: opts, logger: logger}
}

// Plan returns a non-empty ordered chunk list covering [0, totalMS].
// Audio no longer than the optimal chunk duration yields a single chunk.
// If silence detection fails, planning falls back to fixed-size chunks so
// transcription never fails at this stage.
func (p *Planner) Plan(ctx context.Context, source string, totalMS int64) []AudioChunk {
	optimalMS := int64(p.opts.OptimalSeconds) * 1000
	if totalMS <= optimalMS {
		return []AudioChunk{{ID: 0, StartMS: 0, EndMS: totalMS}}
	}

	intervals, err := p.detector.Detect(ctx, source)
	if err != nil {
		p.logger.Warn("silence detection failed, using fixed-size chunks",
			logging.String("source", source), logging.Error(err))
		return p.fixedChunks(totalMS)
	}

	candidates := make([]int64, 0, len(intervals))
	for _, interval := range intervals {
		candidates = append(candidates, int64(interval.Midpoint()*1000))
	}
	return p.planWithCandidates(totalMS, candidates)
}

// planWithCandidates walks forward choosing cut points. For each chunk the
// candidate window is [ideal_end - 30% of optimal, max_end], further bounded
// below by the minimum chunk duration; the candidate closest to ideal_end
// wins. With no candidate the chunk is cut at max_end.
func (p *Planner) planWithCandidates(totalMS int64, candidates []int64) []AudioChunk {
	optimalMS := int64(p.opts.OptimalSeconds) * 1000
	maxMS := int64(p.opts.MaxSeconds) * 1000
	minMS := int64(p.opts.MinSeconds) * 1000
	overlapMS := int64(p.opts.OverlapSeconds) * 1000

	var chunks []AudioChunk
	currentStart := int64(0)
	for currentStart < totalMS {
		idealEnd := currentStart + optimalMS
		maxEnd := currentStart + maxMS

		windowLow := idealEnd - optimalMS*3/10
		if low := currentStart + minMS; low > windowLow {
			windowLow = low
		}
		windowHigh := maxEnd
		if totalMS < windowHigh {
			windowHigh = totalMS
		}

		chunkEnd := int64(-1)
		bestDistance := int64(math.MaxInt64)
		for _, candidate := range candidates {
			if candidate < windowLow || candidate > windowHigh || candidate <= currentStart {
				continue
			}
			distance := candidate - idealEnd
			if distance < 0 {
				distance = -distance
			}
			if distance < bestDistance {
				bestDistance = distance
				chunkEnd = candidate
			}
		}
		if chunkEnd < 0 {
			chunkEnd = maxEnd
		}
		if chunkEnd > totalMS {
			chunkEnd = totalMS
		}

		chunks = append(chunks, AudioChunk{ID: len(chunks), StartMS: currentStart, EndMS: chunkEnd})
		if chunkEnd >= totalMS {
			break
		}
		next := chunkEnd - overlapMS
		if next <= currentStart {
			next = currentStart + 1
		}
		currentStart = next
	}
	return chunks
}

// fixedChunks is the fallback plan: optimal-size chunks with the configured
// overlap, no silence awareness.
func (p *Planner) fixedChunks(totalMS int64) []AudioChunk {
	optimalMS := int64(p.opts.OptimalSeconds) * 1000
	overlapMS := int64(p.opts.OverlapSeconds) * 1000

	var chunks []AudioChunk
	currentStart := int64(0)
	for currentStart < totalMS {
		chunkEnd := currentStart + optimalMS
		if chunkEnd > totalMS {
			chunkEnd = totalMS
		}
		chunks = append(chunks, AudioChunk{ID: len(chunks), StartMS: currentStart, EndMS: chunkEnd})
		if chunkEnd >= totalMS {
			break
		}
		currentStart = chunkEnd - overlapMS
	}
	return chunks
}
