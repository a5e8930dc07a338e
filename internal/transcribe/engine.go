package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"murmur/internal/language"
	"murmur/internal/logging"
	"murmur/internal/media/ffprobe"
	"murmur/internal/services"
)

// EngineOptions configures the orchestrator.
type EngineOptions struct {
	// FileSizeThresholdBytes selects chunked processing for larger files.
	FileSizeThresholdBytes int64
	// BatchSize bounds concurrent chunk processing within one job.
	BatchSize int
	// DefaultLanguage is used when the caller passes none.
	DefaultLanguage string
	// WorkDir holds temporary chunk and normalized files.
	WorkDir string
	// FFprobeBinary locates ffprobe.
	FFprobeBinary string

	Plan  PlanOptions
	Merge MergeOptions
}

// Prober inspects media files. It matches ffprobe.Inspect.
type Prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Engine orchestrates the transcription pipeline.
type Engine struct {
	opts        EngineOptions
	svc         SpeechService
	planner     *Planner
	transcriber *ChunkTranscriber
	probe       Prober
	logger      *slog.Logger
}

// NewEngine builds an engine from its collaborators.
func NewEngine(opts EngineOptions, svc SpeechService, planner *Planner, logger *slog.Logger) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		opts:        opts,
		svc:         svc,
		planner:     planner,
		transcriber: NewChunkTranscriber(svc),
		probe:       ffprobe.Inspect,
		logger:      logger.With(logging.String(logging.FieldComponent, "transcribe")),
	}
}

// WithProber sets a custom media prober (for testing).
func (e *Engine) WithProber(probe Prober) {
	e.probe = probe
}

// Transcribe runs the whole pipeline for one file. Large files are split
// into overlapping chunks and merged; small files get a single model call.
func (e *Engine) Transcribe(ctx context.Context, path, language string) (Result, error) {
	return e.TranscribeWithProgress(ctx, path, language, nil)
}

// TranscribeWithProgress additionally reports a completion fraction at
// pipeline checkpoints. report may be nil.
func (e *Engine) TranscribeWithProgress(ctx context.Context, path, language string, report func(fraction float64)) (Result, error) {
	var result Result

	if err := ValidateInput(path); err != nil {
		return result, err
	}
	language = e.resolveLanguage(language)

	info, err := os.Stat(path)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "transcribe", "stat", path, err)
	}

	probed, err := e.probe(ctx, e.opts.FFprobeBinary, path)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "transcribe", "probe", path, err)
	}
	audioIndex := probed.FirstAudioStreamIndex()
	if audioIndex < 0 {
		return result, services.Wrap(services.ErrValidation, "transcribe", "probe", "no audio stream in file", nil)
	}
	if count := probed.AudioStreamCount(); count > 1 {
		e.logger.Warn("multiple audio streams, using the first",
			logging.String("source", path),
			logging.Int("audio_streams", count))
	}
	durationSec := probed.DurationSeconds()
	if math.IsNaN(durationSec) || durationSec <= 0 {
		return result, services.Wrap(services.ErrValidation, "transcribe", "probe", "could not determine audio duration", nil)
	}

	tempDir, err := os.MkdirTemp(e.opts.WorkDir, "transcribe-")
	if err != nil {
		return result, services.Wrap(services.ErrTranscription, "transcribe", "workdir", "", err)
	}
	defer os.RemoveAll(tempDir)

	// Preprocessing is best effort; the original file still gets a shot
	// when normalization fails.
	source := e.preprocess(ctx, path, audioIndex, tempDir)
	if source != path {
		audioIndex = 0
	}
	if report != nil {
		report(0.3)
	}

	// Container-reported size when available, filesystem size otherwise.
	sizeBytes := probed.SizeBytes()
	if sizeBytes <= 0 {
		sizeBytes = info.Size()
	}

	if sizeBytes > e.opts.FileSizeThresholdBytes {
		e.logger.Info("chunked processing",
			logging.String("source", path),
			logging.Int64("size_bytes", sizeBytes),
			logging.Float64("duration_sec", durationSec))
		result, err = e.transcribeChunked(ctx, source, audioIndex, durationSec, tempDir, language)
	} else {
		e.logger.Info("direct processing",
			logging.String("source", path),
			logging.Int64("size_bytes", sizeBytes))
		result, err = e.transcribeDirect(ctx, source, tempDir, language)
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// resolveLanguage reduces the requested language to an ISO 639-1 base code,
// falling back to the configured default when the value is empty or not a
// recognizable language tag.
func (e *Engine) resolveLanguage(value string) string {
	return language.NormalizeOrDefault(value, e.opts.DefaultLanguage)
}

// preprocess normalizes the input to mono 16kHz WAV. On any failure the
// original path is returned so transcription still gets attempted.
func (e *Engine) preprocess(ctx context.Context, path string, audioIndex int, tempDir string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	normalized := filepath.Join(tempDir, base+"_normalized.wav")
	if err := e.svc.ExtractFullAudio(ctx, path, audioIndex, normalized); err != nil {
		e.logger.Warn("audio preprocessing failed, using original file",
			logging.String("source", path), logging.Error(err))
		return path
	}
	if info, err := os.Stat(normalized); err != nil || info.Size() == 0 {
		e.logger.Warn("audio preprocessing produced no output, using original file",
			logging.String("source", path))
		return path
	}
	return normalized
}

func (e *Engine) transcribeDirect(ctx context.Context, source, tempDir, language string) (Result, error) {
	transcript, err := e.svc.TranscribeFile(ctx, source, tempDir, language)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTranscription, "transcribe", "model", "", err)
	}
	return Result{
		Text:     transcript.Text,
		Segments: transcript.Segments,
		Language: language,
	}, nil
}

func (e *Engine) transcribeChunked(ctx context.Context, source string, audioIndex int, durationSec float64, tempDir, language string) (Result, error) {
	totalMS := int64(durationSec * 1000)
	chunks := e.planner.Plan(ctx, source, totalMS)
	e.logger.Info("planned chunks", logging.Int("chunks", len(chunks)))

	var (
		mu      sync.Mutex
		results []ChunkResult
		failed  int
	)
	for start := 0; start < len(chunks); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		var wg sync.WaitGroup
		for _, chunk := range chunks[start:end] {
			wg.Add(1)
			go func(chunk AudioChunk) {
				defer wg.Done()
				chunkResult, err := e.transcriber.TranscribeChunk(ctx, source, audioIndex, chunk, tempDir, language)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed++
					e.logger.Warn("chunk failed, excluding from merge",
						logging.Int(logging.FieldChunkID, chunk.ID), logging.Error(err))
					return
				}
				results = append(results, chunkResult)
			}(chunk)
		}
		wg.Wait()
		// Model inference holds large buffers per chunk; release them
		// before the next batch to bound memory growth on long files.
		runtime.GC()
	}

	if len(results) == 0 {
		return Result{}, services.Wrap(services.ErrTranscription, "transcribe", "chunks",
			fmt.Sprintf("all %d chunks failed to process", len(chunks)), nil)
	}
	if failed > 0 {
		e.logger.Warn("partial transcript", logging.Int("failed_chunks", failed), logging.Int("total_chunks", len(chunks)))
	}
	return Merge(results, language, e.opts.Merge), nil
}
