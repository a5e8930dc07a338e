package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	langpkg "murmur/internal/language"
)

// Service provides Whisper transcription capabilities.
type Service struct {
	cfg          Config
	ffmpegBinary string

	inferenceMu   sync.Mutex
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a Whisper service with the given configuration.
func NewService(cfg Config, ffmpegBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	return &Service{
		cfg:          cfg,
		ffmpegBinary: ffmpegBinary,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// CUDAEnabled returns whether CUDA is enabled.
func (s *Service) CUDAEnabled() bool {
	return s.cfg.CUDAEnabled
}

// ExtractFullAudio extracts the entire audio stream from a source file.
// This method uses the service's command runner if configured.
func (s *Service) ExtractFullAudio(ctx context.Context, source string, audioIndex int, dest string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.ffmpegBinary, "extract-full", source, dest)
	}
	return ExtractFullAudio(ctx, s.ffmpegBinary, source, audioIndex, dest)
}

// ExtractSegment extracts a time-range segment of audio from a source file.
// This method uses the service's command runner if configured.
func (s *Service) ExtractSegment(ctx context.Context, source string, audioIndex int, start, duration float64, dest string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.ffmpegBinary, "extract-segment", source, dest)
	}
	return ExtractSegment(ctx, s.ffmpegBinary, source, audioIndex, start, duration, dest)
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// TranscribeResult contains the result of a transcription.
type TranscribeResult struct {
	// Text is the plain text transcription.
	Text string
	// Segments are the timestamped segments from the model output.
	Segments []Segment
	// JSONPath is the path to the raw JSON output file.
	JSONPath string
}

// TranscribeFile transcribes an audio file and returns the segments.
// The source should be a WAV file extracted for Whisper.
// outputDir is where the model will write its output files.
func (s *Service) TranscribeFile(ctx context.Context, source, outputDir, language string) (TranscribeResult, error) {
	var result TranscribeResult

	if source == "" {
		return result, fmt.Errorf("transcribe: source path required")
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return result, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	if s.cfg.SerializeInference {
		s.inferenceMu.Lock()
		defer s.inferenceMu.Unlock()
	}

	args := s.buildArgs(source, outputDir, language)
	if err := s.run(ctx, UVXCommand, args...); err != nil {
		return result, fmt.Errorf("whisper: %w", err)
	}

	result.JSONPath = outputJSONPath(source, outputDir)
	segments, err := LoadSegments(result.JSONPath)
	if err != nil {
		return result, fmt.Errorf("whisper: load output: %w", err)
	}
	result.Segments = segments
	result.Text = joinSegmentText(segments)
	return result, nil
}

// buildArgs constructs the uvx command arguments for whisper-timestamped.
func (s *Service) buildArgs(source, outputDir, language string) []string {
	model := s.cfg.Model
	if model == "" {
		model = DefaultModel
	}

	args := []string{
		WhisperCommand,
		source,
		"--model", model,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--temperature", Temperature,
		"--verbose", "False",
	}
	if lang := langpkg.Normalize(language); lang != "" {
		args = append(args, "--language", lang)
	}
	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice)
	}
	return args
}

// outputJSONPath returns where whisper-timestamped writes its JSON output
// for the given source file.
func outputJSONPath(source, outputDir string) string {
	return filepath.Join(outputDir, filepath.Base(source)+".words.json")
}

// Word represents a single word with timing from the model output.
type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Segment represents a transcribed segment from the JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words"`
}

// whisperPayload is the JSON structure from whisper-timestamped output.
type whisperPayload struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a whisper-timestamped JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	return ParseSegments(data)
}

// ParseSegments parses whisper-timestamped JSON output.
func ParseSegments(data []byte) ([]Segment, error) {
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}
	return payload.Segments, nil
}

func joinSegmentText(segments []Segment) string {
	var parts []string
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
