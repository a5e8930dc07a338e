package whisper

// Config captures runtime settings for whisper-timestamped operations.
type Config struct {
	// Model is the Whisper model to use (e.g., "large").
	Model string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
	// SerializeInference runs at most one transcription at a time.
	// Useful on machines where the model does not fit twice in memory.
	SerializeInference bool
}

// Whisper configuration constants.
const (
	DefaultModel = "large"
	Temperature  = "0.0"
	OutputFormat = "json"
	CPUDevice    = "cpu"
	CUDADevice   = "cuda"
)

// Command names for external tools.
const (
	UVXCommand     = "uvx"
	WhisperCommand = "whisper_timestamped"
	FFmpegCommand  = "ffmpeg"
)
