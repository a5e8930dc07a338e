package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	InboxDir string `toml:"inbox_dir"`
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
}

// Transcription contains tuning for the chunked transcription engine.
type Transcription struct {
	Model string `toml:"model"`
	// DefaultLanguage is applied when a task does not specify one.
	DefaultLanguage string `toml:"default_language"`
	// FileSizeThresholdMB selects chunked processing for files above it.
	FileSizeThresholdMB int `toml:"file_size_threshold_mb"`
	OptimalChunkSeconds int `toml:"optimal_chunk_seconds"`
	MaxChunkSeconds     int `toml:"max_chunk_seconds"`
	MinChunkSeconds     int `toml:"min_chunk_seconds"`
	OverlapSeconds      int `toml:"overlap_seconds"`
	// SilenceThresholdDB is the amplitude below which audio counts as silence.
	SilenceThresholdDB int `toml:"silence_threshold_db"`
	MinSilenceMillis   int `toml:"min_silence_millis"`
	// BatchSize bounds how many chunks are in flight at once.
	BatchSize int `toml:"batch_size"`
	// DuplicateThreshold is the token-set similarity above which an
	// overlap-region segment is dropped as a repeat. Heuristic, tunable.
	DuplicateThreshold float64 `toml:"duplicate_threshold"`
	// SerializeInference forces one model invocation at a time. Chunk
	// extraction still parallelizes within a batch.
	SerializeInference bool `toml:"serialize_inference"`
	CUDAEnabled        bool `toml:"cuda_enabled"`
}

// Queue backend names accepted by Queue.Backend.
const (
	QueueBackendSQLite = "sqlite"
	QueueBackendMemory = "memory"
)

// Queue contains durability and scheduling settings for the task queue.
type Queue struct {
	// Backend selects "sqlite" (durable) or "memory" (lost on exit).
	Backend               string `toml:"backend"`
	BackupInterval        int    `toml:"backup_interval"`
	MaxProcessingSeconds  int    `toml:"max_processing_seconds"`
	MaxRetries            int    `toml:"max_retries"`
	// FallbackToMemory keeps the service up on storage failure instead of
	// refusing to start.
	FallbackToMemory bool `toml:"fallback_to_memory"`
}

// RiskDetection contains settings for the Ollama-backed risk classifier.
type RiskDetection struct {
	Enabled        bool   `toml:"enabled"`
	OllamaURL      string `toml:"ollama_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Ingest contains settings for the inbox watch folder.
type Ingest struct {
	Enabled  bool `toml:"enabled"`
	Priority int  `toml:"priority"`
}

// Workflow contains daemon timing and intervals.
type Workflow struct {
	QueuePollInterval   int `toml:"queue_poll_interval"`
	ErrorRetryInterval  int `toml:"error_retry_interval"`
	MaintenanceInterval int `toml:"maintenance_interval"`
	Workers             int `toml:"workers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for murmur.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Transcription: chunking thresholds and whisper settings
//   - Queue: backend selection, backup cadence, reclamation limits
//   - RiskDetection: Ollama connection for risk classification tasks
//   - Ingest: inbox watch folder
//   - Workflow: worker polling intervals
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Queue         Queue         `toml:"queue"`
	RiskDetection RiskDetection `toml:"risk_detection"`
	Ingest        Ingest        `toml:"ingest"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/murmur/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("murmur.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	paths := []*string{
		&c.Paths.InboxDir,
		&c.Paths.WorkDir,
		&c.Paths.LogDir,
	}
	for _, field := range paths {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InboxDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio processing.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// BackupPath returns the queue snapshot location inside the log directory.
func (c *Config) BackupPath() string {
	return filepath.Join(c.Paths.LogDir, "queue_backup.json")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
