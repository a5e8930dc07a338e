package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateRiskDetection(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Ingest.Enabled && strings.TrimSpace(c.Paths.InboxDir) == "" {
		return errors.New("paths.inbox_dir must be set when ingest.enabled is true")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	t := c.Transcription
	if strings.TrimSpace(t.Model) == "" {
		return errors.New("transcription.model must be set")
	}
	if t.FileSizeThresholdMB <= 0 {
		return errors.New("transcription.file_size_threshold_mb must be positive")
	}
	if t.MinChunkSeconds <= 0 {
		return errors.New("transcription.min_chunk_seconds must be positive")
	}
	if t.OptimalChunkSeconds < t.MinChunkSeconds {
		return fmt.Errorf("transcription.optimal_chunk_seconds must be at least min_chunk_seconds (%d)", t.MinChunkSeconds)
	}
	if t.MaxChunkSeconds < t.OptimalChunkSeconds {
		return fmt.Errorf("transcription.max_chunk_seconds must be at least optimal_chunk_seconds (%d)", t.OptimalChunkSeconds)
	}
	if t.OverlapSeconds < 0 || t.OverlapSeconds >= t.MinChunkSeconds {
		return errors.New("transcription.overlap_seconds must be non-negative and smaller than min_chunk_seconds")
	}
	if t.MinSilenceMillis <= 0 {
		return errors.New("transcription.min_silence_millis must be positive")
	}
	if t.BatchSize <= 0 {
		return errors.New("transcription.batch_size must be positive")
	}
	if t.DuplicateThreshold < 0 || t.DuplicateThreshold > 1 {
		return errors.New("transcription.duplicate_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case QueueBackendSQLite, QueueBackendMemory:
	default:
		return fmt.Errorf("queue.backend must be \"sqlite\" or \"memory\", got %q", c.Queue.Backend)
	}
	if c.Queue.BackupInterval <= 0 {
		return errors.New("queue.backup_interval must be positive")
	}
	if c.Queue.MaxProcessingSeconds <= 0 {
		return errors.New("queue.max_processing_seconds must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return errors.New("queue.max_retries must be non-negative")
	}
	return nil
}

func (c *Config) validateRiskDetection() error {
	if !c.RiskDetection.Enabled {
		return nil
	}
	if strings.TrimSpace(c.RiskDetection.OllamaURL) == "" {
		return errors.New("risk_detection.ollama_url must be set when risk_detection.enabled is true")
	}
	if strings.TrimSpace(c.RiskDetection.Model) == "" {
		return errors.New("risk_detection.model must be set when risk_detection.enabled is true")
	}
	if c.RiskDetection.TimeoutSeconds <= 0 {
		return errors.New("risk_detection.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.MaintenanceInterval <= 0 {
		return errors.New("workflow.maintenance_interval must be positive")
	}
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	return nil
}
