package config

const (
	defaultInboxDir = "~/.local/share/murmur/inbox"
	defaultWorkDir  = "~/.local/share/murmur/work"
	defaultLogDir   = "~/.local/share/murmur/logs"
	defaultAPIBind  = "127.0.0.1:8591"

	defaultModel               = "large"
	defaultLanguage            = "th"
	defaultFileSizeThresholdMB = 20
	defaultOptimalChunkSeconds = 180
	defaultMaxChunkSeconds     = 300
	defaultMinChunkSeconds     = 60
	defaultOverlapSeconds      = 5
	defaultSilenceThresholdDB  = -40
	defaultMinSilenceMillis    = 1000
	defaultBatchSize           = 2
	defaultDuplicateThreshold  = 0.8

	defaultQueueBackend         = "sqlite"
	defaultBackupInterval       = 300
	defaultMaxProcessingSeconds = 3600
	defaultMaxRetries           = 3

	defaultOllamaURL          = "http://localhost:11434"
	defaultRiskModel          = "qwen3:8b"
	defaultRiskTimeoutSeconds = 120

	defaultQueuePollInterval   = 1
	defaultErrorRetryInterval  = 5
	defaultMaintenanceInterval = 60
	defaultWorkers             = 1

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir: defaultInboxDir,
			WorkDir:  defaultWorkDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Transcription: Transcription{
			Model:               defaultModel,
			DefaultLanguage:     defaultLanguage,
			FileSizeThresholdMB: defaultFileSizeThresholdMB,
			OptimalChunkSeconds: defaultOptimalChunkSeconds,
			MaxChunkSeconds:     defaultMaxChunkSeconds,
			MinChunkSeconds:     defaultMinChunkSeconds,
			OverlapSeconds:      defaultOverlapSeconds,
			SilenceThresholdDB:  defaultSilenceThresholdDB,
			MinSilenceMillis:    defaultMinSilenceMillis,
			BatchSize:           defaultBatchSize,
			DuplicateThreshold:  defaultDuplicateThreshold,
			SerializeInference:  true,
		},
		Queue: Queue{
			Backend:              defaultQueueBackend,
			BackupInterval:       defaultBackupInterval,
			MaxProcessingSeconds: defaultMaxProcessingSeconds,
			MaxRetries:           defaultMaxRetries,
			FallbackToMemory:     true,
		},
		RiskDetection: RiskDetection{
			Enabled:        true,
			OllamaURL:      defaultOllamaURL,
			Model:          defaultRiskModel,
			TimeoutSeconds: defaultRiskTimeoutSeconds,
		},
		Ingest: Ingest{
			Enabled: false,
		},
		Workflow: Workflow{
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			MaintenanceInterval: defaultMaintenanceInterval,
			Workers:             defaultWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
