package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/config"
	"murmur/internal/daemon"
	"murmur/internal/deps"
	"murmur/internal/ingest"
	"murmur/internal/logging"
	"murmur/internal/media/silence"
	"murmur/internal/queue"
	"murmur/internal/services/riskdetect"
	"murmur/internal/services/whisper"
	"murmur/internal/transcribe"
	"murmur/internal/workflow"
)

func runDaemonProcess(cmdCtx context.Context, configPath string) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, resolvedPath, exists, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if exists {
		logger.Info("configuration loaded", logging.String("path", resolvedPath))
	} else {
		logger.Info("no configuration file found, using defaults")
	}

	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	for _, status := range statuses {
		if !status.Available {
			logger.Warn("external dependency unavailable; tasks needing it will fail",
				logging.String("dependency", status.Name),
				logging.String("detail", status.Detail),
			)
		}
	}
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		logger.Warn("required dependencies missing, transcription will not work",
			logging.String("binaries", strings.Join(missing, ", ")))
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "murmurd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg, logger)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	manager := workflow.NewManager(cfg, store, logger)
	registerHandlers(manager, cfg, logger)

	var watcher *ingest.Watcher
	if cfg.Ingest.Enabled {
		watcher = ingest.NewWatcher(cfg, store, logger)
	}

	d, err := daemon.New(cfg, store, logger, manager, watcher)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("murmur daemon shutting down")
	return nil
}

func registerHandlers(manager *workflow.Manager, cfg *config.Config, logger *slog.Logger) {
	speech := whisper.NewService(whisper.Config{
		Model:              cfg.Transcription.Model,
		CUDAEnabled:        cfg.Transcription.CUDAEnabled,
		SerializeInference: cfg.Transcription.SerializeInference,
	}, cfg.FFmpegBinary())

	logger.Info("transcription service configured",
		logging.String("model", cfg.Transcription.Model),
		logging.Bool("cuda", speech.CUDAEnabled()))

	detector := silence.NewDetector(
		cfg.FFmpegBinary(),
		float64(cfg.Transcription.SilenceThresholdDB),
		cfg.Transcription.MinSilenceMillis,
	)

	plan := transcribe.PlanOptions{
		OptimalSeconds: cfg.Transcription.OptimalChunkSeconds,
		MaxSeconds:     cfg.Transcription.MaxChunkSeconds,
		MinSeconds:     cfg.Transcription.MinChunkSeconds,
		OverlapSeconds: cfg.Transcription.OverlapSeconds,
	}
	engine := transcribe.NewEngine(transcribe.EngineOptions{
		FileSizeThresholdBytes: int64(cfg.Transcription.FileSizeThresholdMB) * 1024 * 1024,
		BatchSize:              cfg.Transcription.BatchSize,
		DefaultLanguage:        cfg.Transcription.DefaultLanguage,
		WorkDir:                cfg.Paths.WorkDir,
		FFprobeBinary:          cfg.FFprobeBinary(),
		Plan:                   plan,
		Merge: transcribe.MergeOptions{
			OverlapSeconds:     cfg.Transcription.OverlapSeconds,
			DuplicateThreshold: cfg.Transcription.DuplicateThreshold,
		},
	}, speech, transcribe.NewPlanner(detector, plan, logger), logger)

	manager.Register(workflow.NewTranscriptionHandler(engine, cfg.Transcription.Model))

	if cfg.RiskDetection.Enabled {
		client := riskdetect.NewClient(
			cfg.RiskDetection.OllamaURL,
			cfg.RiskDetection.Model,
			time.Duration(cfg.RiskDetection.TimeoutSeconds)*time.Second,
		)
		manager.Register(workflow.NewRiskHandler(client))
	}
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func writeSampleConfig(cmd *cobra.Command, path string) error {
	if strings.TrimSpace(path) == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = defaultPath
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := config.CreateSample(expanded); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sample configuration written to %s\n", expanded)
	return nil
}
