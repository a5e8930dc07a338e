package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/textutil"
	"murmur/internal/transcribe"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux.HandleFunc("/api/tasks/transcription", srv.handleSubmitTranscription)
	mux.HandleFunc("/api/tasks/risk-detection", srv.handleSubmitRiskDetection)
	mux.HandleFunc("/api/tasks", srv.handleTasks)
	mux.HandleFunc("/api/tasks/", srv.handleTask)
	mux.HandleFunc("/api/stats", srv.handleStats)
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/admin/backup", srv.handleBackup)
	mux.HandleFunc("/api/admin/cleanup-stuck", srv.handleCleanupStuck)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmitTranscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.SubmitTranscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.FilePath = strings.TrimSpace(req.FilePath)
	if req.FilePath == "" {
		s.writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	if !transcribe.SupportedExtension(req.FilePath) {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported audio format: %s", filepath.Ext(req.FilePath)))
		return
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = filepath.Base(req.FilePath)
	}

	task := &queue.Task{
		TaskType: queue.TypeTranscription,
		FilePath: req.FilePath,
		FileName: textutil.SanitizeFileName(fileName),
		Language: strings.TrimSpace(req.Language),
		Priority: req.Priority,
	}
	s.submit(w, r, task)
}

func (s *apiServer) handleSubmitRiskDetection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.SubmitRiskDetectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	task := &queue.Task{
		TaskType:        queue.TypeRiskDetection,
		Text:            req.Text,
		TranscriptionID: strings.TrimSpace(req.TranscriptionID),
		Priority:        req.Priority,
	}
	s.submit(w, r, task)
}

func (s *apiServer) submit(w http.ResponseWriter, r *http.Request, task *queue.Task) {
	if err := s.daemon.store.Push(r.Context(), task); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log().Info("task submitted",
		logging.String(logging.FieldTaskID, task.TaskID),
		logging.String(logging.FieldTaskType, string(task.TaskType)),
	)
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{TaskID: task.TaskID, Status: task.Status})
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	filter := queue.TaskFilter{}
	if value := strings.TrimSpace(query.Get("status")); value != "" {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		filter.Status = status
	}
	if value := strings.TrimSpace(query.Get("type")); value != "" {
		taskType := queue.TaskType(value)
		if !queue.ValidType(taskType) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown task type %q", value))
			return
		}
		filter.Type = taskType
	}
	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	tasks, err := s.daemon.store.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := api.TaskListResponse{Count: len(tasks)}
	payload.Tasks = make([]queue.Task, 0, len(tasks))
	for _, task := range tasks {
		payload.Tasks = append(payload.Tasks, *task)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		task, err := s.daemon.store.GetTask(r.Context(), taskID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if task == nil {
			s.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: *task})

	case http.MethodDelete:
		cancelled, err := s.daemon.store.CancelQueued(r.Context(), taskID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		task, err := s.daemon.store.GetTask(r.Context(), taskID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if task == nil {
			s.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		if !cancelled {
			s.writeError(w, http.StatusConflict,
				fmt.Sprintf("task is %s and can no longer be cancelled", task.Status))
			return
		}
		s.log().Info("task cancelled", logging.String(logging.FieldTaskID, taskID))
		s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: *task})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.daemon.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatsResponse{Stats: stats})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	healthy := s.daemon.store.Connected()
	status := "ok"
	if !healthy {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:         status,
		StorageHealthy: healthy,
		UptimeSeconds:  s.daemon.Uptime().Seconds(),
	})
}

func (s *apiServer) handleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.SaveBackup(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := api.BackupResponse{Saved: true}
	if last := s.daemon.LastBackup(); !last.IsZero() {
		utc := last.UTC()
		payload.LastBackup = &utc
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleCleanupStuck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reclaimed := s.daemon.ReclaimStuck(r.Context())
	s.writeJSON(w, http.StatusOK, api.CleanupResponse{Reclaimed: reclaimed})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
