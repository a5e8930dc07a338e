package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"murmur/internal/queue"
	"murmur/internal/services"
	"murmur/internal/services/riskdetect"
)

// RiskAnalyzer is satisfied by the Ollama-backed risk client.
type RiskAnalyzer interface {
	Analyze(ctx context.Context, text string) (riskdetect.Result, error)
	Model() string
}

// RiskHandler runs risk detection tasks against a language model.
type RiskHandler struct {
	analyzer RiskAnalyzer
}

// NewRiskHandler wires the analyzer into the workflow.
func NewRiskHandler(analyzer RiskAnalyzer) *RiskHandler {
	return &RiskHandler{analyzer: analyzer}
}

func (h *RiskHandler) TaskType() queue.TaskType {
	return queue.TypeRiskDetection
}

// riskRecord is the result document stored on completion.
type riskRecord struct {
	Verdict         string `json:"verdict"`
	RawResponse     string `json:"raw_response,omitempty"`
	Model           string `json:"model,omitempty"`
	TranscriptionID string `json:"transcription_id,omitempty"`
}

func (h *RiskHandler) Handle(ctx context.Context, task *queue.Task, report ProgressFunc) (string, error) {
	if strings.TrimSpace(task.Text) == "" {
		return "", services.Wrap(services.ErrValidation, "risk-detection", "validate input",
			"task has no text to analyze", nil)
	}
	report(ctx, 0.1)

	result, err := h.analyzer.Analyze(ctx, task.Text)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "risk-detection", "analyze",
			"language model request failed", err)
	}
	report(ctx, 0.9)

	record := riskRecord{
		Verdict:         result.Verdict,
		RawResponse:     result.RawResponse,
		Model:           h.analyzer.Model(),
		TranscriptionID: task.TranscriptionID,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "risk-detection", "encode result",
			fmt.Sprintf("encode risk result: %v", err), err)
	}
	return string(payload), nil
}
