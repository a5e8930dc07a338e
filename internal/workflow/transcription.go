package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"murmur/internal/queue"
	"murmur/internal/services"
	"murmur/internal/services/whisper"
	"murmur/internal/transcribe"
)

// TranscriptionHandler runs transcription tasks through the engine.
type TranscriptionHandler struct {
	engine *transcribe.Engine
	model  string
}

// NewTranscriptionHandler wires the engine into the workflow.
func NewTranscriptionHandler(engine *transcribe.Engine, model string) *TranscriptionHandler {
	return &TranscriptionHandler{engine: engine, model: model}
}

func (h *TranscriptionHandler) TaskType() queue.TaskType {
	return queue.TypeTranscription
}

// transcriptionRecord is the result document stored on completion.
type transcriptionRecord struct {
	Text     string            `json:"text"`
	Language string            `json:"language"`
	Segments []whisper.Segment `json:"segments"`
	FileName string            `json:"file_name,omitempty"`
	Model    string            `json:"model,omitempty"`
}

func (h *TranscriptionHandler) Handle(ctx context.Context, task *queue.Task, report ProgressFunc) (string, error) {
	report(ctx, 0.1)

	result, err := h.engine.TranscribeWithProgress(ctx, task.FilePath, task.Language, func(fraction float64) {
		report(ctx, fraction)
	})
	if err != nil {
		return "", err
	}
	report(ctx, 0.9)

	record := transcriptionRecord{
		Text:     result.Text,
		Language: result.Language,
		Segments: result.Segments,
		FileName: task.FileName,
		Model:    h.model,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, "transcription", "encode result",
			fmt.Sprintf("encode transcription result: %v", err), err)
	}
	return string(payload), nil
}
