package riskdetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Normalized verdicts returned by ExtractRiskResult.
const (
	VerdictRisky        = "เข้าข่ายผิด"
	VerdictClear        = "ไม่ผิด"
	VerdictInconclusive = "ไม่สามารถวิเคราะห์ได้"
)

const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "qwen3:8b"
	DefaultTimeout = 120 * time.Second

	generateEndpoint = "/api/generate"
)

// Client talks to an Ollama server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a client for the given Ollama base URL and model.
// Empty arguments fall back to the defaults. A URL that already names
// the generate endpoint is accepted and reduced to its base.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), generateEndpoint)
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model name for logging.
func (c *Client) Model() string {
	return c.model
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Result is the outcome of one risk analysis.
type Result struct {
	// Verdict is one of the normalized verdict constants.
	Verdict string
	// RawResponse is the full model answer, kept for auditing.
	RawResponse string
}

// Analyze asks the model whether the given text describes anything
// potentially illegal and normalizes the answer.
func (c *Client) Analyze(ctx context.Context, text string) (Result, error) {
	var result Result
	if strings.TrimSpace(text) == "" {
		return result, fmt.Errorf("risk detect: text required")
	}

	raw, err := c.generate(ctx, buildPrompt(text))
	if err != nil {
		return result, err
	}
	result.RawResponse = raw
	result.Verdict = ExtractRiskResult(raw)
	return result, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("risk detect: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generateEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("risk detect: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("risk detect: call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("risk detect: ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("risk detect: decode response: %w", err)
	}
	if decoded.Response == "" {
		return VerdictInconclusive, nil
	}
	return decoded.Response, nil
}

func buildPrompt(text string) string {
	var b strings.Builder
	b.WriteString("ประโยคเหล่านี้ มีข้อความที่เสี่ยงต่อการทำผิดกฎหมายหรือไม่ \n")
	b.WriteString("```\n")
	b.WriteString(text)
	b.WriteString("\n```\n")
	b.WriteString("ตอบแค่เข้าข่ายผิด หรือ ไม่ผิดเท่านั้น ไม่ต้องตอบรายละเอียดอย่างยาว")
	return b.String()
}
