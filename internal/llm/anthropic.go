// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []systemBlock      `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *anthropicError    `json:"error,omitempty"`
}

// AnthropicProvider speaks the Anthropic Messages API directly over HTTP,
// the same way the teacher avoided a dedicated SDK dependency. It can stand
// in as a third failover provider alongside OpenAI and Gemini.
type AnthropicProvider struct {
	httpClient *http.Client
	apiKey     string
	model      string
	logger     *slog.Logger
}

// NewAnthropicProvider reads ANTHROPIC_API_KEY (or the Podman secret file at
// /run/secrets/anthropic_api_key) and CLAUDE_MODEL.
func NewAnthropicProvider(logger *slog.Logger) (*AnthropicProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	model := os.Getenv("CLAUDE_MODEL")

	if apiKey == "" {
		if content, err := os.ReadFile("/run/secrets/anthropic_api_key"); err == nil {
			apiKey = strings.TrimSpace(string(content))
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing")
	}
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		logger:     logger,
	}, nil
}

// ID identifies this provider in the registry/blacklist/quota keying.
func (p *AnthropicProvider) ID() string { return "anthropic" }

// Call implements compliance.LLMCaller.
func (p *AnthropicProvider) Call(ctx context.Context, prompt string) (string, int64, error) {
	systemPrompt := os.Getenv("SYSTEM_ROLE_PROMPT_PERSONA")
	if systemPrompt == "" {
		systemPrompt = "You are a shop policy compliance analyst. Respond only with the requested JSON."
	}

	payload := anthropicRequest{
		Model:     p.model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		System:    []systemBlock{{Type: "text", Text: systemPrompt}},
		MaxTokens: 4096,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build anthropic request: %w", err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("anthropic http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("anthropic api returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", 0, fmt.Errorf("parse anthropic response: %w", err)
	}
	if apiResp.Error != nil {
		return "", 0, fmt.Errorf("anthropic api error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", 0, fmt.Errorf("anthropic response contained no text content")
	}

	tokens := apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens
	return text.String(), tokens, nil
}
