// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts go-openai to compliance.LLMCaller. It is typically
// registered as the primary provider, pairing with GeminiProvider as the
// secondary the way the original system paired OpenAI with Gemini.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	params GenerationParams
	logger *slog.Logger
}

// NewOpenAIProvider reads OPENAI_API_KEY (or the Podman secret file at
// /run/secrets/openai_api_key) and OPENAI_MODEL, defaulting the model to
// gpt-4o-mini.
func NewOpenAIProvider(logger *slog.Logger) (*OpenAIProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			logger.Info("read OpenAI API key from secret file", "path", secretPath)
		} else {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		logger.Warn("OPENAI_MODEL not set, defaulting", "model", model)
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
		params: DefaultGenerationParams(),
		logger: logger,
	}, nil
}

// ID identifies this provider in the registry/blacklist/quota keying.
func (p *OpenAIProvider) ID() string { return "openai" }

// Call implements compliance.LLMCaller.
func (p *OpenAIProvider) Call(ctx context.Context, prompt string) (string, int64, error) {
	systemPrompt := os.Getenv("SYSTEM_ROLE_PROMPT_PERSONA")
	if systemPrompt == "" {
		systemPrompt = "You are a shop policy compliance analyst. Respond only with the requested JSON."
	}
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if p.params.Temperature != nil {
		req.Temperature = *p.params.Temperature
	}
	if p.params.MaxTokens != nil {
		req.MaxCompletionTokens = *p.params.MaxTokens
	}
	if p.params.TopP != nil {
		req.TopP = *p.params.TopP
	}
	if len(p.params.Stop) > 0 {
		req.Stop = p.params.Stop
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("openai call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", int64(resp.Usage.TotalTokens), fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, int64(resp.Usage.TotalTokens), nil
}
