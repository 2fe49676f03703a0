// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GeminiProvider adapts langchaingo's googleai binding to
// compliance.LLMCaller, mirroring the original system's OpenAI+Gemini
// provider pairing. It is normally registered as the secondary provider so
// a stage-2/3 call fails over to it when OpenAI is blacklisted or out of
// quota.
type GeminiProvider struct {
	model  llms.Model
	modelName string
	logger *slog.Logger
}

// NewGeminiProvider reads GOOGLE_API_KEY and GEMINI_MODEL, defaulting the
// model to gemini-1.5-flash.
func NewGeminiProvider(ctx context.Context, logger *slog.Logger) (*GeminiProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY environment variable not set")
	}
	modelName := os.Getenv("GEMINI_MODEL")
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(modelName))
	if err != nil {
		return nil, fmt.Errorf("initialize googleai client: %w", err)
	}
	return &GeminiProvider{model: client, modelName: modelName, logger: logger}, nil
}

// ID identifies this provider in the registry/blacklist/quota keying.
func (p *GeminiProvider) ID() string { return "gemini" }

// Call implements compliance.LLMCaller.
func (p *GeminiProvider) Call(ctx context.Context, prompt string) (string, int64, error) {
	resp, err := p.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, llms.WithTemperature(0.2), llms.WithMaxTokens(2048))
	if err != nil {
		return "", 0, fmt.Errorf("gemini call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("gemini returned no choices")
	}
	choice := resp.Choices[0]
	tokens := int64(0)
	if choice.GenerationInfo != nil {
		if total, ok := choice.GenerationInfo["TotalTokenCount"].(int); ok {
			tokens = int64(total)
		}
	}
	return choice.Content, tokens, nil
}
