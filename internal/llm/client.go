// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

// Package llm adapts concrete provider SDKs/HTTP APIs to the
// compliance.LLMCaller seam the Provider Manager calls through.
package llm

// GenerationParams controls sampling for a single completion request.
// Providers map the fields they support and ignore the rest.
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
}

// DefaultGenerationParams returns the parameters OpenAIProvider sends with
// every request. GeminiProvider sets the same values directly;
// AnthropicProvider does not use them.
func DefaultGenerationParams() GenerationParams {
	temp := float32(0.2)
	maxTokens := 2048
	return GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}
}
