// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package llm

import "testing"

func TestNewOpenAIProvider_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIProvider(nil); err == nil {
		t.Fatal("expected an error when OPENAI_API_KEY is unset and no secret file exists")
	}
}

func TestNewAnthropicProvider_MissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAnthropicProvider(nil); err == nil {
		t.Fatal("expected an error when ANTHROPIC_API_KEY is unset and no secret file exists")
	}
}

func TestDefaultGenerationParams(t *testing.T) {
	p := DefaultGenerationParams()
	if p.Temperature == nil || p.MaxTokens == nil {
		t.Fatal("expected non-nil defaults")
	}
}
