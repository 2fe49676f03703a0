// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopcompliance/engine/internal/compliance"
	"github.com/shopcompliance/engine/internal/config"
	"github.com/shopcompliance/engine/internal/llm"
	"github.com/shopcompliance/engine/pkg/logging"
)

// buildLogger wires pkg/logging into the root slog.Logger every internal
// package accepts, tagging entries with the given service name.
func buildLogger(service string) *slog.Logger {
	return logging.New(logging.Config{
		Service: service,
		JSON:    true,
	})
}

// buildCallers constructs one LLMCaller per provider named in cfg.Providers.
// Each provider reads its own credentials from the environment; a provider
// listed in the config file with no usable credentials fails startup rather
// than silently degrading, since a registered-but-broken provider would
// otherwise sit in the registry accepting traffic it can never serve.
func buildCallers(ctx context.Context, cfg config.Config, logger *slog.Logger) (map[string]compliance.LLMCaller, error) {
	callers := make(map[string]compliance.LLMCaller, len(cfg.Providers))
	for _, p := range cfg.Providers {
		switch p.ID {
		case "openai":
			provider, err := llm.NewOpenAIProvider(logger)
			if err != nil {
				return nil, fmt.Errorf("configure openai provider: %w", err)
			}
			callers["openai"] = provider
		case "anthropic":
			provider, err := llm.NewAnthropicProvider(logger)
			if err != nil {
				return nil, fmt.Errorf("configure anthropic provider: %w", err)
			}
			callers["anthropic"] = provider
		case "gemini":
			provider, err := llm.NewGeminiProvider(ctx, logger)
			if err != nil {
				return nil, fmt.Errorf("configure gemini provider: %w", err)
			}
			callers["gemini"] = provider
		default:
			return nil, fmt.Errorf("unknown provider id %q", p.ID)
		}
	}
	return callers, nil
}

// buildEngine loads configuration, constructs every configured provider
// client, and wires them into a ready-to-start compliance.Engine.
func buildEngine(ctx context.Context, logger *slog.Logger) (*compliance.Engine, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("load config: %w", err)
	}

	callers, err := buildCallers(ctx, cfg, logger)
	if err != nil {
		return nil, config.Config{}, err
	}

	ec, err := config.ToEngineConfig(cfg, callers)
	if err != nil {
		return nil, config.Config{}, err
	}
	ec.Logger = logger

	engine, err := compliance.New(ec)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("construct engine: %w", err)
	}
	return engine, cfg, nil
}
