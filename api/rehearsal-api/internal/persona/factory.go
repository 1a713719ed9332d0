// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_persona

import (
	"context"
	"fmt"

	"github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/config"
)

// NewBackend builds the backend selected by cfg.Provider.
func NewBackend(ctx context.Context, cfg config.PersonaConfig) (Backend, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicBackend(cfg.ApiKey, cfg.Model, cfg.BaseURL), nil
	case "openai":
		return NewOpenAIBackend(OpenAIOptions{ApiKey: cfg.ApiKey, Model: cfg.Model, BaseURL: cfg.BaseURL}), nil
	case "openrouter":
		return NewOpenRouterBackend(OpenAIOptions{
			ApiKey:      cfg.ApiKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			HttpReferer: cfg.HttpReferer,
			XTitle:      cfg.XTitle,
		}), nil
	case "gemini":
		return NewGeminiBackend(ctx, cfg.ApiKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported persona provider %q", cfg.Provider)
	}
}

// EngineOptionsFromConfig maps persona config onto engine options.
func EngineOptionsFromConfig(cfg config.PersonaConfig, systemPrompt string) EngineOptions {
	return EngineOptions{
		SystemPrompt:      systemPrompt,
		Timeout:           cfg.Timeout,
		Retries:           cfg.Retries,
		Backoff:           cfg.Backoff,
		MaxTokens:         cfg.MaxTokens,
		GreetingMaxTokens: cfg.GreetingMaxTokens,
		Temperature:       cfg.Temperature,
	}
}
