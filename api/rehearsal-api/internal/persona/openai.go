// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_persona

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openaiBackend struct {
	client openai.Client
	model  string
	name   string
}

type OpenAIOptions struct {
	ApiKey  string
	Model   string
	BaseURL string
	// OpenRouter attribution headers, sent only when set.
	HttpReferer string
	XTitle      string
}

// NewOpenAIBackend talks to any chat-completions compatible endpoint.
func NewOpenAIBackend(o OpenAIOptions) Backend {
	return newOpenAICompatible("openai", o)
}

// NewOpenRouterBackend is the openai backend pointed at OpenRouter.
func NewOpenRouterBackend(o OpenAIOptions) Backend {
	if o.BaseURL == "" {
		o.BaseURL = OpenRouterBaseURL
	}
	return newOpenAICompatible("openrouter", o)
}

func newOpenAICompatible(name string, o OpenAIOptions) Backend {
	opts := []option.RequestOption{
		option.WithAPIKey(o.ApiKey),
		option.WithMaxRetries(0),
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.BaseURL))
	}
	if o.HttpReferer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", o.HttpReferer))
	}
	if o.XTitle != "" {
		opts = append(opts, option.WithHeader("X-Title", o.XTitle))
	}
	return &openaiBackend{client: openai.NewClient(opts...), model: o.Model, name: name}
}

func (b *openaiBackend) Name() string {
	return b.name
}

func (b *openaiBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Text))
			continue
		}
		msgs = append(msgs, openai.UserMessage(m.Text))
	}

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       b.model,
		Messages:    msgs,
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Provider: b.name, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}
