// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_persona

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/utils"
)

var (
	// ErrBackendUnavailable is returned once retries are exhausted or the
	// failure is not worth retrying.
	ErrBackendUnavailable = errors.New("persona backend unavailable")
	ErrEmptyReply         = errors.New("persona backend returned an empty reply")
	errAttemptTimeout     = errors.New("persona attempt timed out")
)

// Engine produces the next persona utterance for a call.
type Engine interface {
	// GenerateReply returns the persona's next utterance for history. An
	// empty history asks for the greeting. history is never modified.
	GenerateReply(ctx context.Context, history []internal_type.Turn) (string, error)
}

type EngineOptions struct {
	SystemPrompt      string
	Timeout           time.Duration
	Retries           int
	Backoff           time.Duration
	MaxTokens         int
	GreetingMaxTokens int
	Temperature       float64
}

type engine struct {
	logger  commons.Logger
	backend Backend
	opts    EngineOptions
}

func NewEngine(logger commons.Logger, backend Backend, opts EngineOptions) Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 300
	}
	if opts.GreetingMaxTokens <= 0 {
		opts.GreetingMaxTokens = 100
	}
	return &engine{logger: logger, backend: backend, opts: opts}
}

func (e *engine) GenerateReply(ctx context.Context, history []internal_type.Turn) (string, error) {
	start := time.Now()
	defer func() {
		e.logger.Benchmark("persona.GenerateReply", time.Since(start))
	}()

	req := e.buildRequest(history)
	var lastErr error
	for attempt := 0; attempt <= e.opts.Retries; attempt++ {
		if attempt > 0 {
			wait := e.opts.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, ctx.Err())
			case <-time.After(wait):
			}
		}

		text, err := e.attempt(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsTransient(err) {
			break
		}
		e.logger.Warnw("persona attempt failed, retrying",
			"backend", e.backend.Name(), "attempt", attempt+1, "error", err)
	}
	return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, lastErr)
}

// attempt bounds one backend call by the per-request timeout even when the
// backend does not honour context cancellation.
func (e *engine) attempt(ctx context.Context, req CompletionRequest) (string, error) {
	actx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	out := make(chan result, 1)
	utils.Go(actx, func() {
		text, err := e.backend.Complete(actx, req)
		out <- result{text: text, err: err}
	})

	select {
	case r := <-out:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return "", fmt.Errorf("%w: %w", errAttemptTimeout, r.err)
			}
			return "", r.err
		}
		text := strings.TrimSpace(r.text)
		if text == "" {
			return "", ErrEmptyReply
		}
		return text, nil
	case <-actx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errAttemptTimeout
	}
}

func (e *engine) buildRequest(history []internal_type.Turn) CompletionRequest {
	maxTokens := e.opts.MaxTokens
	if len(history) == 0 {
		maxTokens = e.opts.GreetingMaxTokens
	}

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, Message{Role: RoleUser, Text: GreetingSeed})
	for _, turn := range history {
		role := RoleUser
		if turn.Speaker == internal_type.SpeakerPersona {
			role = RoleAssistant
		}
		// providers reject consecutive turns from the same role
		if last := &messages[len(messages)-1]; last.Role == role {
			last.Text = last.Text + "\n" + turn.Text
			continue
		}
		messages = append(messages, Message{Role: role, Text: turn.Text})
	}

	return CompletionRequest{
		System:      e.opts.SystemPrompt,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: e.opts.Temperature,
	}
}

// IsTransient reports whether err is worth another attempt: network errors,
// attempt timeouts and HTTP 408, 409, 429 or 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errAttemptTimeout) {
		return true
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		switch {
		case perr.StatusCode == 0,
			perr.StatusCode == http.StatusRequestTimeout,
			perr.StatusCode == http.StatusConflict,
			perr.StatusCode == http.StatusTooManyRequests,
			perr.StatusCode >= http.StatusInternalServerError:
			return true
		}
		return false
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
