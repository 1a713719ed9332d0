// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_coach

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	internal_persona "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/persona"
	internal_transcript "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/transcript"
	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
)

var ErrEmptyTranscript = errors.New("transcript has no turns to analyze")

const (
	analysisMaxTokens   = 4000
	analysisTemperature = 0.3
	summaryMaxTokens    = 200
	summaryTemperature  = 0.5
	defaultTimeout      = 90 * time.Second
)

var (
	overallPattern  = regexp.MustCompile(`OVERALL SCORE:\s*(\d+(?:\.\d+)?)/10`)
	categoryPattern = map[string]*regexp.Regexp{
		"discovery":             categoryScore("Discovery & Qualification"),
		"objection_handling":    categoryScore("Objection Handling"),
		"value_articulation":    categoryScore("Value Articulation"),
		"relationship_building": categoryScore("Relationship Building"),
		"call_control":          categoryScore("Call Control & Structure"),
		"closing":               categoryScore("Closing & Next Steps"),
	}
)

func categoryScore(label string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(label) + `:\*\*\s*(\d+(?:\.\d+)?)/10`)
}

// Store is the part of the transcript store the coach reads and writes.
type Store interface {
	Get(ctx context.Context, callID string) (*internal_transcript.Transcript, error)
	SaveFeedback(ctx context.Context, fb *internal_transcript.CoachFeedback) error
	GetFeedback(ctx context.Context, callID string) (*internal_transcript.CoachFeedback, error)
}

type Coach interface {
	// Analyze scores a stored call and persists the feedback.
	Analyze(ctx context.Context, callID string) (*internal_transcript.CoachFeedback, error)
	// Summary describes the call in two or three sentences. It is not stored.
	Summary(ctx context.Context, callID string) (string, error)
	// Feedback returns previously stored feedback.
	Feedback(ctx context.Context, callID string) (*internal_transcript.CoachFeedback, error)
}

type Options struct {
	SystemPrompt string
	Model        string
	Timeout      time.Duration
}

type salesCoach struct {
	logger  commons.Logger
	backend internal_persona.Backend
	store   Store
	opts    Options
}

func NewCoach(logger commons.Logger, backend internal_persona.Backend, store Store, opts Options) Coach {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &salesCoach{logger: logger, backend: backend, store: store, opts: opts}
}

// load returns the latest session recorded for callID and its prompt text.
func (c *salesCoach) load(ctx context.Context, callID string) (*internal_transcript.Transcript, string, error) {
	t, err := c.store.Get(ctx, callID)
	if err != nil {
		return nil, "", err
	}
	if len(t.Turns) == 0 {
		return nil, "", ErrEmptyTranscript
	}
	return t, FormatTranscript(t.Turns), nil
}

func (c *salesCoach) complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	text, err := c.backend.Complete(ctx, internal_persona.CompletionRequest{
		System:      c.opts.SystemPrompt,
		Messages:    []internal_persona.Message{{Role: internal_persona.RoleUser, Text: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("coach request failed: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", internal_persona.ErrEmptyReply
	}
	return text, nil
}

func (c *salesCoach) Analyze(ctx context.Context, callID string) (*internal_transcript.CoachFeedback, error) {
	requestID := uuid.NewString()
	start := time.Now()
	defer func() { c.logger.Benchmark("coach.Analyze", time.Since(start)) }()

	record, transcript, err := c.load(ctx, callID)
	if err != nil {
		return nil, err
	}
	c.logger.Infow("analyzing call", "callId", callID, "requestId", requestID, "backend", c.backend.Name())

	text, err := c.complete(ctx, fmt.Sprintf(analysisTemplate, transcript), analysisMaxTokens, analysisTemperature)
	if err != nil {
		c.logger.Errorw("coach analysis failed", "callId", callID, "requestId", requestID, "error", err)
		return nil, err
	}

	scores := ExtractScores(text)
	fb := &internal_transcript.CoachFeedback{
		RecordID:             record.RecordID,
		CallID:               callID,
		OverallScore:         scores["overall"],
		Discovery:            scores["discovery"],
		ObjectionHandling:    scores["objection_handling"],
		ValueArticulation:    scores["value_articulation"],
		RelationshipBuilding: scores["relationship_building"],
		CallControl:          scores["call_control"],
		Closing:              scores["closing"],
		Feedback:             text,
		Model:                c.opts.Model,
	}
	if err := c.store.SaveFeedback(ctx, fb); err != nil {
		return nil, err
	}
	c.logger.Infow("call analyzed", "callId", callID, "requestId", requestID, "overall", fb.OverallScore)
	return fb, nil
}

func (c *salesCoach) Summary(ctx context.Context, callID string) (string, error) {
	_, transcript, err := c.load(ctx, callID)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, fmt.Sprintf(summaryTemplate, transcript), summaryMaxTokens, summaryTemperature)
}

func (c *salesCoach) Feedback(ctx context.Context, callID string) (*internal_transcript.CoachFeedback, error) {
	return c.store.GetFeedback(ctx, callID)
}

// FormatTranscript renders turns as speaker-labelled paragraphs. The persona
// plays the prospect and the caller is the salesperson being coached.
func FormatTranscript(turns []internal_type.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "SALESPERSON"
		if t.Speaker == internal_type.SpeakerPersona {
			speaker = "PROSPECT"
		}
		lines = append(lines, speaker+": "+t.Text)
	}
	return strings.Join(lines, "\n\n")
}

// ExtractScores pulls the overall and per-category scores out of coach
// feedback. Categories the coach did not score are absent.
func ExtractScores(feedback string) map[string]float64 {
	scores := make(map[string]float64, len(categoryPattern)+1)
	if v, ok := firstScore(overallPattern, feedback); ok {
		scores["overall"] = v
	}
	for key, re := range categoryPattern {
		if v, ok := firstScore(re, feedback); ok {
			scores[key] = v
		}
	}
	return scores
}

func firstScore(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
