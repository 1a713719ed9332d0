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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_persona "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/persona"
	internal_transcript "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/transcript"
	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
)

const sampleFeedback = `OVERALL SCORE: 6.5/10

## Detailed Scores
- **Discovery & Qualification:** 7/10
- **Objection Handling:** 5/10
- **Value Articulation:** 6.5/10
- **Relationship Building:** 8/10
- **Call Control & Structure:** 6/10

## Top Strengths
Good opener.`

type fakeBackend struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []internal_persona.CompletionRequest
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Complete(_ context.Context, req internal_persona.CompletionRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	return b.reply, b.err
}

func (b *fakeBackend) Last() internal_persona.CompletionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

type memStore struct {
	transcripts map[string]*internal_transcript.Transcript
	feedback    map[string]*internal_transcript.CoachFeedback
	saveErr     error
}

func newMemStore() *memStore {
	return &memStore{
		transcripts: map[string]*internal_transcript.Transcript{},
		feedback:    map[string]*internal_transcript.CoachFeedback{},
	}
}

func (m *memStore) Get(_ context.Context, callID string) (*internal_transcript.Transcript, error) {
	t, ok := m.transcripts[callID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", callID, internal_transcript.ErrTranscriptNotFound)
	}
	return t, nil
}

func (m *memStore) SaveFeedback(_ context.Context, fb *internal_transcript.CoachFeedback) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.feedback[fb.CallID] = fb
	return nil
}

func (m *memStore) GetFeedback(_ context.Context, callID string) (*internal_transcript.CoachFeedback, error) {
	fb, ok := m.feedback[callID]
	if !ok {
		return nil, internal_transcript.ErrFeedbackNotFound
	}
	return fb, nil
}

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Path(t.TempDir()), commons.Level("error"), commons.Console(false))
	require.NoError(t, err)
	return logger
}

func sampleTurns() []internal_type.Turn {
	now := time.Now()
	return []internal_type.Turn{
		{Seq: 0, Speaker: internal_type.SpeakerPersona, Text: "Sarah Chen speaking.", Timestamp: now},
		{Seq: 1, Speaker: internal_type.SpeakerCaller, Text: "I'd like to show you our inventory tool", Timestamp: now},
		{Seq: 2, Speaker: internal_type.SpeakerPersona, Text: "Tell me more", Timestamp: now},
	}
}

func newTestCoach(t *testing.T, backend *fakeBackend, store *memStore) Coach {
	return NewCoach(newTestLogger(t), backend, store, Options{Model: "gpt-4o-mini"})
}

func TestFormatTranscript(t *testing.T) {
	assert.Equal(t,
		"PROSPECT: Sarah Chen speaking.\n\nSALESPERSON: I'd like to show you our inventory tool\n\nPROSPECT: Tell me more",
		FormatTranscript(sampleTurns()))
	assert.Equal(t, "", FormatTranscript(nil))
}

func TestExtractScores(t *testing.T) {
	scores := ExtractScores(sampleFeedback)
	assert.Equal(t, map[string]float64{
		"overall":               6.5,
		"discovery":             7,
		"objection_handling":    5,
		"value_articulation":    6.5,
		"relationship_building": 8,
		"call_control":          6,
	}, scores)

	assert.Empty(t, ExtractScores("The call went fine."))
}

func TestAnalyze(t *testing.T) {
	backend := &fakeBackend{reply: sampleFeedback + "\n"}
	store := newMemStore()
	store.transcripts["CA1"] = &internal_transcript.Transcript{RecordID: 42, CallID: "CA1", Turns: sampleTurns()}
	c := newTestCoach(t, backend, store)

	fb, err := c.Analyze(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "CA1", fb.CallID)
	assert.Equal(t, uint64(42), fb.RecordID)
	assert.Equal(t, 6.5, fb.OverallScore)
	assert.Equal(t, 7.0, fb.Discovery)
	assert.Equal(t, 0.0, fb.Closing)
	assert.Equal(t, sampleFeedback, fb.Feedback)
	assert.Equal(t, "gpt-4o-mini", fb.Model)
	assert.Same(t, fb, store.feedback["CA1"])

	req := backend.Last()
	assert.Equal(t, DefaultSystemPrompt, req.System)
	assert.Equal(t, analysisMaxTokens, req.MaxTokens)
	assert.Equal(t, analysisTemperature, req.Temperature)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, internal_persona.RoleUser, req.Messages[0].Role)
	assert.True(t, strings.HasPrefix(req.Messages[0].Text, "Analyze this sales call transcript"))
	assert.Contains(t, req.Messages[0].Text, "TRANSCRIPT:\nPROSPECT: Sarah Chen speaking.")

	got, err := c.Feedback(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, fb, got)
}

func TestAnalyze_Errors(t *testing.T) {
	store := newMemStore()
	store.transcripts["CA-empty"] = &internal_transcript.Transcript{CallID: "CA-empty"}
	store.transcripts["CA1"] = &internal_transcript.Transcript{CallID: "CA1", Turns: sampleTurns()}
	ctx := context.Background()

	c := newTestCoach(t, &fakeBackend{reply: sampleFeedback}, store)
	_, err := c.Analyze(ctx, "CA-missing")
	assert.ErrorIs(t, err, internal_transcript.ErrTranscriptNotFound)

	_, err = c.Analyze(ctx, "CA-empty")
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	failing := newTestCoach(t, &fakeBackend{err: errors.New("rate limited")}, store)
	_, err = failing.Analyze(ctx, "CA1")
	assert.Error(t, err)
	assert.Empty(t, store.feedback)

	blank := newTestCoach(t, &fakeBackend{reply: "  "}, store)
	_, err = blank.Analyze(ctx, "CA1")
	assert.ErrorIs(t, err, internal_persona.ErrEmptyReply)

	_, err = c.Feedback(ctx, "CA-missing")
	assert.ErrorIs(t, err, internal_transcript.ErrFeedbackNotFound)
}

func TestSummary(t *testing.T) {
	backend := &fakeBackend{reply: "The salesperson pitched an inventory tool. Sarah asked for details."}
	store := newMemStore()
	store.transcripts["CA1"] = &internal_transcript.Transcript{CallID: "CA1", Turns: sampleTurns()}
	c := newTestCoach(t, backend, store)

	summary, err := c.Summary(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, backend.reply, summary)

	req := backend.Last()
	assert.Equal(t, summaryMaxTokens, req.MaxTokens)
	assert.Equal(t, summaryTemperature, req.Temperature)
	assert.True(t, strings.HasPrefix(req.Messages[0].Text, "Provide a brief 2-3 sentence summary"))
	assert.Empty(t, store.feedback)
}

func TestLoadSystemPrompt(t *testing.T) {
	prompt, err := LoadSystemPrompt("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemPrompt, prompt)

	_, err = LoadSystemPrompt(t.TempDir() + "/missing.txt")
	assert.Error(t, err)
}
