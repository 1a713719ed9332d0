// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rehearsal_transcript_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_transcript "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/transcript"
	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
)

type fakeReader struct {
	transcripts map[string]*internal_transcript.Transcript
	summaries   []*internal_transcript.TranscriptSummary
	listErr     error
	gotLimit    int
	gotOffset   int
}

func (f *fakeReader) Get(_ context.Context, callID string) (*internal_transcript.Transcript, error) {
	t, ok := f.transcripts[callID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", callID, internal_transcript.ErrTranscriptNotFound)
	}
	return t, nil
}

func (f *fakeReader) List(_ context.Context, limit, offset int) ([]*internal_transcript.TranscriptSummary, error) {
	f.gotLimit, f.gotOffset = limit, offset
	return f.summaries, f.listErr
}

func serve(t *testing.T, store Reader, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, err := commons.NewApplicationLogger(
		commons.Path(t.TempDir()), commons.Level("error"), commons.Console(false))
	require.NoError(t, err)

	api := NewTranscriptApi(logger, store)
	engine := gin.New()
	engine.GET("/transcripts", api.List)
	engine.GET("/transcripts/:callId", api.Get)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestList(t *testing.T) {
	store := &fakeReader{summaries: []*internal_transcript.TranscriptSummary{
		{CallID: "CA2", TurnCount: 3},
		{CallID: "CA1", TurnCount: 5, HasFeedback: true},
	}}

	w := serve(t, store, "/transcripts?limit=2&offset=4")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, store.gotLimit)
	assert.Equal(t, 4, store.gotOffset)

	var body struct {
		Success bool                                    `json:"success"`
		Data    []internal_transcript.TranscriptSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "CA2", body.Data[0].CallID)
	assert.True(t, body.Data[1].HasFeedback)
}

func TestList_Defaults(t *testing.T) {
	store := &fakeReader{}
	w := serve(t, store, "/transcripts")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultLimit, store.gotLimit)
	assert.Equal(t, 0, store.gotOffset)
}

func TestList_BadParameters(t *testing.T) {
	for _, q := range []string{"limit=0", "limit=101", "limit=ten", "offset=-1"} {
		w := serve(t, &fakeReader{}, "/transcripts?"+q)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestList_StoreError(t *testing.T) {
	w := serve(t, &fakeReader{listErr: errors.New("db down")}, "/transcripts")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGet(t *testing.T) {
	ended := time.Now()
	store := &fakeReader{transcripts: map[string]*internal_transcript.Transcript{
		"CA1": {
			CallID:  "CA1",
			Status:  internal_transcript.StatusClosed,
			EndedAt: &ended,
			Turns: []internal_type.Turn{
				{Seq: 0, Speaker: internal_type.SpeakerPersona, Text: "Sarah Chen speaking."},
			},
		},
	}}

	w := serve(t, store, "/transcripts/CA1")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data internal_transcript.Transcript `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CA1", body.Data.CallID)
	require.Len(t, body.Data.Turns, 1)
	assert.NotNil(t, body.Data.EndedAt)

	w = serve(t, store, "/transcripts/CA404")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
