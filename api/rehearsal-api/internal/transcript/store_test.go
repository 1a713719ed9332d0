// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transcript

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/configs"
	"github.com/rapidaai/pitch-rehearsal/pkg/connectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Path(t.TempDir()), commons.Level("error"), commons.Console(false))
	require.NoError(t, err)

	conn := connectors.NewSQLConnector(configs.DatabaseConfig{
		Driver: "sqlite",
		SQLite: configs.SQLiteConfig{Path: filepath.Join(t.TempDir(), "transcripts.db")},
	}, logger)
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx))
	t.Cleanup(func() { _ = conn.Disconnect(context.Background()) })

	store := NewStore(conn, logger)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func turn(seq int, speaker internal_type.Speaker, text string, at time.Time) internal_type.Turn {
	return internal_type.Turn{Seq: seq, Speaker: speaker, Text: text, Timestamp: at}
}

func TestStore_BeginAppendFlushGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	id, err := store.Begin(ctx, "CA1", "+15550001111", "Sarah Chen", start)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.NoError(t, store.Append(ctx, id, turn(0, internal_type.SpeakerPersona, "Hello, Sarah Chen speaking.", start)))
	require.NoError(t, store.Append(ctx, id, turn(1, internal_type.SpeakerCaller, "I'd like to show you our inventory tool", start.Add(time.Second))))
	require.NoError(t, store.Append(ctx, id, turn(2, internal_type.SpeakerPersona, "Tell me more", start.Add(2*time.Second))))

	got, err := store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Equal(t, id, got.RecordID)
	assert.Nil(t, got.EndedAt)

	end := start.Add(time.Minute)
	require.NoError(t, store.Flush(ctx, id, end, "hangup"))

	got, err = store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status)
	assert.Equal(t, "hangup", got.CloseReason)
	assert.Equal(t, "+15550001111", got.Caller)
	require.NotNil(t, got.EndedAt)
	assert.True(t, end.Equal(*got.EndedAt))
	require.Len(t, got.Turns, 3)
	assert.Equal(t, []string{"Hello, Sarah Chen speaking.", "I'd like to show you our inventory tool", "Tell me more"},
		[]string{got.Turns[0].Text, got.Turns[1].Text, got.Turns[2].Text})
	assert.Equal(t, internal_type.SpeakerCaller, got.Turns[1].Speaker)
}

func TestStore_AppendIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.Begin(ctx, "CA2", "", "", now)
	require.NoError(t, err)
	again, err := store.Begin(ctx, "CA2", "ignored", "", now)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, id, turn(0, internal_type.SpeakerPersona, "hi", now)))
	}
	require.NoError(t, store.Append(ctx, id, turn(1, internal_type.SpeakerCaller, "hello", now)))

	got, err := store.Get(ctx, "CA2")
	require.NoError(t, err)
	assert.Len(t, got.Turns, 2)
	assert.Equal(t, "", got.Caller)
}

func TestStore_ReusedCallIDKeepsSessionsApart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	second := first.Add(10 * time.Minute)

	id1, err := store.Begin(ctx, "CA9", "", "", first)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, id1, turn(0, internal_type.SpeakerPersona, "first greeting", first)))
	require.NoError(t, store.Append(ctx, id1, turn(1, internal_type.SpeakerCaller, "first pitch", first)))
	require.NoError(t, store.Flush(ctx, id1, first.Add(time.Minute), "hangup"))

	id2, err := store.Begin(ctx, "CA9", "", "", second)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	require.NoError(t, store.Append(ctx, id2, turn(0, internal_type.SpeakerPersona, "second greeting", second)))
	require.NoError(t, store.Append(ctx, id2, turn(1, internal_type.SpeakerCaller, "second pitch", second)))
	require.NoError(t, store.Append(ctx, id2, turn(2, internal_type.SpeakerPersona, "second reply", second)))
	require.NoError(t, store.Flush(ctx, id2, second.Add(time.Minute), "idle timeout"))

	got, err := store.Get(ctx, "CA9")
	require.NoError(t, err)
	assert.Equal(t, id2, got.RecordID)
	assert.True(t, second.Equal(got.StartedAt))
	assert.Equal(t, "idle timeout", got.CloseReason)
	require.Len(t, got.Turns, 3)
	assert.Equal(t, []string{"second greeting", "second pitch", "second reply"},
		[]string{got.Turns[0].Text, got.Turns[1].Text, got.Turns[2].Text})

	list, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, id2, list[0].RecordID)
	assert.Equal(t, int64(3), list[0].TurnCount)
	assert.Equal(t, id1, list[1].RecordID)
	assert.Equal(t, int64(2), list[1].TurnCount)
	assert.Equal(t, "hangup", list[1].CloseReason)
	require.NotNil(t, list[1].EndedAt)
	assert.True(t, first.Add(time.Minute).Equal(*list[1].EndedAt))
}

func TestStore_TurnsOrderedBySeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := store.Begin(ctx, "CA3", "", "", now)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, id, turn(2, internal_type.SpeakerPersona, "c", now)))
	require.NoError(t, store.Append(ctx, id, turn(0, internal_type.SpeakerPersona, "a", now)))
	require.NoError(t, store.Append(ctx, id, turn(1, internal_type.SpeakerCaller, "b", now)))

	got, err := store.Get(ctx, "CA3")
	require.NoError(t, err)
	require.Len(t, got.Turns, 3)
	for i, tt := range got.Turns {
		assert.Equal(t, i, tt.Seq)
	}
}

func TestStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrTranscriptNotFound)

	err = store.Flush(ctx, 4242, time.Now(), "hangup")
	assert.ErrorIs(t, err, ErrTranscriptNotFound)

	_, err = store.GetFeedback(ctx, "missing")
	assert.ErrorIs(t, err, ErrFeedbackNotFound)

	err = store.SaveFeedback(ctx, &CoachFeedback{CallID: "missing", Feedback: "x"})
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	ids := map[string]uint64{}
	for i, callID := range []string{"CA-old", "CA-mid", "CA-new"} {
		id, err := store.Begin(ctx, callID, "", "", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		ids[callID] = id
	}
	require.NoError(t, store.Append(ctx, ids["CA-mid"], turn(0, internal_type.SpeakerPersona, "hi", base)))
	require.NoError(t, store.Append(ctx, ids["CA-mid"], turn(1, internal_type.SpeakerCaller, "hey", base)))
	require.NoError(t, store.SaveFeedback(ctx, &CoachFeedback{
		RecordID: ids["CA-mid"], CallID: "CA-mid", OverallScore: 7, Feedback: "ok",
	}))

	list, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "CA-new", list[0].CallID)
	assert.Equal(t, "CA-mid", list[1].CallID)
	assert.Equal(t, "CA-old", list[2].CallID)
	assert.Equal(t, int64(2), list[1].TurnCount)
	assert.True(t, list[1].HasFeedback)
	assert.False(t, list[0].HasFeedback)

	page, err := store.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "CA-mid", page[0].CallID)
}

func TestStore_OpenRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	open, err := store.Begin(ctx, "CA-open", "", "", now)
	require.NoError(t, err)
	done, err := store.Begin(ctx, "CA-done", "", "", now)
	require.NoError(t, err)
	require.NoError(t, store.Flush(ctx, done, now, "hangup"))

	records, err := store.OpenRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []OpenRecord{{RecordID: open, CallID: "CA-open"}}, records)
}

func TestStore_SaveFeedbackUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Begin(ctx, "CA4", "", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.SaveFeedback(ctx, &CoachFeedback{RecordID: id, CallID: "CA4", OverallScore: 5, Feedback: "first"}))
	require.NoError(t, store.SaveFeedback(ctx, &CoachFeedback{RecordID: id, CallID: "CA4", OverallScore: 8, Discovery: 7.5, Feedback: "second"}))

	fb, err := store.GetFeedback(ctx, "CA4")
	require.NoError(t, err)
	assert.Equal(t, 8.0, fb.OverallScore)
	assert.Equal(t, 7.5, fb.Discovery)
	assert.Equal(t, "second", fb.Feedback)
}

func TestStore_FeedbackFollowsLatestSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	id1, err := store.Begin(ctx, "CA5", "", "", first)
	require.NoError(t, err)
	require.NoError(t, store.SaveFeedback(ctx, &CoachFeedback{RecordID: id1, CallID: "CA5", OverallScore: 4, Feedback: "old"}))
	fb, err := store.GetFeedback(ctx, "CA5")
	require.NoError(t, err)
	assert.Equal(t, "old", fb.Feedback)

	_, err = store.Begin(ctx, "CA5", "", "", first.Add(time.Hour))
	require.NoError(t, err)
	_, err = store.GetFeedback(ctx, "CA5")
	assert.ErrorIs(t, err, ErrFeedbackNotFound)
}
