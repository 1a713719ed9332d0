// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/connectors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTranscriptNotFound = errors.New("transcript not found")
	ErrFeedbackNotFound   = errors.New("coach feedback not found")
)

// Store persists call transcripts and coaching feedback.
//
// A transcript record belongs to one call session. Carriers may reuse a call
// id once the first session is closed, so writes address the record id handed
// out by Begin and reads by call id resolve to the most recent session.
//
// Every write is idempotent: carriers deliver lifecycle webhooks at least
// once and a session re-appends its whole history when it closes, so the same
// row can legitimately be written more than once.
type Store interface {
	// Migrate creates or updates the tables owned by the store.
	Migrate(ctx context.Context) error

	// Begin creates the record for a call session and returns its id. A
	// second Begin with the same call id and start time returns the same id.
	Begin(ctx context.Context, callID, caller, persona string, startedAt time.Time) (uint64, error)

	// Append stores one turn. Turns are deduplicated by (record, seq).
	Append(ctx context.Context, recordID uint64, turn internal_type.Turn) error

	// Flush marks the record closed with its end time and reason.
	Flush(ctx context.Context, recordID uint64, endedAt time.Time, reason string) error

	// Get returns the most recent session recorded for the call id.
	Get(ctx context.Context, callID string) (*Transcript, error)

	// List returns one summary per session, most recently started first.
	List(ctx context.Context, limit, offset int) ([]*TranscriptSummary, error)

	// OpenRecords returns sessions that were begun but never flushed.
	OpenRecords(ctx context.Context) ([]OpenRecord, error)

	// SaveFeedback upserts feedback for fb.RecordID.
	SaveFeedback(ctx context.Context, fb *CoachFeedback) error
	// GetFeedback returns feedback for the most recent session of the call id.
	GetFeedback(ctx context.Context, callID string) (*CoachFeedback, error)
}

type sqlStore struct {
	sql    connectors.SQLConnector
	logger commons.Logger
}

// NewStore creates a transcript store on top of a gorm connection.
func NewStore(sql connectors.SQLConnector, logger commons.Logger) Store {
	return &sqlStore{
		sql:    sql,
		logger: logger,
	}
}

func (s *sqlStore) Migrate(ctx context.Context) error {
	if err := s.sql.DB(ctx).AutoMigrate(&TranscriptRecord{}, &TranscriptTurn{}, &CoachFeedback{}); err != nil {
		return fmt.Errorf("failed to migrate transcript tables: %w", err)
	}
	return nil
}

func (s *sqlStore) Begin(ctx context.Context, callID, caller, persona string, startedAt time.Time) (uint64, error) {
	// postgres keeps microseconds; lookups must compare the stored value
	startedAt = startedAt.UTC().Truncate(time.Microsecond)
	record := &TranscriptRecord{
		CallID:    callID,
		Caller:    caller,
		Persona:   persona,
		Status:    StatusOpen,
		StartedAt: startedAt,
	}
	db := s.sql.DB(ctx)
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "call_id"}, {Name: "started_at"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to begin transcript %s: %w", callID, result.Error)
	}
	if result.RowsAffected == 0 || record.Id == 0 {
		var existing TranscriptRecord
		if err := db.Select("id").
			Where("call_id = ? AND started_at = ?", callID, startedAt).
			First(&existing).Error; err != nil {
			return 0, fmt.Errorf("failed to resolve transcript %s: %w", callID, err)
		}
		record.Id = existing.Id
	}

	s.logger.Debugf("began transcript: callId=%s, recordId=%d, caller=%s", callID, record.Id, caller)
	return record.Id, nil
}

func (s *sqlStore) Append(ctx context.Context, recordID uint64, turn internal_type.Turn) error {
	row := &TranscriptTurn{
		RecordID: recordID,
		Seq:      turn.Seq,
		Speaker:  turn.Speaker.String(),
		Text:     turn.Text,
		SpokenAt: turn.Timestamp.UTC(),
	}
	db := s.sql.DB(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}, {Name: "seq"}},
		DoNothing: true,
	}).Create(row).Error; err != nil {
		return fmt.Errorf("failed to append turn %d to transcript %d: %w", turn.Seq, recordID, err)
	}

	s.logger.Debugf("appended turn: recordId=%d, seq=%d, speaker=%s", recordID, turn.Seq, turn.Speaker)
	return nil
}

func (s *sqlStore) Flush(ctx context.Context, recordID uint64, endedAt time.Time, reason string) error {
	db := s.sql.DB(ctx)
	result := db.Model(&TranscriptRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"status":       StatusClosed,
			"ended_at":     endedAt.UTC(),
			"close_reason": reason,
			"updated_date": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to flush transcript %d: %w", recordID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("flush %d: %w", recordID, ErrTranscriptNotFound)
	}

	s.logger.Debugf("flushed transcript: recordId=%d, reason=%s", recordID, reason)
	return nil
}

// latest narrows a query on transcript_records to the newest session of callID.
func latest(db *gorm.DB, callID string) *gorm.DB {
	return db.Where("call_id = ?", callID).Order("started_at DESC").Order("id DESC")
}

func (s *sqlStore) Get(ctx context.Context, callID string) (*Transcript, error) {
	db := s.sql.DB(ctx)
	var record TranscriptRecord
	err := latest(db.Preload("Turns", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("seq ASC")
	}), callID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", callID, ErrTranscriptNotFound)
		}
		return nil, fmt.Errorf("failed to get transcript %s: %w", callID, err)
	}
	return record.toTranscript(), nil
}

type summaryRow struct {
	Id            uint64
	CallID        string
	Caller        string
	StartedAt     time.Time
	EndedAt       *time.Time
	CloseReason   string
	TurnCount     int64
	FeedbackCount int64
}

func (s *sqlStore) List(ctx context.Context, limit, offset int) ([]*TranscriptSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	db := s.sql.DB(ctx)
	var rows []summaryRow
	err := db.Model(&TranscriptRecord{}).
		Select("transcript_records.id, transcript_records.call_id, transcript_records.caller, " +
			"transcript_records.started_at, transcript_records.ended_at, transcript_records.close_reason, " +
			"(SELECT COUNT(*) FROM transcript_turns WHERE transcript_turns.record_id = transcript_records.id) AS turn_count, " +
			"(SELECT COUNT(*) FROM coach_feedbacks WHERE coach_feedbacks.record_id = transcript_records.id) AS feedback_count").
		Order("transcript_records.started_at DESC").
		Order("transcript_records.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}

	out := make([]*TranscriptSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, &TranscriptSummary{
			RecordID:    r.Id,
			CallID:      r.CallID,
			Caller:      r.Caller,
			StartedAt:   r.StartedAt,
			EndedAt:     r.EndedAt,
			CloseReason: r.CloseReason,
			TurnCount:   r.TurnCount,
			HasFeedback: r.FeedbackCount > 0,
		})
	}
	return out, nil
}

func (s *sqlStore) OpenRecords(ctx context.Context) ([]OpenRecord, error) {
	var records []TranscriptRecord
	if err := s.sql.DB(ctx).
		Select("id", "call_id").
		Where("status = ?", StatusOpen).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list open transcripts: %w", err)
	}
	out := make([]OpenRecord, 0, len(records))
	for _, r := range records {
		out = append(out, OpenRecord{RecordID: r.Id, CallID: r.CallID})
	}
	return out, nil
}

func (s *sqlStore) SaveFeedback(ctx context.Context, fb *CoachFeedback) error {
	if fb.RecordID == 0 {
		return fmt.Errorf("save feedback for %s: %w", fb.CallID, ErrTranscriptNotFound)
	}
	db := s.sql.DB(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"overall_score", "discovery", "objection_handling", "value_articulation",
			"relationship_building", "call_control", "closing", "feedback", "model", "created_date",
		}),
	}).Create(fb).Error; err != nil {
		return fmt.Errorf("failed to save feedback for %s: %w", fb.CallID, err)
	}

	s.logger.Infof("saved coach feedback: callId=%s, recordId=%d, overall=%.1f", fb.CallID, fb.RecordID, fb.OverallScore)
	return nil
}

func (s *sqlStore) GetFeedback(ctx context.Context, callID string) (*CoachFeedback, error) {
	db := s.sql.DB(ctx)
	var record TranscriptRecord
	if err := latest(db.Select("id"), callID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", callID, ErrFeedbackNotFound)
		}
		return nil, fmt.Errorf("failed to get feedback %s: %w", callID, err)
	}
	var fb CoachFeedback
	if err := db.Where("record_id = ?", record.Id).First(&fb).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", callID, ErrFeedbackNotFound)
		}
		return nil, fmt.Errorf("failed to get feedback %s: %w", callID, err)
	}
	return &fb, nil
}
