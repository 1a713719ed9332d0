// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transcript

import (
	"time"

	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
)

// Transcript record status constants.
const (
	StatusOpen   = "open"   // Call in progress, turns still arriving
	StatusClosed = "closed" // Flushed at call end; ended_at is set
)

// TranscriptRecord is one row per call session. A carrier call id can be
// reused after the first session closed, so (call_id, started_at) identifies
// a session and Id is what turns and feedback hang off. Records are never
// deleted; late carrier callbacks may still reference them.
type TranscriptRecord struct {
	Id          uint64     `json:"id" gorm:"type:bigint;primaryKey;autoIncrement"`
	CallID      string     `json:"callId" gorm:"column:call_id;type:varchar(64);not null;uniqueIndex:idx_transcript_record_call_start"`
	Caller      string     `json:"caller" gorm:"column:caller;type:varchar(64);not null;default:''"`
	Persona     string     `json:"persona" gorm:"column:persona;type:varchar(100);not null;default:''"`
	Status      string     `json:"status" gorm:"column:status;type:varchar(20);not null;default:open;index"`
	CloseReason string     `json:"closeReason" gorm:"column:close_reason;type:varchar(100);not null;default:''"`
	StartedAt   time.Time  `json:"startedAt" gorm:"column:started_at;type:timestamp;not null;uniqueIndex:idx_transcript_record_call_start"`
	EndedAt     *time.Time `json:"endedAt" gorm:"column:ended_at;type:timestamp;default:null"`
	CreatedDate time.Time  `json:"createdDate" gorm:"column:created_date;type:timestamp;not null;autoCreateTime"`
	UpdatedDate time.Time  `json:"updatedDate" gorm:"column:updated_date;type:timestamp;autoUpdateTime"`

	Turns []*TranscriptTurn `json:"turns" gorm:"foreignKey:RecordID;references:Id"`
}

// TranscriptTurn is keyed by (record_id, seq) so retried appends are no-ops.
type TranscriptTurn struct {
	Id       uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement"`
	RecordID uint64    `json:"recordId" gorm:"column:record_id;type:bigint;not null;uniqueIndex:idx_transcript_turn_record_seq"`
	Seq      int       `json:"seq" gorm:"column:seq;not null;uniqueIndex:idx_transcript_turn_record_seq"`
	Speaker  string    `json:"speaker" gorm:"column:speaker;type:varchar(20);not null"`
	Text     string    `json:"text" gorm:"column:text;type:text;not null"`
	SpokenAt time.Time `json:"spokenAt" gorm:"column:spoken_at;type:timestamp;not null"`
}

// CoachFeedback is the stored result of analysing one call session. Scores
// are on a 0-10 scale; zero means the coach did not report that category.
type CoachFeedback struct {
	Id                   uint64    `json:"id" gorm:"type:bigint;primaryKey;autoIncrement"`
	RecordID             uint64    `json:"recordId" gorm:"column:record_id;type:bigint;not null;uniqueIndex"`
	CallID               string    `json:"callId" gorm:"column:call_id;type:varchar(64);not null;index"`
	OverallScore         float64   `json:"overallScore" gorm:"column:overall_score;not null;default:0"`
	Discovery            float64   `json:"discovery" gorm:"column:discovery;not null;default:0"`
	ObjectionHandling    float64   `json:"objectionHandling" gorm:"column:objection_handling;not null;default:0"`
	ValueArticulation    float64   `json:"valueArticulation" gorm:"column:value_articulation;not null;default:0"`
	RelationshipBuilding float64   `json:"relationshipBuilding" gorm:"column:relationship_building;not null;default:0"`
	CallControl          float64   `json:"callControl" gorm:"column:call_control;not null;default:0"`
	Closing              float64   `json:"closing" gorm:"column:closing;not null;default:0"`
	Feedback             string    `json:"feedback" gorm:"column:feedback;type:text;not null"`
	Model                string    `json:"model" gorm:"column:model;type:varchar(100);not null;default:''"`
	CreatedDate          time.Time `json:"createdDate" gorm:"column:created_date;type:timestamp;not null;autoCreateTime"`
}

// OpenRecord identifies a session whose transcript was never flushed.
type OpenRecord struct {
	RecordID uint64
	CallID   string
}

func (TranscriptRecord) TableName() string { return "transcript_records" }
func (TranscriptTurn) TableName() string   { return "transcript_turns" }
func (CoachFeedback) TableName() string    { return "coach_feedbacks" }

// Transcript is the read model handed to callers outside the store.
type Transcript struct {
	RecordID    uint64               `json:"recordId"`
	CallID      string               `json:"callId"`
	Caller      string               `json:"caller"`
	Persona     string               `json:"persona"`
	Status      string               `json:"status"`
	CloseReason string               `json:"closeReason,omitempty"`
	StartedAt   time.Time            `json:"startedAt"`
	EndedAt     *time.Time           `json:"endedAt"`
	Turns       []internal_type.Turn `json:"turns"`
}

type TranscriptSummary struct {
	RecordID    uint64     `json:"recordId"`
	CallID      string     `json:"callId"`
	Caller      string     `json:"caller"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt"`
	CloseReason string     `json:"closeReason,omitempty"`
	TurnCount   int64      `json:"turnCount"`
	HasFeedback bool       `json:"hasFeedback"`
}

func (r *TranscriptRecord) toTranscript() *Transcript {
	t := &Transcript{
		RecordID:    r.Id,
		CallID:      r.CallID,
		Caller:      r.Caller,
		Persona:     r.Persona,
		Status:      r.Status,
		CloseReason: r.CloseReason,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		Turns:       make([]internal_type.Turn, 0, len(r.Turns)),
	}
	for _, turn := range r.Turns {
		t.Turns = append(t.Turns, internal_type.Turn{
			Seq:       turn.Seq,
			Speaker:   internal_type.Speaker(turn.Speaker),
			Text:      turn.Text,
			Timestamp: turn.SpokenAt,
		})
	}
	return t
}
