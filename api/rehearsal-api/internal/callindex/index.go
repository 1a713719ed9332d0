// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callindex

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	internal_session "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/session"
	internal_transcript "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/transcript"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
)

const (
	// Uses hash tag {rehearsal:calls} so every instance key lands in the same
	// Redis Cluster slot
	activePrefix = "{rehearsal:calls}:active:"

	defaultTTL = 6 * time.Hour
)

// RecoveryStore is the part of the transcript store needed to close records
// left open by a process that died mid-call.
type RecoveryStore interface {
	OpenRecords(ctx context.Context) ([]internal_transcript.OpenRecord, error)
	Flush(ctx context.Context, recordID uint64, endedAt time.Time, reason string) error
}

// Index tracks the calls live on this instance in a Redis set, so that a
// restarted instance can find and close the transcripts it left behind.
// A nil client disables tracking; recovery then falls back to the store.
type Index struct {
	client     *redis.Client
	logger     commons.Logger
	instanceID string
	ttl        time.Duration
}

// NewIndex creates an index for this instance. An empty instanceID defaults
// to the hostname, which is stable across restarts of the same pod.
func NewIndex(client *redis.Client, logger commons.Logger, instanceID string, ttl time.Duration) *Index {
	if instanceID == "" {
		instanceID, _ = os.Hostname()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Index{
		client:     client,
		logger:     logger,
		instanceID: instanceID,
		ttl:        ttl,
	}
}

func (i *Index) Enabled() bool {
	return i != nil && i.client != nil
}

func (i *Index) key() string {
	return activePrefix + i.instanceID
}

// Track adds callID to this instance's active set and refreshes its TTL.
func (i *Index) Track(ctx context.Context, callID string) error {
	if !i.Enabled() {
		return nil
	}
	if err := i.client.SAdd(ctx, i.key(), callID).Err(); err != nil {
		return fmt.Errorf("failed to track call %s: %w", callID, err)
	}
	if err := i.client.Expire(ctx, i.key(), i.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh active call ttl: %w", err)
	}
	i.logger.Debugw("tracked active call", "callId", callID, "instance", i.instanceID)
	return nil
}

func (i *Index) Untrack(ctx context.Context, callID string) error {
	if !i.Enabled() {
		return nil
	}
	if err := i.client.SRem(ctx, i.key(), callID).Err(); err != nil {
		return fmt.Errorf("failed to untrack call %s: %w", callID, err)
	}
	return nil
}

// Orphans returns the calls this instance was tracking, sorted.
func (i *Index) Orphans(ctx context.Context) ([]string, error) {
	if !i.Enabled() {
		return nil, nil
	}
	ids, err := i.client.SMembers(ctx, i.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read active calls: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Recover closes transcripts that a previous run of this instance left open.
// With Redis only this instance's orphans are touched; without it every open
// transcript is assumed to belong to this single instance. Must run before
// the instance accepts calls. Returns the number of transcripts closed.
func (i *Index) Recover(ctx context.Context, store RecoveryStore) (int, error) {
	open, err := store.OpenRecords(ctx)
	if err != nil {
		return 0, err
	}

	candidates := open
	if i.Enabled() {
		orphans, err := i.Orphans(ctx)
		if err != nil {
			return 0, err
		}
		byCall := make(map[string][]internal_transcript.OpenRecord, len(open))
		for _, rec := range open {
			byCall[rec.CallID] = append(byCall[rec.CallID], rec)
		}
		candidates = nil
		for _, id := range orphans {
			if recs, ok := byCall[id]; ok {
				candidates = append(candidates, recs...)
				continue
			}
			i.logger.Debugw("orphaned call already closed", "callId", id)
		}
	}

	closed := 0
	now := time.Now()
	for _, rec := range candidates {
		if err := store.Flush(ctx, rec.RecordID, now, internal_session.ReasonProcessRestart); err != nil {
			i.logger.Errorw("unable to close orphaned transcript", "callId", rec.CallID, "recordId", rec.RecordID, "error", err)
			continue
		}
		i.logger.Warnw("closed orphaned transcript, unflushed turns may be lost", "callId", rec.CallID, "recordId", rec.RecordID)
		closed++
	}

	if i.Enabled() {
		if err := i.client.Del(ctx, i.key()).Err(); err != nil {
			return closed, fmt.Errorf("failed to reset active calls: %w", err)
		}
	}
	i.logger.Infof("call recovery finished: instance=%s, closed=%d", i.instanceID, closed)
	return closed, nil
}
