// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	internal_persona "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/persona"
	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/utils"
)

var (
	ErrUnknownCallID  = errors.New("unknown call id")
	ErrRegistryClosed = errors.New("session registry is shut down")
)

const defaultTombstoneTTL = 2 * time.Minute

// SessionInfo is a point in time view of a live session for diagnostics.
type SessionInfo struct {
	CallID    string    `json:"callId"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry maps call ids to live sessions. It is the only state shared
// between calls.
type Registry struct {
	ctx     context.Context
	logger  commons.Logger
	engine  internal_persona.Engine
	store   TranscriptWriter
	index   ActiveIndex
	hangups CallTerminator
	opts    Options

	tombstoneTTL time.Duration

	mu         sync.Mutex
	sessions   map[string]*Session
	tombstones map[string]time.Time
	closed     bool
	wg         sync.WaitGroup
}

type RegistryOption func(*Registry)

// WithTombstoneTTL sets how long a closed call id is remembered so late
// duplicate deliveries are recognised.
func WithTombstoneTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.tombstoneTTL = ttl }
}

// WithActiveIndex tracks live calls in idx.
func WithActiveIndex(idx ActiveIndex) RegistryOption {
	return func(r *Registry) { r.index = idx }
}

// WithCallTerminator lets sessions drop a call through the carrier when the
// relay socket is gone.
func WithCallTerminator(t CallTerminator) RegistryOption {
	return func(r *Registry) { r.hangups = t }
}

// NewRegistry creates a registry whose sessions live until ctx is cancelled
// at the latest.
func NewRegistry(ctx context.Context, logger commons.Logger, engine internal_persona.Engine,
	store TranscriptWriter, opts Options, ropts ...RegistryOption) *Registry {
	r := &Registry{
		ctx:          ctx,
		logger:       logger,
		engine:       engine,
		store:        store,
		opts:         opts.withDefaults(),
		tombstoneTTL: defaultTombstoneTTL,
		sessions:     make(map[string]*Session),
		tombstones:   make(map[string]time.Time),
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

// GetOrCreate returns the live session for callID, or starts a new one in
// Opening when there is none or the previous one has closed.
func (r *Registry) GetOrCreate(callID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if s, ok := r.sessions[callID]; ok && s.State() != StateClosed {
		return s, nil
	}

	s := newSession(callID, r.logger, r.engine, r.store, r.index, r.opts)
	s.hangups = r.hangups
	s.onClosed = r.release
	s.redispatch = func(ev internal_type.Event) {
		if err := r.Dispatch(ev); err != nil {
			r.logger.Warnw("unable to redispatch event", "callId", ev.GetCallID(), "event", ev.Name(), "error", err)
		}
	}
	r.sessions[callID] = s
	delete(r.tombstones, callID)
	r.wg.Add(1)
	utils.Go(r.ctx, func() {
		defer r.wg.Done()
		s.run(r.ctx)
	})
	r.logger.Debugf("created call session: callId=%s, live=%d", callID, len(r.sessions))
	return s, nil
}

// Lookup returns the live session for callID.
func (r *Registry) Lookup(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Remove evicts callID and ends its session, which still flushes its
// transcript. Removing an unknown id is a no-op.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	s, ok := r.sessions[callID]
	if ok {
		delete(r.sessions, callID)
		r.tombstones[callID] = time.Now()
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := s.Enqueue(internal_type.EndEvent{CallID: callID, Reason: ReasonEvicted, Time: time.Now()}); err != nil {
		r.logger.Debugw("evicted call session already closed", "callId", callID)
	}
}

// release evicts s only if it is still the registered session for its id;
// a newer session for the same call must survive.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.callID]; ok && cur == s {
		delete(r.sessions, s.callID)
	}
	now := time.Now()
	r.tombstones[s.callID] = now
	for id, at := range r.tombstones {
		if now.Sub(at) > r.tombstoneTTL {
			delete(r.tombstones, id)
		}
	}
}

// List returns the live call ids, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Snapshot() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionInfo{CallID: s.callID, State: s.State().String(), CreatedAt: s.createdAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out
}

func (r *Registry) recentlyClosed(callID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.tombstones[callID]
	return ok && time.Since(at) <= r.tombstoneTTL
}

// Dispatch routes an inbound event. Open creates the session when needed;
// any other event for an unknown call is logged and dropped.
func (r *Registry) Dispatch(ev internal_type.Event) error {
	callID := ev.GetCallID()
	if _, ok := ev.(internal_type.OpenEvent); ok {
		for attempt := 0; attempt < 2; attempt++ {
			s, err := r.GetOrCreate(callID)
			if err != nil {
				return err
			}
			// the session may close between lookup and enqueue
			if err = s.Enqueue(ev); !errors.Is(err, ErrSessionClosed) {
				return err
			}
		}
		return ErrSessionClosed
	}

	s, ok := r.Lookup(callID)
	if !ok {
		if r.recentlyClosed(callID) {
			r.logger.Debugw("duplicate event for closed call dropped", "callId", callID, "event", ev.Name())
			return nil
		}
		r.logger.Warnw("event for unknown call id dropped", "callId", callID, "event", ev.Name())
		return ErrUnknownCallID
	}
	if err := s.Enqueue(ev); err != nil {
		r.logger.Debugw("event for closing call dropped", "callId", callID, "event", ev.Name())
		return nil
	}
	return nil
}

// Shutdown ends every live session and waits for their transcripts to be
// flushed or for ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	r.logger.Infof("shutting down session registry: live=%d", len(live))
	for _, s := range live {
		_ = s.Enqueue(internal_type.EndEvent{CallID: s.callID, Reason: ReasonShutdown, Time: time.Now()})
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
