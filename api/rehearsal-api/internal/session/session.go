// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	internal_persona "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/persona"
	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/utils"
)

var (
	ErrSessionClosed = errors.New("call session closed")
	ErrRelayDispatch = errors.New("relay dispatch failed")
)

const (
	FallbackReply = "Sorry, I didn't quite catch that. Could you say that again?"

	flushAttemptTimeout = 10 * time.Second
)

// TranscriptWriter is the part of the transcript store a session writes to.
// Begin hands out the record id that later writes address.
type TranscriptWriter interface {
	Begin(ctx context.Context, callID, caller, persona string, startedAt time.Time) (uint64, error)
	Append(ctx context.Context, recordID uint64, turn internal_type.Turn) error
	Flush(ctx context.Context, recordID uint64, endedAt time.Time, reason string) error
}

// ActiveIndex records which calls are live on this process.
type ActiveIndex interface {
	Track(ctx context.Context, callID string) error
	Untrack(ctx context.Context, callID string) error
}

// CallTerminator ends a call through the carrier when the relay cannot.
type CallTerminator interface {
	Terminate(ctx context.Context, callID string) error
}

type Options struct {
	IdleTimeout   time.Duration
	FlushAttempts int
	FlushBackoff  time.Duration
	InboxSize     int
	PersonaLabel  string
	// Normalize rewrites persona text before it is recorded and spoken.
	Normalize func(string) string
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.FlushAttempts <= 0 {
		o.FlushAttempts = 4
	}
	if o.FlushBackoff <= 0 {
		o.FlushBackoff = 200 * time.Millisecond
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 64
	}
	if o.Normalize == nil {
		o.Normalize = strings.TrimSpace
	}
	return o
}

// FallbackGreeting is spoken when the greeting cannot be generated.
func FallbackGreeting(label string) string {
	if label == "" {
		return "Hello, who's calling?"
	}
	return fmt.Sprintf("Hello, this is %s speaking.", label)
}

type replyResult struct {
	text     string
	err      error
	greeting bool
}

// Session orchestrates one phone call. All conversational state is owned by
// the goroutine running loop; other goroutines talk to it through Enqueue.
type Session struct {
	callID    string
	createdAt time.Time
	logger    commons.Logger
	engine    internal_persona.Engine
	store     TranscriptWriter
	index     ActiveIndex
	hangups   CallTerminator
	opts      Options

	inbox   chan internal_type.Event
	replies chan replyResult
	done    chan struct{}
	state   atomic.Int32

	// called from the session goroutine once the session is Closed
	onClosed func(*Session)
	// receives events left in the inbox after close that must not be lost
	redispatch func(internal_type.Event)

	// owned by the session goroutine
	caller         string
	recordID       uint64
	relay          internal_type.Relay
	opened         bool
	history        []internal_type.Turn
	pending        []string
	buffered       []internal_type.Event
	lastActivityAt time.Time
	endReason      string
	wrapUp         bool
	closeReason    string
	idle           *time.Timer
}

func newSession(callID string, logger commons.Logger, engine internal_persona.Engine,
	store TranscriptWriter, index ActiveIndex, opts Options) *Session {
	opts = opts.withDefaults()
	now := time.Now()
	s := &Session{
		callID:         callID,
		createdAt:      now,
		logger:         logger,
		engine:         engine,
		store:          store,
		index:          index,
		opts:           opts,
		inbox:          make(chan internal_type.Event, opts.InboxSize),
		replies:        make(chan replyResult, 1),
		done:           make(chan struct{}),
		lastActivityAt: now,
	}
	s.state.Store(int32(StateOpening))
	return s
}

func (s *Session) CallID() string       { return s.callID }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) State() State         { return State(s.state.Load()) }

// Done is closed after the session reached Closed and its flush finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// Enqueue hands an event to the session goroutine in arrival order.
func (s *Session) Enqueue(ev internal_type.Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.inbox <- ev:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.logger.Debugw("call session state", "callId", s.callID, "from", prev.String(), "to", st.String())
	}
}

func (s *Session) run(ctx context.Context) {
	defer s.drainInbox()
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("call session panicked",
				"callId", s.callID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			if !s.State().Terminating() {
				s.close(ctx, ReasonInternalError)
			}
		}
	}()

	s.idle = time.NewTimer(s.opts.IdleTimeout)
	s.idle.Stop()
	defer s.idle.Stop()

	for s.State() != StateClosed {
		select {
		case ev := <-s.inbox:
			s.handle(ctx, ev)
		case res := <-s.replies:
			s.onReply(ctx, res)
		case <-s.idle.C:
			s.onIdle(ctx)
		case <-ctx.Done():
			s.close(ctx, ReasonShutdown)
		}
	}
}

// drainInbox deals with events that raced with close.
func (s *Session) drainInbox() {
	for {
		select {
		case ev := <-s.inbox:
			if _, ok := ev.(internal_type.OpenEvent); ok && s.redispatch != nil {
				s.redispatch(ev)
				continue
			}
			s.logger.Debugw("dropping event for closed call session", "callId", s.callID, "event", ev.Name())
		default:
			return
		}
	}
}

func (s *Session) handle(ctx context.Context, ev internal_type.Event) {
	switch e := ev.(type) {
	case internal_type.OpenEvent:
		s.onOpen(ctx, e)
	case internal_type.EndEvent:
		s.onEnd(ctx, e)
	case internal_type.PartialSpeechEvent, internal_type.FinalSpeechEvent:
		if s.State() != StateAwaitingSpeech {
			s.buffered = append(s.buffered, ev)
			return
		}
		s.onSpeech(ctx, ev)
	default:
		s.logger.Warnw("unsupported event for call session", "callId", s.callID, "event", ev.Name())
	}
}

func (s *Session) onOpen(ctx context.Context, e internal_type.OpenEvent) {
	if s.opened {
		// reconnect: keep conversational state, only swap the outbound channel
		if e.Outbound != nil {
			s.relay = e.Outbound
			s.logger.Infow("call session relay rebound", "callId", s.callID, "state", s.State().String())
		} else {
			s.logger.Debugw("duplicate open ignored", "callId", s.callID)
		}
		return
	}

	s.opened = true
	s.caller = e.Caller
	s.relay = e.Outbound
	s.touch()

	if err := s.begin(ctx); err != nil {
		// retried as part of the close flush
		s.logger.Errorw("unable to begin transcript", "callId", s.callID, "error", err)
	}
	if s.index != nil {
		if err := s.index.Track(ctx, s.callID); err != nil {
			s.logger.Warnw("unable to track active call", "callId", s.callID, "error", err)
		}
	}
	s.logger.Infow("call session opened", "callId", s.callID, "caller", s.caller)

	s.requestReply(ctx, true)
}

func (s *Session) onEnd(ctx context.Context, e internal_type.EndEvent) {
	if e.Source != nil && e.Source != s.relay {
		// a replaced connection going away does not end the call
		s.logger.Debugw("end from stale relay ignored", "callId", s.callID, "reason", e.Reason)
		return
	}
	reason := e.Reason
	if reason == "" {
		reason = ReasonHangup
	}
	if s.State() == StatePersonaThinking || (s.State() == StateOpening && s.opened) {
		// the in-flight reply is discarded when it settles
		if s.endReason == "" {
			s.endReason = reason
			s.logger.Infow("call ended while persona is thinking", "callId", s.callID, "reason", reason)
		}
		return
	}
	s.close(ctx, reason)
}

func (s *Session) onSpeech(ctx context.Context, ev internal_type.Event) {
	s.touch()
	switch e := ev.(type) {
	case internal_type.PartialSpeechEvent:
		if text := strings.TrimSpace(e.Text); text != "" {
			s.pending = append(s.pending, text)
		}
	case internal_type.FinalSpeechEvent:
		text := s.finalize(e.Text)
		if text == "" {
			s.logger.Debugw("ignoring empty utterance", "callId", s.callID)
			return
		}
		s.appendTurn(ctx, internal_type.SpeakerCaller, text, e.Time)
		if IsClosingPhrase(text) {
			s.wrapUp = true
			s.logger.Infow("closing phrase detected", "callId", s.callID)
		}
		s.requestReply(ctx, false)
	}
}

// finalize resolves the caller utterance and clears the pending buffer.
func (s *Session) finalize(final string) string {
	text := strings.TrimSpace(final)
	if text == "" {
		text = strings.TrimSpace(strings.Join(s.pending, " "))
	}
	s.pending = s.pending[:0]
	return text
}

func (s *Session) appendTurn(ctx context.Context, speaker internal_type.Speaker, text string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	turn := internal_type.Turn{
		Seq:       len(s.history),
		Speaker:   speaker,
		Text:      text,
		Timestamp: at,
	}
	s.history = append(s.history, turn)
	if s.recordID == 0 {
		return
	}
	if err := s.store.Append(ctx, s.recordID, turn); err != nil {
		// retried as part of the close flush
		s.logger.Warnw("unable to append turn", "callId", s.callID, "seq", turn.Seq, "error", err)
	}
}

// requestReply runs the persona call off the session goroutine so events keep
// being received (and buffered) while the model is working.
func (s *Session) requestReply(ctx context.Context, greeting bool) {
	if !greeting {
		s.setState(StatePersonaThinking)
	}
	s.stopIdle()
	history := internal_type.CopyTurns(s.history)
	utils.Go(ctx, func() {
		defer func() {
			if r := recover(); r != nil {
				s.replies <- replyResult{err: fmt.Errorf("persona call panicked: %v", r), greeting: greeting}
			}
		}()
		text, err := s.engine.GenerateReply(ctx, history)
		s.replies <- replyResult{text: text, err: err, greeting: greeting}
	})
}

func (s *Session) onReply(ctx context.Context, res replyResult) {
	if s.endReason != "" {
		s.logger.Infow("discarding persona reply for ended call", "callId", s.callID)
		s.close(ctx, s.endReason)
		return
	}

	text := s.opts.Normalize(res.text)
	if res.err != nil || text == "" {
		if res.greeting {
			text = FallbackGreeting(s.opts.PersonaLabel)
		} else {
			text = FallbackReply
		}
		s.logger.Errorw("persona unavailable, using fallback",
			"callId", s.callID, "greeting", res.greeting, "error", res.err)
	}

	s.appendTurn(ctx, internal_type.SpeakerPersona, text, time.Now())
	s.setState(StateSpeaking)
	if err := s.speak(ctx, text); err != nil {
		s.logger.Errorw("relay dispatch failed, closing call", "callId", s.callID, "error", err)
		s.terminate(ctx)
		s.close(ctx, ReasonRelayFailure)
		return
	}

	if s.wrapUp {
		s.close(ctx, s.hangup(ctx, ReasonClosingPhrase))
		return
	}

	s.setState(StateAwaitingSpeech)
	s.touch()
	s.resetIdle()
	s.replayBuffered(ctx)
}

func (s *Session) replayBuffered(ctx context.Context) {
	for len(s.buffered) > 0 && s.State() == StateAwaitingSpeech {
		ev := s.buffered[0]
		s.buffered = s.buffered[1:]
		s.onSpeech(ctx, ev)
	}
}

// speak sends text to the relay, retrying once.
func (s *Session) speak(ctx context.Context, text string) error {
	if s.relay == nil {
		s.logger.Warnw("no relay bound, persona reply not spoken", "callId", s.callID)
		return nil
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = s.relay.Speak(ctx, text); err == nil {
			return nil
		}
		s.logger.Warnw("relay speak failed", "callId", s.callID, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%w: %w", ErrRelayDispatch, err)
}

// hangup asks the relay to end the call, retrying once, and returns the
// reason the session should close with. When the relay cannot be reached the
// carrier is asked to drop the call and the close is recorded as a relay
// failure.
func (s *Session) hangup(ctx context.Context, reason string) string {
	if s.relay == nil {
		s.terminate(ctx)
		return reason
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = s.relay.Hangup(ctx, reason); err == nil {
			return reason
		}
		s.logger.Warnw("relay hangup failed", "callId", s.callID, "reason", reason, "attempt", attempt+1, "error", err)
	}
	s.logger.Errorw("relay hangup dispatch failed, closing call",
		"callId", s.callID, "reason", reason, "error", fmt.Errorf("%w: %w", ErrRelayDispatch, err))
	s.terminate(ctx)
	return ReasonRelayFailure
}

// terminate asks the carrier to drop the call when the relay is unusable.
func (s *Session) terminate(ctx context.Context) {
	if s.hangups == nil {
		return
	}
	if err := s.hangups.Terminate(ctx, s.callID); err != nil {
		s.logger.Errorw("carrier hangup failed", "callId", s.callID, "error", err)
	}
}

func (s *Session) onIdle(ctx context.Context) {
	if s.State() != StateAwaitingSpeech {
		return
	}
	if remaining := s.opts.IdleTimeout - time.Since(s.lastActivityAt); remaining > 0 {
		s.idle.Reset(remaining)
		return
	}
	s.logger.Infow("call session idle", "callId", s.callID, "idleFor", time.Since(s.lastActivityAt).String())
	s.close(ctx, s.hangup(ctx, ReasonIdleTimeout))
}

func (s *Session) touch() {
	s.lastActivityAt = time.Now()
}

func (s *Session) resetIdle() {
	s.stopIdle()
	s.idle.Reset(s.opts.IdleTimeout)
}

func (s *Session) stopIdle() {
	if s.idle != nil && !s.idle.Stop() {
		select {
		case <-s.idle.C:
		default:
		}
	}
}

// close moves the session to Closing, flushes the transcript and ends in
// Closed. It runs on the session goroutine and is a no-op once closing.
func (s *Session) close(ctx context.Context, reason string) {
	if s.State().Terminating() {
		return
	}
	s.setState(StateClosing)
	s.closeReason = reason
	s.stopIdle()

	// speech that was said but never answered still belongs in the record
	for _, ev := range s.buffered {
		switch e := ev.(type) {
		case internal_type.PartialSpeechEvent:
			if text := strings.TrimSpace(e.Text); text != "" {
				s.pending = append(s.pending, text)
			}
		case internal_type.FinalSpeechEvent:
			if text := s.finalize(e.Text); text != "" {
				s.history = append(s.history, internal_type.Turn{
					Seq: len(s.history), Speaker: internal_type.SpeakerCaller, Text: text, Timestamp: e.Time,
				})
			}
		}
	}
	s.buffered = nil

	flushCtx := context.WithoutCancel(ctx)
	endedAt := time.Now()
	start := time.Now()
	if err := s.flush(flushCtx, endedAt, reason); err != nil {
		s.logger.Errorw("transcript data loss",
			"callId", s.callID, "reason", reason, "error", err, "history", s.history)
	}
	s.logger.Benchmark("session.flush", time.Since(start))

	if s.index != nil {
		if err := s.index.Untrack(flushCtx, s.callID); err != nil {
			s.logger.Warnw("unable to untrack active call", "callId", s.callID, "error", err)
		}
	}

	s.setState(StateClosed)
	s.logger.Infow("call session closed", "callId", s.callID, "reason", reason, "turns", len(s.history))
	if s.onClosed != nil {
		s.onClosed(s)
	}
}

// flush re-writes the whole history (appends are idempotent) and marks the
// record closed, with bounded exponential backoff between attempts.
func (s *Session) flush(ctx context.Context, endedAt time.Time, reason string) error {
	var err error
	for attempt := 0; attempt < s.opts.FlushAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.opts.FlushBackoff << (attempt - 1))
		}
		actx, cancel := context.WithTimeout(ctx, flushAttemptTimeout)
		err = s.flushOnce(actx, endedAt, reason)
		cancel()
		if err == nil {
			return nil
		}
		s.logger.Warnw("transcript flush failed", "callId", s.callID, "attempt", attempt+1, "error", err)
	}
	return err
}

func (s *Session) flushOnce(ctx context.Context, endedAt time.Time, reason string) error {
	if s.recordID == 0 {
		if err := s.begin(ctx); err != nil {
			return err
		}
	}
	for _, turn := range s.history {
		if err := s.store.Append(ctx, s.recordID, turn); err != nil {
			return err
		}
	}
	return s.store.Flush(ctx, s.recordID, endedAt, reason)
}

// begin creates the transcript record for this session. Begin is idempotent
// per (call, start time), so a retry after a lost response gets the same id.
func (s *Session) begin(ctx context.Context) error {
	id, err := s.store.Begin(ctx, s.callID, s.caller, s.opts.PersonaLabel, s.createdAt)
	if err != nil {
		return err
	}
	s.recordID = id
	return nil
}
