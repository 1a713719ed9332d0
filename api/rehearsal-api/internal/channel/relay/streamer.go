// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package channel_relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	internal_type "github.com/rapidaai/pitch-rehearsal/api/rehearsal-api/internal/type"
	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
	"github.com/rapidaai/pitch-rehearsal/pkg/utils"
)

var ErrRelayClosed = errors.New("relay connection closed")

const (
	// AnonymousCaller is recorded when the carrier does not share the caller id.
	AnonymousCaller = "anonymous"

	reasonRelayClosed = "relay closed"
	maxMessageBytes   = 64 * 1024
)

// Dispatcher receives translated relay events.
type Dispatcher interface {
	Dispatch(ev internal_type.Event) error
}

type Options struct {
	WriteTimeout time.Duration
}

// Streamer adapts one ConversationRelay websocket to relay events and
// commands. It holds no conversational state; the session owns that.
type Streamer struct {
	logger       commons.Logger
	conn         *websocket.Conn
	dispatcher   Dispatcher
	writeTimeout time.Duration
	connID       string

	writeMu sync.Mutex

	mu     sync.Mutex
	callID string
	closed bool
}

func NewStreamer(logger commons.Logger, conn *websocket.Conn, dispatcher Dispatcher, opts Options) *Streamer {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	conn.SetReadLimit(maxMessageBytes)
	return &Streamer{
		logger:       logger,
		conn:         conn,
		dispatcher:   dispatcher,
		writeTimeout: opts.WriteTimeout,
		connID:       uuid.NewString(),
	}
}

func (s *Streamer) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// Run reads carrier messages until the socket closes or ctx is done. A closed
// socket is reported to the session as an end event.
func (s *Streamer) Run(ctx context.Context) error {
	defer s.shutdown()

	stop := make(chan struct{})
	defer close(stop)
	utils.Go(ctx, func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-stop:
		}
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warnw("relay read failed", "connId", s.connID, "callId", s.CallID(), "error", err)
			}
			s.dispatchEnd()
			return nil
		}

		msg, err := DecodeInbound(raw)
		if err != nil {
			s.logger.Warnw("dropping malformed relay message", "connId", s.connID, "error", err)
			continue
		}
		s.handle(msg)
	}
}

func (s *Streamer) handle(msg *InboundMessage) {
	now := time.Now()
	switch msg.Type {
	case TypeSetup:
		s.onSetup(msg, now)

	case TypePrompt:
		callID := s.CallID()
		if callID == "" {
			s.logger.Warnw("prompt before setup dropped", "connId", s.connID)
			return
		}
		if msg.Last {
			s.dispatch(internal_type.FinalSpeechEvent{CallID: callID, Text: msg.VoicePrompt, Time: now})
			return
		}
		s.dispatch(internal_type.PartialSpeechEvent{CallID: callID, Text: msg.VoicePrompt, Time: now})

	case TypeInterrupt:
		s.logger.Infow("caller interrupted persona",
			"callId", s.CallID(), "heard", utils.Truncate(msg.UtteranceUntilInterrupt, 80), "durationMs", msg.DurationUntilInterruptMs)

	case TypeDtmf:
		s.logger.Debugw("dtmf received", "callId", s.CallID(), "digit", msg.Digit)

	case TypeError:
		s.logger.Errorw("relay reported error", "callId", s.CallID(), "description", msg.Description)

	default:
		s.logger.Debugw("unsupported relay message", "callId", s.CallID(), "type", msg.Type)
	}
}

func (s *Streamer) onSetup(msg *InboundMessage, now time.Time) {
	params, err := msg.Parameters()
	if err != nil {
		s.logger.Warnw("ignoring setup parameters", "connId", s.connID, "error", err)
	}

	callID := msg.CallSid
	if callID == "" {
		callID = params.CallSid
	}
	if callID == "" {
		s.logger.Errorw("setup without call sid", "connId", s.connID, "sessionId", msg.SessionId)
		return
	}
	caller := strings.TrimSpace(msg.From)
	if caller == "" {
		caller = strings.TrimSpace(params.Caller)
	}
	if caller == "" {
		caller = AnonymousCaller
	}

	s.mu.Lock()
	s.callID = callID
	s.mu.Unlock()

	s.logger.Infow("relay setup", "connId", s.connID, "callId", callID, "sessionId", msg.SessionId)
	s.dispatch(internal_type.OpenEvent{CallID: callID, Caller: caller, Outbound: s, Time: now})
}

func (s *Streamer) dispatch(ev internal_type.Event) {
	if err := s.dispatcher.Dispatch(ev); err != nil {
		s.logger.Warnw("relay event not delivered", "callId", ev.GetCallID(), "event", ev.Name(), "error", err)
	}
}

func (s *Streamer) dispatchEnd() {
	callID := s.CallID()
	if callID == "" {
		return
	}
	s.dispatch(internal_type.EndEvent{CallID: callID, Reason: reasonRelayClosed, Source: s, Time: time.Now()})
}

// Speak implements internal_type.Relay.
func (s *Streamer) Speak(ctx context.Context, text string) error {
	return s.writeJSON(ctx, NewTextMessage(text))
}

// Hangup implements internal_type.Relay.
func (s *Streamer) Hangup(ctx context.Context, reason string) error {
	msg, err := NewEndMessage(reason)
	if err != nil {
		return err
	}
	return s.writeJSON(ctx, msg)
}

func (s *Streamer) writeJSON(ctx context.Context, v interface{}) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrRelayClosed
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("unable to encode relay message: %w", err)
	}

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrRelayClosed, err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("relay write failed: %w", err)
	}
	return nil
}

func (s *Streamer) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(s.writeTimeout))
	_ = s.conn.Close()
}
