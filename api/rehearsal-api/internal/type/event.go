// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"context"
	"time"
)

// =============================================================================
// Relay boundary: inbound events
// =============================================================================

// Event is an inbound relay event for a single call.
type Event interface {
	GetCallID() string
	Name() string
}

// OpenEvent starts (or reattaches to) a call session. Outbound carries the
// command channel back to the carrier for this connection.
type OpenEvent struct {
	CallID   string
	Caller   string
	Outbound Relay
	Time     time.Time
}

// PartialSpeechEvent carries non-final recognized speech.
type PartialSpeechEvent struct {
	CallID string
	Text   string
	Time   time.Time
}

// FinalSpeechEvent carries the final recognition for one caller utterance.
type FinalSpeechEvent struct {
	CallID string
	Text   string
	Time   time.Time
}

// EndEvent ends the call; Reason is carrier supplied (hangup, completed, ...).
// Source is set when the end comes from a relay connection, so a session can
// tell a replaced connection closing from the call ending. Status callbacks
// leave it nil.
type EndEvent struct {
	CallID string
	Reason string
	Source Relay
	Time   time.Time
}

func (e OpenEvent) GetCallID() string          { return e.CallID }
func (e PartialSpeechEvent) GetCallID() string { return e.CallID }
func (e FinalSpeechEvent) GetCallID() string   { return e.CallID }
func (e EndEvent) GetCallID() string           { return e.CallID }

func (OpenEvent) Name() string          { return "open" }
func (PartialSpeechEvent) Name() string { return "partial_speech" }
func (FinalSpeechEvent) Name() string   { return "final_speech" }
func (EndEvent) Name() string           { return "end" }

// =============================================================================
// Relay boundary: outbound commands
// =============================================================================

// Relay accepts outbound commands for one call. A nil error from Speak is the
// dispatch acknowledgement; playback itself is managed by the carrier.
type Relay interface {
	Speak(ctx context.Context, text string) error
	Hangup(ctx context.Context, reason string) error
}
