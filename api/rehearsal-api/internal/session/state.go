// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

type State int32

const (
	StateOpening State = iota
	StateAwaitingSpeech
	StatePersonaThinking
	StateSpeaking
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateAwaitingSpeech:
		return "awaiting_speech"
	case StatePersonaThinking:
		return "persona_thinking"
	case StateSpeaking:
		return "speaking"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminating reports whether the session has started or finished closing.
func (s State) Terminating() bool {
	return s == StateClosing || s == StateClosed
}

// Close reasons recorded on the transcript.
const (
	ReasonHangup         = "hangup"
	ReasonRelayClosed    = "relay closed"
	ReasonIdleTimeout    = "idle timeout"
	ReasonClosingPhrase  = "closing phrase"
	ReasonRelayFailure   = "relay failure"
	ReasonShutdown       = "shutdown"
	ReasonInternalError  = "internal error"
	ReasonProcessRestart = "process restart"
	ReasonEvicted        = "evicted"
)
