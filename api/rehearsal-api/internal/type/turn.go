// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import "time"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerCaller  Speaker = "caller"
	SpeakerPersona Speaker = "persona"
)

func (s Speaker) String() string {
	return string(s)
}

// Turn is one finalized utterance. Once appended to a session history it is
// never modified; Seq is its position in that history.
type Turn struct {
	Seq       int       `json:"seq"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CopyTurns returns an independent copy of turns.
func CopyTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
