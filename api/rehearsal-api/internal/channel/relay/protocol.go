// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package channel_relay

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// =============================================================================
// ConversationRelay message types
// =============================================================================

type MessageType string

const (
	// carrier -> server
	TypeSetup     MessageType = "setup"
	TypePrompt    MessageType = "prompt"
	TypeInterrupt MessageType = "interrupt"
	TypeDtmf      MessageType = "dtmf"
	TypeError     MessageType = "error"

	// server -> carrier
	TypeText MessageType = "text"
	TypeEnd  MessageType = "end"
)

// InboundMessage is the union of every message the carrier sends.
type InboundMessage struct {
	Type             MessageType            `json:"type"`
	SessionId        string                 `json:"sessionId,omitempty"`
	CallSid          string                 `json:"callSid,omitempty"`
	From             string                 `json:"from,omitempty"`
	To               string                 `json:"to,omitempty"`
	Direction        string                 `json:"direction,omitempty"`
	CustomParameters map[string]interface{} `json:"customParameters,omitempty"`

	// prompt
	VoicePrompt string `json:"voicePrompt,omitempty"`
	Lang        string `json:"lang,omitempty"`
	Last        bool   `json:"last"`

	// interrupt
	UtteranceUntilInterrupt  string `json:"utteranceUntilInterrupt,omitempty"`
	DurationUntilInterruptMs int    `json:"durationUntilInterruptMs,omitempty"`

	// dtmf
	Digit string `json:"digit,omitempty"`

	// error
	Description string `json:"description,omitempty"`
}

// SetupParameters are the <Parameter> values rendered into the TwiML.
type SetupParameters struct {
	Caller  string `mapstructure:"caller"`
	CallSid string `mapstructure:"callSid"`
}

type TextMessage struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token"`
	Last  bool        `json:"last"`
}

type EndMessage struct {
	Type        MessageType `json:"type"`
	HandoffData string      `json:"handoffData,omitempty"`
}

func DecodeInbound(raw []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid relay message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("relay message without type")
	}
	return &msg, nil
}

func (m *InboundMessage) Parameters() (SetupParameters, error) {
	var p SetupParameters
	if len(m.CustomParameters) == 0 {
		return p, nil
	}
	if err := mapstructure.WeakDecode(m.CustomParameters, &p); err != nil {
		return p, fmt.Errorf("invalid setup parameters: %w", err)
	}
	return p, nil
}

func NewTextMessage(text string) TextMessage {
	return TextMessage{Type: TypeText, Token: text, Last: true}
}

// NewEndMessage ends the ConversationRelay session; reason travels to the
// carrier's action callback as handoff data.
func NewEndMessage(reason string) (EndMessage, error) {
	data, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return EndMessage{}, err
	}
	return EndMessage{Type: TypeEnd, HandoffData: string(data)}, nil
}
