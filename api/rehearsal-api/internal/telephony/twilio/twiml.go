// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_twilio_telephony

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

const (
	SignatureHeader = "X-Twilio-Signature"
	apologyMessage  = "I'm sorry, I'm having technical difficulties. Please try calling back later."
)

// RelayOptions describes the ConversationRelay noun for an incoming call.
type RelayOptions struct {
	URL               string
	TtsProvider       string
	Voice             string
	Language          string
	TextNormalization string
	CallSid           string
	Caller            string
}

// ConnectRelay renders TwiML that connects the call to the relay websocket.
// The greeting is generated by the persona, so no welcomeGreeting is set.
func ConnectRelay(opts RelayOptions) ([]byte, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("relay url is required")
	}
	var params []twiml.Element
	if opts.CallSid != "" {
		params = append(params, twiml.VoiceParameter{Name: "callSid", Value: opts.CallSid})
	}
	if opts.Caller != "" {
		params = append(params, twiml.VoiceParameter{Name: "caller", Value: opts.Caller})
	}
	relay := twiml.VoiceConversationRelay{
		Url:                         opts.URL,
		TtsProvider:                 opts.TtsProvider,
		Voice:                       opts.Voice,
		TtsLanguage:                 opts.Language,
		ElevenlabsTextNormalization: opts.TextNormalization,
		InnerElements:               params,
	}
	return render(twiml.VoiceConnect{InnerElements: []twiml.Element{relay}})
}

// Apology renders the TwiML returned when the call cannot be connected.
func Apology() []byte {
	out, err := render(twiml.VoiceSay{Message: apologyMessage}, twiml.VoiceHangup{})
	if err != nil {
		// static document, cannot fail
		panic(err)
	}
	return out
}

func render(verbs ...twiml.Element) ([]byte, error) {
	doc, err := twiml.Voice(verbs)
	if err != nil {
		return nil, fmt.Errorf("unable to render twiml: %w", err)
	}
	return []byte(doc), nil
}

// ValidSignature reports whether signature was produced by Twilio for a form
// POST to requestURL. Only the first value of each parameter is signed.
func ValidSignature(authToken, requestURL string, form url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	validator := client.NewRequestValidator(authToken)
	return validator.Validate(requestURL, params, signature)
}

// RelayURL turns the public base url of the service into the websocket url
// of the relay endpoint. https maps to wss, anything else to ws.
func RelayURL(baseURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base url %q: missing host", baseURL)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
