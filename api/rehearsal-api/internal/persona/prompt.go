// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_persona

import (
	"fmt"
	"os"
	"strings"
)

// GreetingSeed is sent as the opening user message so the model answers the
// phone; every request starts with it so backends always see a user turn first.
const GreetingSeed = "You've just answered your office phone. Greet the caller professionally but briefly, as you would in a real business call."

const DefaultSystemPrompt = `You are Sarah Chen, VP of Operations at a mid-sized logistics company.
You are answering a cold sales call on your office phone.

- Speak naturally, as on a real phone call. Keep every reply to two to four short sentences.
- You are busy and mildly skeptical. Ask probing questions about cost, integration effort and proof of results.
- Raise realistic objections (budget already allocated, an incumbent vendor, timing) and only warm up when the caller earns it.
- Never mention that you are an AI and never use lists, markdown or emojis.
- If the caller wraps up the call, say a brief goodbye.`

// LoadSystemPrompt reads the persona prompt from path, or returns the
// built-in prompt when path is empty.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read persona prompt %s: %w", path, err)
	}
	prompt := strings.TrimSpace(string(b))
	if prompt == "" {
		return "", fmt.Errorf("persona prompt %s is empty", path)
	}
	return prompt, nil
}
