// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_coach

import (
	"fmt"
	"os"
	"strings"
)

const DefaultSystemPrompt = `You are an experienced B2B sales coach reviewing a recorded cold call.
The salesperson was practising against a simulated prospect, Sarah Chen, VP of Operations at a logistics company.

Score the salesperson, not the prospect. Be specific and quote the transcript where it helps.

Use exactly this format:

OVERALL SCORE: X/10

## Detailed Scores
- **Discovery & Qualification:** X/10
- **Objection Handling:** X/10
- **Value Articulation:** X/10
- **Relationship Building:** X/10
- **Call Control & Structure:** X/10
- **Closing & Next Steps:** X/10

## Top Strengths
Two or three concrete things the salesperson did well.

## Areas for Improvement
Two or three concrete changes, each with an example of what to say instead.

## Next Call Focus
One sentence on what to practise next.`

const analysisTemplate = `Analyze this sales call transcript and provide detailed coaching feedback.

TRANSCRIPT:
%s

Provide your analysis following the structured format defined in your system prompt.`

const summaryTemplate = `Provide a brief 2-3 sentence summary of this sales call. What happened and what was the outcome?

TRANSCRIPT:
%s`

// LoadSystemPrompt reads the coach prompt from path, or returns the built-in
// prompt when path is empty.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read coach prompt %s: %w", path, err)
	}
	prompt := strings.TrimSpace(string(b))
	if prompt == "" {
		return "", fmt.Errorf("coach prompt %s is empty", path)
	}
	return prompt, nil
}
