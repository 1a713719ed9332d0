// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_normalizer

import (
	"regexp"
	"strings"

	"github.com/rapidaai/pitch-rehearsal/pkg/commons"
)

// =============================================================================
// Speech Text Normalizer
// =============================================================================

// TextNormalizer prepares persona text for ConversationRelay synthesis.
// ConversationRelay accepts plain text only, so markup the model emits is
// stripped rather than translated to SSML.
type TextNormalizer interface {
	Normalize(text string) string
}

var (
	reHeading    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	reCodeBlock  = regexp.MustCompile("(?s)```[^`]*```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reEmphasis   = regexp.MustCompile(`\*{1,2}([^*]+?)\*{1,2}|_{1,2}([^_]+?)_{1,2}`)
	reQuote      = regexp.MustCompile(`(?m)^>\s?`)
	reImage      = regexp.MustCompile(`!\[(.*?)\]\(.*?\)`)
	reLink       = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	reRule       = regexp.MustCompile(`(?m)^(-{3,}|\*{3,}|_{3,})$`)
	reBullet     = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	reStray      = regexp.MustCompile(`[*_]+`)
	reStageCue   = regexp.MustCompile(`\[(?:[a-zA-Z ]+)\]`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

type speechNormalizer struct {
	logger        commons.Logger
	abbreviations map[string]string
}

// Option configures the speech normalizer.
type Option func(*speechNormalizer)

// WithAbbreviations expands whole-word abbreviations so the voice does not
// spell them out, e.g. "ROI" -> "R O I".
func WithAbbreviations(m map[string]string) Option {
	return func(n *speechNormalizer) {
		for k, v := range m {
			n.abbreviations[k] = v
		}
	}
}

func NewSpeechNormalizer(logger commons.Logger, opts ...Option) TextNormalizer {
	n := &speechNormalizer{
		logger:        logger,
		abbreviations: map[string]string{},
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize removes markdown and stage directions, expands configured
// abbreviations and collapses whitespace.
func (n *speechNormalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	out := removeMarkdown(text)
	out = reStageCue.ReplaceAllString(out, "")
	if len(n.abbreviations) > 0 {
		out = n.expandAbbreviations(out)
	}
	out = strings.TrimSpace(reWhitespace.ReplaceAllString(out, " "))
	if out != text {
		n.logger.Debugf("normalized persona text: before=%d after=%d", len(text), len(out))
	}
	return out
}

func (n *speechNormalizer) expandAbbreviations(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		core := strings.TrimRight(w, ".,;:!?")
		if exp, ok := n.abbreviations[core]; ok {
			words[i] = exp + w[len(core):]
		}
	}
	return strings.Join(words, " ")
}

func removeMarkdown(input string) string {
	output := reCodeBlock.ReplaceAllString(input, "")
	output = reHeading.ReplaceAllString(output, "")
	output = reEmphasis.ReplaceAllString(output, "$1$2")
	output = reInlineCode.ReplaceAllString(output, "$1")
	output = reQuote.ReplaceAllString(output, "")
	output = reImage.ReplaceAllString(output, "$1")
	output = reLink.ReplaceAllString(output, "$1")
	output = reRule.ReplaceAllString(output, "")
	output = reBullet.ReplaceAllString(output, "")
	return reStray.ReplaceAllString(output, "")
}
