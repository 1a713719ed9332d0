// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"regexp"
	"strings"
)

var closingPhrases = []string{
	"goodbye",
	"bye",
	"thank you for your time",
	"i'll let you go",
	"talk to you later",
	"have a good day",
	"i have to go",
	"gotta go",
}

var closingPhraseRegexp = buildClosingPhraseRegexp(closingPhrases)

func buildClosingPhraseRegexp(phrases []string) *regexp.Regexp {
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}

// IsClosingPhrase reports whether a finalized caller utterance wraps up the
// call. Matching is on whole words so "bypass" does not end a call.
func IsClosingPhrase(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.ReplaceAll(normalized, "’", "'")
	return closingPhraseRegexp.MatchString(normalized)
}
