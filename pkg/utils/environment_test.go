// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ENV values as they arrive from the environment or the .env file.
func TestFromEnvironmentStr(t *testing.T) {
	for input, want := range map[string]Environment{
		"production":    PRODUCTION,
		"Production":    PRODUCTION,
		" production\n": PRODUCTION,
		"development":   DEVELOPMENT,
		"staging":       DEVELOPMENT,
		"prod":          DEVELOPMENT,
		"":              DEVELOPMENT,
	} {
		assert.Equal(t, want, FromEnvironmentStr(input), "input %q", input)
	}
}

func TestFromEnvironmentStr_RoundTripsGet(t *testing.T) {
	assert.Equal(t, PRODUCTION, FromEnvironmentStr(PRODUCTION.Get()))
	assert.Equal(t, DEVELOPMENT, FromEnvironmentStr(DEVELOPMENT.Get()))
	assert.Equal(t, "production", PRODUCTION.Get())
}
