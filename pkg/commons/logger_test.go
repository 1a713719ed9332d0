// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package commons

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewApplicationLogger_WritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewApplicationLogger(Name("test-logger"), Path(dir), Level("debug"), Console(false))
	require.NoError(t, err)

	logger.Infow("call opened", "call_id", "CA1")
	logger.Benchmark("Engine.GenerateReply", 12*time.Millisecond)
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "test-logger.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"call_id":"CA1"`))
	assert.True(t, strings.Contains(string(data), `"function":"Engine.GenerateReply"`))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
}

func TestNewApplicationLogger_InvalidLevel(t *testing.T) {
	_, err := NewApplicationLogger(Path(t.TempDir()), Level("loud"))
	assert.Error(t, err)
}

func TestNewApplicationLogger_LevelFilters(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewApplicationLogger(Name("filtered"), Path(dir), Level("warn"), Console(false))
	require.NoError(t, err)

	logger.Debugf("hidden %d", 1)
	logger.Warnf("visible %d", 2)
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "filtered.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden 1")
	assert.Contains(t, string(data), "visible 2")
}
