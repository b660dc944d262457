package logging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	commonlog "github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestJSONLoggerWritesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	logger, err := New(Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)
	defer SetLevel(InfoLevel)

	logger.WithFields(Fields{"component": "test"}).Debug("decoded", Fields{"samples": 42})
	logger.Error(errors.New("boom"), "failed", Fields{"stage": "decoded"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `"component":"test"`)
	assert.Contains(t, out, `"samples":42`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "\n")+1)
}

func TestLevelFiltersDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	logger, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger().WithFields(Fields{"a": 1})
	assert.NotPanics(t, func() {
		logger.Info("nothing")
		logger.Error(nil, "nothing")
	})
}

func TestDefaultIsSharedWithCommonLogger(t *testing.T) {
	previous := Default()
	defer SetDefault(previous)

	_, isZap := previous.(*zapLogger)
	assert.True(t, isZap, "process logger must not write to stdout")

	nop := NewNopLogger()
	SetDefault(nop)
	assert.Same(t, nop, commonlog.GetGlobalLogger())
	assert.Same(t, nop, Default())
}

func TestWithContextAddsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	logger, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	ctx := ContextWithFields(context.Background(), Fields{"request_id": "abc"})
	logger.WithContext(ctx).Info("classified")
	logger.WithContext(context.Background()).Info("plain")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"request_id":"abc"`)
	assert.NotContains(t, lines[1], "request_id")
}

func TestParseFatalLevel(t *testing.T) {
	level, err := ParseLevel("fatal")
	require.NoError(t, err)
	assert.Equal(t, FatalLevel, level)
}
