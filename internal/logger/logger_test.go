package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_RedactsCredentials(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("calling provider", "api_key", "sk-123", "outputTokens", 42, "jobId", "job-1")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.EqualValues(t, 42, fields["outputTokens"])
	assert.Equal(t, "job-1", fields["jobId"])
}

func TestLogger_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := FromZap(zap.New(core)).With("jobId", "abc")

	log.Debug("dropped")
	log.Warn("kept", "chunk", "draft")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0].ContextMap()["jobId"])
	assert.Equal(t, "draft", entries[0].ContextMap()["chunk"])
}

func TestSanitizeKVs_OddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"authorization", "Bearer x", "dangling"})
	assert.Equal(t, []interface{}{"authorization", "[REDACTED]", "dangling"}, out)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Error("ignored", "k", "v")
	})
}
