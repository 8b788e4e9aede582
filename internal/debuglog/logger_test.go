package debuglog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)

	logger, err := New(Config{Level: "debug", Format: FormatJSON})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New(Config{})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewRateLimiter(time.Second)
	r.now = func() time.Time { return now }

	assert.True(t, r.Allow("peer-a"))
	assert.False(t, r.Allow("peer-a"))
	assert.True(t, r.Allow("peer-b"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, r.Allow("peer-a"))
	assert.True(t, r.Allow(""))
}

func TestRateLimiterWarn(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)
	r := NewRateLimiter(time.Hour)
	for i := 0; i < 5; i++ {
		r.Warn(log, "unauthorized:p1", "dropping message from unauthorized sender")
	}
	assert.Equal(t, 1, logs.Len())
}
