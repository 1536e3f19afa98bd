package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)

	assert.Equal(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}

func TestNewSampledCore(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled:    true,
		Tick:       time.Minute,
		Initial:    5,
		Thereafter: 0,
	})
	logger := &Logger{zap: zap.New(sampled), config: NewDefaultConfig()}
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		logger.Warn(ctx, "skipping malformed line")
		logger.Error(ctx, "aborting parse")
	}

	assert.Equal(t, 5, observed.FilterMessage("skipping malformed line").Len())
	assert.Equal(t, 50, observed.FilterMessage("aborting parse").Len())
}

func TestLevelFilterCore(t *testing.T) {
	core, _ := observer.New(TraceLevel)
	f := &levelFilterCore{Core: core, min: zapcore.DebugLevel, max: zapcore.WarnLevel}

	assert.False(t, f.Enabled(TraceLevel))
	assert.True(t, f.Enabled(zapcore.DebugLevel))
	assert.True(t, f.Enabled(zapcore.WarnLevel))
	assert.False(t, f.Enabled(zapcore.ErrorLevel))

	child := f.With([]zapcore.Field{zap.String("k", "v")})
	assert.False(t, child.Enabled(zapcore.ErrorLevel))
}
