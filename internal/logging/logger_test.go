package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

type recordingExporter struct {
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	for i := range records {
		e.records = append(e.records, records[i].Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func TestNewLogger_OTELBridge(t *testing.T) {
	exp := &recordingExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}
	cfg.Sampling.Enabled = false

	logger, err := NewLogger(cfg, lp)
	require.NoError(t, err)

	ctx := WithBatchID(context.Background(), "batch-7")
	logger.Info(ctx, "batch parsing completed", zap.Int("failed", 0))

	require.Len(t, exp.records, 1)
	rec := exp.records[0]
	assert.Equal(t, "batch parsing completed", rec.Body().AsString())
	assert.Equal(t, log.SeverityInfo, rec.Severity())

	attrs := map[string]string{}
	rec.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value.String()
		return true
	})
	assert.Equal(t, "batch-7", attrs["batch.id"])
	assert.Contains(t, attrs, "failed")
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func()
		level zapcore.Level
	}{
		{"trace", func() { logger.Trace(ctx, "msg", zap.String("key", "val")) }, TraceLevel},
		{"debug", func() { logger.Debug(ctx, "msg", zap.String("key", "val")) }, zapcore.DebugLevel},
		{"info", func() { logger.Info(ctx, "msg", zap.String("key", "val")) }, zapcore.InfoLevel},
		{"warn", func() { logger.Warn(ctx, "msg", zap.String("key", "val")) }, zapcore.WarnLevel},
		{"error", func() { logger.Error(ctx, "msg", zap.String("key", "val")) }, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.log()

			logs := observed.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, "val", logs[0].ContextMap()["key"])
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithBatchID(ctx, "batch-1")
	ctx = WithFilePath(ctx, "/logs/a.jsonl")
	ctx = WithRequestID(ctx, "req-9")

	tl.Info(ctx, "parsed")

	tl.AssertField(t, "parsed", "trace_id", traceID.String())
	tl.AssertField(t, "parsed", "span_id", spanID.String())
	tl.AssertField(t, "parsed", "batch.id", "batch-1")
	tl.AssertField(t, "parsed", "file.path", "/logs/a.jsonl")
	tl.AssertField(t, "parsed", "request.id", "req-9")
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from context")

	tl.AssertLogged(t, zapcore.WarnLevel, "from context")
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()

	child := tl.With(zap.String("component", "watch")).Named("watcher")
	child.Info(context.Background(), "started")

	entries := tl.FilterMessage("started").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "watcher", entries[0].LoggerName)
	assert.Equal(t, "watch", entries[0].ContextMap()["component"])
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LevelFromString(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, NewDefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }},
		{"no output", func(c *Config) { c.Output = OutputConfig{} }},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"negative skip", func(c *Config) { c.Caller.Skip = -1 }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"(unclosed"} }},
		{"empty field key", func(c *Config) { c.Fields = map[string]string{"": "x"} }},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"k": ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
