package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

type recordingObserver struct {
	mu        sync.Mutex
	parsed    []string
	failed    []ErrorContext
	batchIDs  map[string]struct{}
	completed *BatchParsingResult
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{batchIDs: make(map[string]struct{})}
}

func (o *recordingObserver) FileParsed(_ context.Context, batchID string, s *session.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parsed = append(o.parsed, s.Metadata.FilePath)
	o.batchIDs[batchID] = struct{}{}
}

func (o *recordingObserver) FileFailed(_ context.Context, batchID string, ec ErrorContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, ec)
	o.batchIDs[batchID] = struct{}{}
}

func (o *recordingObserver) BatchCompleted(_ context.Context, result *BatchParsingResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = result
}

func writeValidLogs(t *testing.T, dir string, n int) []string {
	t.Helper()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = writeLog(t, dir, fmt.Sprintf("session-%d.jsonl", i), validLine, assistantLine(i))
	}
	return paths
}

func TestBatch_FiveFilesCapTwo(t *testing.T) {
	dir := t.TempDir()
	paths := writeValidLogs(t, dir, 5)

	cfg := DefaultConfig()
	cfg.MaxConcurrentFiles = 2
	b := NewBatch(New(cfg))
	assert.LessOrEqual(t, b.Limit(), 2)

	result, err := b.ParseDirectoryWithReport(context.Background(), dir)
	require.NoError(t, err)

	assert.Len(t, result.Successful, 5)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1.0, result.SuccessRate())
	assert.False(t, result.HasCriticalErrors())
	assert.NotEmpty(t, result.BatchID)

	for i, s := range result.Successful {
		assert.Equal(t, paths[i], s.Metadata.FilePath)
	}
	assert.Equal(t, 5, result.Stats.FilesProcessed)
	assert.Equal(t, 10, result.Stats.LinesProcessed)
	assert.Positive(t, result.Stats.BytesProcessed)
	assert.Positive(t, result.Stats.PeakHeapMB)
}

func TestBatch_ParseFilesWithReport_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeValidLogs(t, dir, 2)
	noisy := []string{}
	for i := 0; i < 11; i++ {
		noisy = append(noisy, "garbage")
	}
	bad := writeLog(t, dir, "bad.jsonl", noisy...)
	missing := filepath.Join(dir, "missing.jsonl")

	obs := newRecordingObserver()
	b := NewBatch(New(DefaultConfig()), WithObserver(obs))

	result := b.ParseFilesWithReport(context.Background(), []string{good[0], bad, missing, good[1]})

	require.Len(t, result.Successful, 2)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, good[0], result.Successful[0].Metadata.FilePath)
	assert.Equal(t, good[1], result.Successful[1].Metadata.FilePath)

	assert.Equal(t, bad, result.Failed[0].FilePath)
	assert.Equal(t, KindTooManyErrors, result.Failed[0].Kind)
	assert.Equal(t, SeverityError, result.Failed[0].Severity)
	assert.Equal(t, missing, result.Failed[1].FilePath)
	assert.Equal(t, KindFileNotFound, result.Failed[1].Kind)

	assert.InDelta(t, 0.5, result.SuccessRate(), 1e-9)
	assert.True(t, result.HasCriticalErrors())
	assert.Equal(t, 4, result.Stats.FilesProcessed)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.ElementsMatch(t, good, obs.parsed)
	assert.Len(t, obs.failed, 2)
	assert.Len(t, obs.batchIDs, 1)
	assert.Contains(t, obs.batchIDs, result.BatchID)
	assert.Same(t, result, obs.completed)
}

func TestBatch_LogsCarryBatchAndFile(t *testing.T) {
	paths := writeValidLogs(t, t.TempDir(), 2)
	core, logs := observer.New(zapcore.DebugLevel)

	result := NewBatch(New(DefaultConfig(), WithLogger(zap.New(core)))).
		ParseFilesWithReport(context.Background(), paths)
	require.Len(t, result.Successful, 2)

	parsed := logs.FilterMessage("parsed session").All()
	require.Len(t, parsed, 2)
	var files []string
	for _, entry := range parsed {
		fields := entry.ContextMap()
		assert.Equal(t, result.BatchID, fields["batch.id"])
		files = append(files, fields["file.path"].(string))
	}
	assert.ElementsMatch(t, paths, files)

	completed := logs.FilterMessage("batch parsing completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, result.BatchID, completed[0].ContextMap()["batch.id"])
}

func TestBatch_ParseFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeValidLogs(t, dir, 3)
	missing := filepath.Join(dir, "missing.jsonl")
	paths := []string{good[0], missing, good[1], good[2]}

	t.Run("stops on failure", func(t *testing.T) {
		sessions, err := NewBatch(New(DefaultConfig())).ParseFiles(context.Background(), paths)
		require.Error(t, err)
		assert.Nil(t, sessions)
		assert.True(t, IsKind(err, KindFileNotFound))
	})

	t.Run("continues on failure", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Recovery.ContinueOnCriticalErrors = true

		sessions, err := NewBatch(New(cfg)).ParseFiles(context.Background(), paths)
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		for i, s := range sessions {
			assert.Equal(t, good[i], s.Metadata.FilePath)
		}
	})
}

func TestBatch_EmptyInput(t *testing.T) {
	result := NewBatch(New(DefaultConfig())).ParseFilesWithReport(context.Background(), nil)

	assert.NotNil(t, result.Successful)
	assert.NotNil(t, result.Failed)
	assert.Zero(t, result.SuccessRate())
	assert.False(t, result.HasCriticalErrors())
	assert.Zero(t, result.Stats.AverageFileTimeMS)
}

func TestBatch_CancelledContext(t *testing.T) {
	paths := writeValidLogs(t, t.TempDir(), 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewBatch(New(DefaultConfig())).ParseFilesWithReport(ctx, paths)

	assert.Empty(t, result.Successful)
	require.Len(t, result.Failed, 3)
	for _, ec := range result.Failed {
		assert.Equal(t, KindTaskJoin, ec.Kind)
		assert.Equal(t, SeverityCritical, ec.Severity)
	}
}

func TestBatchParsingResult_SuccessRate(t *testing.T) {
	tests := []struct {
		name       string
		successful int
		failed     []ErrorContext
		rate       float64
		critical   bool
	}{
		{"empty", 0, nil, 0, false},
		{"all good", 4, nil, 1, false},
		{"one warning", 3, []ErrorContext{{Severity: SeverityWarning}}, 0.75, false},
		{"one critical", 1, []ErrorContext{{Severity: SeverityError}, {Severity: SeverityCritical}}, 1.0 / 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &BatchParsingResult{
				Successful: make([]*session.Session, tt.successful),
				Failed:     tt.failed,
			}
			assert.InDelta(t, tt.rate, r.SuccessRate(), 1e-9)
			assert.Equal(t, tt.critical, r.HasCriticalErrors())
		})
	}
}

func TestPerformanceStats_Throughput(t *testing.T) {
	s := PerformanceStats{
		TotalDurationMS: 2000,
		FilesProcessed:  10,
		BytesProcessed:  4 * bytesPerMB,
	}
	s.calculateThroughput()

	assert.InDelta(t, 5.0, s.ThroughputFilesPerSec, 1e-9)
	assert.InDelta(t, 2.0, s.ThroughputMBPerSec, 1e-9)
	assert.InDelta(t, 200.0, s.AverageFileTimeMS, 1e-9)

	zero := PerformanceStats{FilesProcessed: 3}
	zero.calculateThroughput()
	assert.Zero(t, zero.ThroughputFilesPerSec)
	assert.Zero(t, zero.ThroughputMBPerSec)
}
