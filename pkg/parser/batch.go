package parser

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/sessionparse/internal/logging"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

// Observer receives batch progress. Calls for one batch may arrive
// concurrently from different files, so implementations must be safe for
// concurrent use.
type Observer interface {
	FileParsed(ctx context.Context, batchID string, s *session.Session)
	FileFailed(ctx context.Context, batchID string, ec ErrorContext)
	BatchCompleted(ctx context.Context, result *BatchParsingResult)
}

// PerformanceStats summarizes a batch. Throughput is computed once from the
// totals after every file has finished.
type PerformanceStats struct {
	TotalDurationMS       int64   `json:"total_duration_ms"`
	FilesProcessed        int     `json:"files_processed"`
	LinesProcessed        int     `json:"lines_processed"`
	BytesProcessed        int64   `json:"bytes_processed"`
	AverageFileTimeMS     float64 `json:"average_file_time_ms"`
	PeakHeapMB            float64 `json:"peak_heap_mb"`
	ThroughputFilesPerSec float64 `json:"throughput_files_per_sec"`
	ThroughputMBPerSec    float64 `json:"throughput_mb_per_sec"`
}

func (s *PerformanceStats) calculateThroughput() {
	if s.TotalDurationMS > 0 {
		seconds := float64(s.TotalDurationMS) / 1000
		s.ThroughputFilesPerSec = float64(s.FilesProcessed) / seconds
		s.ThroughputMBPerSec = float64(s.BytesProcessed) / bytesPerMB / seconds
	}
	if s.FilesProcessed > 0 {
		s.AverageFileTimeMS = float64(s.TotalDurationMS) / float64(s.FilesProcessed)
	}
}

// BatchParsingResult is the outcome of a batch. It is built once and not
// modified after it is returned.
type BatchParsingResult struct {
	BatchID    string             `json:"batch_id"`
	Successful []*session.Session `json:"successful"`
	Failed     []ErrorContext     `json:"failed"`
	Stats      PerformanceStats   `json:"performance_stats"`
}

// SuccessRate returns the share of files that parsed, or 0 for an empty batch.
func (r *BatchParsingResult) SuccessRate() float64 {
	total := len(r.Successful) + len(r.Failed)
	if total == 0 {
		return 0
	}
	return float64(len(r.Successful)) / float64(total)
}

// HasCriticalErrors reports whether any failure is critical.
func (r *BatchParsingResult) HasCriticalErrors() bool {
	for _, ec := range r.Failed {
		if ec.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Batch runs a Parser over many files with bounded concurrency.
type Batch struct {
	parser   *Parser
	limit    int
	observer Observer
	logger   *zap.Logger
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithObserver registers a progress observer.
func WithObserver(o Observer) BatchOption {
	return func(b *Batch) {
		b.observer = o
	}
}

// NewBatch creates a batch coordinator around p. The concurrency limit is
// min(NumCPU, MaxConcurrentFiles).
func NewBatch(p *Parser, opts ...BatchOption) *Batch {
	b := &Batch{
		parser: p,
		limit:  p.cfg.Concurrency(),
		logger: p.logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Limit returns the number of files parsed concurrently.
func (b *Batch) Limit() int {
	return b.limit
}

// outcome is the result of one file, stored at the file's input index.
type outcome struct {
	path    string
	session *session.Session
	err     error
}

// ParseFiles parses paths and returns the sessions. When
// ContinueOnCriticalErrors is false, any failure fails the call with the
// error of the first failed path in input order, after every file finished.
// Otherwise failures are logged and the remaining sessions returned.
func (b *Batch) ParseFiles(ctx context.Context, paths []string) ([]*session.Session, error) {
	batchID := uuid.New().String()
	ctx = logging.WithBatchID(ctx, batchID)
	outcomes, _ := b.run(ctx, batchID, paths)

	sessions := make([]*session.Session, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err == nil {
			sessions = append(sessions, o.session)
			continue
		}
		if !b.parser.cfg.Recovery.ContinueOnCriticalErrors {
			return nil, o.err
		}
		b.logger.Error("failed to parse file",
			append(logging.ContextFields(ctx), zap.String("file.path", o.path), zap.Error(o.err))...)
	}
	return sessions, nil
}

// ParseFilesWithReport parses paths and reports every success and failure.
// One file's failure never affects another.
func (b *Batch) ParseFilesWithReport(ctx context.Context, paths []string) *BatchParsingResult {
	batchID := uuid.New().String()
	ctx, span := tracer.Start(ctx, "parser.parse_batch",
		trace.WithAttributes(
			attribute.String("batch.id", batchID),
			attribute.Int("batch.files", len(paths)),
			attribute.Int("batch.limit", b.limit),
		))
	defer span.End()
	ctx = logging.WithBatchID(ctx, batchID)

	start := time.Now()
	outcomes, peakHeap := b.run(ctx, batchID, paths)

	result := &BatchParsingResult{
		BatchID:    batchID,
		Successful: make([]*session.Session, 0, len(paths)),
		Failed:     make([]ErrorContext, 0),
	}
	for _, o := range outcomes {
		if o.err != nil {
			result.Failed = append(result.Failed, NewErrorContext(o.path, o.err))
			continue
		}
		result.Successful = append(result.Successful, o.session)
		result.Stats.LinesProcessed += o.session.Metadata.LineCount
		result.Stats.BytesProcessed += o.session.Metadata.FileSizeBytes
	}

	elapsed := time.Since(start)
	result.Stats.FilesProcessed = len(paths)
	result.Stats.TotalDurationMS = elapsed.Milliseconds()
	result.Stats.PeakHeapMB = peakHeap
	result.Stats.calculateThroughput()

	if m := b.parser.metrics; m != nil {
		m.BatchDuration.Observe(elapsed.Seconds())
	}
	span.SetAttributes(
		attribute.Int("batch.successful", len(result.Successful)),
		attribute.Int("batch.failed", len(result.Failed)),
	)
	b.logger.Info("batch parsing completed", append(logging.ContextFields(ctx),
		zap.Int("successful", len(result.Successful)),
		zap.Int("failed", len(result.Failed)),
		zap.Float64("success_rate", result.SuccessRate()),
		zap.Int64("duration_ms", result.Stats.TotalDurationMS))...)

	if b.observer != nil {
		b.observer.BatchCompleted(ctx, result)
	}
	return result
}

// run parses every path under the semaphore and returns outcomes in input
// order together with the peak heap size seen, in MiB.
func (b *Batch) run(ctx context.Context, batchID string, paths []string) ([]outcome, float64) {
	outcomes := make([]outcome, len(paths))
	sem := semaphore.NewWeighted(int64(b.limit))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		peakHeap float64
	)
	samplePeak := func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		heap := float64(ms.HeapAlloc) / bytesPerMB
		mu.Lock()
		peakHeap = max(peakHeap, heap)
		mu.Unlock()
	}

	b.logger.Info("starting batch", append(logging.ContextFields(ctx),
		zap.Int("files", len(paths)),
		zap.Int("limit", b.limit))...)

	for i, path := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = outcome{path: path, err: &Error{Kind: KindTaskJoin, Path: path, Err: err}}
			b.notify(ctx, batchID, outcomes[i])
			continue
		}

		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer sem.Release(1)

			outcomes[i] = b.parseOne(ctx, path)
			samplePeak()
			b.notify(ctx, batchID, outcomes[i])
		}(i, path)
	}
	wg.Wait()

	return outcomes, peakHeap
}

// parseOne parses one file and converts a panic into a task failure.
func (b *Batch) parseOne(ctx context.Context, path string) (o outcome) {
	o.path = path
	ctx = logging.WithFilePath(ctx, path)
	if m := b.parser.metrics; m != nil {
		m.FilesInFlight.Inc()
		defer m.FilesInFlight.Dec()
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("parse task panicked", append(logging.ContextFields(ctx), zap.Any("panic", r))...)
			o.session = nil
			o.err = &Error{Kind: KindTaskJoin, Path: path, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	o.session, o.err = b.parser.ParseFile(ctx, path)
	return o
}

func (b *Batch) notify(ctx context.Context, batchID string, o outcome) {
	if b.observer == nil {
		return
	}
	if o.err != nil {
		b.observer.FileFailed(ctx, batchID, NewErrorContext(o.path, o.err))
		return
	}
	b.observer.FileParsed(ctx, batchID, o.session)
}
