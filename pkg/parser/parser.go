package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/internal/logging"
	"github.com/fyrsmithlabs/sessionparse/pkg/extract"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

var tracer = otel.Tracer("sessionparse/parser")

const (
	bytesPerMB = 1_048_576

	readBufferSize = 64 * 1024
)

// Parser parses one conversation log at a time. A Parser holds only
// immutable state; every call owns its own recovery policy and aggregator,
// so one Parser can serve concurrent parses.
type Parser struct {
	cfg       Config
	extractor *extract.Extractor
	logger    *zap.Logger
	metrics   *Metrics
	redactor  extract.Redactor
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Parser) {
		p.metrics = m
	}
}

// WithRedactor sets the redactor used when extraction.redact_secrets is on.
func WithRedactor(r extract.Redactor) Option {
	return func(p *Parser) {
		p.redactor = r
	}
}

// New creates a parser.
func New(cfg Config, opts ...Option) *Parser {
	p := &Parser{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.extractor = extract.New(cfg.Extraction, p.redactor)
	return p
}

// Config returns the parser configuration.
func (p *Parser) Config() Config {
	return p.cfg
}

// ParseFile parses the file at path into a session. It fails before reading
// when the file is larger than the memory limit. A returned error means no
// session was produced.
func (p *Parser) ParseFile(ctx context.Context, path string) (*session.Session, error) {
	ctx, span := tracer.Start(ctx, "parser.parse_file",
		trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	start := time.Now()
	s, err := p.parseFile(ctx, path)
	p.recordFile(s, start)
	if err != nil {
		err = withPath(err, path)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("file.lines", s.Metadata.LineCount),
		attribute.Int("session.blocks", len(s.Blocks)),
		attribute.Int("session.skipped_lines", s.Metadata.SkippedLines),
	)
	return s, nil
}

func (p *Parser) parseFile(ctx context.Context, path string) (*session.Session, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: KindFileNotFound, Err: err}
		}
		return nil, &Error{Kind: KindIO, Err: err}
	}
	if info.IsDir() {
		return nil, &Error{Kind: KindIO, Err: fmt.Errorf("%s is a directory", path)}
	}
	if sizeMB := info.Size() / bytesPerMB; sizeMB > p.cfg.MemoryLimitMB {
		return nil, &Error{
			Kind:  KindMemoryLimit,
			Value: fmt.Sprintf("%d MB > %d MB", sizeMB, p.cfg.MemoryLimitMB),
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}
	defer f.Close()

	meta := session.Metadata{
		FilePath:      path,
		FileSizeBytes: info.Size(),
		LastModified:  info.ModTime().UTC(),
	}
	return p.parse(ctx, f, meta)
}

// ParseReader parses an in-memory stream such as an uploaded body. source
// names the stream in metadata and errors. The memory limit is enforced while
// reading.
func (p *Parser) ParseReader(ctx context.Context, r io.Reader, source string) (*session.Session, error) {
	ctx, span := tracer.Start(ctx, "parser.parse_reader",
		trace.WithAttributes(attribute.String("source", source)))
	defer span.End()

	start := time.Now()
	cr := &countingReader{r: r, limit: p.cfg.MemoryLimitMB * bytesPerMB}
	s, err := p.parse(ctx, cr, session.Metadata{
		FilePath:     source,
		LastModified: start.UTC(),
	})
	p.recordFile(s, start)
	if err != nil {
		err = withPath(err, source)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.Metadata.FileSizeBytes = cr.n
	return s, nil
}

// parse streams lines through decode, the recovery policy, conversion and
// aggregation.
func (p *Parser) parse(ctx context.Context, r io.Reader, meta session.Metadata) (*session.Session, error) {
	start := time.Now()
	ctx = logging.WithFilePath(ctx, meta.FilePath)
	logger := p.logger.With(logging.ContextFields(ctx)...)

	policy := NewRecoveryPolicy(p.cfg.Recovery)
	agg := session.NewAggregator(meta)

	br := bufio.NewReaderSize(r, readBufferSize)

	var (
		buf     []byte
		line    int
		readErr error
	)
	for readErr == nil {
		buf, readErr = readLine(br, buf[:0])
		if readErr != nil && (readErr != io.EOF || len(buf) == 0) {
			break
		}
		line++

		raw, err := DecodeLine(buf, line)
		if err == nil && raw == nil {
			continue
		}

		var block session.Block
		if err == nil {
			block, err = Convert(raw, line, p.extractor)
		}
		if err != nil {
			decision, fatal := policy.Failure(err)
			if decision == DecisionAbort {
				logger.Error("aborting parse",
					zap.Int("line", line),
					zap.Int("consecutive_errors", policy.Consecutive()),
					zap.Error(fatal))
				return nil, fatal
			}
			p.skip(logger, agg, line, err)
			continue
		}

		policy.Success()
		if err := agg.Append(block); err != nil {
			return nil, &Error{Kind: KindCorruptedData, Line: line, Err: err}
		}
	}

	if readErr != nil && readErr != io.EOF {
		var limitErr *limitExceededError
		if errors.As(readErr, &limitErr) {
			return nil, &Error{Kind: KindMemoryLimit, Value: limitErr.Error()}
		}
		return nil, &Error{Kind: KindIO, Line: line + 1, Err: readErr}
	}

	s := agg.Finalize(line)
	elapsed := time.Since(start)

	if threshold := p.cfg.PerformanceThresholdMS; threshold > 0 && elapsed.Milliseconds() > threshold {
		if p.metrics != nil {
			p.metrics.SlowParsesTotal.Inc()
		}
		logger.Warn("performance threshold exceeded",
			zap.Int64("duration_ms", elapsed.Milliseconds()),
			zap.Int64("threshold_ms", threshold))
	}

	logger.Info("parsed session",
		zap.String("session.id", s.ID),
		zap.Int("blocks", len(s.Blocks)),
		zap.Int("lines", line),
		zap.Int("skipped_lines", s.Metadata.SkippedLines),
		zap.Duration("duration", elapsed))

	return s, nil
}

// skip records a line dropped by the recovery policy.
func (p *Parser) skip(logger *zap.Logger, agg *session.Aggregator, line int, err error) {
	kind := KindIO
	recoverable := false
	var pe *Error
	if errors.As(err, &pe) {
		kind = pe.Kind
		recoverable = pe.Recoverable()
	}
	if p.metrics != nil {
		p.metrics.RecordSkip(kind)
	}

	if !p.cfg.Recovery.DetailedErrorReporting {
		logger.Debug("skipping line", zap.Int("line", line), zap.String("kind", string(kind)))
		agg.RecordSkip(nil)
		return
	}

	logger.Warn("skipping malformed line", zap.Int("line", line), zap.Error(err))
	agg.RecordSkip(&session.LineError{
		Line:        line,
		Kind:        string(kind),
		Message:     err.Error(),
		Recoverable: recoverable,
	})
}

// recordFile updates metrics for a finished parse; s is nil on failure.
func (p *Parser) recordFile(s *session.Session, start time.Time) {
	if p.metrics == nil {
		return
	}
	if s == nil {
		p.metrics.RecordFile(false, 0, 0, time.Since(start).Seconds())
		return
	}
	p.metrics.RecordFile(true, s.Metadata.LineCount, len(s.Blocks), time.Since(start).Seconds())
}

// readLine appends the next line of br to buf without its newline. A record
// may be any length; the input as a whole is bounded by the memory limit.
func readLine(br *bufio.Reader, buf []byte) ([]byte, error) {
	for {
		chunk, err := br.ReadSlice('\n')
		buf = append(buf, chunk...)
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == nil:
			return buf[:len(buf)-1], nil
		default:
			return buf, err
		}
	}
}

type limitExceededError struct {
	limit int64
}

func (e *limitExceededError) Error() string {
	return fmt.Sprintf("input exceeds %d MB", e.limit/bytesPerMB)
}

// countingReader counts bytes read and fails once limit is exceeded.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		return n, &limitExceededError{limit: c.limit}
	}
	return n, err
}
