// Package events publishes batch progress to NATS.
//
// Events are JSON documents published to:
//
//	<prefix>.batch.<batch_id>.file_parsed
//	<prefix>.batch.<batch_id>.file_failed
//	<prefix>.batch.<batch_id>.completed
//
// The active trace context travels in the message headers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

// Event kinds, used as the last subject token.
const (
	KindFileParsed     = "file_parsed"
	KindFileFailed     = "file_failed"
	KindBatchCompleted = "completed"
)

var _ parser.Observer = (*Publisher)(nil)

// FileParsedEvent reports a file that produced a session.
type FileParsedEvent struct {
	BatchID      string             `json:"batch_id"`
	SessionID    string             `json:"session_id"`
	FilePath     string             `json:"file_path"`
	LineCount    int                `json:"line_count"`
	SkippedLines int                `json:"skipped_lines"`
	Statistics   session.Statistics `json:"statistics"`
	Timestamp    time.Time          `json:"timestamp"`
}

// FileFailedEvent reports a file that failed.
type FileFailedEvent struct {
	BatchID   string              `json:"batch_id"`
	Error     parser.ErrorContext `json:"error"`
	Timestamp time.Time           `json:"timestamp"`
}

// BatchCompletedEvent summarizes a finished batch. Sessions are not included.
type BatchCompletedEvent struct {
	BatchID     string                  `json:"batch_id"`
	Successful  int                     `json:"successful"`
	Failed      []parser.ErrorContext   `json:"failed"`
	SuccessRate float64                 `json:"success_rate"`
	Stats       parser.PerformanceStats `json:"performance_stats"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Publisher publishes batch events. It implements parser.Observer; publish
// failures are logged and never affect the batch.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithSubjectPrefix replaces the default "sessionparse" subject prefix.
func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// NewPublisher creates a publisher on an existing connection. The caller
// keeps ownership of nc.
func NewPublisher(nc *nats.Conn, opts ...Option) *Publisher {
	p := &Publisher{
		nc:     nc,
		prefix: "sessionparse",
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials NATS with reconnects enabled. token may be empty.
func Connect(url, token string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("sessionparse"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject for an event of kind in batchID.
func (p *Publisher) Subject(batchID, kind string) string {
	return fmt.Sprintf("%s.batch.%s.%s", p.prefix, batchID, kind)
}

// FileParsed publishes a file_parsed event.
func (p *Publisher) FileParsed(ctx context.Context, batchID string, s *session.Session) {
	p.publish(ctx, p.Subject(batchID, KindFileParsed), FileParsedEvent{
		BatchID:      batchID,
		SessionID:    s.ID,
		FilePath:     s.Metadata.FilePath,
		LineCount:    s.Metadata.LineCount,
		SkippedLines: s.Metadata.SkippedLines,
		Statistics:   s.Statistics,
		Timestamp:    time.Now().UTC(),
	})
}

// FileFailed publishes a file_failed event.
func (p *Publisher) FileFailed(ctx context.Context, batchID string, ec parser.ErrorContext) {
	p.publish(ctx, p.Subject(batchID, KindFileFailed), FileFailedEvent{
		BatchID:   batchID,
		Error:     ec,
		Timestamp: time.Now().UTC(),
	})
}

// BatchCompleted publishes a completed event and flushes the connection.
func (p *Publisher) BatchCompleted(ctx context.Context, result *parser.BatchParsingResult) {
	p.publish(ctx, p.Subject(result.BatchID, KindBatchCompleted), BatchCompletedEvent{
		BatchID:     result.BatchID,
		Successful:  len(result.Successful),
		Failed:      result.Failed,
		SuccessRate: result.SuccessRate(),
		Stats:       result.Stats,
		Timestamp:   time.Now().UTC(),
	})
	if err := p.nc.Flush(); err != nil {
		p.logger.Warn("failed to flush batch events", zap.String("batch.id", result.BatchID), zap.Error(err))
	}
}

func (p *Publisher) publish(ctx context.Context, subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	if err := p.nc.PublishMsg(msg); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
		return
	}
	p.logger.Debug("published event", zap.String("subject", subject), zap.Int("bytes", len(data)))
}
