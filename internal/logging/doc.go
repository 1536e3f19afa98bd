// Package logging provides structured logging with OpenTelemetry integration.
//
// The package wraps Zap with:
//   - a Trace level below Debug
//   - stderr and OpenTelemetry outputs
//   - context field injection (trace_id, batch.id, file.path, request.id)
//   - key and pattern based redaction
//   - level-aware sampling where errors are never sampled
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithBatchID(ctx, batchID)
//	logger.Info(ctx, "batch started", zap.Int("files", len(paths)))
//
// Library packages such as pkg/parser take a plain *zap.Logger; pass
// Logger.Underlying to them.
package logging
