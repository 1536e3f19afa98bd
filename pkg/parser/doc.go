// Package parser turns JSONL conversation logs into sessions.
//
// A Parser streams one file line by line: each line is decoded, validated,
// run through content extraction and appended to the session. Malformed
// lines are handled by a per-file RecoveryPolicy that either skips them or
// aborts the file once too many fail in a row.
//
// Batch fans a Parser out over many files with bounded concurrency and
// reports every success and failure:
//
//	p := parser.New(parser.DefaultConfig(), parser.WithLogger(logger))
//	result, err := parser.NewBatch(p).ParseDirectoryWithReport(ctx, dir)
package parser
