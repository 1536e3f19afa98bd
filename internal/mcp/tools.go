package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sessionparse/internal/sanitize"
	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

type parseSessionInput struct {
	Path string `json:"path" jsonschema:"Path to a .jsonl conversation log"`
}

type lineErrorOutput struct {
	Line    int    `json:"line" jsonschema:"1-based line number"`
	Kind    string `json:"kind" jsonschema:"Failure kind"`
	Message string `json:"message" jsonschema:"Failure detail"`
}

type parseSessionOutput struct {
	SessionID       string            `json:"session_id" jsonschema:"Session identifier"`
	FilePath        string            `json:"file_path" jsonschema:"Parsed file"`
	ConversationID  string            `json:"conversation_id,omitempty" jsonschema:"Conversation id recorded in the log"`
	Lines           int               `json:"lines" jsonschema:"Lines read"`
	SkippedLines    int               `json:"skipped_lines" jsonschema:"Lines dropped as malformed"`
	Blocks          int               `json:"blocks" jsonschema:"Conversation blocks"`
	UserBlocks      int               `json:"user_blocks"`
	AssistantBlocks int               `json:"assistant_blocks"`
	Words           int               `json:"words"`
	CodeBlocks      int               `json:"code_blocks"`
	Commands        int               `json:"commands"`
	Links           int               `json:"links"`
	ToolInvocations int               `json:"tool_invocations"`
	Files           []string          `json:"files" jsonschema:"File paths mentioned, in first-seen order"`
	Languages       map[string]int    `json:"languages,omitempty" jsonschema:"Code block count per language"`
	DurationSeconds float64           `json:"duration_seconds" jsonschema:"Time from first to last block"`
	LineErrors      []lineErrorOutput `json:"line_errors,omitempty" jsonschema:"Skipped lines when detailed reporting is enabled"`
}

type parseBatchInput struct {
	Paths     []string `json:"paths,omitempty" jsonschema:"Log files to parse; mutually exclusive with directory"`
	Directory string   `json:"directory,omitempty" jsonschema:"Directory searched recursively for .jsonl logs"`
}

type batchSessionOutput struct {
	SessionID string `json:"session_id"`
	FilePath  string `json:"file_path"`
	Blocks    int    `json:"blocks"`
	Lines     int    `json:"lines"`
}

type batchFailureOutput struct {
	FilePath string `json:"file_path"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type parseBatchOutput struct {
	BatchID        string               `json:"batch_id" jsonschema:"Batch identifier"`
	FilesProcessed int                  `json:"files_processed"`
	SuccessRate    float64              `json:"success_rate" jsonschema:"Fraction of files parsed, 0 to 1"`
	DurationMS     int64                `json:"duration_ms"`
	Successful     []batchSessionOutput `json:"successful"`
	Failed         []batchFailureOutput `json:"failed"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "parse_session",
		Description: "Parse one JSONL conversation log and summarize its blocks, extracted code, files, commands and links.",
	}, s.parseSession)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "parse_batch",
		Description: "Parse many conversation logs concurrently, given as paths or a directory. Every file's success or failure is reported.",
	}, s.parseBatch)
}

func (s *Server) parseSession(ctx context.Context, _ *mcp.CallToolRequest, args parseSessionInput) (*mcp.CallToolResult, parseSessionOutput, error) {
	path, err := sanitize.ValidatePath(args.Path, s.allowedRoot)
	if err != nil {
		return nil, parseSessionOutput{}, err
	}

	sess, err := s.parser.ParseFile(ctx, path)
	if err != nil {
		s.logger.Warn("parse_session failed", zap.String("file.path", path), zap.Error(err))
		return nil, parseSessionOutput{}, fmt.Errorf("parse failed: %w", err)
	}

	out := summarizeSession(sess)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(
				"Parsed %s: %d blocks from %d lines (%d skipped), %d code blocks, %d files.",
				out.FilePath, out.Blocks, out.Lines, out.SkippedLines, out.CodeBlocks, len(out.Files),
			)},
		},
	}, out, nil
}

func (s *Server) parseBatch(ctx context.Context, _ *mcp.CallToolRequest, args parseBatchInput) (*mcp.CallToolResult, parseBatchOutput, error) {
	hasPaths := len(args.Paths) > 0
	hasDir := strings.TrimSpace(args.Directory) != ""
	if hasPaths == hasDir {
		return nil, parseBatchOutput{}, errors.New("exactly one of paths or directory is required")
	}

	var opts []parser.BatchOption
	if s.observer != nil {
		opts = append(opts, parser.WithObserver(s.observer))
	}
	batch := parser.NewBatch(s.parser, opts...)

	var result *parser.BatchParsingResult
	if hasPaths {
		paths := make([]string, len(args.Paths))
		for i, p := range args.Paths {
			clean, err := sanitize.ValidatePath(p, s.allowedRoot)
			if err != nil {
				return nil, parseBatchOutput{}, err
			}
			paths[i] = clean
		}
		result = batch.ParseFilesWithReport(ctx, paths)
	} else {
		dir, err := sanitize.ValidatePath(args.Directory, s.allowedRoot)
		if err != nil {
			return nil, parseBatchOutput{}, err
		}
		result, err = batch.ParseDirectoryWithReport(ctx, dir)
		if err != nil {
			return nil, parseBatchOutput{}, fmt.Errorf("batch failed: %w", err)
		}
	}

	out := summarizeBatch(result)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(
				"Batch %s: %d of %d files parsed, %d failed.",
				out.BatchID, len(out.Successful), out.FilesProcessed, len(out.Failed),
			)},
		},
	}, out, nil
}

func summarizeSession(sess *session.Session) parseSessionOutput {
	st := sess.Statistics
	out := parseSessionOutput{
		SessionID:       sess.ID,
		FilePath:        sess.Metadata.FilePath,
		ConversationID:  sess.Metadata.ConversationID,
		Lines:           sess.Metadata.LineCount,
		SkippedLines:    sess.Metadata.SkippedLines,
		Blocks:          st.TotalBlocks,
		UserBlocks:      st.UserBlocks,
		AssistantBlocks: st.AssistantBlocks,
		Words:           st.TotalWords,
		CodeBlocks:      st.CodeBlocks,
		Commands:        st.Commands,
		Links:           st.Links,
		ToolInvocations: st.ToolInvocations,
		Files:           mentionedFiles(sess),
		DurationSeconds: st.Duration.Seconds(),
	}
	if len(st.Languages) > 0 {
		out.Languages = make(map[string]int, len(st.Languages))
		for lang, n := range st.Languages {
			out.Languages[string(lang)] = n
		}
	}
	for _, le := range sess.Metadata.LineErrors {
		out.LineErrors = append(out.LineErrors, lineErrorOutput{Line: le.Line, Kind: le.Kind, Message: le.Message})
	}
	return out
}

// mentionedFiles returns distinct file mentions across all blocks.
func mentionedFiles(sess *session.Session) []string {
	seen := make(map[string]struct{})
	files := []string{}
	for _, b := range sess.Blocks {
		for _, m := range b.Content.Mentions {
			if m.Type != session.MentionFile {
				continue
			}
			if _, ok := seen[m.Text]; ok {
				continue
			}
			seen[m.Text] = struct{}{}
			files = append(files, m.Text)
		}
	}
	return files
}

func summarizeBatch(r *parser.BatchParsingResult) parseBatchOutput {
	out := parseBatchOutput{
		BatchID:        r.BatchID,
		FilesProcessed: r.Stats.FilesProcessed,
		SuccessRate:    r.SuccessRate(),
		DurationMS:     r.Stats.TotalDurationMS,
		Successful:     make([]batchSessionOutput, 0, len(r.Successful)),
		Failed:         make([]batchFailureOutput, 0, len(r.Failed)),
	}
	for _, s := range r.Successful {
		out.Successful = append(out.Successful, batchSessionOutput{
			SessionID: s.ID,
			FilePath:  s.Metadata.FilePath,
			Blocks:    s.Statistics.TotalBlocks,
			Lines:     s.Metadata.LineCount,
		})
	}
	for _, ec := range r.Failed {
		out.Failed = append(out.Failed, batchFailureOutput{
			FilePath: ec.FilePath,
			Kind:     string(ec.Kind),
			Severity: string(ec.Severity),
			Message:  ec.Message,
		})
	}
	return out
}
