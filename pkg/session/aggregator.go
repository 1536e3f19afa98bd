package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrFinalized is returned when a block is appended to a finalized session.
var ErrFinalized = errors.New("session already finalized")

// Aggregator appends blocks to a session and keeps its statistics current.
// It is the only writer of a Session; once Finalize returns, the session must
// be treated as read-only.
//
// An Aggregator is not safe for concurrent use. Each file parse owns one.
type Aggregator struct {
	session   *Session
	files     map[string]struct{}
	finalized bool
}

// NewAggregator starts an empty session for the given source metadata.
func NewAggregator(meta Metadata) *Aggregator {
	return &Aggregator{
		session: &Session{
			ID:       uuid.New().String(),
			Metadata: meta,
			Blocks:   make([]Block, 0),
		},
		files: make(map[string]struct{}),
	}
}

// Append adds a block and folds it into the statistics.
func (a *Aggregator) Append(b Block) error {
	if a.finalized {
		return ErrFinalized
	}
	a.session.Blocks = append(a.session.Blocks, b)
	foldStatistics(&a.session.Statistics, a.files, a.session.Blocks, b)
	if a.session.Metadata.ConversationID == "" && b.Metadata.ThreadID != "" {
		a.session.Metadata.ConversationID = b.Metadata.ThreadID
	}
	return nil
}

// RecordSkip notes a line dropped by the recovery policy. lineErr is nil when
// detailed error reporting is off.
func (a *Aggregator) RecordSkip(lineErr *LineError) {
	if a.finalized {
		return
	}
	a.session.Metadata.SkippedLines++
	if lineErr != nil {
		a.session.Metadata.LineErrors = append(a.session.Metadata.LineErrors, *lineErr)
	}
}

// Len returns the number of blocks appended so far.
func (a *Aggregator) Len() int {
	return len(a.session.Blocks)
}

// Finalize records the line count, derives CreatedAt from the first block
// (or now for an empty session) and returns the session.
func (a *Aggregator) Finalize(lineCount int) *Session {
	if !a.finalized {
		a.session.Metadata.LineCount = lineCount
		if len(a.session.Blocks) > 0 {
			a.session.Metadata.CreatedAt = a.session.Blocks[0].Timestamp
		} else {
			a.session.Metadata.CreatedAt = time.Now().UTC()
		}
		a.finalized = true
	}
	return a.session
}

// ComputeStatistics derives statistics from scratch. Append produces the same
// result incrementally.
func ComputeStatistics(blocks []Block) Statistics {
	var stats Statistics
	files := make(map[string]struct{})
	for i := range blocks {
		foldStatistics(&stats, files, blocks[:i+1], blocks[i])
	}
	return stats
}

// foldStatistics adds b, the last element of blocks, into stats.
func foldStatistics(stats *Statistics, files map[string]struct{}, blocks []Block, b Block) {
	stats.TotalBlocks++
	switch b.Role {
	case RoleUser:
		stats.UserBlocks++
	case RoleAssistant:
		stats.AssistantBlocks++
	case RoleSystem:
		stats.SystemBlocks++
	case RoleTool:
		stats.ToolBlocks++
	}

	stats.TotalWords += b.Content.WordCount
	stats.TotalCharacters += b.Content.CharacterCount
	stats.CodeBlocks += len(b.Content.CodeBlocks)
	stats.Links += len(b.Content.Links)
	stats.ToolInvocations += len(b.Tools)

	for _, cb := range b.Content.CodeBlocks {
		if cb.Language.IsZero() {
			continue
		}
		if stats.Languages == nil {
			stats.Languages = make(map[Language]int)
		}
		stats.Languages[cb.Language]++
	}

	for _, m := range b.Content.Mentions {
		switch m.Type {
		case MentionFile:
			files[m.Text] = struct{}{}
		case MentionCommand:
			stats.Commands++
		}
	}
	stats.FilesReferenced = len(files)

	stats.Duration = blocks[len(blocks)-1].Timestamp.Sub(blocks[0].Timestamp)
}
