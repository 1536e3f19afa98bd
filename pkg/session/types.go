// Package session defines the structured records produced by parsing a
// conversation log: blocks, their extracted content, and the session that
// groups them.
package session

import (
	"encoding/json"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Roles lists the closed set of recognized roles.
var Roles = []Role{RoleUser, RoleAssistant, RoleSystem, RoleTool}

// Block is one parsed conversation turn.
type Block struct {
	ID string `json:"id"`

	// SequenceNumber is the 1-based line number of the source record.
	SequenceNumber int `json:"sequence_number"`

	Role      Role          `json:"role"`
	Timestamp time.Time     `json:"timestamp"`
	Content   BlockContent  `json:"content"`
	Metadata  BlockMetadata `json:"metadata"`

	Tools             []ToolInvocation   `json:"tools"`
	Attachments       []Attachment       `json:"attachments"`
	ContextReferences []ContextReference `json:"context_references"`
}

// BlockContent holds the raw text of a block and everything extracted from it.
type BlockContent struct {
	RawText        string         `json:"raw_text"`
	FormattedText  string         `json:"formatted_text,omitempty"`
	Tokens         []ContentToken `json:"tokens"`
	CodeBlocks     []CodeBlock    `json:"code_blocks"`
	Links          []Link         `json:"links"`
	Mentions       []Mention      `json:"mentions"`
	WordCount      int            `json:"word_count"`
	CharacterCount int            `json:"character_count"`
}

// BlockMetadata carries record identifiers and analytics fields. The analytics
// fields are filled by downstream analyzers and are empty after parsing.
type BlockMetadata struct {
	SourceID string `json:"source_id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	Model    string `json:"model,omitempty"`

	ProcessingTimeMS *int64   `json:"processing_time_ms,omitempty"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	ComplexityScore  *float64 `json:"complexity_score,omitempty"`
	Topics           []string `json:"topics,omitempty"`
}

// ContentToken is a classified token with its byte offset in the raw text.
type ContentToken struct {
	Text     string    `json:"text"`
	Type     TokenType `json:"type"`
	Position int       `json:"position"`
	Length   int       `json:"length"`
}

// TokenType classifies a content token.
type TokenType string

const (
	TokenWord        TokenType = "word"
	TokenNumber      TokenType = "number"
	TokenPunctuation TokenType = "punctuation"
	TokenFilePath    TokenType = "file_path"
	TokenURL         TokenType = "url"
	TokenCommand     TokenType = "command"
	TokenVariable    TokenType = "variable"
	TokenFunction    TokenType = "function"
	TokenMethod      TokenType = "method"
	TokenKeyword     TokenType = "keyword"
	TokenString      TokenType = "string"
	TokenComment     TokenType = "comment"
)

// CodeBlock is a fenced or inline code span.
type CodeBlock struct {
	// Language is empty when no language could be determined.
	Language Language `json:"language,omitempty"`
	Content  string   `json:"content"`
	Filename string   `json:"filename,omitempty"`
	Inline   bool     `json:"inline,omitempty"`

	// Start and End are byte offsets of the whole match in the raw text.
	Start int `json:"start"`
	End   int `json:"end"`
}

// Link is a URL found in block content.
type Link struct {
	URL   string   `json:"url"`
	Title string   `json:"title,omitempty"`
	Type  LinkType `json:"type"`
}

// LinkType classifies a link target.
type LinkType string

const (
	LinkRepository    LinkType = "repository"
	LinkDocumentation LinkType = "documentation"
	LinkFile          LinkType = "file"
	LinkExternal      LinkType = "external"
	LinkInternal      LinkType = "internal"
)

// Mention is a reference to a file, function, command or other entity.
type Mention struct {
	Text    string      `json:"text"`
	Type    MentionType `json:"type"`
	Context string      `json:"context,omitempty"`
}

// MentionType classifies a mention.
type MentionType string

const (
	MentionFile     MentionType = "file"
	MentionFunction MentionType = "function"
	MentionClass    MentionType = "class"
	MentionVariable MentionType = "variable"
	MentionCommand  MentionType = "command"
	MentionPerson   MentionType = "person"
	MentionProject  MentionType = "project"
	MentionLibrary  MentionType = "library"
	MentionTool     MentionType = "tool"
)

// ToolInvocation is a tool call recorded in a message.
type ToolInvocation struct {
	ID         string          `json:"id,omitempty"`
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Result     *ToolResult     `json:"result,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Success    bool            `json:"success"`
}

// ToolResult is the output returned for a tool invocation.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Attachment is a file attached to a message. Attachments are accepted in the
// input but not structurally parsed, so this list is always empty after parsing.
type Attachment struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// ContextReference links a block to an earlier block. Populated downstream.
type ContextReference struct {
	TargetBlockID  string  `json:"target_block_id"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Session is the ordered collection of blocks parsed from one source file.
type Session struct {
	ID         string     `json:"id"`
	Metadata   Metadata   `json:"metadata"`
	Blocks     []Block    `json:"blocks"`
	Statistics Statistics `json:"statistics"`
}

// Metadata describes the source file of a session.
type Metadata struct {
	FilePath       string    `json:"file_path"`
	FileSizeBytes  int64     `json:"file_size_bytes"`
	LineCount      int       `json:"line_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastModified   time.Time `json:"last_modified"`
	ConversationID string    `json:"conversation_id,omitempty"`

	// SkippedLines counts lines dropped by the recovery policy.
	SkippedLines int         `json:"skipped_lines"`
	LineErrors   []LineError `json:"line_errors,omitempty"`
}

// LineError records a skipped line when detailed error reporting is enabled.
type LineError struct {
	Line        int    `json:"line"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// Statistics summarizes the blocks of a session. Every field is derived from
// Session.Blocks.
type Statistics struct {
	TotalBlocks     int              `json:"total_blocks"`
	UserBlocks      int              `json:"user_blocks"`
	AssistantBlocks int              `json:"assistant_blocks"`
	SystemBlocks    int              `json:"system_blocks"`
	ToolBlocks      int              `json:"tool_blocks"`
	TotalWords      int              `json:"total_words"`
	TotalCharacters int              `json:"total_characters"`
	CodeBlocks      int              `json:"code_blocks"`
	Links           int              `json:"links"`
	FilesReferenced int              `json:"files_referenced"`
	Commands        int              `json:"commands"`
	ToolInvocations int              `json:"tool_invocations"`
	Languages       map[Language]int `json:"languages,omitempty"`
	Duration        time.Duration    `json:"duration"`
}

// BlocksByRole returns the blocks with the given role, in order.
func (s *Session) BlocksByRole(role Role) []Block {
	var out []Block
	for _, b := range s.Blocks {
		if b.Role == role {
			out = append(out, b)
		}
	}
	return out
}

// Duration returns the time between the first and last block, or zero for an
// empty session.
func (s *Session) Duration() time.Duration {
	if len(s.Blocks) == 0 {
		return 0
	}
	return s.Blocks[len(s.Blocks)-1].Timestamp.Sub(s.Blocks[0].Timestamp)
}
