package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/sessionparse/pkg/extract"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

// ContentPart is one element of an array-valued content field.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID     string          `json:"tool_use_id,omitempty"`
	ResultContent json.RawMessage `json:"content,omitempty"`
	IsError       bool            `json:"is_error,omitempty"`
}

// BlockInput is everything BuildBlock combines into a block.
type BlockInput struct {
	Line      int
	Raw       *RawMessage
	Role      session.Role
	Timestamp time.Time
	Content   session.BlockContent
	Parts     []ContentPart
}

// BuildBlock assembles a block with a fresh id. Tool invocations come from
// tool_use parts; a tool_result part in the same record completes the
// matching invocation, or stands alone when the call was in an earlier record.
func BuildBlock(in BlockInput) session.Block {
	var meta session.BlockMetadata
	if in.Raw != nil {
		_, _, model := in.Raw.body()
		meta = session.BlockMetadata{
			SourceID: in.Raw.UUID,
			ParentID: in.Raw.parentID(),
			ThreadID: in.Raw.threadID(),
			Model:    model,
		}
	}

	return session.Block{
		ID:                uuid.New().String(),
		SequenceNumber:    in.Line,
		Role:              in.Role,
		Timestamp:         in.Timestamp,
		Content:           in.Content,
		Metadata:          meta,
		Tools:             toolInvocations(in.Parts, in.Timestamp),
		Attachments:       []session.Attachment{},
		ContextReferences: []session.ContextReference{},
	}
}

func toolInvocations(parts []ContentPart, ts time.Time) []session.ToolInvocation {
	tools := []session.ToolInvocation{}
	byID := make(map[string]int)

	for _, part := range parts {
		switch part.Type {
		case "tool_use":
			if part.ID != "" {
				byID[part.ID] = len(tools)
			}
			tools = append(tools, session.ToolInvocation{
				ID:         part.ID,
				Name:       part.Name,
				Parameters: part.Input,
				Timestamp:  ts,
			})
		case "tool_result":
			result := &session.ToolResult{
				Content: resultText(part.ResultContent),
				IsError: part.IsError,
			}
			if i, ok := byID[part.ToolUseID]; ok {
				tools[i].Result = result
				tools[i].Success = !part.IsError
				continue
			}
			tools = append(tools, session.ToolInvocation{
				ID:        part.ToolUseID,
				Result:    result,
				Timestamp: ts,
				Success:   !part.IsError,
			})
		}
	}
	return tools
}

// resultText flattens a tool_result content, which is either a string or an
// array of text parts.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		return joinText(parts)
	}
	return string(raw)
}

func joinText(parts []ContentPart) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" || (p.Type == "" && p.Text != "") {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

var errContentType = errors.New("content must be a string or an array of parts")

// decodeContent returns the text of a content field and, for array content,
// its parts. Text parts are joined with a single space.
func decodeContent(raw json.RawMessage) (string, []ContentPart, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		return "", nil, errContentType
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", nil, err
		}
		return s, nil, nil
	case trimmed[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return "", nil, err
		}
		return joinText(parts), parts, nil
	}
	return "", nil, errContentType
}

// Convert validates a decoded record and builds its block. Every returned
// error is a recoverable *Error for the recovery policy to judge.
func Convert(raw *RawMessage, line int, ex *extract.Extractor) (session.Block, error) {
	roleText, content, _ := raw.body()

	switch {
	case roleText == "":
		return session.Block{}, &Error{Kind: KindMissingField, Line: line, Value: "role"}
	case len(content) == 0 || string(bytes.TrimSpace(content)) == "null":
		return session.Block{}, &Error{Kind: KindMissingField, Line: line, Value: "content"}
	case raw.Timestamp == "":
		return session.Block{}, &Error{Kind: KindMissingField, Line: line, Value: "timestamp"}
	}

	role, err := ParseRole(roleText)
	if err != nil {
		return session.Block{}, atLine(err, line)
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return session.Block{}, atLine(err, line)
	}
	text, parts, err := decodeContent(content)
	if err != nil {
		return session.Block{}, &Error{Kind: KindInvalidFormat, Line: line, Value: "content", Err: err}
	}

	return BuildBlock(BlockInput{
		Line:      line,
		Raw:       raw,
		Role:      role,
		Timestamp: ts,
		Content:   ex.Extract(text),
		Parts:     parts,
	}), nil
}

func atLine(err error, line int) error {
	var pe *Error
	if errors.As(err, &pe) && pe.Line == 0 {
		pe.Line = line
	}
	return err
}
