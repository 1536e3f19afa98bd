package parser

import (
	"bytes"
	"encoding/json"
	"errors"
)

// RawMessage is the decoded shape of one log record. Two layouts are
// accepted: flat records with top-level role and content, and Claude Code
// envelopes that nest them under "message".
type RawMessage struct {
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	ThreadID  string          `json:"thread_id,omitempty"`

	// Accepted but not structurally parsed.
	Tools       json.RawMessage `json:"tools,omitempty"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`

	Type            string           `json:"type,omitempty"`
	UUID            string           `json:"uuid,omitempty"`
	ParentUUID      string           `json:"parentUuid,omitempty"`
	ParentUUIDSnake string           `json:"parent_uuid,omitempty"`
	SessionID       string           `json:"sessionId,omitempty"`
	SessionIDSnake  string           `json:"session_id,omitempty"`
	Message         *EnvelopeMessage `json:"message,omitempty"`
}

// EnvelopeMessage is the nested message of a Claude Code record.
type EnvelopeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Model   string          `json:"model,omitempty"`
}

// body returns role, content and model, preferring the envelope.
func (m *RawMessage) body() (role string, content json.RawMessage, model string) {
	if m.Message != nil {
		return m.Message.Role, m.Message.Content, m.Message.Model
	}
	return m.Role, m.Content, ""
}

// parentID returns the parent record id under either spelling.
func (m *RawMessage) parentID() string {
	if m.ParentUUID != "" {
		return m.ParentUUID
	}
	return m.ParentUUIDSnake
}

// threadID returns the conversation id, preferring thread_id.
func (m *RawMessage) threadID() string {
	switch {
	case m.ThreadID != "":
		return m.ThreadID
	case m.SessionID != "":
		return m.SessionID
	}
	return m.SessionIDSnake
}

var errNotObject = errors.New("record is not a JSON object")

// DecodeLine decodes one line of input. Blank lines and lines starting with
// '#' yield (nil, nil). lineNum is 1-based and is carried on any error.
func DecodeLine(line []byte, lineNum int) (*RawMessage, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' {
		return nil, nil
	}
	if line[0] != '{' {
		if json.Valid(line) {
			return nil, &Error{Kind: KindInvalidFormat, Line: lineNum, Err: errNotObject}
		}
		return nil, &Error{Kind: KindJSON, Line: lineNum, Err: jsonDiagnostic(line)}
	}

	var msg RawMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, &Error{Kind: KindJSON, Line: lineNum, Err: err}
	}
	return &msg, nil
}

// jsonDiagnostic returns the decoder's own error for invalid input.
func jsonDiagnostic(line []byte) error {
	var v any
	if err := json.Unmarshal(line, &v); err != nil {
		return err
	}
	return errNotObject
}
