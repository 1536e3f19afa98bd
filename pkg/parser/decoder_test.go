package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantNil  bool
		wantKind Kind
	}{
		{name: "blank", line: "", wantNil: true},
		{name: "whitespace", line: "  \t ", wantNil: true},
		{name: "comment", line: "# exported 2024-05-01", wantNil: true},
		{name: "flat record", line: `{"role":"user","content":"hi","timestamp":"2023-01-01T00:00:00Z"}`},
		{name: "surrounding whitespace", line: `   {"role":"user"}   `},
		{name: "truncated object", line: `{"role":"user","content":`, wantKind: KindJSON},
		{name: "garbage", line: `not json at all`, wantKind: KindJSON},
		{name: "array", line: `[1,2,3]`, wantKind: KindInvalidFormat},
		{name: "string", line: `"hello"`, wantKind: KindInvalidFormat},
		{name: "wrong field type", line: `{"role":42}`, wantKind: KindJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeLine([]byte(tt.line), 7)

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Nil(t, msg)
				assert.True(t, IsKind(err, tt.wantKind), "got %v", err)

				var pe *Error
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, 7, pe.Line)
				return
			}

			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, msg)
				return
			}
			assert.NotNil(t, msg)
		})
	}
}

func TestDecodeLine_Envelope(t *testing.T) {
	line := `{"type":"assistant","uuid":"u-2","parentUuid":"u-1","sessionId":"s-9",` +
		`"timestamp":"2024-03-01T10:00:00.123Z",` +
		`"message":{"role":"assistant","model":"claude-sonnet","content":[{"type":"text","text":"done"}]}}`

	msg, err := DecodeLine([]byte(line), 1)
	require.NoError(t, err)
	require.NotNil(t, msg)

	role, content, model := msg.body()
	assert.Equal(t, "assistant", role)
	assert.Equal(t, "claude-sonnet", model)
	assert.JSONEq(t, `[{"type":"text","text":"done"}]`, string(content))
	assert.Equal(t, "u-1", msg.parentID())
	assert.Equal(t, "s-9", msg.threadID())
}

func TestRawMessage_IDs(t *testing.T) {
	tests := []struct {
		name       string
		msg        RawMessage
		wantParent string
		wantThread string
	}{
		{"empty", RawMessage{}, "", ""},
		{"snake case", RawMessage{ParentUUIDSnake: "p", SessionIDSnake: "s"}, "p", "s"},
		{"camel wins", RawMessage{ParentUUID: "P", ParentUUIDSnake: "p", SessionID: "S", SessionIDSnake: "s"}, "P", "S"},
		{"thread id wins", RawMessage{ThreadID: "t", SessionID: "S"}, "", "t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantParent, tt.msg.parentID())
			assert.Equal(t, tt.wantThread, tt.msg.threadID())
		})
	}
}
