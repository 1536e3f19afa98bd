package parser

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sessionparse/pkg/extract"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

func decode(t *testing.T, line string) *RawMessage {
	t.Helper()
	msg, err := DecodeLine([]byte(line), 1)
	require.NoError(t, err)
	require.NotNil(t, msg)
	return msg
}

func TestConvert(t *testing.T) {
	ex := extract.New(extract.DefaultConfig(), nil)

	block, err := Convert(decode(t, `{"role":"user","content":"hi","timestamp":"2023-01-01T00:00:00Z","thread_id":"t-1"}`), 4, ex)
	require.NoError(t, err)

	assert.NotEmpty(t, block.ID)
	assert.Equal(t, 4, block.SequenceNumber)
	assert.Equal(t, session.RoleUser, block.Role)
	assert.Equal(t, "hi", block.Content.RawText)
	assert.Equal(t, "t-1", block.Metadata.ThreadID)
	assert.True(t, block.Timestamp.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.NotNil(t, block.Tools)
	assert.NotNil(t, block.Attachments)
	assert.NotNil(t, block.ContextReferences)
}

func TestConvert_Errors(t *testing.T) {
	ex := extract.New(extract.DefaultConfig(), nil)

	tests := []struct {
		name      string
		line      string
		wantKind  Kind
		wantValue string
	}{
		{"missing role", `{"content":"hi","timestamp":"2023-01-01T00:00:00Z"}`, KindMissingField, "role"},
		{"missing content", `{"role":"user","timestamp":"2023-01-01T00:00:00Z"}`, KindMissingField, "content"},
		{"null content", `{"role":"user","content":null,"timestamp":"2023-01-01T00:00:00Z"}`, KindMissingField, "content"},
		{"missing timestamp", `{"role":"user","content":"hi"}`, KindMissingField, "timestamp"},
		{"unknown role", `{"role":"robot","content":"hi","timestamp":"2023-01-01T00:00:00Z"}`, KindUnknownRole, "robot"},
		{"bad timestamp", `{"role":"user","content":"hi","timestamp":"yesterday"}`, KindInvalidTimestamp, "yesterday"},
		{"numeric content", `{"role":"user","content":42,"timestamp":"2023-01-01T00:00:00Z"}`, KindInvalidFormat, "content"},
		{"summary record", `{"type":"summary","summary":"Fixed tests","leafUuid":"x"}`, KindMissingField, "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(decode(t, tt.line), 9, ex)
			require.Error(t, err)

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantKind, pe.Kind)
			assert.Equal(t, tt.wantValue, pe.Value)
			assert.Equal(t, 9, pe.Line)
			assert.True(t, pe.Recoverable())
		})
	}
}

func TestConvert_Envelope(t *testing.T) {
	ex := extract.New(extract.DefaultConfig(), nil)
	line := `{"type":"assistant","uuid":"u-2","parentUuid":"u-1","sessionId":"s-9","timestamp":"2024-03-01T10:00:00Z",` +
		`"message":{"role":"assistant","model":"claude-sonnet","content":[` +
		`{"type":"text","text":"Running"},` +
		`{"type":"text","text":"the tests."},` +
		`{"type":"tool_use","id":"toolu_1","name":"Bash","input":{"command":"go test ./..."}},` +
		`{"type":"tool_result","tool_use_id":"toolu_1","content":"ok"}]}}`

	block, err := Convert(decode(t, line), 1, ex)
	require.NoError(t, err)

	assert.Equal(t, session.RoleAssistant, block.Role)
	assert.Equal(t, "Running the tests.", block.Content.RawText)
	assert.Equal(t, session.BlockMetadata{
		SourceID: "u-2",
		ParentID: "u-1",
		ThreadID: "s-9",
		Model:    "claude-sonnet",
	}, block.Metadata)

	require.Len(t, block.Tools, 1)
	tool := block.Tools[0]
	assert.Equal(t, "toolu_1", tool.ID)
	assert.Equal(t, "Bash", tool.Name)
	assert.JSONEq(t, `{"command":"go test ./..."}`, string(tool.Parameters))
	require.NotNil(t, tool.Result)
	assert.Equal(t, "ok", tool.Result.Content)
	assert.True(t, tool.Success)
}

func TestToolInvocations(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("standalone result", func(t *testing.T) {
		tools := toolInvocations([]ContentPart{{
			Type:          "tool_result",
			ToolUseID:     "toolu_9",
			ResultContent: json.RawMessage(`[{"type":"text","text":"exit"},{"type":"text","text":"status 1"}]`),
			IsError:       true,
		}}, ts)

		require.Len(t, tools, 1)
		assert.Equal(t, "toolu_9", tools[0].ID)
		assert.Equal(t, "exit status 1", tools[0].Result.Content)
		assert.True(t, tools[0].Result.IsError)
		assert.False(t, tools[0].Success)
		assert.Equal(t, ts, tools[0].Timestamp)
	})

	t.Run("use without result", func(t *testing.T) {
		tools := toolInvocations([]ContentPart{{Type: "tool_use", ID: "a", Name: "Read"}}, ts)

		require.Len(t, tools, 1)
		assert.Nil(t, tools[0].Result)
		assert.False(t, tools[0].Success)
	})

	t.Run("text only", func(t *testing.T) {
		tools := toolInvocations([]ContentPart{{Type: "text", Text: "hi"}}, ts)
		assert.NotNil(t, tools)
		assert.Empty(t, tools)
	})
}

func TestDecodeContent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		parts   int
		wantErr bool
	}{
		{"string", `"hello"`, "hello", 0, false},
		{"empty string", `""`, "", 0, false},
		{"parts", `[{"type":"text","text":"a"},{"type":"image"},{"type":"text","text":"b"}]`, "a b", 3, false},
		{"empty array", `[]`, "", 0, false},
		{"object", `{"text":"a"}`, "", 0, true},
		{"number", `7`, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, parts, err := decodeContent(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
			assert.Len(t, parts, tt.parts)
		})
	}
}

func TestBuildBlock_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		b := BuildBlock(BlockInput{Line: i + 1, Role: session.RoleUser})
		assert.False(t, seen[b.ID], "duplicate id %s", b.ID)
		seen[b.ID] = true
	}
}
