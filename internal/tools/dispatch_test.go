package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBareToolJSONObjects_NestedObjects(t *testing.T) {
	s := `before {"tool":"edit_file","args":{"path":"a.py","ops":[{"op":"replace_line"}]}} after`
	objs := ExtractBareToolJSONObjects(s)
	require.Len(t, objs, 1)
	assert.Equal(t, `{"tool":"edit_file","args":{"path":"a.py","ops":[{"op":"replace_line"}]}}`, objs[0])
}

func TestExtractBareToolJSONObjects_IgnoresBracesInsideStrings(t *testing.T) {
	s := `{"tool":"exec","args":{"command":"echo '{not json}'"}}`
	objs := ExtractBareToolJSONObjects(s)
	require.Len(t, objs, 1)
	assert.Equal(t, s, objs[0])
}

func TestExtractBareToolJSONObjects_EscapedQuoteInString(t *testing.T) {
	s := `{"tool":"write_file","args":{"content":"a \"quoted\" {brace}"}}`
	objs := ExtractBareToolJSONObjects(s)
	require.Len(t, objs, 1)
	assert.Equal(t, s, objs[0])
}

func TestExtractBareToolJSONObjects_MultipleTopLevelObjects(t *testing.T) {
	s := `{"tool":"a"} some text {"tool":"b"}`
	objs := ExtractBareToolJSONObjects(s)
	require.Len(t, objs, 2)
	assert.Equal(t, `{"tool":"a"}`, objs[0])
	assert.Equal(t, `{"tool":"b"}`, objs[1])
}

func TestDetectToolCall_FirstWellFormedWins(t *testing.T) {
	s := "I'll run this:\n```json\n{\"tool\": \"read_file\", \"args\": {\"path\": \"a.ts\"}}\n```\nthen maybe {\"tool\": \"exec\"}"
	env, ok := DetectToolCall(s)
	require.True(t, ok)
	assert.Equal(t, "read_file", env.Tool)
	assert.Equal(t, "a.ts", env.Args["path"])
}

func TestDetectToolCall_NoToolField_NotDetected(t *testing.T) {
	env, ok := DetectToolCall(`just some {"not_a_tool": true} text`)
	assert.False(t, ok)
	assert.Empty(t, env.Tool)
}

func TestDetectToolCall_NoJSON_NotDetected(t *testing.T) {
	_, ok := DetectToolCall("plain prose, no tool call here")
	assert.False(t, ok)
}
