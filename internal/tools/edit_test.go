package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEditFile_HashlineReplace covers scenario 3: a single replace_line op
// applies cleanly and the ledger ends up model_authored.
func TestEditFile_HashlineReplace(t *testing.T) {
	var writtenContent string
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sandbox/read":
			_ = json.NewEncoder(w).Encode(map[string]any{"content": "line 1\nline 2", "truncated": false, "version": "v1"})
		case "/sandbox/write":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			writtenContent, _ = body["content"].(string)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "bytes_written": 17, "new_version": "v2"})
		}
	})

	tool := &EditFileTool{}
	args := map[string]any{
		"path": "/workspace/a.py",
		"ops": []map[string]any{
			{"op": "replace_line", "ref": LineHash("line 1"), "content": "LINE ONE"},
		},
	}
	result, err := tool.Execute(context.Background(), session, args)
	require.NoError(t, err)
	assert.Contains(t, result.Content, "1 of 1 operations applied")
	assert.Equal(t, "LINE ONE\nline 2", writtenContent)

	state, ok := session.Ledger.State("/workspace/a.py")
	require.True(t, ok)
	assert.Equal(t, 3 /* KindModelAuthored */, int(state.Kind))
}

// TestEditFile_AmbiguousRef_NoWrite ensures a single ambiguous op blocks
// the whole edit with EDIT_HASH_MISMATCH and never calls write.
func TestEditFile_AmbiguousRef_NoWrite(t *testing.T) {
	writeCalled := false
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sandbox/read":
			_ = json.NewEncoder(w).Encode(map[string]any{"content": "alpha\nbeta\n", "truncated": false, "version": "v1"})
		case "/sandbox/write":
			writeCalled = true
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	})

	tool := &EditFileTool{}
	args := map[string]any{
		"path": "/workspace/b.py",
		"ops": []map[string]any{
			{"op": "replace_line", "ref": commonHashPrefix("alpha", "beta"), "content": "X"},
		},
	}
	_, err := tool.Execute(context.Background(), session, args)
	require.Error(t, err)
	assert.False(t, writeCalled)
}
