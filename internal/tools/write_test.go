package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWriteFile_StaleVersion covers scenario 1: a stale write surfaces
// error_type STALE_FILE, retryable false, both versions, and updates the
// cache to the current version.
func TestWriteFile_StaleVersion(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sandbox/read":
			_ = json.NewEncoder(w).Encode(map[string]any{"content": "x\n", "truncated": false, "version": "v1"})
		case "/sandbox/write":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": false, "code": "STALE_FILE", "expected_version": "v1", "current_version": "v2",
			})
		}
	})
	session.Ledger.RecordRead("/workspace/a.ts", nil, false)
	session.SetVersion("/workspace/a.ts", "v1")

	tool := &WriteFileTool{}
	_, err := tool.Execute(context.Background(), session, map[string]any{
		"path": "/workspace/a.ts", "content": "new content", "expected_version": "v1",
	})
	require.Error(t, err)

	pe, ok := pusherr.As(err)
	require.True(t, ok)
	assert.Equal(t, pusherr.StaleFile, pe.Type)
	assert.False(t, pe.Retryable)
	assert.Equal(t, "v1", pe.Detail["expected_version"])
	assert.Equal(t, "v2", pe.Detail["current_version"])

	cached, ok := session.CachedVersion("/workspace/a.ts")
	require.True(t, ok)
	assert.Equal(t, "v2", cached)
}

// TestWriteFile_AutoExpand_AllowsWrite covers scenario 2: an unread file's
// write_file triggers auto-expand, which succeeds and unblocks the write.
func TestWriteFile_AutoExpand_AllowsWrite(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sandbox/read":
			_ = json.NewEncoder(w).Encode(map[string]any{"content": "line1\nline2\n", "truncated": false, "version": "v1"})
		case "/sandbox/write":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "bytes_written": 5, "new_version": "v2"})
		}
	})
	session.Ledger.RegisterFile("/workspace/src/foo.ts")

	tool := &WriteFileTool{}
	result, err := tool.Execute(context.Background(), session, map[string]any{
		"path": "/workspace/src/foo.ts", "content": "hello",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "Wrote /workspace/src/foo.ts")

	state, ok := session.Ledger.State("/workspace/src/foo.ts")
	require.True(t, ok)
	assert.Equal(t, 3 /* KindModelAuthored */, int(state.Kind))

	cached, ok := session.CachedVersion("/workspace/src/foo.ts")
	require.True(t, ok)
	assert.Equal(t, "v2", cached)
}

// TestWriteFile_PorcelainAnnotation_NoChange covers §4.3.2's follow-up
// status check: when git sees no change for the written path, the result
// is annotated.
func TestWriteFile_PorcelainAnnotation_NoChange(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sandbox/read":
			_ = json.NewEncoder(w).Encode(map[string]any{"content": "x\n", "truncated": false, "version": "v1"})
		case "/sandbox/write":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "bytes_written": 1, "new_version": "v2"})
		case "/sandbox/exec":
			_ = json.NewEncoder(w).Encode(map[string]any{"stdout": "", "stderr": "", "exit_code": 0})
		}
	})
	session.Ledger.RecordRead("/workspace/a.ts", nil, false)
	session.SetVersion("/workspace/a.ts", "v1")

	tool := &WriteFileTool{}
	result, err := tool.Execute(context.Background(), session, map[string]any{
		"path": "/workspace/a.ts", "content": "x",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "git sees no change")
}

// TestWriteFile_AutoExpand_ENOENT_TreatsAsNewFile covers a never-read path
// whose auto-expand read returns not-found: the write proceeds as a new
// file and the path ends up model_authored.
func TestWriteFile_AutoExpand_ENOENT_TreatsAsNewFile(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sandbox/read":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "no such file", "code": "ENOENT"})
		case "/sandbox/write":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "bytes_written": 5, "new_version": "v1"})
		}
	})

	tool := &WriteFileTool{}
	_, err := tool.Execute(context.Background(), session, map[string]any{
		"path": "/workspace/brand-new.ts", "content": "hello",
	})
	require.NoError(t, err)

	state, ok := session.Ledger.State("/workspace/brand-new.ts")
	require.True(t, ok)
	assert.Equal(t, 3 /* KindModelAuthored */, int(state.Kind))
}
