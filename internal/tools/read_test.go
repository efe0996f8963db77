package tools

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReadFile_Error_ClearsVersionCache covers I3: a read error clears any
// cached version for the path rather than leaving a stale entry behind.
func TestReadFile_Error_ClearsVersionCache(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	session.SetVersion("/workspace/a.ts", "v1")

	tool := &ReadFileTool{}
	_, err := tool.Execute(context.Background(), session, map[string]any{"path": "/workspace/a.ts"})
	require.Error(t, err)

	_, ok := session.CachedVersion("/workspace/a.ts")
	assert.False(t, ok)
}
