package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
)

// WriteFileTool implements write_file (§4.3.2): a gated whole-file write.
type WriteFileTool struct{}

func (t *WriteFileTool) Name() string       { return "write_file" }
func (t *WriteFileTool) Description() string { return "Overwrite a file's full content, gated by the edit guard." }
func (t *WriteFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"content": {"type": "string"},
			"expected_version": {"type": "string"}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	path, _ := args["path"].(string)
	content, hasContent := args["content"].(string)
	if path == "" || !hasContent {
		return nil, pusherr.New(pusherr.Unknown, "path and content are required")
	}
	normalized := NormalizeWorkspacePath(path)

	guard := runEditGuard(ctx, session, normalized)
	if guard.blocked != nil {
		return nil, guard.blocked
	}

	expected, _ := args["expected_version"].(string)
	if expected == "" {
		expected, _ = session.CachedVersion(normalized)
	}

	write, err := session.Sandbox.Write(ctx, sandboxclient.WriteRequest{
		Path: normalized, Content: content, ExpectedVersion: expected,
	})
	if err != nil {
		if pe, ok := pusherr.As(err); ok && pe.Type == pusherr.StaleFile {
			session.SetVersion(normalized, pe.Detail["current_version"])
			session.Ledger.MarkStale(normalized)
			return nil, pe
		}
		return nil, err
	}

	session.SetVersion(normalized, write.NewVersion)
	session.Ledger.RecordCreation(normalized)

	text := fmt.Sprintf("Wrote %s (%d bytes, version %s)", normalized, write.BytesWritten, write.NewVersion)
	if note := porcelainAnnotation(ctx, session, normalized); note != "" {
		text += "\n" + note
	}

	return &models.ToolResult{Content: text}, nil
}

// porcelainAnnotation implements the write_file follow-up status check
// (§4.3.2): run `git status --porcelain` against the written path and
// annotate the result when git sees no change or when the path escaped
// the workspace root (possible when a ".." component makes
// NormalizeWorkspacePath's path.Clean resolve above /workspace).
func porcelainAnnotation(ctx context.Context, session *Session, normalized string) string {
	if !strings.HasPrefix(normalized, "/workspace") {
		return "note: path is outside the workspace"
	}

	rel := strings.TrimPrefix(normalized, "/workspace")
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return ""
	}

	result, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{
		Command: "git status --porcelain -- " + ShellQuote(rel),
		Workdir: "/workspace",
	})
	if err != nil || result.ExitCode != 0 {
		return ""
	}
	if strings.TrimSpace(result.Stdout) == "" {
		return "note: git sees no change for this file"
	}
	return ""
}
