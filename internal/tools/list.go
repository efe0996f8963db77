package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
)

// ListDirTool implements list_dir.
type ListDirTool struct{}

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string  { return "List the entries of a directory." }
func (t *ListDirTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"path": {"type": "string"}}}`)
}

func (t *ListDirTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	path, _ := args["path"].(string)
	normalized := NormalizeWorkspacePath(path)

	listing, err := session.Sandbox.List(ctx, sandboxclient.ListRequest{Path: normalized})
	if err != nil {
		return nil, err
	}
	if len(listing.Entries) == 0 {
		return &models.ToolResult{Content: fmt.Sprintf("%s is empty", normalized)}, nil
	}

	var b strings.Builder
	for _, e := range listing.Entries {
		if e.IsDir {
			fmt.Fprintf(&b, "%s/\n", e.Name)
		} else {
			fmt.Fprintf(&b, "%s\n", e.Name)
		}
	}
	return &models.ToolResult{Content: b.String()}, nil
}
