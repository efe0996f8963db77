package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KvFxKaido/Push-sub001/internal/models"
)

// DownloadTool implements download: archive the workspace (or a subpath)
// and return it base64-encoded.
type DownloadTool struct{}

func (t *DownloadTool) Name() string        { return "download" }
func (t *DownloadTool) Description() string  { return "Archive the workspace (or a path within it) and return it base64-encoded." }
func (t *DownloadTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"path": {"type": "string"}}}`)
}

func (t *DownloadTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	path, _ := args["path"].(string)
	target := "/workspace"
	if path != "" {
		target = NormalizeWorkspacePath(path)
	}

	result, err := session.Sandbox.Download(ctx, target)
	if err != nil {
		return nil, err
	}
	return &models.ToolResult{
		Content:  fmt.Sprintf("archived %s (%d base64 bytes)", target, len(result.Base64)),
		Artifact: result,
	}, nil
}
