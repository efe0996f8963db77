package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
)

// ReadFileTool implements read_file (§4.3.1).
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string       { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a file, or a line range of it." }
func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"start_line": {"type": "integer"},
			"end_line": {"type": "integer"}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, pusherr.New(pusherr.Unknown, "path is required")
	}
	start, hasStart := intArg(args, "start_line")
	end, hasEnd := intArg(args, "end_line")
	if hasStart != hasEnd {
		return nil, pusherr.New(pusherr.Unknown, "start_line and end_line must be given together")
	}
	if hasStart && start > end {
		return nil, pusherr.New(pusherr.Unknown, "start_line must be <= end_line")
	}

	normalized := NormalizeWorkspacePath(path)
	req := sandboxclient.ReadRequest{Path: normalized}
	if hasStart {
		req.StartLine = start
		req.EndLine = end
	}

	read, err := session.Sandbox.Read(ctx, req)
	if err != nil {
		session.ClearVersion(normalized)
		return nil, classifyReadError(err)
	}

	session.SetVersion(normalized, read.Version)

	var rng *models.LineRange
	if hasStart {
		rng = &models.LineRange{Start: start, End: end}
	}
	session.Ledger.RecordRead(normalized, rng, read.Truncated)

	decorated := DecorateLines(read.Content, effectiveStart(rng))
	result := fmt.Sprintf("%sversion: %s\ntruncated: %t\n", decorated, read.Version, read.Truncated)
	if read.Truncated {
		symbols := ExtractSymbols(normalized, read.Content)
		if preview := FormatSymbolsCompact(symbols); preview != "" {
			result += preview
		}
	}
	return &models.ToolResult{Content: result}, nil
}

func effectiveStart(rng *models.LineRange) int {
	if rng == nil {
		return 1
	}
	return rng.Start
}

// readFullFile builds a whole-file read request, used by tools (like
// read_symbols) that need full content regardless of any cached range.
func readFullFile(path string, session *Session) sandboxclient.ReadRequest {
	return sandboxclient.ReadRequest{Path: path}
}

// classifyReadError passes a structured sandbox read failure (including the
// client's FILE_NOT_FOUND) through unchanged and wraps any other error as
// UNKNOWN.
func classifyReadError(err error) error {
	if pe, ok := pusherr.As(err); ok {
		return pe
	}
	return pusherr.Wrap(pusherr.Unknown, err)
}

func intArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, _ := n.Int64()
		return int(i), true
	}
	return 0, false
}
