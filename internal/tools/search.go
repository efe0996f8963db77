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

// SearchTool implements search (§4.3.8): prefers ripgrep, falls back to
// recursive grep, both executed through the sandbox's exec operation since
// the sandbox is the only place that can see the workspace filesystem.
type SearchTool struct{}

func (t *SearchTool) Name() string        { return "search" }
func (t *SearchTool) Description() string  { return "Search file contents for a query, via ripgrep with a grep fallback." }
func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": { "query": {"type": "string"}, "path": {"type": "string"} },
		"required": ["query"]
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, pusherr.New(pusherr.Unknown, "query is required")
	}
	path, _ := args["path"].(string)
	searchRoot := "/workspace"
	if path != "" {
		searchRoot = NormalizeWorkspacePath(path)
	}

	rgCmd := fmt.Sprintf("rg --line-number --no-heading -- %s %s", ShellQuote(query), ShellQuote(searchRoot))
	result, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: rgCmd})
	if err != nil {
		return nil, err
	}

	if result.ExitCode == 127 {
		grepCmd := fmt.Sprintf("grep -rn -- %s %s", ShellQuote(query), ShellQuote(searchRoot))
		result, err = session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: grepCmd})
		if err != nil {
			return nil, err
		}
	}

	if result.ExitCode == 1 && strings.TrimSpace(result.Stdout) == "" {
		return &models.ToolResult{Content: "no matches"}, nil
	}
	if result.ExitCode != 0 && result.ExitCode != 1 {
		return &models.ToolResult{Content: result.Stderr, IsError: true}, nil
	}
	return &models.ToolResult{Content: result.Stdout}, nil
}
