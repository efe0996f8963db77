package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
)

// ExecTool implements exec: run a shell command in the sandbox with a
// bounded duration, returning stdout/stderr/exit code/duration.
type ExecTool struct{}

func (t *ExecTool) Name() string        { return "exec" }
func (t *ExecTool) Description() string  { return "Run a shell command in the sandbox workspace." }
func (t *ExecTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": { "command": {"type": "string"}, "workdir": {"type": "string"} },
		"required": ["command"]
	}`)
}

func (t *ExecTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return nil, pusherr.New(pusherr.Unknown, "command is required")
	}
	workdir, _ := args["workdir"].(string)
	if workdir != "" {
		workdir = NormalizeWorkspacePath(workdir)
	}

	result, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: command, Workdir: workdir})
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("exit_code: %d\nduration: %s\n--- stdout ---\n%s\n--- stderr ---\n%s",
		result.ExitCode, result.Duration, result.Stdout, result.Stderr)
	return &models.ToolResult{Content: text, IsError: result.ExitCode != 0}, nil
}
