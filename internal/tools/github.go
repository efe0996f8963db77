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

// PromoteToGithubTool implements promote_to_github: create a remote repo,
// configure origin, and push. Authentication itself (the token used by the
// `gh`/`git` invocations) is out of scope (§1) and assumed to be ambient in
// the sandbox environment.
type PromoteToGithubTool struct{}

func (t *PromoteToGithubTool) Name() string        { return "promote_to_github" }
func (t *PromoteToGithubTool) Description() string  { return "Create a GitHub remote, configure origin, and push." }
func (t *PromoteToGithubTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"repo_name": {"type": "string"},
			"description": {"type": "string"},
			"private": {"type": "boolean"}
		},
		"required": ["repo_name"]
	}`)
}

func (t *PromoteToGithubTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	repoName, _ := args["repo_name"].(string)
	if repoName == "" {
		return nil, pusherr.New(pusherr.Unknown, "repo_name is required")
	}
	description, _ := args["description"].(string)
	private, _ := args["private"].(bool)

	visibility := "--public"
	if private {
		visibility = "--private"
	}

	createCmd := fmt.Sprintf("gh repo create %s %s", ShellQuote(repoName), visibility)
	if description != "" {
		createCmd += fmt.Sprintf(" --description %s", ShellQuote(description))
	}
	createCmd += " --source=. --remote=origin"

	result, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: createCmd})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		if strings.Contains(strings.ToLower(result.Stderr), "auth") {
			return nil, pusherr.New(pusherr.AuthFailure, strings.TrimSpace(result.Stderr))
		}
		return &models.ToolResult{Content: result.Stderr, IsError: true}, nil
	}

	pushResult, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: "git push -u origin HEAD"})
	if err != nil {
		return nil, err
	}
	if pushResult.ExitCode != 0 {
		return &models.ToolResult{Content: pushResult.Stderr, IsError: true}, nil
	}

	return &models.ToolResult{
		Content:    fmt.Sprintf("promoted to github: %s", repoName),
		SideEffect: &models.SideEffect{Kind: "remote_created", Data: repoName},
	}, nil
}
