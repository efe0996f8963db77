package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/KvFxKaido/Push-sub001/internal/auditor"
	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
)

// AuditVerdictArtifact is attached to prepare_commit's ToolResult when the
// Auditor has run.
type AuditVerdictArtifact struct {
	Safe          bool           `json:"safe"`
	Summary       string         `json:"summary"`
	Risks         []auditor.Risk `json:"risks"`
	FilesReviewed int            `json:"files_reviewed"`
}

// ReviewArtifact is attached to prepare_commit's ToolResult when the
// Auditor passes: a pending hand-off for external approval. The tool
// layer never commits on its own (§4.3.5, §9 open question — this repo
// adopts the deferred/approval variant).
type ReviewArtifact struct {
	DiffStats string                `json:"diff_stats"`
	Verdict   AuditVerdictArtifact  `json:"verdict"`
	Message   string                `json:"message"`
	Status    string                `json:"status"`
}

// PrepareCommitTool implements prepare_commit (§4.3.5).
type PrepareCommitTool struct {
	// AuditorStream drives the secondary model invoked by the Auditor gate.
	// Nil means no auditor model is configured, which the Auditor treats as
	// a fail-safe "unsafe" verdict (§4.4 step 4).
	AuditorStream auditor.StreamFunc
}

func (t *PrepareCommitTool) Name() string        { return "prepare_commit" }
func (t *PrepareCommitTool) Description() string  { return "Audit the staged diff and prepare a commit for external approval." }
func (t *PrepareCommitTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": { "message": {"type": "string"} },
		"required": ["message"]
	}`)
}

func (t *PrepareCommitTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	message, _ := args["message"].(string)
	if message == "" {
		return nil, pusherr.New(pusherr.Unknown, "message is required")
	}

	diffResult, err := session.Sandbox.Diff(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(diffResult.Diff) == "" {
		return &models.ToolResult{Content: "no changes to commit (clean working tree)"}, nil
	}

	verdict := auditor.Run(ctx, t.AuditorStream, diffResult.Diff, diffResult.FilesChanged)
	artifact := AuditVerdictArtifact{
		Safe: verdict.Safe, Summary: verdict.Summary, Risks: verdict.Risks, FilesReviewed: verdict.FilesReviewed,
	}

	if !verdict.Safe {
		return &models.ToolResult{
			Content:  fmt.Sprintf("audit verdict: unsafe\n%s", verdict.Summary),
			IsError:  true,
			Artifact: artifact,
		}, nil
	}

	review := ReviewArtifact{
		DiffStats: fmt.Sprintf("%d files changed, +%d/-%d", diffResult.FilesChanged, diffResult.Insertions, diffResult.Deletions),
		Verdict:   artifact,
		Message:   message,
		Status:    "pending",
	}
	return &models.ToolResult{
		Content:  fmt.Sprintf("audit verdict: safe\nreview pending external approval\n%s", review.DiffStats),
		Artifact: review,
	}, nil
}

// PushTool implements push: push the current branch.
type PushTool struct{}

func (t *PushTool) Name() string        { return "push" }
func (t *PushTool) Description() string  { return "Push the current branch." }
func (t *PushTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *PushTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	result, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: "git push"})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return &models.ToolResult{Content: result.Stderr, IsError: true}, nil
	}
	return &models.ToolResult{Content: strings.TrimSpace(result.Stdout)}, nil
}

// SaveDraftTool implements save_draft: stage-commit-push without the
// Auditor, creating or reusing a draft/ branch.
type SaveDraftTool struct{}

func (t *SaveDraftTool) Name() string        { return "save_draft" }
func (t *SaveDraftTool) Description() string  { return "Stage, commit, and push to a draft branch without an audit gate." }
func (t *SaveDraftTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"message": {"type": "string"},
			"branch": {"type": "string"}
		}
	}`)
}

func (t *SaveDraftTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	message, _ := args["message"].(string)
	if message == "" {
		message = fmt.Sprintf("draft: %s", time.Now().UTC().Format(time.RFC3339))
	}
	branch, _ := args["branch"].(string)
	var sideEffect *models.SideEffect
	if branch == "" {
		branch = fmt.Sprintf("draft/%d", time.Now().UTC().Unix())
		sideEffect = &models.SideEffect{Kind: "branch_switch", Data: branch}
	} else if !strings.HasPrefix(branch, "draft/") {
		return nil, pusherr.New(pusherr.Unknown, "branch must start with draft/")
	}

	cmd := fmt.Sprintf(
		"git checkout -B %s && git add -A && git commit -m %s --allow-empty && git push -u origin %s",
		ShellQuote(branch), ShellQuote(message), ShellQuote(branch),
	)
	result, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: cmd})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return &models.ToolResult{Content: result.Stderr, IsError: true}, nil
	}
	return &models.ToolResult{
		Content:    fmt.Sprintf("saved draft on %s", branch),
		SideEffect: sideEffect,
	}, nil
}
