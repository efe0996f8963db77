package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KvFxKaido/Push-sub001/internal/models"
)

// boundedDiff produces a compact unified-style diff between two whole-file
// contents, truncated to maxChars. It is intentionally not a full Myers
// diff — just a line-aligned prefix/suffix trim — since its only purpose
// is a human-/model-readable preview attached to edit_file's result, not an
// applyable patch.
func boundedDiff(before, after string, maxChars int) string {
	if before == after {
		return "(no change)"
	}
	beforeLines := SplitLinesKeepTrailing(before)
	afterLines := SplitLinesKeepTrailing(after)

	prefix := 0
	for prefix < len(beforeLines) && prefix < len(afterLines) && beforeLines[prefix] == afterLines[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(beforeLines)-prefix && suffix < len(afterLines)-prefix &&
		beforeLines[len(beforeLines)-1-suffix] == afterLines[len(afterLines)-1-suffix] {
		suffix++
	}

	var b strings.Builder
	for i := prefix; i < len(beforeLines)-suffix; i++ {
		fmt.Fprintf(&b, "-%s\n", beforeLines[i])
	}
	for i := prefix; i < len(afterLines)-suffix; i++ {
		fmt.Fprintf(&b, "+%s\n", afterLines[i])
	}

	out := b.String()
	if len(out) > maxChars {
		out = out[:maxChars] + "\n... (diff truncated)"
	}
	return out
}

// DiffTool implements diff: the uncommitted diff and change counts.
type DiffTool struct{}

func (t *DiffTool) Name() string        { return "diff" }
func (t *DiffTool) Description() string  { return "Show the uncommitted diff and change counts." }
func (t *DiffTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *DiffTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	result, err := session.Sandbox.Diff(ctx)
	if err != nil {
		return nil, err
	}
	text := fmt.Sprintf("%d files changed, +%d/-%d\n%s", result.FilesChanged, result.Insertions, result.Deletions, result.Diff)
	return &models.ToolResult{Content: text}, nil
}
