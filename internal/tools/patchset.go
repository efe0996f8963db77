package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
)

// filePatch is one file's entry in an apply_patchset request.
type filePatch struct {
	Path string       `json:"path"`
	Ops  []HashlineOp `json:"ops"`
}

// patchPlan is the in-memory result of Phase 1 validation for one file.
type patchPlan struct {
	path       string
	newContent string
	version    string
	err        error
}

// ApplyPatchsetTool implements apply_patchset (§4.3.4): atomic validation
// across every target file, then sequential (non-rolled-back) writes.
//
// Grounded on the teacher's internal/tools/files/patch.go, which validates
// a unified diff against each target's current content before writing;
// this adapts that "validate everything, then write" shape to hashline ops
// and the sandbox RPC client, and adds the Phase 1 parallel-read fan-out
// §5 calls out as the one place multiple sandbox reads run concurrently.
type ApplyPatchsetTool struct{}

func (t *ApplyPatchsetTool) Name() string        { return "apply_patchset" }
func (t *ApplyPatchsetTool) Description() string  { return "Apply hash-anchored edits to multiple files atomically." }
func (t *ApplyPatchsetTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"files": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"path": {"type": "string"},
						"ops": {"type": "array"}
					},
					"required": ["path", "ops"]
				}
			},
			"dry_run": {"type": "boolean"}
		},
		"required": ["files"]
	}`)
}

func (t *ApplyPatchsetTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	patches, err := decodeFilePatches(args["files"])
	if err != nil {
		return nil, pusherr.New(pusherr.Unknown, err.Error())
	}
	if len(patches) == 0 {
		return nil, pusherr.New(pusherr.Unknown, "files must be non-empty")
	}
	dryRun, _ := args["dry_run"].(bool)

	seen := make(map[string]bool, len(patches))
	for _, p := range patches {
		normalized := NormalizeWorkspacePath(p.Path)
		if seen[normalized] {
			return nil, pusherr.New(pusherr.Unknown, fmt.Sprintf("duplicate path in patchset: %s", normalized))
		}
		seen[normalized] = true
	}

	// Phase 1: read and validate every target file in parallel. The edit
	// guard still applies per file, matching write_file/edit_file.
	plans := make([]patchPlan, len(patches))
	var wg sync.WaitGroup
	for i, p := range patches {
		wg.Add(1)
		go func(idx int, fp filePatch) {
			defer wg.Done()
			plans[idx] = planOneFile(ctx, session, fp)
		}(i, p)
	}
	wg.Wait()

	var failures []string
	for _, plan := range plans {
		if plan.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", plan.path, plan.err))
		}
	}
	if len(failures) > 0 {
		return nil, pusherr.New(pusherr.EditHashMismatch, strings.Join(failures, "; "))
	}

	if dryRun {
		return &models.ToolResult{Content: fmt.Sprintf("dry run: %d files would be written, no write issued", len(plans))}, nil
	}

	// Phase 2: write sequentially. A mid-phase failure is not rolled back;
	// the result enumerates what was written and what failed.
	var written, failed []string
	for _, plan := range plans {
		write, err := session.Sandbox.Write(ctx, sandboxclient.WriteRequest{
			Path: plan.path, Content: plan.newContent, ExpectedVersion: plan.version,
		})
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %s", plan.path, err))
			continue
		}
		session.SetVersion(plan.path, write.NewVersion)
		session.Ledger.RecordCreation(plan.path)
		written = append(written, plan.path)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d files written\n", len(written), len(plans))
	for _, p := range written {
		fmt.Fprintf(&b, "  wrote %s\n", p)
	}
	for _, f := range failed {
		fmt.Fprintf(&b, "  failed %s\n", f)
	}
	return &models.ToolResult{Content: b.String(), IsError: len(failed) > 0}, nil
}

func planOneFile(ctx context.Context, session *Session, fp filePatch) patchPlan {
	normalized := NormalizeWorkspacePath(fp.Path)

	guard := runEditGuard(ctx, session, normalized)
	if guard.blocked != nil {
		return patchPlan{path: normalized, err: guard.blocked}
	}

	current, err := readFullAndHydrate(ctx, session, normalized)
	if err != nil {
		return patchPlan{path: normalized, err: err}
	}

	newContent, opErrs, _ := applyHashlineOps(current.content, fp.Ops)
	if len(opErrs) > 0 {
		lines := make([]string, len(opErrs))
		for i, e := range opErrs {
			lines[i] = e.String()
		}
		return patchPlan{path: normalized, err: errors.New(strings.Join(lines, "; "))}
	}

	return patchPlan{path: normalized, newContent: newContent, version: current.version}
}

func decodeFilePatches(raw any) ([]filePatch, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var patches []filePatch
	if err := json.Unmarshal(data, &patches); err != nil {
		return nil, err
	}
	return patches, nil
}
