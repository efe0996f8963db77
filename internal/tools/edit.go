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

// HashlineOp is a single hash-anchored line edit (§4.3.3).
type HashlineOp struct {
	Op      string `json:"op"`
	Ref     string `json:"ref"`
	Content string `json:"content,omitempty"`
}

// opError is one failed op's diagnostic, collected so EDIT_HASH_MISMATCH
// can report every failure rather than just the first.
type opError struct {
	Index  int
	Op     HashlineOp
	Reason string
}

func (e opError) String() string {
	return fmt.Sprintf("op %d (%s ref=%s): %s", e.Index+1, e.Op.Op, e.Op.Ref, e.Reason)
}

// applyHashlineOps applies ops to content in order, recomputing every line
// hash between ops (mandatory because prior ops may have shifted lines).
// It never mutates content destructively when an op fails: a failing op is
// simply skipped and recorded, and hash recomputation continues from
// whatever the content is at that point.
func applyHashlineOps(content string, ops []HashlineOp) (newContent string, errs []opError, applied int) {
	trailingNewline := strings.HasSuffix(content, "\n")
	lines := SplitLinesKeepTrailing(content)

	for idx, op := range ops {
		matches := matchingLineIndices(lines, op.Ref)
		switch len(matches) {
		case 0:
			errs = append(errs, opError{Index: idx, Op: op, Reason: "no line matches ref"})
			continue
		default:
			if len(matches) > 1 {
				errs = append(errs, opError{Index: idx, Op: op, Reason: fmt.Sprintf("ambiguous: %d lines match", len(matches))})
				continue
			}
		}

		i := matches[0]
		switch op.Op {
		case "replace_line":
			lines[i] = op.Content
		case "delete_line":
			lines = append(lines[:i], lines[i+1:]...)
		case "insert_after":
			lines = insertAt(lines, i+1, op.Content)
		case "insert_before":
			lines = insertAt(lines, i, op.Content)
		default:
			errs = append(errs, opError{Index: idx, Op: op, Reason: fmt.Sprintf("unknown op %q", op.Op)})
			continue
		}
		applied++
	}

	return JoinLines(lines, trailingNewline), errs, applied
}

func matchingLineIndices(lines []string, ref string) []int {
	var matches []int
	for i, l := range lines {
		if strings.HasPrefix(LineHash(l), ref) {
			matches = append(matches, i)
		}
	}
	return matches
}

func insertAt(lines []string, at int, content string) []string {
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:at]...)
	out = append(out, content)
	out = append(out, lines[at:]...)
	return out
}

// EditFileTool implements edit_file, the hash-anchored line editor.
type EditFileTool struct{}

func (t *EditFileTool) Name() string       { return "edit_file" }
func (t *EditFileTool) Description() string { return "Apply an ordered list of hash-anchored line edits to a file." }
func (t *EditFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"ops": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"op": {"type": "string", "enum": ["replace_line", "insert_after", "insert_before", "delete_line"]},
						"ref": {"type": "string"},
						"content": {"type": "string"}
					},
					"required": ["op", "ref"]
				}
			},
			"expected_version": {"type": "string"}
		},
		"required": ["path", "ops"]
	}`)
}

func (t *EditFileTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, pusherr.New(pusherr.Unknown, "path is required")
	}
	ops, err := decodeOps(args["ops"])
	if err != nil {
		return nil, pusherr.New(pusherr.Unknown, err.Error())
	}
	if len(ops) == 0 {
		return nil, pusherr.New(pusherr.Unknown, "ops must be non-empty")
	}
	normalized := NormalizeWorkspacePath(path)

	guard := runEditGuard(ctx, session, normalized)
	if guard.blocked != nil {
		return nil, guard.blocked
	}

	current, err := readFullAndHydrate(ctx, session, normalized)
	if err != nil {
		return nil, err
	}

	newContent, opErrs, applied := applyHashlineOps(current.content, ops)
	if len(opErrs) > 0 {
		lines := make([]string, len(opErrs))
		for i, e := range opErrs {
			lines[i] = e.String()
		}
		return nil, pusherr.New(pusherr.EditHashMismatch, strings.Join(lines, "; ")).
			WithDetail("applied", fmt.Sprintf("%d", applied)).
			WithDetail("failed", fmt.Sprintf("%d", len(opErrs)))
	}

	expected, _ := args["expected_version"].(string)
	if expected == "" {
		expected = current.version
	}

	write, err := session.Sandbox.Write(ctx, sandboxclient.WriteRequest{
		Path: normalized, Content: newContent, ExpectedVersion: expected,
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

	diff := boundedDiff(current.content, newContent, 4000)
	return &models.ToolResult{
		Content: fmt.Sprintf("%d of %d operations applied\n%s", applied, len(ops), diff),
	}, nil
}

type hydratedFile struct {
	content string
	version string
}

// readFullAndHydrate reads path fully, hydrating by chunks if the direct
// read is truncated, aborting with EDIT_GUARD_BLOCKED if still truncated
// afterward (§4.3.3 step 1).
func readFullAndHydrate(ctx context.Context, session *Session, path string) (hydratedFile, error) {
	read, err := session.Sandbox.Read(ctx, sandboxclient.ReadRequest{Path: path})
	if err != nil {
		session.ClearVersion(path)
		return hydratedFile{}, classifyReadError(err)
	}
	if !read.Truncated {
		return hydratedFile{content: read.Content, version: read.Version}, nil
	}
	content, version, ok := hydrateByChunks(ctx, session, path)
	if !ok {
		return hydratedFile{}, pusherr.New(pusherr.EditGuardBlocked, "file is too large to fully hydrate for editing")
	}
	return hydratedFile{content: content, version: version}, nil
}

func decodeOps(raw any) ([]HashlineOp, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var ops []HashlineOp
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}
