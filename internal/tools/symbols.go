package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
)

// structuralSignature pairs a per-language family of regexes with the
// extensions it applies to. Shared by read_file's truncated-read preview
// (§4.3.1) and the standalone read_symbols tool (§4.3, SPEC_FULL §12).
type structuralSignature struct {
	extensions []string
	patterns   []*regexp.Regexp
}

var signatureTable = []structuralSignature{
	{
		extensions: []string{".go"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`),
			regexp.MustCompile(`^\s*type\s+([A-Za-z_]\w*)\s+(?:struct|interface)`),
		},
	},
	{
		extensions: []string{".ts", ".tsx", ".js", ".jsx"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$]\w*)`),
			regexp.MustCompile(`^\s*(?:export\s+)?class\s+([A-Za-z_$]\w*)`),
			regexp.MustCompile(`^\s*(?:export\s+)?interface\s+([A-Za-z_$]\w*)`),
			regexp.MustCompile(`^\s*(?:export\s+)?type\s+([A-Za-z_$]\w*)\s*=`),
		},
	},
	{
		extensions: []string{".py"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*def\s+([A-Za-z_]\w*)`),
			regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`),
		},
	},
	{
		extensions: []string{".rs"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(?:pub\s+)?fn\s+([A-Za-z_]\w*)`),
			regexp.MustCompile(`^\s*(?:pub\s+)?struct\s+([A-Za-z_]\w*)`),
		},
	},
}

// genericSignaturePatterns is used for unrecognized extensions: a
// language-agnostic sweep for function/class/interface/type/def keywords,
// matching §4.3.1's "language-agnostic regex" wording.
var genericSignaturePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(?:export\s+)?(?:public\s+|private\s+)?(?:func|function|fn|def|class|interface|type)\s+([A-Za-z_$]\w*)`),
}

// Symbol is one extracted structural signature.
type Symbol struct {
	Name string
	Line int
}

// ExtractSymbols returns the structural signatures found in content, using
// the pattern family selected by path's extension (falling back to the
// generic sweep for unrecognized extensions).
func ExtractSymbols(path, content string) []Symbol {
	patterns := genericSignaturePatterns
	ext := strings.ToLower(filepath.Ext(path))
	for _, sig := range signatureTable {
		for _, e := range sig.extensions {
			if e == ext {
				patterns = sig.patterns
			}
		}
	}

	var symbols []Symbol
	for i, line := range SplitLinesKeepTrailing(content) {
		for _, pat := range patterns {
			if m := pat.FindStringSubmatch(line); m != nil {
				symbols = append(symbols, Symbol{Name: m[1], Line: i + 1})
				break
			}
		}
	}
	return symbols
}

// FormatSymbolsCompact renders symbols as the compact list appended after a
// truncated read_file result.
func FormatSymbolsCompact(symbols []Symbol) string {
	if len(symbols) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("structural signatures beyond truncation:\n")
	for _, s := range symbols {
		fmt.Fprintf(&b, "  L%d %s\n", s.Line, s.Name)
	}
	return b.String()
}

// ReadSymbolsTool implements read_symbols: extract functions/classes/types
// via the same language-specific extraction read_file uses for truncated
// previews, exposed as its own tool.
type ReadSymbolsTool struct{}

func (t *ReadSymbolsTool) Name() string        { return "read_symbols" }
func (t *ReadSymbolsTool) Description() string  { return "Extract functions, classes, interfaces, and types from a file." }
func (t *ReadSymbolsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": { "path": {"type": "string"} },
		"required": ["path"]
	}`)
}

func (t *ReadSymbolsTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, pusherr.New(pusherr.Unknown, "path is required")
	}
	normalized := NormalizeWorkspacePath(path)

	read, err := session.Sandbox.Read(ctx, readFullFile(normalized, session))
	if err != nil {
		session.ClearVersion(normalized)
		return nil, classifyReadError(err)
	}
	session.Ledger.RecordRead(normalized, nil, read.Truncated)
	session.SetVersion(normalized, read.Version)

	symbols := ExtractSymbols(normalized, read.Content)
	if len(symbols) == 0 {
		return &models.ToolResult{Content: fmt.Sprintf("No symbols found in %s", normalized)}, nil
	}
	return &models.ToolResult{Content: FormatSymbolsCompact(symbols)}, nil
}
