package tools

import (
	"path"
	"strings"
)

// NormalizeWorkspacePath canonicalizes a path argument to an absolute path
// under /workspace (§4.3.9): workspace-relative strings are prefixed,
// absolute paths are cleaned, and consecutive slashes are collapsed.
func NormalizeWorkspacePath(p string) string {
	if p == "" {
		return "/workspace"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/workspace/" + p
	}
	if !strings.HasPrefix(p, "/workspace") {
		p = "/workspace" + p
	}
	return path.Clean(p)
}

// ShellQuote single-quotes a value for safe interpolation into a shell
// command, escaping embedded single quotes with the four-character
// sequence '\'' (§4.3.9).
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
