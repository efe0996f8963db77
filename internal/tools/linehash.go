package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// LineHash returns the first 7 hex characters of a SHA-256 digest of the
// trimmed line, used both to decorate read_file output and as the
// hashline-op reference format in edit_file.
func LineHash(line string) string {
	sum := sha256.Sum256([]byte(strings.TrimRight(line, "\r\n")))
	return hex.EncodeToString(sum[:])[:7]
}

// DecorateLines splits content into lines and prefixes each with a padded
// 1-indexed line number and its content hash, matching read_file's output
// format: "    1 abc1234 | the line text".
func DecorateLines(content string, startLine int) string {
	lines := SplitLinesKeepTrailing(content)
	var b strings.Builder
	for i, line := range lines {
		n := startLine + i
		fmt.Fprintf(&b, "%5d %s | %s\n", n, LineHash(line), line)
	}
	return b.String()
}

// SplitLinesKeepTrailing splits content on "\n". When the raw content ends
// in a newline, the trailing empty string produced by strings.Split is
// dropped, so no phantom empty last line appears; JoinLines with
// trailingNewline set restores the newline on reconstruction.
func SplitLinesKeepTrailing(content string) []string {
	if content == "" {
		return nil
	}
	endedInNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	if endedInNewline {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// JoinLines reassembles lines into file content, appending a trailing
// newline only when trailingNewline is true.
func JoinLines(lines []string, trailingNewline bool) string {
	joined := strings.Join(lines, "\n")
	if trailingNewline {
		joined += "\n"
	}
	return joined
}
