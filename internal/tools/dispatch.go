package tools

import (
	"encoding/json"
	"regexp"
	"sort"
)

// candidate is a span of text in the assistant turn that might parse as a
// tool-call JSON object, tagged with its start offset so ordering across
// fenced and bare candidates is well defined.
type candidate struct {
	start int
	text  string
}

// fencedJSONBlock matches a fenced code block explicitly marked json, e.g.
// ```json\n{...}\n```.
var fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")

// ExtractFencedJSONBlocks returns the contents of every ```json fenced code
// block in s, in order of appearance.
func ExtractFencedJSONBlocks(s string) []string {
	matches := fencedJSONBlock.FindAllStringSubmatchIndex(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, s[m[2]:m[3]])
	}
	return out
}

// ExtractBareToolJSONObjects scans s for top-level JSON objects (brace
// depth returning to zero) using an explicit state machine over
// {outside, in-string, escape, depth}, as required by the spec's design
// notes: a regex-only approach misses nested objects, and naive brace
// counting would misfire on braces inside string literals.
//
// Per P5, every returned span is well-balanced: no span includes an
// unbalanced brace, and no brace inside a string literal is counted toward
// depth.
func ExtractBareToolJSONObjects(s string) []string {
	var out []string
	var (
		depth     int
		inString  bool
		escape    bool
		start     int
	)
	for i, r := range s {
		switch {
		case escape:
			escape = false
		case inString:
			switch r {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
		default:
			switch r {
			case '"':
				inString = true
			case '{':
				if depth == 0 {
					start = i
				}
				depth++
			case '}':
				if depth > 0 {
					depth--
					if depth == 0 {
						out = append(out, s[start:i+1])
					}
				}
			}
		}
	}
	return out
}

// ToolCallEnvelope is the model-facing wire shape: {"tool": "<name>", "args": {...}}.
type ToolCallEnvelope struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// DetectToolCall scans an assistant turn for the first well-formed,
// validated tool-call JSON object, preferring fenced ```json blocks over
// bare objects when both are present at the same offset, and returns
// false if none is found. Only the first well-formed call is dispatched;
// later blocks in the same turn are ignored (§4.3).
func DetectToolCall(text string) (ToolCallEnvelope, bool) {
	var candidates []candidate

	for _, block := range ExtractFencedJSONBlocks(text) {
		candidates = append(candidates, candidate{start: indexOf(text, block), text: block})
	}
	for _, obj := range ExtractBareToolJSONObjects(text) {
		candidates = append(candidates, candidate{start: indexOf(text, obj), text: obj})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].start < candidates[j].start })

	for _, c := range candidates {
		var env ToolCallEnvelope
		if err := json.Unmarshal([]byte(c.text), &env); err != nil {
			continue
		}
		if env.Tool == "" {
			continue
		}
		if env.Args == nil {
			env.Args = map[string]any{}
		}
		return env, true
	}
	return ToolCallEnvelope{}, false
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
