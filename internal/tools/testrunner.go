package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
)

// TestSummary is the parsed result of a test run (§4.3.8).
type TestSummary struct {
	Framework string
	Passed    int
	Failed    int
	Skipped   int
	Total     int
	Duration  string
	Truncated bool
}

// testFramework pairs a detection probe with the command to run and the
// regex used to parse its output.
type testFramework struct {
	name         string
	probeFiles   []string
	command      string
	resultRegexp *regexp.Regexp
	parse        func(matches []string) TestSummary
}

var testFrameworks = []testFramework{
	{
		name:       "go test",
		probeFiles: []string{"go.mod"},
		command:    "go test ./... -json",
		resultRegexp: regexp.MustCompile(
			`(?m)^ok\s+\S+\s+[\d.]+s|^FAIL\s+\S+`),
	},
	{
		name:       "jest",
		probeFiles: []string{"package.json", "jest.config.js", "jest.config.ts"},
		command:    "npx jest --json",
		resultRegexp: regexp.MustCompile(
			`"numPassedTests":(\d+).*?"numFailedTests":(\d+).*?"numPendingTests":(\d+).*?"numTotalTests":(\d+)`),
		parse: func(m []string) TestSummary {
			return TestSummary{Passed: atoiSafe(m[1]), Failed: atoiSafe(m[2]), Skipped: atoiSafe(m[3]), Total: atoiSafe(m[4])}
		},
	},
	{
		name:       "pytest",
		probeFiles: []string{"pytest.ini", "pyproject.toml", "setup.cfg"},
		command:    "pytest -q",
		resultRegexp: regexp.MustCompile(
			`(\d+) passed(?:, (\d+) failed)?(?:, (\d+) skipped)?`),
		parse: func(m []string) TestSummary {
			s := TestSummary{Passed: atoiSafe(m[1]), Failed: atoiSafe(m[2]), Skipped: atoiSafe(m[3])}
			s.Total = s.Passed + s.Failed + s.Skipped
			return s
		},
	},
	{
		name:       "cargo test",
		probeFiles: []string{"Cargo.toml"},
		command:    "cargo test",
		resultRegexp: regexp.MustCompile(
			`test result: \w+\. (\d+) passed; (\d+) failed; (\d+) ignored`),
		parse: func(m []string) TestSummary {
			s := TestSummary{Passed: atoiSafe(m[1]), Failed: atoiSafe(m[2]), Skipped: atoiSafe(m[3])}
			s.Total = s.Passed + s.Failed + s.Skipped
			return s
		},
	},
}

var typeCheckers = []testFramework{
	{name: "tsc", probeFiles: []string{"tsconfig.json"}, command: "npx tsc --noEmit"},
	{name: "mypy", probeFiles: []string{"mypy.ini", "pyproject.toml"}, command: "mypy ."},
	{name: "go vet", probeFiles: []string{"go.mod"}, command: "go vet ./..."},
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// detectFramework probes the workspace for the first matching framework's
// marker files, via `test -e` through exec (the sandbox has no direct
// filesystem-stat RPC; §4.1 only exposes exec/read/write/list/diff/...).
func detectFramework(ctx context.Context, session *Session, candidates []testFramework) (*testFramework, error) {
	for i := range candidates {
		fw := &candidates[i]
		for _, probe := range fw.probeFiles {
			cmd := fmt.Sprintf("test -e %s", ShellQuote("/workspace/"+probe))
			result, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: cmd})
			if err != nil {
				return nil, err
			}
			if result.ExitCode == 0 {
				return fw, nil
			}
		}
	}
	return nil, nil
}

// RunTestsTool implements run_tests (§4.3.8).
type RunTestsTool struct{}

func (t *RunTestsTool) Name() string        { return "run_tests" }
func (t *RunTestsTool) Description() string  { return "Auto-detect the test framework, run it, and parse results." }
func (t *RunTestsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"framework": {"type": "string"}}}`)
}

func (t *RunTestsTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	forced, _ := args["framework"].(string)
	fw, err := resolveFramework(ctx, session, testFrameworks, forced)
	if err != nil {
		return nil, err
	}
	if fw == nil {
		return &models.ToolResult{Content: "no recognized test framework detected"}, nil
	}

	result, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: fw.command})
	if err != nil {
		return nil, err
	}

	summary := TestSummary{Framework: fw.name, Duration: result.Duration}
	if fw.parse != nil {
		if m := fw.resultRegexp.FindStringSubmatch(result.Stdout); m != nil {
			parsed := fw.parse(m)
			summary.Passed, summary.Failed, summary.Skipped, summary.Total = parsed.Passed, parsed.Failed, parsed.Skipped, parsed.Total
		}
	} else if fw.resultRegexp.MatchString(result.Stdout) {
		if result.ExitCode == 0 {
			summary.Passed = 1
			summary.Total = 1
		} else {
			summary.Failed = 1
			summary.Total = 1
		}
	}

	text := fmt.Sprintf("framework: %s\npassed: %d failed: %d skipped: %d total: %d\nduration: %s\n--- output ---\n%s",
		summary.Framework, summary.Passed, summary.Failed, summary.Skipped, summary.Total, summary.Duration, result.Stdout)
	return &models.ToolResult{Content: text, IsError: result.ExitCode != 0}, nil
}

// CheckTypesTool implements check_types (§4.3.8).
type CheckTypesTool struct{}

func (t *CheckTypesTool) Name() string        { return "check_types" }
func (t *CheckTypesTool) Description() string  { return "Auto-detect the type checker, run it, and parse errors." }
func (t *CheckTypesTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *CheckTypesTool) Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error) {
	fw, err := detectFramework(ctx, session, typeCheckers)
	if err != nil {
		return nil, err
	}
	if fw == nil {
		return &models.ToolResult{Content: "no recognized type checker detected"}, nil
	}

	result, err := session.Sandbox.Exec(ctx, sandboxclient.ExecRequest{Command: fw.command})
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("checker: %s\nexit_code: %d\n%s\n%s", fw.name, result.ExitCode, result.Stdout, result.Stderr)
	return &models.ToolResult{Content: text, IsError: result.ExitCode != 0}, nil
}

func resolveFramework(ctx context.Context, session *Session, candidates []testFramework, forced string) (*testFramework, error) {
	if forced != "" {
		for i := range candidates {
			if candidates[i].name == forced {
				return &candidates[i], nil
			}
		}
		return nil, nil
	}
	return detectFramework(ctx, session, candidates)
}
