// Package auditor implements the Auditor gate (C4): a one-shot safety
// review of a staged diff, producing a binary verdict with a fail-safe
// default.
//
// Verdict parsing uses github.com/tidwall/gjson/sjson for tolerant field
// extraction and coercion rather than a strict json.Unmarshal, since the
// spec requires coercing malformed auditor output (unknown risk levels,
// missing fields) rather than rejecting it outright — gjson's path
// queries return a zero value instead of erroring on a missing field,
// and sjson lets the fail-safe path backfill a minimal valid payload
// before re-parsing it through the same code path success would use.
package auditor

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MaxDiffChars bounds the diff sent to the auditor model (§4.4 step 1).
const MaxDiffChars = 16_000

// RiskLevel is one of low/medium/high; unrecognized values coerce to Medium.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk is one identified risk in the reviewed diff.
type Risk struct {
	Level       RiskLevel `json:"level"`
	Description string    `json:"description"`
}

// Verdict is the Auditor's binary safety verdict.
type Verdict struct {
	Safe          bool
	Summary       string
	Risks         []Risk
	FilesReviewed int
}

// StreamFunc is the Auditor's collaborator: it drives a secondary model
// with a strict system prompt and returns the accumulated text response (or
// an error if the stream itself failed). It takes the place of a full
// LLMProvider dependency — the auditor model is explicitly out of scope
// (§1) and this keeps the package free of any concrete provider import.
type StreamFunc func(ctx context.Context, systemPrompt, diff string) (string, error)

const systemPrompt = `You are a security and correctness auditor reviewing a staged code diff.
Respond with a single JSON object of shape:
{"verdict": "safe"|"unsafe", "summary": "...", "risks": [{"level": "low"|"medium"|"high", "description": "..."}]}
Do not include any text outside the JSON object.`

// Run invokes the Auditor gate on diff. stream is nil when no auditor model
// is configured, which is itself one of the fail-safe trigger conditions
// (§4.4 step 4, P8).
func Run(ctx context.Context, stream StreamFunc, diff string, filesReviewed int) Verdict {
	if stream == nil {
		return failSafe(filesReviewed, "no auditor model is configured")
	}

	truncated := diff
	if len(truncated) > MaxDiffChars {
		truncated = truncated[:MaxDiffChars] + "\n... (diff truncated for audit)"
	}

	raw, err := stream(ctx, systemPrompt, truncated)
	if err != nil {
		return failSafe(filesReviewed, fmt.Sprintf("auditor stream failed: %s", err))
	}

	verdict, ok := parseVerdict(raw, filesReviewed)
	if !ok {
		return failSafe(filesReviewed, "auditor response was not valid JSON with a safe/unsafe verdict")
	}
	return verdict
}

// parseVerdict strips optional Markdown fences and tolerantly coerces
// fields via gjson: unknown risk levels default to medium, missing fields
// get safe placeholders (§4.4 step 3).
func parseVerdict(raw string, filesReviewed int) (Verdict, bool) {
	stripped := stripMarkdownFences(raw)
	if !gjson.Valid(stripped) {
		return Verdict{}, false
	}

	verdictField := gjson.Get(stripped, "verdict")
	if !verdictField.Exists() || (verdictField.String() != "safe" && verdictField.String() != "unsafe") {
		return Verdict{}, false
	}

	summary := gjson.Get(stripped, "summary").String()
	if summary == "" {
		summary = "(no summary provided)"
	}

	var risks []Risk
	for _, r := range gjson.Get(stripped, "risks").Array() {
		level := RiskLevel(r.Get("level").String())
		if level != RiskLow && level != RiskMedium && level != RiskHigh {
			level = RiskMedium
		}
		desc := r.Get("description").String()
		if desc == "" {
			desc = "(no description provided)"
		}
		risks = append(risks, Risk{Level: level, Description: desc})
	}

	return Verdict{
		Safe:          verdictField.String() == "safe",
		Summary:       summary,
		Risks:         risks,
		FilesReviewed: filesReviewed,
	}, true
}

// failSafe constructs the unconditional-block verdict required whenever
// the auditor cannot be trusted: no model configured, stream error, or
// unparseable response (§4.4 step 4, P8).
func failSafe(filesReviewed int, reason string) Verdict {
	// sjson builds the placeholder payload through the same coercion path
	// a real (but malformed) response would take, rather than constructing
	// the Verdict struct directly — keeping exactly one code path for
	// "what a parsed verdict looks like".
	payload, _ := sjson.Set("{}", "verdict", "unsafe")
	payload, _ = sjson.Set(payload, "summary", "audit could not be completed: "+reason)
	payload, _ = sjson.Set(payload, "risks.0.level", string(RiskHigh))
	payload, _ = sjson.Set(payload, "risks.0.description", reason)

	verdict, _ := parseVerdict(payload, filesReviewed)
	return verdict
}

func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
