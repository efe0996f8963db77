package agentloop

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/tools"
)

// safetyThresholdMargin is how many messages beyond RecentMessagesKept must
// be present before a context trim is even considered, so a session barely
// over the watermark with few messages isn't churned every round.
const safetyThresholdMargin = 2

// stableArgString serializes tool-call args deterministically for the
// loop-guard signature (§4.5.d) — encoding/json sorts map keys, so this
// needs no hand-rolled canonicalization.
func stableArgString(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}

// trimContext implements §4.5.g: once the estimated total character count
// exceeds watermark and the message list is comfortably larger than what
// it'll be trimmed to, drop the middle region, keeping the initial task
// message and the most recent keepRecent messages, and insert one synthetic
// summary message naming the tool calls that were dropped.
//
// Grounded on the teacher pack's compactMessages/pruneOldToolResults
// (other_examples/0ff094ad_..._copilot-agent.go.go), adapted from
// keep-last-N truncation to this module's single fixed trim (the source's
// multi-attempt overflow-retry ladder has no counterpart here since this
// module trims proactively on a character watermark rather than reactively
// on a provider context-overflow error).
func trimContext(messages []models.Message, watermark, keepRecent int) []models.Message {
	if len(messages) == 0 {
		return messages
	}

	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}

	safetyThreshold := keepRecent + safetyThresholdMargin
	if total <= watermark || len(messages) <= safetyThreshold {
		return messages
	}

	keepFrom := len(messages) - keepRecent
	if keepFrom <= 1 {
		return messages
	}

	dropped := messages[1:keepFrom]
	names := droppedToolNames(dropped)

	summary := models.Message{
		Role:        models.RoleSystem,
		Content:     fmt.Sprintf("[context trimmed: %d messages dropped; tools seen: %s]", len(dropped), strings.Join(names, ", ")),
		Timestamp:   time.Now().UTC(),
		IsSynthetic: true,
	}

	trimmed := make([]models.Message, 0, 2+keepRecent)
	trimmed = append(trimmed, messages[0], summary)
	trimmed = append(trimmed, messages[keepFrom:]...)
	return trimmed
}

// droppedToolNames scans the dropped region's assistant messages for tool
// calls (via the same detector the loop itself uses) and returns the
// distinct tool names in first-seen order.
func droppedToolNames(dropped []models.Message) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range dropped {
		if m.Role != models.RoleAssistant {
			continue
		}
		call, ok := tools.DetectToolCall(m.Content)
		if !ok || seen[call.Tool] {
			continue
		}
		seen[call.Tool] = true
		names = append(names, call.Tool)
	}
	if len(names) == 0 {
		return []string{"(none)"}
	}
	return names
}
