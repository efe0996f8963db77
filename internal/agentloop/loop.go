// Package agentloop implements the Agent Loop (C5): a single-threaded
// cooperative driver over a Session, a streaming LLM provider, and the
// Tool Layer registry (§4.5).
//
// The state-machine shape — stream, detect, execute tools, continue —
// follows the teacher's AgenticLoop (haasonsaas-nexus/internal/agent/loop.go),
// generalized from the teacher's native provider tool-calling protocol to
// this module's textual one (§4.2: tool calls are a fenced or bare JSON
// object embedded in the assistant's streamed text, recovered by
// internal/tools.DetectToolCall rather than delivered as discrete
// provider chunks). The loop-guard and the "retry is the model's
// responsibility, not the loop's" stance are additionally grounded on the
// compaction/loop-detection helpers in the goclaw copilot agent runner
// (other_examples/0ff094ad_..._copilot-agent.go.go: doLLMCallWithOverflowRetry,
// ToolLoopDetector).
package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/provider"
	"github.com/KvFxKaido/Push-sub001/internal/session"
	"github.com/KvFxKaido/Push-sub001/internal/tools"
)

// Outcome is the terminal state of one RunTurn call (P9).
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeMaxRounds    Outcome = "max_rounds"
	OutcomeLoopDetected Outcome = "loop-detected"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeCancelled    Outcome = "cancelled"
)

// LoopConfig configures round limits, timeouts, and the context-management
// thresholds of §4.5.
type LoopConfig struct {
	// MaxRounds bounds the number of stream/tool rounds per turn.
	// Default 8; CLI callers clamp this to [1, 30] (§6).
	MaxRounds int

	// RoundTimeout bounds a single streaming round.
	// Default 180s.
	RoundTimeout time.Duration

	// ToolResultMaxChars bounds the synthetic [TOOL_RESULT] message body.
	// Default 24000.
	ToolResultMaxChars int

	// ContextTrimWatermark is the total message character count above
	// which context trim (§4.5.g) activates. Default 120000.
	ContextTrimWatermark int

	// RecentMessagesKept is how many of the most recent messages survive a
	// context trim, in addition to the initial task message. Default 9.
	RecentMessagesKept int

	// SystemPrompt is prepended as the provider request's System field,
	// documenting the textual tool-call protocol to the model (§6).
	SystemPrompt string
}

// DefaultLoopConfig returns the spec's default bounds.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxRounds:            8,
		RoundTimeout:         180 * time.Second,
		ToolResultMaxChars:   24000,
		ContextTrimWatermark: 120000,
		RecentMessagesKept:   9,
		SystemPrompt:         DefaultSystemPrompt,
	}
}

func sanitizeLoopConfig(cfg *LoopConfig) *LoopConfig {
	if cfg == nil {
		return DefaultLoopConfig()
	}
	c := *cfg
	d := DefaultLoopConfig()
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.MaxRounds > 30 {
		c.MaxRounds = 30
	}
	if c.RoundTimeout <= 0 {
		c.RoundTimeout = d.RoundTimeout
	}
	if c.ToolResultMaxChars <= 0 {
		c.ToolResultMaxChars = d.ToolResultMaxChars
	}
	if c.ContextTrimWatermark <= 0 {
		c.ContextTrimWatermark = d.ContextTrimWatermark
	}
	if c.RecentMessagesKept <= 0 {
		c.RecentMessagesKept = d.RecentMessagesKept
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	return &c
}

// DefaultSystemPrompt documents the textual tool-call wire format (§6) to
// the model.
const DefaultSystemPrompt = `You are a coding agent operating a remote sandbox workspace through a fixed set of tools.

To call a tool, emit exactly one fenced JSON block of the form:
` + "```json" + `
{"tool": "<name>", "args": { ... }}
` + "```" + `
Emit at most one tool call per turn. After a tool call, wait for its result before continuing.
If you have nothing further to do, respond with plain text and no tool call to end the turn.`

// RunResult is the outcome of one RunTurn call.
type RunResult struct {
	Outcome   Outcome
	FinalText string
	Round     int
	Err       error
}

// AgentLoop drives turns for a single session, generalizing the teacher's
// AgenticLoop (provider + registry + session store) to this module's
// sandbox-tool and textual tool-call design.
type AgentLoop struct {
	provider    provider.LLMProvider
	registry    *tools.Registry
	toolSession *tools.Session
	store       *session.Store
	config      *LoopConfig
	logger      *slog.Logger

	// OnAssistantText, when set, is called with each streamed text chunk
	// as it arrives — the interactive CLI's "print tokens as they stream"
	// mode (§4.5, Headless vs interactive).
	OnAssistantText func(text string)
	// OnToolEvent, when set, is called with a compact one-line summary of
	// each tool dispatch — interactive mode's tool-result display.
	OnToolEvent func(line string)
}

// New constructs an AgentLoop. config may be nil for defaults. logger may be
// nil, in which case slog.Default() is used — mirroring the teacher's
// RuntimeOptions.Logger default (internal/agent/options.go).
func New(p provider.LLMProvider, registry *tools.Registry, toolSession *tools.Session, store *session.Store, config *LoopConfig, logger *slog.Logger) *AgentLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentLoop{
		provider:    p,
		registry:    registry,
		toolSession: toolSession,
		store:       store,
		config:      sanitizeLoopConfig(config),
		logger:      logger,
	}
}

var (
	ErrNoProvider   = errors.New("agentloop: no provider configured")
	ErrNilSession   = errors.New("agentloop: session is nil")
	ErrCancelled    = errors.New("agentloop: cancelled")
)

// RunTurn executes one user turn to completion: append the user message,
// then loop up to MaxRounds stream/tool rounds (§4.5).
func (l *AgentLoop) RunTurn(ctx context.Context, sess *models.Session, userText string) (*RunResult, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}
	if sess == nil {
		return nil, ErrNilSession
	}

	sess.Messages = append(sess.Messages, models.Message{
		Role:      models.RoleUser,
		Content:   userText,
		Timestamp: time.Now().UTC(),
	})
	if l.store != nil {
		if err := l.store.AppendEvent(sess, models.EventUserMessage, map[string]string{"content": userText}); err != nil {
			return nil, err
		}
	}

	var lastSignatures []string

	for round := 1; round <= l.config.MaxRounds; round++ {
		sess.Round = round
		l.logger.Debug("agentloop: round start", "session_id", sess.ID, "round", round)

		select {
		case <-ctx.Done():
			return l.finish(sess, OutcomeCancelled, "", round, ctx.Err())
		default:
		}

		text, err := l.streamRound(ctx, sess)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				l.logger.Warn("agentloop: round timed out", "error", err, "session_id", sess.ID)
				return l.finish(sess, OutcomeTimeout, "", round, err)
			}
			if errors.Is(err, context.Canceled) {
				return l.finish(sess, OutcomeCancelled, "", round, err)
			}
			l.logger.Warn("agentloop: stream error", "error", err, "session_id", sess.ID)
			return nil, err
		}

		sess.Messages = append(sess.Messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   text,
			Timestamp: time.Now().UTC(),
		})
		if l.store != nil {
			if err := l.store.AppendEvent(sess, models.EventAssistantDone, map[string]string{"content": text}); err != nil {
				return nil, err
			}
		}

		call, found := tools.DetectToolCall(text)
		if !found {
			return l.finish(sess, OutcomeSuccess, text, round, nil)
		}

		signature := callSignature(call.Tool, call.Args)
		lastSignatures = append(lastSignatures, signature)
		if loopDetected(lastSignatures) {
			if l.store != nil {
				_ = l.store.AppendEvent(sess, models.EventError, map[string]string{"reason": "repeated tool call loop"})
			}
			l.logger.Warn("agentloop: loop detected", "session_id", sess.ID, "tool", call.Tool, "round", round)
			return l.finish(sess, OutcomeLoopDetected, "repeated tool call loop detected after round "+strconv.Itoa(round), round, nil)
		}

		toolCall := models.ToolCall{ID: uuid.NewString(), Name: call.Tool, Args: call.Args}
		if l.store != nil {
			if err := l.store.AppendEvent(sess, models.EventToolCall, toolCall); err != nil {
				return nil, err
			}
		}

		result := l.registry.Execute(ctx, l.toolSession, toolCall)
		if result.IsError {
			l.logger.Warn("agentloop: tool error", "tool", toolCall.Name, "session_id", sess.ID, "error", result.Content)
		} else {
			l.logger.Debug("agentloop: tool dispatched", "tool", toolCall.Name, "session_id", sess.ID)
		}
		if l.OnToolEvent != nil {
			l.OnToolEvent(toolEventLine(toolCall, result))
		}
		if l.store != nil {
			if err := l.store.AppendEvent(sess, models.EventToolResult, map[string]any{
				"tool_call_id": toolCall.ID,
				"is_error":     result.IsError,
				"preview":      preview(result.Content, 200),
			}); err != nil {
				return nil, err
			}
		}

		toolResultText := formatToolResultMessage(toolCall.Name, result, l.config.ToolResultMaxChars)
		sess.Messages = append(sess.Messages, models.Message{
			Role:        models.RoleToolResult,
			Content:     toolResultText,
			Timestamp:   time.Now().UTC(),
			IsSynthetic: true,
		})

		sess.Messages = trimContext(sess.Messages, l.config.ContextTrimWatermark, l.config.RecentMessagesKept)

		if l.store != nil {
			if err := l.store.Save(sess); err != nil {
				return nil, err
			}
		}
	}

	return l.finish(sess, OutcomeMaxRounds, "", l.config.MaxRounds, nil)
}

func (l *AgentLoop) finish(sess *models.Session, outcome Outcome, text string, round int, err error) (*RunResult, error) {
	if l.store != nil {
		_ = l.store.AppendEvent(sess, models.EventRunComplete, map[string]any{"outcome": string(outcome)})
	}
	return &RunResult{Outcome: outcome, FinalText: text, Round: round, Err: err}, nil
}

// streamRound issues one completion request bounded by RoundTimeout,
// accumulating chunks into the round's text (§4.5.a).
func (l *AgentLoop) streamRound(ctx context.Context, sess *models.Session) (string, error) {
	roundCtx, cancel := context.WithTimeout(ctx, l.config.RoundTimeout)
	defer cancel()

	req := &provider.CompletionRequest{
		Model:    sess.Model,
		System:   l.config.SystemPrompt,
		Messages: toProviderMessages(sess.Messages),
	}

	chunks, err := l.provider.Complete(roundCtx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range chunks {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return b.String(), chunk.Error
		}
		if chunk.Text != "" {
			b.WriteString(chunk.Text)
			if l.OnAssistantText != nil {
				l.OnAssistantText(chunk.Text)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := roundCtx.Err(); err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

func toProviderMessages(messages []models.Message) []provider.Message {
	out := make([]provider.Message, 0, len(messages))
	for _, m := range messages {
		role := string(m.Role)
		if m.Role == models.RoleToolResult {
			role = "user"
		}
		out = append(out, provider.Message{Role: role, Content: m.Content})
	}
	return out
}

// callSignature is the loop-guard key: tool name plus a stable
// serialization of its args.
func callSignature(name string, args map[string]any) string {
	return name + "|" + stableArgString(args)
}

// loopDetected reports whether the same call signature repeated three
// times in a row (§4.5.d).
func loopDetected(signatures []string) bool {
	n := len(signatures)
	if n < 3 {
		return false
	}
	a, b, c := signatures[n-1], signatures[n-2], signatures[n-3]
	return a == b && b == c
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// formatToolResultMessage builds the synthetic [TOOL_RESULT] message
// (§4.5.f, §6), truncating the output to maxChars.
func formatToolResultMessage(toolName string, result *models.ToolResult, maxChars int) string {
	output := result.Content
	truncated := false
	if len(output) > maxChars {
		output = output[:maxChars]
		truncated = true
	}
	var meta strings.Builder
	fmt.Fprintf(&meta, `"error_type":%q,"retryable":%t,"truncated":%t`, result.ErrorType, result.Retryable, truncated)
	if result.SideEffect != nil {
		fmt.Fprintf(&meta, `,"side_effect":%q`, result.SideEffect.Kind)
	}
	return fmt.Sprintf("[TOOL_RESULT] {\"tool\":%q,\"ok\":%t,\"output\":%q,\"meta\":{%s}} [/TOOL_RESULT]",
		toolName, !result.IsError, output, meta.String())
}

func toolEventLine(call models.ToolCall, result *models.ToolResult) string {
	status := "ok"
	if result.IsError {
		status = "error"
	}
	return fmt.Sprintf("%s(%s) -> %s: %s", call.Name, call.ID[:min(8, len(call.ID))], status, preview(result.Content, 80))
}
