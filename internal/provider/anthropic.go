package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/KvFxKaido/Push-sub001/internal/backoff"
)

// AnthropicProvider implements LLMProvider against the Anthropic Messages
// API, adapted from the teacher's providers.AnthropicProvider
// (haasonsaas-nexus/internal/agent/providers/anthropic.go). It streams text
// only — this module's tool calls travel as JSON embedded in that text
// (§4.2), so the ToolUse content-block handling the teacher implements has
// no counterpart here.
type AnthropicProvider struct {
	client       anthropic.Client
	retryPolicy  backoff.BackoffPolicy
	maxAttempts  int
	defaultModel string
	logger       *slog.Logger
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxAttempts  int
	RetryDelay   time.Duration
	DefaultModel string
	Logger       *slog.Logger
}

// NewAnthropicProvider validates config and constructs a ready-to-use
// AnthropicProvider. Config.Logger may be nil, in which case slog.Default()
// is used.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 4
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		maxAttempts: config.MaxAttempts,
		retryPolicy: backoff.BackoffPolicy{
			InitialMs: float64(config.RetryDelay.Milliseconds()),
			MaxMs:     float64(config.RetryDelay.Milliseconds() * 16),
			Factor:    2,
			Jitter:    0.1,
		},
		defaultModel: config.DefaultModel,
		logger:       config.Logger,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []Model {
	return []Model{
		{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4", MaxTokens: 200000},
		{ID: "claude-opus-4-20250514", DisplayName: "Claude Opus 4", MaxTokens: 200000},
		{ID: "claude-3-5-sonnet-20241022", DisplayName: "Claude 3.5 Sonnet", MaxTokens: 200000},
		{ID: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku", MaxTokens: 200000},
	}
}

// SupportsTools reports the textual tool-calling convention is in play —
// there is no provider-native function-calling surface to opt into here.
func (p *AnthropicProvider) SupportsTools() bool { return true }

func (p *AnthropicProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func (p *AnthropicProvider) maxTokens(requested int) int64 {
	if requested <= 0 {
		return 4096
	}
	return int64(requested)
}

func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	chunks := make(chan *CompletionChunk)

	go func() {
		defer close(chunks)

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model(req.Model)),
			Messages:  convertMessages(req.Messages),
			MaxTokens: p.maxTokens(req.MaxTokens),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
		}

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var lastErr error
		for attempt := 0; attempt < p.maxAttempts; attempt++ {
			stream = p.client.Messages.NewStreaming(ctx, params)
			lastErr = stream.Err()
			if lastErr == nil {
				break
			}
			if !isRetryableAnthropicError(lastErr) {
				p.logger.Warn("anthropic: non-retryable stream error", "error", lastErr)
				chunks <- &CompletionChunk{Error: wrapAnthropicError(lastErr)}
				return
			}
			p.logger.Debug("anthropic: retrying stream", "attempt", attempt+1, "error", lastErr)
			if attempt == p.maxAttempts-1 {
				break
			}
			if err := backoff.SleepWithBackoff(ctx, p.retryPolicy, attempt+1); err != nil {
				chunks <- &CompletionChunk{Error: err}
				return
			}
		}
		if lastErr != nil {
			p.logger.Warn("anthropic: max retries exceeded", "error", lastErr, "attempts", p.maxAttempts)
			chunks <- &CompletionChunk{Error: fmt.Errorf("anthropic: max retries exceeded: %w", wrapAnthropicError(lastErr))}
			return
		}

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				if delta.Type == "text_delta" && delta.Text != "" {
					chunks <- &CompletionChunk{Text: delta.Text}
				}
			case "message_stop":
				chunks <- &CompletionChunk{Done: true}
				return
			case "error":
				chunks <- &CompletionChunk{Error: errors.New("anthropic: stream error")}
				return
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- &CompletionChunk{Error: wrapAnthropicError(err)}
		}
	}()

	return chunks, nil
}

func convertMessages(messages []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}

func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate_limit", "429", "too many requests", "500", "502", "503", "504", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic: status %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("anthropic: %w", err)
}
