// Package provider defines the LLM backend abstraction the agent loop
// streams completions through, grounded on the teacher's
// internal/agent.LLMProvider (haasonsaas-nexus/internal/agent/provider_types.go).
//
// Unlike the teacher, tool use here is conveyed as free-form text the model
// is instructed (via system prompt) to emit as a JSON object — the sandbox
// agent has no native tool-calling wire format to round-trip (§4.2, §4.5).
// CompletionChunk therefore carries only text, never a structured tool call;
// internal/tools.DetectToolCall recovers the call from accumulated text.
package provider

import "context"

// Message is one turn in a completion request's conversation history.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest mirrors the teacher's CompletionRequest, trimmed to the
// fields this module's textual tool-calling protocol needs.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// CompletionChunk is one piece of a streamed response.
type CompletionChunk struct {
	Text  string
	Done  bool
	Error error
}

// Model describes one model an LLMProvider can serve.
type Model struct {
	ID          string
	DisplayName string
	MaxTokens   int
}

// LLMProvider is the interface every backend (Anthropic, local Ollama,
// OpenRouter, Mistral) implements to plug into the agent loop.
type LLMProvider interface {
	// Complete streams a completion for req. The returned channel is closed
	// when the stream ends; the final chunk observed should have Done set
	// (or Error set on failure).
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name identifies the provider (e.g. "anthropic", "ollama").
	Name() string

	// Models lists the models this provider can serve.
	Models() []Model

	// SupportsTools reports whether this provider's models have been
	// validated against this module's textual tool-calling convention.
	SupportsTools() bool
}

// CollectText drains a completion stream into a single string, returning the
// first error chunk encountered (if any). Used by callers that don't need to
// forward partial chunks, such as the Auditor's StreamFunc adapter.
func CollectText(ctx context.Context, p LLMProvider, req *CompletionRequest) (string, error) {
	chunks, err := p.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	var text []byte
	for chunk := range chunks {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return string(text), chunk.Error
		}
		text = append(text, chunk.Text...)
		select {
		case <-ctx.Done():
			return string(text), ctx.Err()
		default:
		}
	}
	return string(text), nil
}
