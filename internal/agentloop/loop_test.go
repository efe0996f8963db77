package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KvFxKaido/Push-sub001/internal/ledger"
	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/provider"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
	"github.com/KvFxKaido/Push-sub001/internal/session"
	"github.com/KvFxKaido/Push-sub001/internal/tools"
)

// scriptedProvider replies with one canned text per round, in order, then
// repeats the final reply. It never errors; round-by-round scripting is
// enough to drive every outcome the loop can reach (P9) without a real
// network collaborator.
type scriptedProvider struct {
	replies []string
	calls   int
}

func (p *scriptedProvider) Name() string          { return "scripted" }
func (p *scriptedProvider) Models() []provider.Model { return nil }
func (p *scriptedProvider) SupportsTools() bool   { return true }

func (p *scriptedProvider) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan *provider.CompletionChunk, error) {
	idx := p.calls
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	p.calls++
	text := p.replies[idx]

	ch := make(chan *provider.CompletionChunk, 2)
	ch <- &provider.CompletionChunk{Text: text}
	ch <- &provider.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

// blockingProvider never completes until its context is cancelled, for
// exercising the round-timeout / cancellation paths.
type blockingProvider struct{}

func (p *blockingProvider) Name() string            { return "blocking" }
func (p *blockingProvider) Models() []provider.Model { return nil }
func (p *blockingProvider) SupportsTools() bool     { return true }

func (p *blockingProvider) Complete(ctx context.Context, req *provider.CompletionRequest) (<-chan *provider.CompletionChunk, error) {
	ch := make(chan *provider.CompletionChunk)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func newTestSession(t *testing.T) (*models.Session, *session.Store) {
	t.Helper()
	store, err := session.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	sess, err := store.Create("anthropic", "claude-test", "/workspace")
	require.NoError(t, err)
	return sess, store
}

func newTestToolSession() *tools.Session {
	return tools.NewSession(ledger.New(), sandboxclient.New(sandboxclient.Config{}))
}

// fakeTool answers "list_dir" without touching the network, so loop tests
// exercise the round/dispatch/loop-guard machinery without paying for the
// sandbox client's real retry/backoff policy on an unreachable host.
type fakeTool struct{ calls int }

func (t *fakeTool) Name() string               { return "list_dir" }
func (t *fakeTool) Description() string        { return "fake list_dir for tests" }
func (t *fakeTool) Schema() json.RawMessage    { return json.RawMessage(`{"type":"object"}`) }
func (t *fakeTool) Execute(ctx context.Context, session *tools.Session, args map[string]any) (*models.ToolResult, error) {
	t.calls++
	return &models.ToolResult{Content: fmt.Sprintf("entries for %v", args["path"])}, nil
}

func newFakeRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.Register(&fakeTool{})
	return r
}

const toolCallJSON = "```json\n{\"tool\": \"list_dir\", \"args\": {\"path\": \"/workspace\"}}\n```"

func TestRunTurn_Success_NoToolCall(t *testing.T) {
	sess, store := newTestSession(t)
	p := &scriptedProvider{replies: []string{"all done, nothing to do"}}
	registry := tools.NewRegistry()

	loop := New(p, registry, newTestToolSession(), store, nil, nil)
	result, err := loop.RunTurn(context.Background(), sess, "say hi")

	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "all done, nothing to do", result.FinalText)
	assert.Equal(t, 1, result.Round)
}

func TestRunTurn_LoopDetected_AfterThreeIdenticalCalls(t *testing.T) {
	sess, store := newTestSession(t)
	p := &scriptedProvider{replies: []string{toolCallJSON, toolCallJSON, toolCallJSON, toolCallJSON}}
	registry := newFakeRegistry()

	loop := New(p, registry, newTestToolSession(), store, nil, nil)
	result, err := loop.RunTurn(context.Background(), sess, "list the workspace repeatedly")

	require.NoError(t, err)
	assert.Equal(t, OutcomeLoopDetected, result.Outcome)
	assert.Contains(t, result.FinalText, "repeated tool call loop")
	assert.Equal(t, 3, result.Round)

	events, err := store.ReplayEvents(sess.ID)
	require.NoError(t, err)
	errorEvents := 0
	for _, e := range events {
		if e.Type == models.EventError {
			errorEvents++
		}
	}
	assert.Equal(t, 1, errorEvents, "exactly one error event for the detected loop")
}

func TestRunTurn_MaxRounds(t *testing.T) {
	sess, store := newTestSession(t)
	p := &scriptedProvider{replies: []string{
		"```json\n{\"tool\": \"list_dir\", \"args\": {\"path\": \"/a\"}}\n```",
		"```json\n{\"tool\": \"list_dir\", \"args\": {\"path\": \"/b\"}}\n```",
		"```json\n{\"tool\": \"list_dir\", \"args\": {\"path\": \"/c\"}}\n```",
	}}
	registry := newFakeRegistry()

	loop := New(p, registry, newTestToolSession(), store, &LoopConfig{MaxRounds: 2}, nil)
	result, err := loop.RunTurn(context.Background(), sess, "alternate directories forever")

	require.NoError(t, err)
	assert.Equal(t, OutcomeMaxRounds, result.Outcome)
	assert.Equal(t, 2, result.Round)
}

func TestRunTurn_Timeout(t *testing.T) {
	sess, store := newTestSession(t)
	registry := tools.NewRegistry()

	loop := New(&blockingProvider{}, registry, newTestToolSession(), store, &LoopConfig{RoundTimeout: 10 * time.Millisecond}, nil)
	result, err := loop.RunTurn(context.Background(), sess, "hang forever")

	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, result.Outcome)
}

func TestRunTurn_Cancelled(t *testing.T) {
	sess, store := newTestSession(t)
	registry := tools.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := New(&blockingProvider{}, registry, newTestToolSession(), store, nil, nil)
	result, err := loop.RunTurn(ctx, sess, "already cancelled")

	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, result.Outcome)
}

func TestRunTurn_RoundNeverExceedsMaxRounds(t *testing.T) {
	sess, store := newTestSession(t)
	p := &scriptedProvider{replies: []string{toolCallJSON}}
	registry := newFakeRegistry()

	loop := New(p, registry, newTestToolSession(), store, &LoopConfig{MaxRounds: 5}, nil)
	result, err := loop.RunTurn(context.Background(), sess, "loop a bit")

	require.NoError(t, err)
	assert.LessOrEqual(t, result.Round, 5)
}

func TestLoopDetected_RequiresThreeConsecutive(t *testing.T) {
	assert.False(t, loopDetected([]string{"a", "a"}))
	assert.False(t, loopDetected([]string{"a", "a", "b"}))
	assert.True(t, loopDetected([]string{"a", "a", "a"}))
	assert.True(t, loopDetected([]string{"x", "a", "a", "a"}))
}

func TestCallSignature_Deterministic(t *testing.T) {
	sig1 := callSignature("write_file", map[string]any{"path": "/a.ts", "content": "x"})
	sig2 := callSignature("write_file", map[string]any{"content": "x", "path": "/a.ts"})
	assert.Equal(t, sig1, sig2, "arg key order must not affect the signature")
}
