// Package tools implements the Tool Layer (C3): a fixed registry of tools
// that validate, dispatch, and execute against the sandbox RPC client,
// integrating the File Awareness Ledger, a per-path version cache, and the
// hash-anchored line editor.
//
// The registry shape follows the teacher's internal/agent/tool_registry.go
// (name -> Tool map guarded by sync.RWMutex); individual tool executors
// follow internal/tools/files/{read,write,edit,patch}.go, generalized from
// a local filesystem to the remote sandbox RPC surface.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/KvFxKaido/Push-sub001/internal/ledger"
	"github.com/KvFxKaido/Push-sub001/internal/models"
	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
)

// Tool is the interface every tool in the closed set implements.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, session *Session, args map[string]any) (*models.ToolResult, error)
}

// Session bundles the per-session collaborators a tool execution needs:
// the ledger, the sandbox client, and the version cache. It deliberately
// does not embed the full agent-loop Session so the tool layer has no
// dependency on the agent loop package (avoids the cyclic reference the
// spec's design notes call out).
type Session struct {
	Ledger  *ledger.Ledger
	Sandbox *sandboxclient.Client

	mu       sync.Mutex
	versions map[string]string // normalized path -> last known version
}

// NewSession constructs a Session with a fresh version cache.
func NewSession(l *ledger.Ledger, sb *sandboxclient.Client) *Session {
	return &Session{Ledger: l, Sandbox: sb, versions: make(map[string]string)}
}

// CachedVersion returns the last known version for a path, if any.
func (s *Session) CachedVersion(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[ledger.NormalizePath(path)]
	return v, ok
}

// SetVersion updates the version cache for path. (I3)
func (s *Session) SetVersion(path, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[ledger.NormalizePath(path)] = version
}

// ClearVersion removes any cached version for path, e.g. on a read error.
func (s *Session) ClearVersion(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, ledger.NormalizePath(path))
}

// Registry is a name-keyed, concurrency-safe map of the fixed tool set,
// following the teacher's ToolRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, for building the model-facing
// tool list.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute validates nothing itself — each Tool validates its own args —
// and simply dispatches. A missing tool name is itself a structured
// ToolResult rather than a Go error, matching §7 ("tool executors never
// raise out of band").
func (r *Registry) Execute(ctx context.Context, session *Session, call models.ToolCall) *models.ToolResult {
	t, ok := r.Get(call.Name)
	if !ok {
		return errorResult(pusherr.New(pusherr.Unknown, fmt.Sprintf("unknown tool %q", call.Name)))
	}
	result, err := t.Execute(ctx, session, call.Args)
	if err != nil {
		return errorResult(err)
	}
	return result
}

// errorResult folds a Go error into a ToolResult, attaching error_type and
// retryable so the model can observe and react (§7).
func errorResult(err error) *models.ToolResult {
	pe, ok := pusherr.As(err)
	if !ok {
		pe = pusherr.Wrap(pusherr.Unknown, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", pe.Message)
	fmt.Fprintf(&b, "error_type: %s\n", pe.Type)
	fmt.Fprintf(&b, "retryable: %t\n", pe.Retryable)
	for k, v := range pe.Detail {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return &models.ToolResult{
		Content:   b.String(),
		IsError:   true,
		ErrorType: string(pe.Type),
		Retryable: pe.Retryable,
	}
}
