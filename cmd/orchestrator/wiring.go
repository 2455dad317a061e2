package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/orchestrator/internal/agent"
	"github.com/haasonsaas/orchestrator/internal/agent/providers"
	"github.com/haasonsaas/orchestrator/internal/backoff"
	"github.com/haasonsaas/orchestrator/internal/config"
	"github.com/haasonsaas/orchestrator/internal/homeassistant"
	"github.com/haasonsaas/orchestrator/internal/multiagent"
	"github.com/haasonsaas/orchestrator/internal/observability"
	"github.com/haasonsaas/orchestrator/internal/persistence"
	"github.com/haasonsaas/orchestrator/internal/sessions"
	"github.com/haasonsaas/orchestrator/internal/tools"
	"github.com/haasonsaas/orchestrator/internal/tools/shell"
	hatools "github.com/haasonsaas/orchestrator/internal/tools/homeassistant"
	"github.com/haasonsaas/orchestrator/internal/tools/util"
	"github.com/haasonsaas/orchestrator/pkg/models"
)

// runtime bundles every long-lived collaborator built from a loaded
// config, ready to be handed to the gateway or inspected by a CLI
// command.
type runtime struct {
	cfg        *config.Config
	logger     *observability.Logger
	metrics    *observability.Metrics
	registry   *tools.Registry
	hierarchy  *agent.Hierarchy
	controller *multiagent.Controller
	engine     *agent.Engine
	haClient   *homeassistant.Client
	manager    *sessions.Manager
	store      sessions.Store
}

// shellModeTable resolves each agent's declared ShellMode from the
// hierarchy, and serves the configured global allowlist, implementing
// shell.AgentMode against this runtime's single-allowlist config shape.
type shellModeTable struct {
	hierarchy *agent.Hierarchy
	allowlist []string
}

func (t shellModeTable) ModeFor(agentName string) (models.ShellMode, []string) {
	if a, ok := t.hierarchy.Get(agentName); ok {
		return a.ShellMode, t.allowlist
	}
	return models.ShellModeStrict, t.allowlist
}

// buildRuntime constructs every collaborator in dependency order:
// provider (first, so a missing API key fails before any collector is
// registered on the process-wide prometheus registry), observability,
// tool registry + toolsets, HA client (optional), agent hierarchy (which
// reads the now-populated registry to assign the root agent's tool
// list), transfer controller, engine, persistence, session manager.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
		APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
		DefaultModel: cfg.Agent.DefaultModel,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic provider: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		RedactPatterns: cfg.Logging.RedactPatterns,
	})
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	registry := tools.NewRegistry(cfg.Tools.DefaultTimeout)
	if err := util.Register(registry); err != nil {
		return nil, fmt.Errorf("register utility tools: %w", err)
	}

	root := cfg.Agent.RootAgent
	if root == "" {
		root = "main"
	}

	// hierarchy is created empty here so shellModeTable can hold a
	// pointer to it; the root agent is only added once the registry is
	// fully populated below, so its Tools field reflects every
	// registered tool.
	hierarchy := agent.NewHierarchy(root)

	if err := shell.Register(registry, shellModeTable{hierarchy: hierarchy, allowlist: cfg.Tools.ShellAllowlist}); err != nil {
		return nil, fmt.Errorf("register shell tool: %w", err)
	}

	var haClient *homeassistant.Client
	if cfg.HomeAssistant.Enabled {
		cache := homeassistant.NewCache()
		resolver := homeassistant.NewResolver(cache)
		haClient = homeassistant.NewClient(homeassistant.Config{
			URL:     cfg.HomeAssistant.URL,
			Token:   cfg.HomeAssistant.Token,
			Cache:   cache,
			Logger:  logger,
			Metrics: metrics,
			Policy:  backoff.DefaultPolicy(),
		})
		if err := hatools.Register(registry, cache, resolver, haClient); err != nil {
			return nil, fmt.Errorf("register home-assistant tools: %w", err)
		}
	}

	if err := hierarchy.Add(models.Agent{
		Name:        root,
		Model:       cfg.ModelFor(root),
		Instruction: "You are the orchestrator's root agent. Use the tools available to you to help the user.",
		Tools:       registry.All(),
		ShellMode:   models.ShellModeStrict,
	}); err != nil {
		return nil, fmt.Errorf("build agent hierarchy: %w", err)
	}
	if err := hierarchy.Validate(); err != nil {
		return nil, fmt.Errorf("agent hierarchy: %w", err)
	}

	controller := multiagent.NewController()
	for _, name := range hierarchy.Names() {
		a, _ := hierarchy.Get(name)
		if err := controller.Register(name, a.AllowedTransfers); err != nil {
			return nil, fmt.Errorf("register transfer controller: %w", err)
		}
	}

	engine := &agent.Engine{
		Hierarchy:  hierarchy,
		Controller: controller,
		Tools:      registry,
		Provider:   provider,
	}

	var store sessions.Store
	if path := os.Getenv("ORCH_SQLITE_PATH"); path != "" {
		sqliteStore, err := persistence.NewSQLiteStore(path, nil)
		if err != nil {
			return nil, fmt.Errorf("open persistence store: %w", err)
		}
		store = sqliteStore
	}

	manager := sessions.NewManager(hierarchy.Root(), func(session *models.Session) *sessions.Runner {
		return sessions.NewRunner(session, sessions.RunnerConfig{
			Engine:  engine,
			Store:   store,
			Logger:  logger,
			Metrics: metrics,
		})
	})

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		registry:   registry,
		hierarchy:  hierarchy,
		controller: controller,
		engine:     engine,
		haClient:   haClient,
		manager:    manager,
		store:      store,
	}, nil
}
