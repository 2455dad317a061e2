package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/orchestrator/internal/config"
	"github.com/haasonsaas/orchestrator/internal/gateway"
)

// buildServeCmd creates the "serve" command that starts the HTTP/WS
// gateway: agent hierarchy, transfer controller, tool registry, and
// (optionally) the Home Assistant client, all wired by buildRuntime.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator gateway",
		Long: `Start the orchestrator gateway.

The server will:
1. Load configuration from the specified file (or ORCH_CONFIG/orchestrator.yaml)
2. Register the utility, shell, and (if enabled) home-assistant toolsets
3. Build the agent hierarchy and transfer controller
4. Connect to Home Assistant, if configured
5. Serve the JSON HTTP API and the /ws/{session_id} control plane

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	if rt.haClient != nil {
		rt.haClient.Start(ctx)
		defer rt.haClient.Stop()
	}

	srv := &gateway.Server{
		Sessions:   rt.manager,
		Hierarchy:  rt.hierarchy,
		Controller: rt.controller,
		Tools:      rt.registry,
		Logger:     rt.logger,
		Metrics:    rt.metrics,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("orchestrator starting",
		"version", version,
		"config", configPath,
		"home_assistant", cfg.HomeAssistant.Enabled,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, gateway.Config{Host: cfg.Server.Host, Port: cfg.Server.HTTPPort})
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining gateway")
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	slog.Info("orchestrator stopped gracefully")
	return nil
}

// buildAgentInfoCmd prints the resolved agent hierarchy and per-agent
// model assignments without starting the gateway, useful for verifying
// a config's ModelFor overrides before deploying it.
func buildAgentInfoCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "agent-info",
		Short: "Print the resolved agent hierarchy and model assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentInfo(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}

func runAgentInfo(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := buildRuntime(cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	out := cmd.OutOrStdout()
	root := rt.hierarchy.Root()
	fmt.Fprintf(out, "root agent: %s\n", root)
	fmt.Fprintln(out, "agents:")
	for _, name := range rt.hierarchy.Names() {
		a, _ := rt.hierarchy.Get(name)
		fmt.Fprintf(out, "  - %s: model=%s tools=%d shell_mode=%s\n", a.Name, a.Model, len(a.Tools), a.ShellMode)
	}
	return nil
}

// buildDoctorCmd validates a config and reports whether the runtime can
// be built from it, without binding any listener — a dry run for
// catching a malformed config or agent hierarchy before a real deploy.
// It reports whether ANTHROPIC_API_KEY is set, not whether the key is
// accepted, and whether the Home Assistant client was built, not whether
// the host is reachable.
func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and report runtime readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(out, "config load: FAIL (%v)\n", err)
		return err
	}
	fmt.Fprintf(out, "config load: OK (%s)\n", configPath)

	rt, err := buildRuntime(cfg)
	if err != nil {
		fmt.Fprintf(out, "runtime build: FAIL (%v)\n", err)
		return err
	}
	fmt.Fprintf(out, "runtime build: OK (%d tools registered, %d agents)\n",
		len(rt.registry.All()), len(rt.hierarchy.Names()))

	if cfg.HomeAssistant.Enabled {
		if rt.haClient == nil {
			fmt.Fprintln(out, "home assistant: FAIL (enabled but client not built)")
			return fmt.Errorf("home assistant enabled without a client")
		}
		// Start begins an asynchronous reconnect loop rather than a
		// one-shot dial, so doctor only confirms the client was built
		// from valid config, not that the handshake succeeded.
		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
		rt.haClient.Start(ctx)
		time.Sleep(500 * time.Millisecond)
		rt.haClient.Stop()
		cancel()
		fmt.Fprintf(out, "home assistant: configured (%s)\n", cfg.HomeAssistant.URL)
	} else {
		fmt.Fprintln(out, "home assistant: disabled")
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		fmt.Fprintln(out, "anthropic api key: WARN (ANTHROPIC_API_KEY is unset)")
	} else {
		fmt.Fprintln(out, "anthropic api key: OK")
	}

	return nil
}
