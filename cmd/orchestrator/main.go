// Package main provides the CLI entry point for the orchestrator
// runtime.
//
// orchestrator wires the agent hierarchy, transfer controller, tool
// registry, Home Assistant integration, and session manager to an
// HTTP/WebSocket gateway.
//
// # Basic usage
//
//	orchestrator serve --config orchestrator.yaml
//	orchestrator agent-info --config orchestrator.yaml
//	orchestrator doctor --config orchestrator.yaml
//
// # Environment variables
//
//   - ORCH_HTTP_PORT, ORCH_AGENT_DEFAULT_MODEL, ORCH_HOME_ASSISTANT_URL,
//     ORCH_HOME_ASSISTANT_TOKEN, ORCH_HOME_ASSISTANT_ENABLED,
//     ORCH_LOG_LEVEL, ORCH_LOG_FORMAT — see internal/config.
//   - ANTHROPIC_API_KEY: Anthropic API key for the model provider.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "orchestrator",
		Short:        "Multi-agent orchestration runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildAgentInfoCmd(), buildDoctorCmd())
	return root
}

func defaultConfigPath() string {
	if v := os.Getenv("ORCH_CONFIG"); v != "" {
		return v
	}
	return "orchestrator.yaml"
}
