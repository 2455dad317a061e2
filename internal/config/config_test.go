package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadDefaultsWithNoPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("expected default http port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Agent.RootAgent != "main" {
		t.Fatalf("expected default root agent %q, got %q", "main", cfg.Agent.RootAgent)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  http_port: 9090
agent:
  default_model: claude-opus-4
  root_agent: orchestrator
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Fatalf("expected http_port 9090, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Agent.DefaultModel != "claude-opus-4" {
		t.Fatalf("expected default_model override, got %q", cfg.Agent.DefaultModel)
	}
	if cfg.Agent.RootAgent != "orchestrator" {
		t.Fatalf("expected root_agent override, got %q", cfg.Agent.RootAgent)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte(`
home_assistant:
  url: ws://base:8123/api/websocket
  enabled: true
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mainPath := filepath.Join(dir, "orchestrator.yaml")
	if err := os.WriteFile(mainPath, []byte(`
$include: base.yaml
agent:
  default_model: claude-sonnet-4-5
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HomeAssistant.URL != "ws://base:8123/api/websocket" {
		t.Fatalf("expected included home_assistant.url, got %q", cfg.HomeAssistant.URL)
	}
	if !cfg.HomeAssistant.Enabled {
		t.Fatalf("expected included home_assistant.enabled = true")
	}
	if cfg.Agent.DefaultModel != "claude-sonnet-4-5" {
		t.Fatalf("expected main file's agent.default_model to win, got %q", cfg.Agent.DefaultModel)
	}
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.yaml")
	bPath := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(aPath, []byte("$include: b.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(bPath, []byte("$include: a.yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(aPath); err == nil {
		t.Fatalf("expected include-cycle error")
	}
}

func TestLoadParsesJSON5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.json5")
	if err := os.WriteFile(path, []byte(`{
  // trailing commas and comments are fine in json5
  agent: { default_model: "claude-haiku-4", root_agent: "main" },
}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.DefaultModel != "claude-haiku-4" {
		t.Fatalf("expected default_model from json5, got %q", cfg.Agent.DefaultModel)
	}
}

func TestLoadExpandsEnvInFile(t *testing.T) {
	t.Setenv("HA_TOKEN_FOR_TEST", "file-expanded-token")
	path := writeConfig(t, `
home_assistant:
  token: ${HA_TOKEN_FOR_TEST}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HomeAssistant.Token != "file-expanded-token" {
		t.Fatalf("expected expanded token, got %q", cfg.HomeAssistant.Token)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ORCH_HTTP_PORT", "9191")
	t.Setenv("ORCH_AGENT_DEFAULT_MODEL", "claude-opus-4-override")
	t.Setenv("ORCH_HOME_ASSISTANT_ENABLED", "true")

	path := writeConfig(t, `
server:
  http_port: 8080
agent:
  default_model: claude-sonnet-4-5
home_assistant:
  enabled: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 9191 {
		t.Fatalf("expected env override http_port 9191, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Agent.DefaultModel != "claude-opus-4-override" {
		t.Fatalf("expected env override default_model, got %q", cfg.Agent.DefaultModel)
	}
	if !cfg.HomeAssistant.Enabled {
		t.Fatalf("expected env override home_assistant.enabled = true")
	}
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("ORCH_LOG_LEVEL", "debug")

	path := writeConfig(t, `
logging:
  level: warn
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env override to win, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected file value to survive for unset env var, got %q", cfg.Logging.Format)
	}
}

func TestModelForUsesOverride(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.Overrides = map[string]AgentOverride{
		"scout": {Model: "claude-haiku-4"},
	}

	if got := cfg.ModelFor("scout"); got != "claude-haiku-4" {
		t.Fatalf("ModelFor(scout) = %q, want claude-haiku-4", got)
	}
	if got := cfg.ModelFor("beto"); got != cfg.Agent.DefaultModel {
		t.Fatalf("ModelFor(beto) = %q, want default %q", got, cfg.Agent.DefaultModel)
	}
}

func TestModelForNilConfig(t *testing.T) {
	var cfg *Config
	if got := cfg.ModelFor("anything"); got != "" {
		t.Fatalf("ModelFor() on nil config = %q, want empty string", got)
	}
}

func TestToolsConfigDefaultTimeout(t *testing.T) {
	cfg := Defaults()
	if cfg.Tools.DefaultTimeout != 60*time.Second {
		t.Fatalf("expected default tool timeout 60s, got %v", cfg.Tools.DefaultTimeout)
	}
}
