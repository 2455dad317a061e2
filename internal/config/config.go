// Package config is the runtime's read-only, process-wide configuration
// store: a layered source (file < environment overrides) exposing typed
// accessors for model names, tool toggles, and per-agent overrides.
package config

import (
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Agent         AgentConfig         `yaml:"agent"`
	VectorDB      VectorDBConfig      `yaml:"vector_db"`
	Integrations  IntegrationsConfig  `yaml:"integrations"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	MCPServers    []MCPServerConfig   `yaml:"mcp_servers"`
	Tools         ToolsConfig         `yaml:"tools"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig configures the HTTP/WS listener.
type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

// AgentConfig configures model selection and per-agent overrides.
type AgentConfig struct {
	DefaultModel string                     `yaml:"default_model"`
	RootAgent    string                     `yaml:"root_agent"`
	Overrides    map[string]AgentOverride   `yaml:"overrides"`
	Vertex       VertexConfig               `yaml:"vertex"`
}

// AgentOverride overrides per-agent model/instruction selection.
type AgentOverride struct {
	Model       string `yaml:"model"`
	Instruction string `yaml:"instruction,omitempty"`
}

// VertexConfig toggles routing the Anthropic provider through Vertex AI.
type VertexConfig struct {
	Enabled bool   `yaml:"enabled"`
	Project string `yaml:"project"`
	Region  string `yaml:"region"`
}

// VectorDBConfig is the contract for the external vector-store
// collaborator — no client ships for it.
type VectorDBConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

// IntegrationsConfig groups third-party integration toggles.
type IntegrationsConfig struct {
	Crawl4AI Crawl4AIConfig `yaml:"crawl4ai"`
}

// Crawl4AIConfig is the contract for the web-crawl tool's backing
// service; no client ships for it.
type Crawl4AIConfig struct {
	APIURL  string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	Enabled bool   `yaml:"enabled"`
}

// HomeAssistantConfig configures the HA WebSocket client.
type HomeAssistantConfig struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	MCPSSEURL  string `yaml:"mcp_sse_url"`
	Enabled    bool   `yaml:"enabled"`
}

// MCPServerConfig is the contract for an external MCP server; no client
// ships for it in this runtime.
type MCPServerConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
	URL       string `yaml:"url"`
	AuthToken string `yaml:"auth_token"`
}

// ToolsConfig configures the tool registry's toolsets and execution
// limits.
type ToolsConfig struct {
	Enabled        []string                 `yaml:"enabled"`
	DefaultTimeout time.Duration            `yaml:"default_timeout"`
	Overrides      map[string]time.Duration `yaml:"overrides"`
	ShellAllowlist []string                 `yaml:"shell_allowlist"`
}

// LoggingConfig configures the observability.Logger.
type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"`
	RedactPatterns []string `yaml:"redact_patterns"`
}

// Defaults returns a Config populated with sensible zero-configuration
// values; Load overlays the file and environment on top of this.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", HTTPPort: 8080},
		Agent: AgentConfig{
			DefaultModel: "claude-sonnet-4-5",
			RootAgent:    "main",
		},
		Tools: ToolsConfig{
			DefaultTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// ModelFor resolves the model string for agentName, falling back to the
// agent-level default when no override is configured.
func (c *Config) ModelFor(agentName string) string {
	if c == nil {
		return ""
	}
	if override, ok := c.Agent.Overrides[agentName]; ok && override.Model != "" {
		return override.Model
	}
	return c.Agent.DefaultModel
}
