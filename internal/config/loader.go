package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// Load reads path into a Config, resolving $include directives and then
// applying ORCH_-prefixed environment variable overrides. File values are
// layered under environment overrides: an environment variable, where
// set, always wins over whatever the file specifies.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		raw, err := loadRaw(path, map[string]bool{})
		if err != nil {
			return nil, err
		}
		merged, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("config: re-marshal merged map: %w", err)
		}
		if err := yaml.Unmarshal(merged, cfg); err != nil {
			return nil, fmt.Errorf("config: decode: %w", err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadRaw(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config: include cycle at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	raw, err := parseRaw([]byte(expanded), absPath)
	if err != nil {
		return nil, err
	}

	var includes []string
	if v, ok := raw[includeKey]; ok {
		delete(raw, includeKey)
		switch t := v.(type) {
		case string:
			includes = append(includes, t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					includes = append(includes, s)
				}
			}
		}
	}

	merged := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includes {
		incPath := inc
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		incRaw, err := loadRaw(incPath, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}
	return mergeMaps(merged, raw), nil
}

func parseRaw(data []byte, pathHint string) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(pathHint))
	var raw map[string]any
	switch ext {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", pathHint, err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", pathHint, err)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if existing, ok := out[k]; ok {
			if existingMap, ok1 := existing.(map[string]any); ok1 {
				if overlayMap, ok2 := v.(map[string]any); ok2 {
					out[k] = mergeMaps(existingMap, overlayMap)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

// applyEnvOverrides walks a fixed set of high-value fields that operators
// commonly override without a config file: secrets and endpoints. A full
// generic env-to-struct walker is intentionally not built; a handful of
// explicit fields covers the common deploy-time overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORCH_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("ORCH_AGENT_DEFAULT_MODEL"); v != "" {
		cfg.Agent.DefaultModel = v
	}
	if v := os.Getenv("ORCH_HOME_ASSISTANT_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("ORCH_HOME_ASSISTANT_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}
	if v := os.Getenv("ORCH_HOME_ASSISTANT_ENABLED"); v != "" {
		cfg.HomeAssistant.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ORCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ORCH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ORCH_VECTOR_DB_API_KEY"); v != "" {
		cfg.VectorDB.APIKey = v
	}
	if v := os.Getenv("ORCH_CRAWL4AI_API_TOKEN"); v != "" {
		cfg.Integrations.Crawl4AI.APIToken = v
	}
}
