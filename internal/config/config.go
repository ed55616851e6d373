package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codeisdemode/cephiq-lite/internal/mcp"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a cephiq-agent instance.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	LLM     LLMConfig     `yaml:"llm"`
	Tools   ToolsConfig   `yaml:"tools"`
	Tags    TagsConfig    `yaml:"tags"`
	MCP     mcp.Config    `yaml:"mcp"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AgentConfig controls the decision loop's budgets and identity.
type AgentConfig struct {
	ID               string        `yaml:"id"`
	MaxCycles        int           `yaml:"max_cycles"`
	MaxToolCalls     int           `yaml:"max_tool_calls"`
	MaxTotalTokens   int           `yaml:"max_total_tokens"`
	MaxWallClock     time.Duration `yaml:"max_wall_clock"`
	AutoApprove      bool          `yaml:"auto_approve"`
	SystemPromptFile string        `yaml:"system_prompt_file"`
}

// TagsConfig points at the tag store backing system-prompt assembly.
type TagsConfig struct {
	Directory string `yaml:"directory"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	File   string `yaml:"file"`
}

// MetricsConfig controls the Prometheus metrics exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func applyDefaults(cfg *Config) {
	if cfg.Agent.ID == "" {
		cfg.Agent.ID = "default"
	}
	if cfg.Agent.MaxCycles <= 0 {
		cfg.Agent.MaxCycles = 25
	}
	if cfg.Agent.MaxToolCalls <= 0 {
		cfg.Agent.MaxToolCalls = 100
	}
	if cfg.Agent.MaxTotalTokens <= 0 {
		cfg.Agent.MaxTotalTokens = 200000
	}
	if cfg.Agent.MaxWallClock <= 0 {
		cfg.Agent.MaxWallClock = 10 * time.Minute
	}

	applyLLMDefaults(&cfg.LLM)
	applyToolsDefaults(cfg)
	applyLoggingDefaults(&cfg.Logging)

	if cfg.Tags.Directory == "" {
		cfg.Tags.Directory = "tags"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
}

func applyToolsDefaults(cfg *Config) {
	t := &cfg.Tools
	if t.Execution.MaxIterations <= 0 {
		t.Execution.MaxIterations = cfg.Agent.MaxCycles
	}
	if t.Execution.Parallelism <= 0 {
		t.Execution.Parallelism = 5
	}
	if t.Execution.Timeout <= 0 {
		t.Execution.Timeout = 30 * time.Second
	}
	if t.Execution.MaxAttempts <= 0 {
		t.Execution.MaxAttempts = 3
	}
	if t.Execution.RetryBackoff <= 0 {
		t.Execution.RetryBackoff = 500 * time.Millisecond
	}
	if t.Approval.DefaultDecision == "" {
		t.Approval.DefaultDecision = "denied"
	}
	if t.Approval.RequestTTL <= 0 {
		t.Approval.RequestTTL = 10 * time.Minute
	}
}

// applyEnvOverrides lets well-known environment variables override secrets
// that should never live in a checked-in config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		setProviderAPIKey(cfg, "anthropic", v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		setProviderAPIKey(cfg, "openai", v)
	}
}

func setProviderAPIKey(cfg *Config, provider, key string) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]LLMProviderConfig)
	}
	p := cfg.LLM.Providers[provider]
	if p.APIKey == "" {
		p.APIKey = key
	}
	cfg.LLM.Providers[provider] = p
}

// ConfigValidationError reports a single invalid field.
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func validateConfig(cfg *Config) error {
	if cfg.Agent.MaxCycles <= 0 {
		return &ConfigValidationError{Field: "agent.max_cycles", Reason: "must be positive"}
	}
	if cfg.LLM.DefaultProvider == "" {
		return &ConfigValidationError{Field: "llm.default_provider", Reason: "must be set"}
	}
	if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
		return &ConfigValidationError{Field: "llm.default_provider", Reason: fmt.Sprintf("no provider config for %q", cfg.LLM.DefaultProvider)}
	}
	switch strings.ToLower(cfg.Tools.Approval.DefaultDecision) {
	case "allowed", "denied", "pending":
	default:
		return &ConfigValidationError{Field: "tools.approval.default_decision", Reason: "must be allowed, denied, or pending"}
	}
	return nil
}

// Load reads, merges (including $include directives), and validates the
// configuration at path, applying defaults and environment overrides.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}

	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: re-encode merged document: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(encoded, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
