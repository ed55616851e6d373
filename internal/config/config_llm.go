package config

// LLMConfig selects and configures the LLM providers the decision loop can
// call, plus the fallback order to try when the default provider errors.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain specifies provider IDs to try if the default provider fails.
	// Providers are tried in order until one succeeds.
	// Example: ["openai"] - fall back to OpenAI if anthropic errors.
	FallbackChain []string `yaml:"fallback_chain"`
}

type LLMProviderConfig struct {
	APIKey       string                               `yaml:"api_key"`
	DefaultModel string                               `yaml:"default_model"`
	BaseURL      string                               `yaml:"base_url"`
	APIVersion   string                               `yaml:"api_version"`
	Profiles     map[string]LLMProviderProfileConfig `yaml:"profiles"`
}

type LLMProviderProfileConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`
}
