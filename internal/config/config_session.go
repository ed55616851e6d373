package config

// SessionConfig controls per-session history retention and pruning.
type SessionConfig struct {
	ContextPruning ContextPruningConfig `yaml:"context_pruning"`
}
