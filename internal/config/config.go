// Package config loads the factory configuration: defaults, then
// .factory/config.yml, then FACTORY_* environment overrides.
package config

// Config is the complete factory configuration.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Indexer   IndexerConfig   `yaml:"indexer" mapstructure:"indexer"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`     // embedding server URL
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"` // vector dimension
	Workers    int    `yaml:"workers" mapstructure:"workers"`       // max concurrent embed calls
}

// LLMConfig configures the model client and session budget.
type LLMConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"` // empty for the provider default
	APIKeyEnv    string `yaml:"api_key_env" mapstructure:"api_key_env"`
	Model        string `yaml:"model" mapstructure:"model"`
	BudgetTokens int    `yaml:"budget_tokens" mapstructure:"budget_tokens"` // 0 disables enforcement
}

// IndexerConfig configures the incremental indexer.
type IndexerConfig struct {
	Workers        int      `yaml:"workers" mapstructure:"workers"` // 0 = CPU count
	IgnorePatterns []string `yaml:"ignore_patterns" mapstructure:"ignore_patterns"`
}

// PipelineConfig configures the modification pipeline.
type PipelineConfig struct {
	Retries     int `yaml:"retries" mapstructure:"retries"`
	TokenBudget int `yaml:"token_budget" mapstructure:"token_budget"` // RAG context budget
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Endpoint:   "http://localhost:8121/embed",
			Dimensions: 384,
			Workers:    4,
		},
		LLM: LLMConfig{
			APIKeyEnv:    "FACTORY_API_KEY",
			Model:        "gpt-4o-mini",
			BudgetTokens: 500_000,
		},
		Indexer: IndexerConfig{
			Workers: 0,
		},
		Pipeline: PipelineConfig{
			Retries:     2,
			TokenBudget: 6000,
		},
	}
}
