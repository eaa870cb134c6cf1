package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins).
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a loader for the given project root.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// Load loads configuration with the following priority (highest first):
// 1. Environment variables (FACTORY_*)
// 2. Config file (.factory/config.yml)
// 3. Defaults
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".factory")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("FACTORY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("embedding.endpoint")
	v.BindEnv("embedding.dimensions")
	v.BindEnv("embedding.workers")
	v.BindEnv("llm.base_url")
	v.BindEnv("llm.api_key_env")
	v.BindEnv("llm.model")
	v.BindEnv("llm.budget_tokens")
	v.BindEnv("indexer.workers")
	v.BindEnv("pipeline.retries")
	v.BindEnv("pipeline.token_budget")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config files are fine; defaults plus env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := Default()
	v.SetDefault("embedding.endpoint", defaults.Embedding.Endpoint)
	v.SetDefault("embedding.dimensions", defaults.Embedding.Dimensions)
	v.SetDefault("embedding.workers", defaults.Embedding.Workers)
	v.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	v.SetDefault("llm.api_key_env", defaults.LLM.APIKeyEnv)
	v.SetDefault("llm.model", defaults.LLM.Model)
	v.SetDefault("llm.budget_tokens", defaults.LLM.BudgetTokens)
	v.SetDefault("indexer.workers", defaults.Indexer.Workers)
	v.SetDefault("pipeline.retries", defaults.Pipeline.Retries)
	v.SetDefault("pipeline.token_budget", defaults.Pipeline.TokenBudget)
}
