package config

import (
	"time"

	"resumeforge/internal/types"
)

// Default output budgets per task kind
const (
	DefaultGenerateMaxTokens = 4096
	DefaultAnalyzeMaxTokens  = 1000
)

const defaultAITimeout = 60 * time.Second

// applyOperationDefaults applies global defaults to operation-specific configuration
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig, maxTokens int) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Provider == "" {
		opCfg.Provider = ProviderAnthropic
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.Model
	}
	if opCfg.Model == "" {
		opCfg.Model = DefaultModel(opCfg.Provider)
	}
	if opCfg.Timeout == nil {
		timeout := c.AI.Timeout
		if timeout == 0 {
			timeout = defaultAITimeout
		}
		opCfg.Timeout = &timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.Temperature == nil {
		temperature := c.AI.Temperature
		opCfg.Temperature = &temperature
	}
	if opCfg.MaxTokens == 0 {
		opCfg.MaxTokens = maxTokens
	}
	if opCfg.CircuitBreaker == nil {
		cb := c.AI.CircuitBreaker
		opCfg.CircuitBreaker = &cb
	}
}

// DefaultModel returns the model used when none is configured for provider
func DefaultModel(provider string) string {
	if provider == ProviderGemini {
		return DefaultGeminiModel
	}
	return DefaultAnthropicModel
}

// GenerateConfig returns the AI configuration for generate runs with fallback to global config
func (c *Config) GenerateConfig() OperationAIConfig {
	config := c.AI.Generate
	c.applyOperationDefaults(&config, DefaultGenerateMaxTokens)
	return config
}

// AnalyzeConfig returns the AI configuration for analyze runs with fallback to global config
func (c *Config) AnalyzeConfig() OperationAIConfig {
	config := c.AI.Analyze
	c.applyOperationDefaults(&config, DefaultAnalyzeMaxTokens)
	return config
}

// OperationConfig returns the AI configuration for kind
func (c *Config) OperationConfig(kind types.TaskKind) OperationAIConfig {
	if kind == types.TaskAnalyze {
		return c.AnalyzeConfig()
	}
	return c.GenerateConfig()
}
