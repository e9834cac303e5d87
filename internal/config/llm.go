package config

import "fmt"

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "gemini"}

// LLMConfig configures annotation requests.
type LLMConfig struct {
	Provider             string  `yaml:"provider"` // openai, gemini
	APIKey               string  `yaml:"api_key"`
	Model                string  `yaml:"model"`
	BaseURL              string  `yaml:"base_url"`
	Timeout              string  `yaml:"timeout"`
	SystemMessage        string  `yaml:"system_message"`
	Validator            string  `yaml:"validator"`
	Temperature          float64 `yaml:"temperature"`
	MaxValidationRetries int     `yaml:"max_validation_retries"`
}

// Validate checks the provider allow-list and numeric ranges.
func (c *LLMConfig) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("%w: invalid LLM provider: %s (valid: %v)", ErrInvalidConfig, c.Provider, ValidProviders)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if !(c.Temperature >= 0 && c.Temperature <= 1) {
		return fmt.Errorf("%w: temperature must be between 0.0 and 1.0, got %v", ErrInvalidConfig, c.Temperature)
	}
	if c.MaxValidationRetries < 0 {
		return fmt.Errorf("%w: max_validation_retries must be non-negative, got %d", ErrInvalidConfig, c.MaxValidationRetries)
	}
	if c.Validator == "" {
		return fmt.Errorf("%w: validator is required", ErrInvalidConfig)
	}
	return nil
}
