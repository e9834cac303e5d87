package provider

import (
	"context"
	"fmt"
	"time"
)

// Config selects and configures one provider.
type Config struct {
	Name    Name
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// New creates the provider named in cfg.
func New(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)", cfg.Name)
	}
	switch cfg.Name {
	case OpenAI:
		oc := DefaultOpenAIConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if cfg.Timeout > 0 {
			oc.Timeout = cfg.Timeout
		}
		return NewOpenAIClient(oc), nil
	case Gemini:
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown provider: %s (valid: %s, %s)", cfg.Name, OpenAI, Gemini)
	}
}
