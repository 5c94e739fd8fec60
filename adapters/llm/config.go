package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/wavebridge/domain/repositories"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"

	defaultGeminiModel  = "gemini-2.0-flash"
	defaultOpenAIModel  = "gpt-4o-mini"
	defaultTemperature  = 0.7
	defaultMaxTokens    = 64
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second
)

// Config holds configuration shared by the responder adapters
// Required fields:
// - Provider: one of gemini, openai, mock
// - APIKey: required for gemini and openai
// Optional fields:
// - BaseURL: overrides the provider endpoint
// - RetryBackoff: retry n waits n*RetryBackoff
// - the rest fall back to per-provider defaults
type Config struct {
	Provider        string
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float32
	MaxOutputTokens int
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	MockReply       string
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	switch config.Provider {
	case ProviderGemini, ProviderOpenAI:
		if config.APIKey == "" {
			return fmt.Errorf("API key is required for provider %s", config.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown llm provider %q", config.Provider)
	}

	// Validate temperature is in the valid range
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}

	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", config.MaxOutputTokens)
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}

	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries must be positive, got %d", config.MaxRetries)
	}

	return nil
}

func (c Config) withDefaults(model string) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = defaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return c
}

// NewResponder builds the responder selected by config.Provider
func NewResponder(config Config, logger *zap.Logger) (repositories.Responder, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiResponder(config, logger)
	case ProviderOpenAI:
		return NewOpenAIResponder(config, logger)
	default:
		return NewMockResponder(config.MockReply), nil
	}
}
