package llm

import (
	"fmt"
	"os"
	"time"
)

// Provider names accepted in Config.Provider.
const (
	ProviderAuto       = "auto"
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Config is the model provider configuration.
type Config struct {
	// Provider is one of the Provider* names. "auto" picks the first
	// provider whose standard API key variable is set.
	Provider string `mapstructure:"provider" yaml:"provider"`

	Anthropic  AnthropicConfig  `mapstructure:"anthropic" yaml:"anthropic"`
	OpenAI     OpenAIConfig     `mapstructure:"openai" yaml:"openai"`
	Gemini     GeminiConfig     `mapstructure:"gemini" yaml:"gemini"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter" yaml:"openrouter"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`

	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
}

type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

type OpenRouterConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// DefaultConfig returns the defaults. The provider-level retry is a single
// attempt; turn-level retries belong to the dialog layer.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderAuto,
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "google/gemini-2.0-flash-001"},
		Retry: RetryConfig{
			MaxAttempts: 1,
			Backoff: Backoff{
				InitialWait: 500 * time.Millisecond,
				MaxWait:     4 * time.Second,
				Multiplier:  2,
			},
		},
		MaxTokens:   512,
		Temperature: 0,
	}
}

// DiscoverConfig fills in the provider from the standard API key variables
// (GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, OPENROUTER_API_KEY, in
// that order) when cfg.Provider is "auto". Keys already present in cfg win.
// It reports false when no provider could be found.
func DiscoverConfig(cfg Config) (Config, bool) {
	if cfg.Provider != ProviderAuto && cfg.Provider != "" {
		return cfg, true
	}
	candidates := []struct {
		name string
		env  string
		key  *string
	}{
		{ProviderGemini, "GEMINI_API_KEY", &cfg.Gemini.APIKey},
		{ProviderOpenAI, "OPENAI_API_KEY", &cfg.OpenAI.APIKey},
		{ProviderAnthropic, "ANTHROPIC_API_KEY", &cfg.Anthropic.APIKey},
		{ProviderOpenRouter, "OPENROUTER_API_KEY", &cfg.OpenRouter.APIKey},
	}
	for _, c := range candidates {
		if *c.key == "" {
			*c.key = os.Getenv(c.env)
		}
		if *c.key != "" {
			cfg.Provider = c.name
			return cfg, true
		}
	}
	return cfg, false
}

// Validate checks that the selected provider has what it needs.
func (c Config) Validate() error {
	missing := func(name string) error {
		return fmt.Errorf("llm.%s.api_key is required for the %s provider", name, name)
	}
	switch c.Provider {
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return missing(ProviderAnthropic)
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return missing(ProviderOpenAI)
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return missing(ProviderGemini)
		}
	case ProviderOpenRouter:
		if c.OpenRouter.APIKey == "" {
			return missing(ProviderOpenRouter)
		}
	case ProviderMock:
	case ProviderAuto, "":
		return fmt.Errorf("no llm provider configured: set llm.provider or one of GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, OPENROUTER_API_KEY")
	default:
		return fmt.Errorf("unknown llm provider %q", c.Provider)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("llm.temperature must be in [0,1], got %v", c.Temperature)
	}
	return nil
}
