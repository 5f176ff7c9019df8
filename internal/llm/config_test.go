package llm

import "testing"

func clearKeys(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
}

func TestDiscoverConfig(t *testing.T) {
	t.Run("none found", func(t *testing.T) {
		clearKeys(t)
		if _, ok := DiscoverConfig(DefaultConfig()); ok {
			t.Error("expected no provider")
		}
	})

	t.Run("openai before anthropic", func(t *testing.T) {
		clearKeys(t)
		t.Setenv("OPENAI_API_KEY", "sk-1")
		t.Setenv("ANTHROPIC_API_KEY", "sk-2")
		cfg, ok := DiscoverConfig(DefaultConfig())
		if !ok || cfg.Provider != ProviderOpenAI || cfg.OpenAI.APIKey != "sk-1" {
			t.Errorf("cfg = %+v ok=%v", cfg, ok)
		}
	})

	t.Run("configured key wins", func(t *testing.T) {
		clearKeys(t)
		cfg := DefaultConfig()
		cfg.Anthropic.APIKey = "from-file"
		cfg, ok := DiscoverConfig(cfg)
		if !ok || cfg.Provider != ProviderAnthropic {
			t.Errorf("cfg.Provider = %q ok=%v", cfg.Provider, ok)
		}
	})

	t.Run("explicit provider untouched", func(t *testing.T) {
		clearKeys(t)
		cfg := DefaultConfig()
		cfg.Provider = ProviderMock
		if got, ok := DiscoverConfig(cfg); !ok || got.Provider != ProviderMock {
			t.Errorf("provider = %q", got.Provider)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"mock", func(c *Config) { c.Provider = ProviderMock }, false},
		{"anthropic without key", func(c *Config) { c.Provider = ProviderAnthropic }, true},
		{"gemini with key", func(c *Config) { c.Provider = ProviderGemini; c.Gemini.APIKey = "k" }, false},
		{"auto unresolved", func(c *Config) {}, true},
		{"unknown", func(c *Config) { c.Provider = "llama" }, true},
		{"bad temperature", func(c *Config) { c.Provider = ProviderMock; c.Temperature = 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
