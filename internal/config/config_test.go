package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/learnintake/internal/gate"
	"github.com/abhisek/learnintake/internal/llm"
)

func clearProviderEnv(t *testing.T) {
	for _, k := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "learnintake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("LEARNINTAKE_DB", filepath.Join(t.TempDir(), "x.db"))
	t.Chdir(t.TempDir())

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, gate.DefaultAcceptanceThreshold, cfg.Assessment.AcceptanceThreshold)
	assert.Equal(t, gate.DefaultClarificationCap, cfg.Assessment.ClarificationCap)
	assert.Equal(t, gate.ForceConfirm, cfg.Assessment.ExhaustedPolicy)
	assert.Equal(t, 20*time.Second, cfg.Assessment.ExtractionTimeout)
	assert.Equal(t, 2, cfg.Assessment.GatewayRetries)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, os.Getenv("LEARNINTAKE_DB"), cfg.Store.DBPath)
	assert.Equal(t, 3, cfg.Store.MaxConflictRetries)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, llm.ProviderAuto, cfg.LLM.Provider)
	assert.Equal(t, 1, cfg.LLM.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.LLM.Retry.InitialWait)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateLLM(), "auto without keys")

	d := cfg.Assessment.Dialog()
	assert.Equal(t, cfg.Assessment.ClarificationCap, d.Gate.ClarificationCap)
	assert.Equal(t, cfg.Assessment.ExtractionTimeout, cfg.Assessment.Extractor().Timeout)
}

func TestFileThenEnv(t *testing.T) {
	clearProviderEnv(t)
	path := writeFile(t, `
llm:
  provider: anthropic
  anthropic:
    api_key: sk-file
assessment:
  clarification_cap: 5
  exhausted_policy: fail
  extraction_timeout: 3s
  backoff:
    initial_wait: 50ms
store:
  backend: memory
server:
  addr: ":9999"
`)
	t.Setenv("LEARNINTAKE_ASSESSMENT_CLARIFICATION_CAP", "7")
	t.Setenv("LEARNINTAKE_LOG_LEVEL", "debug")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Assessment.ClarificationCap, "env wins over file")
	assert.Equal(t, gate.Fail, cfg.Assessment.ExhaustedPolicy)
	assert.Equal(t, 3*time.Second, cfg.Assessment.ExtractionTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Assessment.Backoff.InitialWait)
	assert.Equal(t, 2*time.Second, cfg.Assessment.Backoff.MaxWait, "unset nested keys keep defaults")
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Empty(t, cfg.Store.DBPath)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, llm.ProviderAnthropic, cfg.LLM.Provider)
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateLLM())
}

func TestExplicitMissingFileFails(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearProviderEnv(t)
	t.Chdir(t.TempDir())
	base, err := Load(NewViper(), "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"threshold", func(c *Config) { c.Assessment.AcceptanceThreshold = 1.5 }, "acceptance threshold"},
		{"policy", func(c *Config) { c.Assessment.ExhaustedPolicy = "loop" }, "exhausted policy"},
		{"timeout", func(c *Config) { c.Assessment.ExtractionTimeout = 0 }, "extraction_timeout"},
		{"retries", func(c *Config) { c.Assessment.GatewayRetries = -1 }, "gateway_retries"},
		{"backend", func(c *Config) { c.Store.Backend = "postgres" }, "store.backend"},
		{"redis addr", func(c *Config) { c.Store.Backend = BackendRedis }, "store.redis.addr"},
		{"base path", func(c *Config) { c.Server.BasePath = "v1" }, "base_path"},
		{"exporter", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestYAMLRedactsSecrets(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("LEARNINTAKE_LLM_OPENAI_API_KEY", "sk-secret")
	t.Setenv("LEARNINTAKE_STORE_REDIS_PASSWORD", "hunter2")
	t.Chdir(t.TempDir())

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOpenAI, cfg.LLM.Provider, "discovered from configured key")

	out, err := cfg.YAML()
	require.NoError(t, err)
	text := string(out)
	assert.NotContains(t, text, "sk-secret")
	assert.NotContains(t, text, "hunter2")
	assert.True(t, strings.Contains(text, redacted))
	assert.Equal(t, "sk-secret", cfg.LLM.OpenAI.APIKey, "redaction works on a copy")
}
