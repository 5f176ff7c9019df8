// Package config loads learnintake settings from defaults, an optional YAML
// file and LEARNINTAKE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/learnintake/internal/dialog"
	"github.com/abhisek/learnintake/internal/extractor"
	"github.com/abhisek/learnintake/internal/gate"
	"github.com/abhisek/learnintake/internal/llm"
	"github.com/abhisek/learnintake/internal/store"
)

const (
	EnvPrefix      = "LEARNINTAKE"
	DefaultFile    = "learnintake"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

type Config struct {
	LLM        llm.Config       `mapstructure:"llm" yaml:"llm"`
	Assessment AssessmentConfig `mapstructure:"assessment" yaml:"assessment"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
}

type AssessmentConfig struct {
	AcceptanceThreshold float64              `mapstructure:"acceptance_threshold" yaml:"acceptance_threshold"`
	ClarificationCap    int                  `mapstructure:"clarification_cap" yaml:"clarification_cap"`
	ExhaustedPolicy     gate.ExhaustedPolicy `mapstructure:"exhausted_policy" yaml:"exhausted_policy"`
	ExtractionTimeout   time.Duration        `mapstructure:"extraction_timeout" yaml:"extraction_timeout"`
	GatewayRetries      int                  `mapstructure:"gateway_retries" yaml:"gateway_retries"`
	Backoff             llm.Backoff          `mapstructure:"backoff" yaml:"backoff"`
	HistoryTurns        int                  `mapstructure:"history_turns" yaml:"history_turns"`
}

type StoreConfig struct {
	// Backend is sqlite, memory or redis.
	Backend            string            `mapstructure:"backend" yaml:"backend"`
	DBPath             string            `mapstructure:"db_path" yaml:"db_path"`
	Redis              store.RedisConfig `mapstructure:"redis" yaml:"redis"`
	MaxConflictRetries int               `mapstructure:"max_conflict_retries" yaml:"max_conflict_retries"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	BasePath        string        `mapstructure:"base_path" yaml:"base_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Mode   string `mapstructure:"mode" yaml:"mode"`
	Level  string `mapstructure:"level" yaml:"level"`
	Redact bool   `mapstructure:"redact" yaml:"redact"`
}

type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter    string  `mapstructure:"exporter" yaml:"exporter"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
}

// Dialog converts the assessment settings into the orchestrator config.
func (a AssessmentConfig) Dialog() dialog.Config {
	return dialog.Config{
		Gate: gate.Config{
			AcceptanceThreshold: a.AcceptanceThreshold,
			ClarificationCap:    a.ClarificationCap,
			ExhaustedPolicy:     a.ExhaustedPolicy,
		},
		GatewayRetries: a.GatewayRetries,
		Backoff:        a.Backoff,
		HistoryTurns:   a.HistoryTurns,
	}
}

// Extractor returns the extractor config.
func (a AssessmentConfig) Extractor() extractor.Config {
	return extractor.Config{Timeout: a.ExtractionTimeout}
}

func setDefaults(v *viper.Viper) {
	l := llm.DefaultConfig()
	v.SetDefault("llm.provider", l.Provider)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", l.Anthropic.Model)
	v.SetDefault("llm.anthropic.base_url", "")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", l.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", l.Gemini.Model)
	v.SetDefault("llm.openrouter.api_key", "")
	v.SetDefault("llm.openrouter.model", l.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", "")
	v.SetDefault("llm.retry.max_attempts", l.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", l.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", l.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", l.Retry.Multiplier)
	v.SetDefault("llm.max_tokens", l.MaxTokens)
	v.SetDefault("llm.temperature", l.Temperature)

	d := dialog.DefaultConfig()
	v.SetDefault("assessment.acceptance_threshold", d.Gate.AcceptanceThreshold)
	v.SetDefault("assessment.clarification_cap", d.Gate.ClarificationCap)
	v.SetDefault("assessment.exhausted_policy", string(d.Gate.ExhaustedPolicy))
	v.SetDefault("assessment.extraction_timeout", extractor.DefaultTimeout)
	v.SetDefault("assessment.gateway_retries", d.GatewayRetries)
	v.SetDefault("assessment.backoff.initial_wait", d.Backoff.InitialWait)
	v.SetDefault("assessment.backoff.max_wait", d.Backoff.MaxWait)
	v.SetDefault("assessment.backoff.multiplier", d.Backoff.Multiplier)
	v.SetDefault("assessment.history_turns", d.HistoryTurns)

	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.db_path", "")
	v.SetDefault("store.redis.addr", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "")
	v.SetDefault("store.redis.ttl", time.Duration(0))
	v.SetDefault("store.max_conflict_retries", store.DefaultMaxConflictRetries)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/v1")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.redact", true)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", ExporterStdout)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.service_name", "learnintake")
}

// NewViper returns a viper instance with defaults and environment binding
// in place. Callers may bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (or ./learnintake.yaml when path is empty and the file
// exists) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFile)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM, _ = llm.DiscoverConfig(cfg.LLM)
	if cfg.Store.Backend == BackendSQLite && cfg.Store.DBPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		cfg.Store.DBPath = p
	} else if cfg.Store.Backend == BackendSQLite {
		if err := store.EnsureDir(cfg.Store.DBPath); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	return &cfg, nil
}

// Validate checks everything except the LLM settings, which are only
// needed by commands that talk to a model (see ValidateLLM).
func (c *Config) Validate() error {
	if err := c.Assessment.Dialog().Gate.Validate(); err != nil {
		return fmt.Errorf("assessment: %w", err)
	}
	a := c.Assessment
	if a.ExtractionTimeout <= 0 {
		return fmt.Errorf("assessment.extraction_timeout must be positive, got %s", a.ExtractionTimeout)
	}
	if a.GatewayRetries < 0 {
		return fmt.Errorf("assessment.gateway_retries must not be negative, got %d", a.GatewayRetries)
	}
	if a.HistoryTurns < 0 {
		return fmt.Errorf("assessment.history_turns must not be negative, got %d", a.HistoryTurns)
	}
	switch c.Store.Backend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want %s, %s or %s)", c.Store.Backend, BackendSQLite, BackendMemory, BackendRedis)
	}
	if c.Store.MaxConflictRetries < 0 {
		return fmt.Errorf("store.max_conflict_retries must not be negative, got %d", c.Store.MaxConflictRetries)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with '/', got %q", c.Server.BasePath)
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case ExporterStdout, ExporterOTLP:
		default:
			return fmt.Errorf("unknown telemetry.exporter %q", c.Telemetry.Exporter)
		}
		if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
			return fmt.Errorf("telemetry.sample_ratio must be in [0,1], got %v", c.Telemetry.SampleRatio)
		}
	}
	return nil
}

// ValidateLLM checks the model provider settings.
func (c *Config) ValidateLLM() error {
	return c.LLM.Validate()
}

const redacted = "[REDACTED]"

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.LLM.Anthropic.APIKey)
	mask(&c.LLM.OpenAI.APIKey)
	mask(&c.LLM.Gemini.APIKey)
	mask(&c.LLM.OpenRouter.APIKey)
	mask(&c.Store.Redis.Password)
	return c
}

// YAML renders the redacted config.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
