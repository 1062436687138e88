// Package config loads redpen settings from defaults, a YAML file and the
// environment. Command flags are applied last by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/redpen/internal/analysis"
	"github.com/abhisek/redpen/internal/llm"
)

// Config is the full application configuration. API keys are not part of
// it; they are read from the environment only (see llm.ApplyEnv).
type Config struct {
	Provider         string        `yaml:"provider"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	StepModel        string        `yaml:"step_model"`
	ErrorModel       string        `yaml:"error_model"`
	PresetPrompt     string        `yaml:"preset_prompt"`
	Timeout          time.Duration `yaml:"timeout"`
	VerifyTimeout    time.Duration `yaml:"verify_timeout"`
	StructuredOutput bool          `yaml:"structured_output"`
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      float64       `yaml:"temperature"`

	// DataDir receives directory exports and the TUI log.
	DataDir string `yaml:"data_dir"`

	// DB is the SQLite path. Empty means store.DefaultDBPath.
	DB string `yaml:"db"`

	Server ServerConfig `yaml:"server"`
}

// ServerConfig configures `redpen serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	a := analysis.DefaultConfig()
	return &Config{
		Provider:      llm.DefaultConfig().Provider,
		StepModel:     a.StepModel,
		ErrorModel:    a.ErrorModel,
		PresetPrompt:  a.Preset,
		Timeout:       a.Timeout,
		VerifyTimeout: a.VerifyTimeout,
		MaxTokens:     2048,
		Temperature:   0,
		DataDir:       "student_data",
		Server: ServerConfig{
			Addr: "127.0.0.1:8501",
		},
	}
}

// Validate checks value ranges. Credentials are checked when the provider
// is built, not here.
func (c *Config) Validate() error {
	if c.StepModel == "" {
		return fmt.Errorf("step_model is required")
	}
	if c.ErrorModel == "" {
		return fmt.Errorf("error_model is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("verify_timeout must be positive")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// LoadFromFile overlays the YAML file at path onto the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile writes c as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables. Malformed numeric or boolean
// values are reported rather than ignored.
func (c *Config) ApplyEnv() error {
	strs := []struct {
		key string
		dst *string
	}{
		{"REDPEN_LLM_PROVIDER", &c.Provider},
		{"REDPEN_OPENAI_BASE_URL", &c.OpenAIBaseURL},
		{"MODEL_STEP", &c.StepModel},
		{"MODEL_ERROR", &c.ErrorModel},
		{"PRESET_PROMPT", &c.PresetPrompt},
		{"REDPEN_DATA_DIR", &c.DataDir},
		{"REDPEN_DB", &c.DB},
		{"REDPEN_ADDR", &c.Server.Addr},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	durs := []struct {
		key string
		dst *time.Duration
	}{
		{"REDPEN_TIMEOUT", &c.Timeout},
		{"REDPEN_VERIFY_TIMEOUT", &c.VerifyTimeout},
	}
	for _, d := range durs {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("REDPEN_STRUCTURED_OUTPUT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REDPEN_STRUCTURED_OUTPUT: %w", err)
		}
		c.StructuredOutput = b
	}
	return nil
}

// LLM returns the provider configuration, credentials included.
func (c *Config) LLM() llm.Config {
	cfg := llm.DefaultConfig()
	llm.ApplyEnv(&cfg)
	if c.Provider != "" {
		cfg.Provider = c.Provider
	}
	if c.OpenAIBaseURL != "" {
		cfg.OpenAI.BaseURL = c.OpenAIBaseURL
	}
	// Retries run inside the analysis timeout.
	cfg.Timeout = c.Timeout
	return cfg
}

// Analysis returns the analyzer configuration.
func (c *Config) Analysis() analysis.Config {
	return analysis.Config{
		StepModel:        c.StepModel,
		ErrorModel:       c.ErrorModel,
		Preset:           c.PresetPrompt,
		Timeout:          c.Timeout,
		VerifyTimeout:    c.VerifyTimeout,
		StructuredOutput: c.StructuredOutput,
	}
}

// GatewayOptions returns the call parameters for llm.NewGateway.
func (c *Config) GatewayOptions() []llm.GatewayOption {
	return []llm.GatewayOption{
		llm.WithMaxTokens(c.MaxTokens),
		llm.WithTemperature(c.Temperature),
	}
}
