package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// AgentConfig captures the tunable runtime settings for one agent. One record
// lives in each agent directory as config.yaml.
type AgentConfig struct {
	Model                 string  `yaml:"model" json:"model"`
	Temperature           float64 `yaml:"temperature" json:"temperature"`
	MaxTokens             int     `yaml:"max_tokens" json:"max_tokens"`
	TopP                  float64 `yaml:"top_p" json:"top_p"`
	FrequencyPenalty      float64 `yaml:"frequency_penalty" json:"frequency_penalty"`
	PresencePenalty       float64 `yaml:"presence_penalty" json:"presence_penalty"`
	Stream                bool    `yaml:"stream" json:"stream"`
	SystemPrompt          string  `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	MaxHistorySize        int     `yaml:"max_history_size" json:"max_history_size"`
	MaxBackups            int     `yaml:"max_backups" json:"max_backups"`
	MaxInclusionBytes     int64   `yaml:"max_inclusion_bytes" json:"max_inclusion_bytes"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
	MaxRetries            int     `yaml:"max_retries" json:"max_retries"`
	CreatedAt             string  `yaml:"created_at" json:"created_at"`
	UpdatedAt             string  `yaml:"updated_at" json:"updated_at"`
}

// Default returns the configuration a freshly created agent starts with,
// seeded from the model registry entry.
func Default(model string) AgentConfig {
	info, ok := LookupModel(model)
	if !ok {
		model = DefaultModel
		info, _ = LookupModel(model)
	}
	now := time.Now().Format(time.RFC3339)
	return AgentConfig{
		Model:                 model,
		Temperature:           1.0,
		MaxTokens:             info.MaxTokens,
		TopP:                  1.0,
		Stream:                true,
		MaxHistorySize:        1000,
		MaxBackups:            10,
		MaxInclusionBytes:     2 << 20,
		RequestTimeoutSeconds: info.TimeoutSeconds,
		MaxRetries:            3,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// Load reads the YAML configuration from an agent directory and injects sane
// defaults for fields older files may be missing.
func Load(agentDir string) (AgentConfig, error) {
	path := filepath.Join(agentDir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return AgentConfig{}, fmt.Errorf("read config: %w", err)
	}
	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AgentConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// Save writes the config record back to the agent directory, refreshing the
// updated_at stamp.
func Save(agentDir string, cfg AgentConfig) error {
	cfg.UpdatedAt = time.Now().Format(time.RFC3339)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(agentDir, configFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Exists reports whether an agent directory already carries a config record.
func Exists(agentDir string) bool {
	_, err := os.Stat(filepath.Join(agentDir, configFileName))
	return err == nil
}

func (c *AgentConfig) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		if info, ok := LookupModel(c.Model); ok {
			c.MaxTokens = info.MaxTokens
		} else {
			c.MaxTokens = 32768
		}
	}
	if c.TopP == 0 {
		c.TopP = 1.0
	}
	if c.MaxHistorySize <= 0 {
		c.MaxHistorySize = 1000
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 10
	}
	if c.MaxInclusionBytes <= 0 {
		c.MaxInclusionBytes = 2 << 20
	}
	if c.RequestTimeoutSeconds <= 0 {
		if info, ok := LookupModel(c.Model); ok {
			c.RequestTimeoutSeconds = info.TimeoutSeconds
		} else {
			c.RequestTimeoutSeconds = 120
		}
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.CreatedAt == "" {
		c.CreatedAt = time.Now().Format(time.RFC3339)
	}
}

// Validate rejects out-of-range values before they reach core operations.
func (c AgentConfig) Validate() error {
	if !IsValidModel(c.Model) {
		return fmt.Errorf("unsupported model %q (supported: %s)", c.Model, strings.Join(ListModels(), ", "))
	}
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0 (got %g)", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1.0 {
		return fmt.Errorf("top_p must be between 0 and 1.0 (got %g)", c.TopP)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive (got %d)", c.MaxTokens)
	}
	if c.MaxHistorySize <= 0 {
		return fmt.Errorf("max_history_size must be positive (got %d)", c.MaxHistorySize)
	}
	if c.MaxBackups <= 0 {
		return fmt.Errorf("max_backups must be positive (got %d)", c.MaxBackups)
	}
	if c.RequestTimeoutSeconds > 600 {
		return fmt.Errorf("request_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	return nil
}

// RequestTimeout turns the integer value into a duration for HTTP clients.
func (c AgentConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
