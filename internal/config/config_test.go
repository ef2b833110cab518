package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*AgentConfig)
		expectError bool
		errorString string
	}{
		{
			name:        "default config passes",
			modifyFunc:  func(c *AgentConfig) {},
			expectError: false,
		},
		{
			name: "negative temperature fails",
			modifyFunc: func(c *AgentConfig) {
				c.Temperature = -0.5
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "temperature > 2.0 fails",
			modifyFunc: func(c *AgentConfig) {
				c.Temperature = 3.0
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "top_p > 1.0 fails",
			modifyFunc: func(c *AgentConfig) {
				c.TopP = 1.5
			},
			expectError: true,
			errorString: "top_p must be between",
		},
		{
			name: "unknown model fails",
			modifyFunc: func(c *AgentConfig) {
				c.Model = "gpt-99"
			},
			expectError: true,
			errorString: "unsupported model",
		},
		{
			name: "zero max_tokens fails",
			modifyFunc: func(c *AgentConfig) {
				c.MaxTokens = 0
			},
			expectError: true,
			errorString: "max_tokens must be positive",
		},
		{
			name: "zero history limit fails",
			modifyFunc: func(c *AgentConfig) {
				c.MaxHistorySize = 0
			},
			expectError: true,
			errorString: "max_history_size must be positive",
		},
		{
			name: "request timeout > 600 fails",
			modifyFunc: func(c *AgentConfig) {
				c.RequestTimeoutSeconds = 9999
			},
			expectError: true,
			errorString: "request_timeout_seconds cannot exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("gpt-4.1")
			tt.modifyFunc(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("expected error containing %q, got %q", tt.errorString, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error but got: %v", err)
			}
		})
	}
}

func TestDefaultSeedsFromRegistry(t *testing.T) {
	cfg := Default("gpt-4.1-nano")
	if cfg.Model != "gpt-4.1-nano" {
		t.Fatalf("expected model gpt-4.1-nano, got %q", cfg.Model)
	}
	if cfg.RequestTimeoutSeconds != 120 {
		t.Errorf("expected nano timeout 120s, got %d", cfg.RequestTimeoutSeconds)
	}
	if cfg.MaxTokens != 32768 {
		t.Errorf("expected max tokens 32768, got %d", cfg.MaxTokens)
	}
	if !cfg.Stream {
		t.Errorf("expected streaming enabled by default")
	}

	cfg = Default("no-such-model")
	if cfg.Model != DefaultModel {
		t.Errorf("expected fallback to %s for unknown model, got %q", DefaultModel, cfg.Model)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default("gpt-4.1-mini")
	cfg.Temperature = 0.3
	cfg.SystemPrompt = "You are concise."
	cfg.MaxHistorySize = 42

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !Exists(dir) {
		t.Fatalf("Exists returned false after Save")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Model != cfg.Model {
		t.Errorf("model mismatch: got %q want %q", loaded.Model, cfg.Model)
	}
	if loaded.Temperature != cfg.Temperature {
		t.Errorf("temperature mismatch: got %g want %g", loaded.Temperature, cfg.Temperature)
	}
	if loaded.SystemPrompt != cfg.SystemPrompt {
		t.Errorf("system prompt mismatch: got %q want %q", loaded.SystemPrompt, cfg.SystemPrompt)
	}
	if loaded.MaxHistorySize != 42 {
		t.Errorf("max history mismatch: got %d want 42", loaded.MaxHistorySize)
	}
	if loaded.UpdatedAt == "" {
		t.Errorf("expected updated_at to be stamped on save")
	}
}

func TestLoadFillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	sparse := "model: gpt-4.1\ntemperature: 0.7\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sparse), 0o644); err != nil {
		t.Fatalf("write sparse config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxHistorySize != 1000 {
		t.Errorf("expected default max_history_size 1000, got %d", cfg.MaxHistorySize)
	}
	if cfg.MaxBackups != 10 {
		t.Errorf("expected default max_backups 10, got %d", cfg.MaxBackups)
	}
	if cfg.MaxInclusionBytes != 2<<20 {
		t.Errorf("expected default inclusion limit 2MiB, got %d", cfg.MaxInclusionBytes)
	}
	if cfg.RequestTimeoutSeconds != 300 {
		t.Errorf("expected registry timeout 300 for gpt-4.1, got %d", cfg.RequestTimeoutSeconds)
	}
}

func TestModelRegistry(t *testing.T) {
	models := ListModels()
	if len(models) != 3 {
		t.Fatalf("expected 3 supported models, got %d", len(models))
	}
	for _, m := range models {
		info, ok := LookupModel(m)
		if !ok {
			t.Fatalf("LookupModel(%q) returned ok=false", m)
		}
		if info.TimeoutSeconds <= 0 || info.MaxTokens <= 0 {
			t.Errorf("model %q has invalid registry entry: %+v", m, info)
		}
	}
	if IsValidModel("gpt-3.5-turbo") {
		t.Errorf("gpt-3.5-turbo should not be valid")
	}
	if DisplayName("gpt-4.1-mini") != "GPT-4.1 Mini" {
		t.Errorf("unexpected display name: %q", DisplayName("gpt-4.1-mini"))
	}
	if DisplayName("custom") != "custom" {
		t.Errorf("unknown models should fall back to raw name")
	}
}
