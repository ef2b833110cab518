// Package credentials handles API key storage and retrieval. Keys never
// appear unmasked in output or logs.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey always wins over stored keys when set.
const EnvAPIKey = "OPENAI_API_KEY"

// Secrets stores per-model API keys plus a default fallback.
type Secrets struct {
	DefaultKey string            `yaml:"default_key,omitempty"`
	Keys       map[string]string `yaml:"keys,omitempty"`
}

// Manager handles credential storage. The secrets file lives alongside the
// agents root and is written user-only.
type Manager struct {
	path string
}

// NewManager creates a credential manager. GPTAGENT_CREDENTIALS_PATH
// overrides the default of <agentsRoot>/secrets.yaml.
func NewManager(agentsRoot string) *Manager {
	path := os.Getenv("GPTAGENT_CREDENTIALS_PATH")
	if path == "" {
		path = filepath.Join(agentsRoot, "secrets.yaml")
	}
	return &Manager{path: path}
}

// Path returns the secrets file location.
func (m *Manager) Path() string {
	return m.path
}

// Exists reports whether the secrets file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Load reads the secrets file. A missing file yields an empty record.
func (m *Manager) Load() (*Secrets, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Secrets{Keys: make(map[string]string)}, nil
		}
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	var secrets Secrets
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parse secrets: %w", err)
	}
	if secrets.Keys == nil {
		secrets.Keys = make(map[string]string)
	}
	return &secrets, nil
}

// Save writes the secrets file with user-only permissions.
func (m *Manager) Save(secrets *Secrets) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create secrets directory: %w", err)
	}
	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}

// APIKey resolves the key for a model: environment first, then the
// model-specific stored key, then the default stored key. Empty means
// unconfigured.
func (m *Manager) APIKey(model string) (string, error) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		return key, nil
	}
	secrets, err := m.Load()
	if err != nil {
		return "", err
	}
	if key := secrets.Keys[model]; key != "" {
		return key, nil
	}
	return secrets.DefaultKey, nil
}

// SetAPIKey stores a key for one model and persists the file.
func (m *Manager) SetAPIKey(model, key string) error {
	secrets, err := m.Load()
	if err != nil {
		return err
	}
	secrets.Keys[model] = key
	if secrets.DefaultKey == "" {
		secrets.DefaultKey = key
	}
	return m.Save(secrets)
}

// PromptAPIKey reads a key from the terminal without echoing it. Falls back
// to a plain line read when stdin is not a terminal.
func PromptAPIKey(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		key, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return string(key), nil
	}
	var key string
	if _, err := fmt.Scanln(&key); err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	return key, nil
}

// Mask renders a key for display, keeping only a short prefix and suffix.
func Mask(key string) string {
	if len(key) <= 6 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-2:]
}
