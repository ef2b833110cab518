package credentials

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	t.Setenv(EnvAPIKey, "")
	t.Setenv("GPTAGENT_CREDENTIALS_PATH", "")
	return NewManager(t.TempDir())
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	m := newTestManager(t)
	secrets, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(secrets.Keys) != 0 || secrets.DefaultKey != "" {
		t.Errorf("expected empty secrets, got %+v", secrets)
	}
}

func TestSetAndResolveAPIKey(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetAPIKey("gpt-4.1", "sk-first"); err != nil {
		t.Fatalf("SetAPIKey failed: %v", err)
	}
	if err := m.SetAPIKey("gpt-4.1-mini", "sk-mini"); err != nil {
		t.Fatalf("SetAPIKey failed: %v", err)
	}

	key, err := m.APIKey("gpt-4.1-mini")
	if err != nil {
		t.Fatalf("APIKey failed: %v", err)
	}
	if key != "sk-mini" {
		t.Errorf("model-specific key = %q", key)
	}

	// Unconfigured model falls back to the default key.
	key, err = m.APIKey("gpt-4.1-nano")
	if err != nil {
		t.Fatalf("APIKey failed: %v", err)
	}
	if key != "sk-first" {
		t.Errorf("fallback key = %q, want first stored key", key)
	}
}

func TestEnvironmentKeyWins(t *testing.T) {
	m := newTestManager(t)
	if err := m.SetAPIKey("gpt-4.1", "sk-stored"); err != nil {
		t.Fatalf("SetAPIKey failed: %v", err)
	}
	t.Setenv(EnvAPIKey, "sk-env")

	key, err := m.APIKey("gpt-4.1")
	if err != nil {
		t.Fatalf("APIKey failed: %v", err)
	}
	if key != "sk-env" {
		t.Errorf("key = %q, environment must take precedence", key)
	}
}

func TestSecretsFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix permissions")
	}
	m := newTestManager(t)
	if err := m.SetAPIKey("gpt-4.1", "sk-secret"); err != nil {
		t.Fatalf("SetAPIKey failed: %v", err)
	}
	info, err := os.Stat(m.Path())
	if err != nil {
		t.Fatalf("stat secrets: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("secrets file mode = %o, want 600", perm)
	}
}

func TestCredentialsPathOverride(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "alt-secrets.yaml")
	t.Setenv("GPTAGENT_CREDENTIALS_PATH", custom)
	m := NewManager(t.TempDir())
	if m.Path() != custom {
		t.Errorf("path = %q, want %q", m.Path(), custom)
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"sk-proj-abcdef123456", "sk-p...56"},
		{"short", "***"},
		{"", "***"},
	}
	for _, tt := range tests {
		if got := Mask(tt.key); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
