package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/config"
)

// ErrAgentNotFound is returned by lookups against an id with no profile.
var ErrAgentNotFound = errors.New("agent not found")

// Subdirectories inside each agent directory.
const (
	backupsDirName = "backups"
	logsDirName    = "logs"
	exportsDirName = "exports"
	uploadsDirName = "uploads"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateID rejects agent identifiers that are not filesystem-safe.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("agent id must not be empty")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("agent id %q may only contain letters, digits, hyphens, and underscores", id)
	}
	return nil
}

// Registry enumerates and manages agent profiles. All lookups go through
// this interface rather than ad hoc directory scans.
type Registry interface {
	List() ([]string, error)
	Exists(id string) bool
	Delete(id string) error
	AgentDir(id string) string
	Root() string
}

// DirRegistry is the directory-backed Registry: one subdirectory per agent
// under a common root, identified by the presence of a config record.
type DirRegistry struct {
	root string
}

// NewRegistry creates a registry rooted at the given directory.
func NewRegistry(root string) *DirRegistry {
	return &DirRegistry{root: root}
}

// Root returns the agents root directory.
func (r *DirRegistry) Root() string {
	return r.root
}

// AgentDir returns the directory owned by one agent.
func (r *DirRegistry) AgentDir(id string) string {
	return filepath.Join(r.root, id)
}

// List returns the ids of all existing agents in sorted order.
func (r *DirRegistry) List() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read agents root: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || !idPattern.MatchString(entry.Name()) {
			continue
		}
		if config.Exists(filepath.Join(r.root, entry.Name())) {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Exists reports whether an agent profile is present.
func (r *DirRegistry) Exists(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	return config.Exists(r.AgentDir(id))
}

// Delete removes an agent and all data it owns: config, history, backups,
// logs, exports, and uploads.
func (r *DirRegistry) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if !r.Exists(id) {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	if err := os.RemoveAll(r.AgentDir(id)); err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	return nil
}

// initLayout creates the agent directory skeleton.
func initLayout(agentDir string) error {
	for _, sub := range []string{"", backupsDirName, logsDirName, exportsDirName, uploadsDirName} {
		if err := os.MkdirAll(filepath.Join(agentDir, sub), 0o755); err != nil {
			return fmt.Errorf("create agent layout: %w", err)
		}
	}
	return nil
}
