package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	backupDirName    = "backups"
	backupNamePrefix = "history_"
	backupTimeLayout = "20060102_150405"
)

// Snapshot writes an immutable copy of the store's full current contents
// into the agent's backups directory and prunes the oldest snapshots beyond
// the rolling limit. It returns the snapshot path.
//
// Snapshot names carry the triggering timestamp; same-second collisions get
// a zero-padded creation-order suffix so plain name ordering matches
// creation order.
func (s *Store) Snapshot() (string, error) {
	dir := filepath.Join(s.dir, backupDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	base := backupNamePrefix + time.Now().Format(backupTimeLayout)
	path := filepath.Join(dir, base+".json")
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%02d.json", base, n))
	}

	payload := persistedHistory{
		Messages:  s.messages,
		NextSeq:   s.nextSeq,
		UpdatedAt: time.Now(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("replace snapshot: %w", err)
	}
	s.logger.Printf("backup snapshot written: %s (%d messages)", filepath.Base(path), len(s.messages))

	if err := s.pruneBackups(dir); err != nil {
		return "", err
	}
	return path, nil
}

// ListBackups returns the snapshot paths for this store, oldest first.
func (s *Store) ListBackups() ([]string, error) {
	dir := filepath.Join(s.dir, backupDirName)
	names, err := listBackupNames(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// LoadBackup reads the message contents of one snapshot file.
func LoadBackup(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var persisted persistedHistory
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return persisted.Messages, nil
}

func (s *Store) pruneBackups(dir string) error {
	names, err := listBackupNames(dir)
	if err != nil {
		return err
	}
	for len(names) > s.opts.MaxBackups {
		oldest := names[0]
		if err := os.Remove(filepath.Join(dir, oldest)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune snapshot %s: %w", oldest, err)
		}
		s.logger.Printf("pruned oldest backup snapshot: %s", oldest)
		names = names[1:]
	}
	return nil
}

// listBackupNames returns snapshot file names sorted oldest first. The name
// format sorts lexicographically in timestamp-then-creation order.
func listBackupNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupNamePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
