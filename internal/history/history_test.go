package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Init(t.TempDir(), opts, nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s
}

func TestAppendAssignsContiguousSequence(t *testing.T) {
	s := newTestStore(t, Options{})

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msg, err := s.Append(role, fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		if msg.Seq != i {
			t.Errorf("message %d got seq %d", i, msg.Seq)
		}
		if msg.TokenEstimate <= 0 {
			t.Errorf("message %d has no token estimate", i)
		}
	}

	msgs := s.Messages()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Seq != msgs[i-1].Seq+1 {
			t.Errorf("sequence gap between %d and %d", msgs[i-1].Seq, msgs[i].Seq)
		}
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("timestamp regressed at seq %d", msgs[i].Seq)
		}
	}
}

func TestAppendValidation(t *testing.T) {
	s := newTestStore(t, Options{})

	tests := []struct {
		name    string
		role    string
		content string
	}{
		{"unknown role", "moderator", "hello"},
		{"empty role", "", "hello"},
		{"empty content", RoleUser, ""},
		{"whitespace content", RoleUser, "   \n\t "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Append(tt.role, tt.content)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if s.Len() != 0 {
		t.Errorf("rejected appends must not mutate the store, got %d messages", s.Len())
	}
}

func TestAppendPersistsSynchronously(t *testing.T) {
	dir := t.TempDir()
	s, err := Init(dir, Options{}, nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := s.Append(RoleUser, "durable"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// A fresh Open must already see the message.
	reopened, err := Open(dir, Options{}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	msgs := reopened.Messages()
	if len(msgs) != 1 || msgs[0].Content != "durable" {
		t.Fatalf("reopened store missing appended message: %+v", msgs)
	}
}

func TestOpenMissingStore(t *testing.T) {
	_, err := Open(t.TempDir(), Options{}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRetentionLimitSnapshotsThenTrims(t *testing.T) {
	s := newTestStore(t, Options{MaxMessages: 3})

	for i := 0; i < 5; i++ {
		if _, err := s.Append(RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if s.Len() != 3 {
		t.Fatalf("expected retention to hold 3 messages, got %d", s.Len())
	}
	msgs := s.Messages()
	if msgs[0].Seq != 2 || msgs[2].Seq != 4 {
		t.Errorf("expected seqs 2..4 after trims, got %d..%d", msgs[0].Seq, msgs[2].Seq)
	}

	backups, err := s.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 snapshots (one per overflow), got %d", len(backups))
	}

	// The latest snapshot must hold the exact pre-trim store: 4 messages
	// ending with the one whose append triggered the trim.
	snap, err := LoadBackup(backups[len(backups)-1])
	if err != nil {
		t.Fatalf("LoadBackup failed: %v", err)
	}
	if len(snap) != 4 {
		t.Fatalf("expected pre-trim snapshot of 4 messages, got %d", len(snap))
	}
	if snap[len(snap)-1].Content != "m4" {
		t.Errorf("snapshot missing triggering message: %+v", snap[len(snap)-1])
	}
}

func TestTruncate(t *testing.T) {
	s := newTestStore(t, Options{})
	for i := 0; i < 4; i++ {
		if _, err := s.Append(RoleUser, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if err := s.Truncate(2); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].Content != "m2" {
		t.Fatalf("expected last 2 messages kept, got %+v", msgs)
	}

	// Sequence allocation resumes past the dropped range.
	msg, err := s.Append(RoleUser, "after")
	if err != nil {
		t.Fatalf("Append after truncate failed: %v", err)
	}
	if msg.Seq != 4 {
		t.Errorf("expected seq 4 after truncate, got %d", msg.Seq)
	}
}

func TestTruncateToZeroClearsButSnapshots(t *testing.T) {
	s := newTestStore(t, Options{})
	if _, err := s.Append(RoleUser, "only"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Truncate(0); err != nil {
		t.Fatalf("Truncate(0) failed: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected cleared store, got %d messages", s.Len())
	}
	backups, err := s.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected snapshot before clear, got %d", len(backups))
	}
	snap, err := LoadBackup(backups[0])
	if err != nil {
		t.Fatalf("LoadBackup failed: %v", err)
	}
	if len(snap) != 1 || snap[0].Content != "only" {
		t.Errorf("snapshot does not hold pre-clear contents: %+v", snap)
	}
}

func TestTruncateIdempotentStillSnapshots(t *testing.T) {
	s := newTestStore(t, Options{})
	if _, err := s.Append(RoleUser, "keep me"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Truncate(10); err != nil {
			t.Fatalf("Truncate failed: %v", err)
		}
	}
	if s.Len() != 1 {
		t.Fatalf("store should be untouched, got %d messages", s.Len())
	}
	backups, err := s.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(backups) != 2 {
		t.Errorf("each truncate must snapshot, got %d snapshots", len(backups))
	}
}

func TestBackupRollingLimit(t *testing.T) {
	s := newTestStore(t, Options{MaxBackups: 3})
	if _, err := s.Append(RoleUser, "base"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	var first string
	for i := 0; i < 5; i++ {
		path, err := s.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot %d failed: %v", i, err)
		}
		if i == 0 {
			first = path
		}
	}

	backups, err := s.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected rolling limit of 3 snapshots, got %d", len(backups))
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("oldest snapshot should have been pruned: %s", first)
	}
}

func TestRestoreRejectsUnorderedSequences(t *testing.T) {
	s := newTestStore(t, Options{})
	msgs := []Message{
		{Role: RoleUser, Content: "a", Seq: 3},
		{Role: RoleAssistant, Content: "b", Seq: 1},
	}
	var verr *ValidationError
	if err := s.Restore(msgs); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unordered restore, got %v", err)
	}
}

func TestPersistedFileIsWellFormed(t *testing.T) {
	dir := t.TempDir()
	s, err := Init(dir, Options{}, nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, err := s.Append(RoleSystem, "prompt"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "history.json"))
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	if !strings.Contains(string(data), `"next_seq": 1`) {
		t.Errorf("persisted file missing next_seq: %s", data)
	}
}
