package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Permitted message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const historyFileName = "history.json"

// ErrNotFound is returned when an agent directory carries no history record.
var ErrNotFound = errors.New("history not found")

// Logger is the subset of the standard logger the store needs.
type Logger interface {
	Printf(format string, args ...interface{})
}

// ValidationError reports input that fails shape checks before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Message is one immutable conversation turn. Sequence indices are assigned
// at append time, strictly increasing, and never reused.
type Message struct {
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	Seq           int       `json:"seq"`
	TokenEstimate int       `json:"token_estimate,omitempty"`
}

// Options bound the store's retention and backup behavior.
type Options struct {
	MaxMessages int // retention limit enforced after every append
	MaxBackups  int // rolling snapshot count
}

func (o *Options) applyDefaults() {
	if o.MaxMessages <= 0 {
		o.MaxMessages = 1000
	}
	if o.MaxBackups <= 0 {
		o.MaxBackups = 10
	}
}

// Store is the ordered, append-only message log for one agent, persisted as
// history.json in the agent directory with atomic replace-on-write.
type Store struct {
	dir      string
	messages []Message
	nextSeq  int
	opts     Options
	logger   Logger
}

// persistedHistory mirrors the JSON schema stored on disk. The next sequence
// index is carried so truncation never leads to index reuse after a reload.
type persistedHistory struct {
	Messages  []Message `json:"messages"`
	NextSeq   int       `json:"next_seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Init creates an empty store for an agent directory and persists it. An
// empty store only ever comes from explicit initialization.
func Init(dir string, opts Options, logger Logger) (*Store, error) {
	opts.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	s := &Store{dir: dir, opts: opts, logger: logger}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads the persisted store for an agent directory. It fails with
// ErrNotFound when no history record exists; stores are never created
// implicitly.
func Open(dir string, opts Options, logger Logger) (*Store, error) {
	opts.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	path := filepath.Join(dir, historyFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	var persisted persistedHistory
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	s := &Store{
		dir:      dir,
		messages: persisted.Messages,
		nextSeq:  persisted.NextSeq,
		opts:     opts,
		logger:   logger,
	}
	if n := len(s.messages); n > 0 && s.messages[n-1].Seq >= s.nextSeq {
		s.nextSeq = s.messages[n-1].Seq + 1
	}
	return s, nil
}

// Append validates and stores a new message, persisting synchronously before
// returning so a crash after a successful append never loses the turn.
func (s *Store) Append(role, content string) (Message, error) {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return Message{}, &ValidationError{Field: "role", Reason: fmt.Sprintf("%q is not one of system, user, assistant", role)}
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	msg := Message{
		Role:          role,
		Content:       content,
		Timestamp:     time.Now(),
		Seq:           s.nextSeq,
		TokenEstimate: EstimateTokens(content),
	}
	s.messages = append(s.messages, msg)
	s.nextSeq++

	if err := s.enforceRetentionLimit(); err != nil {
		return Message{}, err
	}
	if err := s.persist(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Truncate snapshots the full current contents, then retains only the most
// recent n messages. n=0 clears the store. The snapshot is taken even when
// the store already holds n or fewer messages, keeping the backup cadence
// observable.
func (s *Store) Truncate(keepLastN int) error {
	if keepLastN < 0 {
		return &ValidationError{Field: "keep_last_n", Reason: "must not be negative"}
	}
	if _, err := s.Snapshot(); err != nil {
		return err
	}
	if keepLastN < len(s.messages) {
		dropped := len(s.messages) - keepLastN
		s.messages = append([]Message(nil), s.messages[dropped:]...)
		s.logger.Printf("truncated history: dropped %d messages, kept %d", dropped, keepLastN)
	}
	return s.persist()
}

// enforceRetentionLimit trims oldest-first down to the configured maximum,
// taking a snapshot of the pre-trim contents first.
func (s *Store) enforceRetentionLimit() error {
	if len(s.messages) <= s.opts.MaxMessages {
		return nil
	}
	if _, err := s.Snapshot(); err != nil {
		return err
	}
	dropped := len(s.messages) - s.opts.MaxMessages
	s.messages = append([]Message(nil), s.messages[dropped:]...)
	s.logger.Printf("retention limit reached: dropped %d oldest messages", dropped)
	return nil
}

// SetOptions replaces the retention and backup bounds. The new limits take
// effect on the next mutation.
func (s *Store) SetOptions(opts Options) {
	opts.applyDefaults()
	s.opts = opts
}

// Messages exposes a copy of the log in conversation order.
func (s *Store) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	return len(s.messages)
}

// Dir returns the agent directory the store persists into.
func (s *Store) Dir() string {
	return s.dir
}

// Restore replaces the store contents with an externally reconstructed
// message sequence, e.g. from a re-imported JSON export. Sequence allocation
// resumes past the highest restored index.
func (s *Store) Restore(messages []Message) error {
	for i := 1; i < len(messages); i++ {
		if messages[i].Seq <= messages[i-1].Seq {
			return &ValidationError{Field: "messages", Reason: "sequence indices must be strictly increasing"}
		}
	}
	s.messages = append([]Message(nil), messages...)
	if n := len(messages); n > 0 && messages[n-1].Seq >= s.nextSeq {
		s.nextSeq = messages[n-1].Seq + 1
	}
	return s.persist()
}

func (s *Store) persist() error {
	payload := persistedHistory{
		Messages:  s.messages,
		NextSeq:   s.nextSeq,
		UpdatedAt: time.Now(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	path := filepath.Join(s.dir, historyFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp history: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

// EstimateTokens approximates the token cost of a text using a conservative
// 3:1 character-to-token ratio.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 2) / 3
}
