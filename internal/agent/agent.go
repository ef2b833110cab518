// Package agent ties the per-agent pieces together: configuration, message
// store, file inclusion, the completion client, and export.
package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/config"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/export"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/history"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/include"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/llm"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/logging"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/usage"
)

// Agent is one profile bound to a model endpoint with its own conversation
// store and directory.
type Agent struct {
	id       string
	dir      string
	cfg      config.AgentConfig
	store    *history.Store
	client   llm.Client
	expander *include.Expander
	ledger   *usage.Ledger
	logger   *logging.StructuredLogger
	logClose io.Closer
}

// Options carries the collaborators an agent needs. Client is required for
// Send; Ledger is optional and skips usage accounting when nil. Logger
// defaults to the rotating per-agent file logger.
type Options struct {
	Client llm.Client
	Ledger *usage.Ledger
	Logger *log.Logger
}

// Create initializes a new agent profile: directory layout, default config
// seeded from the model registry, and an empty history store.
func Create(reg Registry, id, model string, opts Options) (*Agent, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if reg.Exists(id) {
		return nil, fmt.Errorf("agent %q already exists", id)
	}
	if model != "" && !config.IsValidModel(model) {
		return nil, fmt.Errorf("unsupported model %q", model)
	}

	dir := reg.AgentDir(id)
	if err := initLayout(dir); err != nil {
		return nil, err
	}
	cfg := config.Default(model)
	if err := config.Save(dir, cfg); err != nil {
		return nil, err
	}

	a, err := open(id, dir, cfg, opts, true)
	if err != nil {
		return nil, err
	}
	a.logger.Printf("agent created with model %s", cfg.Model)
	return a, nil
}

// Open loads an existing agent profile. It fails when the profile or its
// history record is missing; stores are never created implicitly here.
func Open(reg Registry, id string, opts Options) (*Agent, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if !reg.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	dir := reg.AgentDir(id)
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	return open(id, dir, cfg, opts, false)
}

func open(id, dir string, cfg config.AgentConfig, opts Options, initStore bool) (*Agent, error) {
	var logger *logging.StructuredLogger
	var logClose io.Closer
	if opts.Logger != nil {
		logger = logging.NewStructuredLogger(opts.Logger, "agent", logging.JSONMode()).WithAgent(id)
	} else {
		var err error
		logger, logClose, err = logging.NewAgentLogger(dir, id)
		if err != nil {
			return nil, err
		}
	}

	storeOpts := history.Options{MaxMessages: cfg.MaxHistorySize, MaxBackups: cfg.MaxBackups}
	var store *history.Store
	var err error
	if initStore {
		store, err = history.Init(dir, storeOpts, logger)
	} else {
		store, err = history.Open(dir, storeOpts, logger)
	}
	if err != nil {
		if logClose != nil {
			logClose.Close()
		}
		return nil, err
	}

	workDir, _ := os.Getwd()
	expander := include.New(
		[]string{workDir, filepath.Join(dir, uploadsDirName)},
		cfg.MaxInclusionBytes,
		logger,
	)

	return &Agent{
		id:       id,
		dir:      dir,
		cfg:      cfg,
		store:    store,
		client:   opts.Client,
		expander: expander,
		ledger:   opts.Ledger,
		logger:   logger,
		logClose: logClose,
	}, nil
}

// Close releases the agent's log handle.
func (a *Agent) Close() error {
	if a.logClose != nil {
		return a.logClose.Close()
	}
	return nil
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Dir returns the agent's directory.
func (a *Agent) Dir() string { return a.dir }

// Config returns a copy of the agent's configuration.
func (a *Agent) Config() config.AgentConfig { return a.cfg }

// Store exposes the agent's message store.
func (a *Agent) Store() *history.Store { return a.store }

// Send expands file-inclusion tokens in raw, requests a completion over the
// stored history plus the new user turn, and commits both turns to the store
// once the reply is complete. A failed or interrupted completion leaves the
// store unchanged. onChunk, when non-nil, receives streamed fragments as
// they arrive.
func (a *Agent) Send(ctx context.Context, raw string, onChunk func(string)) (history.Message, error) {
	if a.client == nil {
		return history.Message{}, fmt.Errorf("agent %s has no completion client", a.id)
	}
	expanded, err := a.expander.Expand(raw)
	if err != nil {
		a.logger.Printf("file inclusion failed, send aborted: %v", err)
		return history.Message{}, err
	}

	req := a.buildRequest(expanded)
	var reply string
	var tokens *llm.Usage
	if a.cfg.Stream {
		reply, err = a.streamCompletion(ctx, req, onChunk)
	} else {
		var resp llm.ChatResponse
		resp, err = a.client.Chat(ctx, req)
		if err == nil {
			reply = resp.Content
			tokens = resp.Usage
			if onChunk != nil {
				onChunk(reply)
			}
		}
	}
	if err != nil {
		a.logger.Printf("completion failed: %v", err)
		return history.Message{}, err
	}

	if _, err := a.store.Append(history.RoleUser, expanded); err != nil {
		return history.Message{}, err
	}
	assistant, err := a.store.Append(history.RoleAssistant, reply)
	if err != nil {
		return history.Message{}, err
	}
	a.recordUsage(expanded, reply, tokens)
	return assistant, nil
}

// streamCompletion assembles the full reply from the stream. Partial output
// from a broken stream is discarded, never returned.
func (a *Agent) streamCompletion(ctx context.Context, req llm.ChatRequest, onChunk func(string)) (string, error) {
	stream, err := a.client.ChatStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var assembled []byte
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return string(assembled), nil
		}
		if err != nil {
			return "", err
		}
		assembled = append(assembled, chunk.Content...)
		if onChunk != nil {
			onChunk(chunk.Content)
		}
	}
}

func (a *Agent) buildRequest(pendingUser string) llm.ChatRequest {
	msgs := a.store.Messages()
	wire := make([]llm.ChatMessage, 0, len(msgs)+2)
	if a.cfg.SystemPrompt != "" {
		wire = append(wire, llm.ChatMessage{Role: history.RoleSystem, Content: a.cfg.SystemPrompt})
	}
	for _, m := range msgs {
		wire = append(wire, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	wire = append(wire, llm.ChatMessage{Role: history.RoleUser, Content: pendingUser})
	return llm.ChatRequest{
		Model:            a.cfg.Model,
		Messages:         wire,
		Temperature:      a.cfg.Temperature,
		MaxTokens:        a.cfg.MaxTokens,
		TopP:             a.cfg.TopP,
		FrequencyPenalty: a.cfg.FrequencyPenalty,
		PresencePenalty:  a.cfg.PresencePenalty,
		Stream:           a.cfg.Stream,
	}
}

func (a *Agent) recordUsage(prompt, reply string, tokens *llm.Usage) {
	if a.ledger == nil {
		return
	}
	rec := usage.Record{AgentID: a.id, Model: a.cfg.Model}
	if tokens != nil {
		rec.PromptTokens = tokens.PromptTokens
		rec.CompletionTokens = tokens.CompletionTokens
		rec.TotalTokens = tokens.TotalTokens
	} else {
		rec.PromptTokens = history.EstimateTokens(prompt)
		rec.CompletionTokens = history.EstimateTokens(reply)
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}
	if err := a.ledger.Record(rec); err != nil {
		a.logger.Printf("usage accounting failed: %v", err)
	}
}

// Clear snapshots the current history and empties the store.
func (a *Agent) Clear() error {
	return a.store.Truncate(0)
}

// Search runs a case-insensitive substring search over the store.
func (a *Agent) Search(term string) ([]history.Message, error) {
	return a.store.Search(term)
}

// Stats aggregates over the current store.
func (a *Agent) Stats() history.Stats {
	return a.store.Stats()
}

// SwitchModel changes the agent's model, revalidating and persisting the
// configuration. The request timeout follows the new model's registry entry.
func (a *Agent) SwitchModel(model string) error {
	info, ok := config.LookupModel(model)
	if !ok {
		return fmt.Errorf("unsupported model %q", model)
	}
	a.cfg.Model = model
	a.cfg.RequestTimeoutSeconds = info.TimeoutSeconds
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(a.dir, a.cfg); err != nil {
		return err
	}
	a.logger.Printf("switched model to %s", model)
	return nil
}

// UpdateConfig applies a mutation to the configuration, validates it, and
// persists the result. The store's retention options follow the new values.
func (a *Agent) UpdateConfig(mutate func(*config.AgentConfig)) error {
	next := a.cfg
	mutate(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	if err := config.Save(a.dir, next); err != nil {
		return err
	}
	a.cfg = next
	a.store.SetOptions(history.Options{MaxMessages: next.MaxHistorySize, MaxBackups: next.MaxBackups})
	return nil
}

// ExportConversation renders the current store into a timestamped document
// under the agent's exports directory and returns its path.
func (a *Agent) ExportConversation(format export.Format) (string, error) {
	info, _ := config.LookupModel(a.cfg.Model)
	meta := export.Meta{
		AgentID:    a.id,
		Config:     a.cfg,
		Model:      info,
		ExportedAt: time.Now(),
	}
	data, err := export.Render(meta, a.store.Messages(), format)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(a.dir, exportsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create exports dir: %w", err)
	}
	name := fmt.Sprintf("conversation_%s%s", meta.ExportedAt.Format("20060102_150405"), format.Extension())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	a.logger.Printf("exported conversation: %s (%d bytes)", name, len(data))
	return path, nil
}

// ImportConversation replaces the store contents from a previously exported
// JSON document, snapshotting the current contents first.
func (a *Agent) ImportConversation(data []byte) error {
	_, messages, err := export.Reimport(data)
	if err != nil {
		return err
	}
	if a.store.Len() > 0 {
		if _, err := a.store.Snapshot(); err != nil {
			return err
		}
	}
	return a.store.Restore(messages)
}

// UploadsDir returns the directory searched for included files after the
// working directory.
func (a *Agent) UploadsDir() string {
	return filepath.Join(a.dir, uploadsDirName)
}
