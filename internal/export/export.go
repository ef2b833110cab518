// Package export renders a conversation into portable documents. Rendering
// is a pure mapping from agent metadata plus message sequence to bytes; it
// never touches the live store.
package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/config"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/history"
)

// Format selects the output document type.
type Format string

const (
	FormatJSON     Format = "json"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

const displayTimeLayout = "2006-01-02 15:04:05"

// Formats lists the supported formats in stable order.
func Formats() []Format {
	return []Format{FormatJSON, FormatText, FormatMarkdown, FormatHTML}
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatText, FormatMarkdown, FormatHTML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported export format %q (supported: json, txt, md, html)", s)
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Meta carries the agent-level context embedded in every export.
type Meta struct {
	AgentID    string
	Config     config.AgentConfig
	Model      config.ModelInfo
	ExportedAt time.Time
}

// Render produces the export document for one format. An empty message
// sequence renders a valid document with zeroed statistics.
func Render(meta Meta, messages []history.Message, format Format) ([]byte, error) {
	stats := calculateStats(messages)
	switch format {
	case FormatJSON:
		return renderJSON(meta, messages, stats)
	case FormatText:
		return renderText(meta, messages, stats), nil
	case FormatMarkdown:
		return renderMarkdown(meta, messages, stats), nil
	case FormatHTML:
		return renderHTML(meta, messages, stats), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// conversationStats is the aggregate block embedded in rendered documents.
type conversationStats struct {
	TotalMessages        int    `json:"total_messages"`
	UserMessages         int    `json:"user_messages"`
	AssistantMessages    int    `json:"assistant_messages"`
	TotalCharacters      int    `json:"total_characters"`
	AverageMessageLength int    `json:"average_message_length"`
	FirstMessage         string `json:"first_message,omitempty"`
	LastMessage          string `json:"last_message,omitempty"`
	ConversationDuration string `json:"conversation_duration,omitempty"`
}

func calculateStats(messages []history.Message) conversationStats {
	stats := conversationStats{}
	if len(messages) == 0 {
		return stats
	}
	for _, msg := range messages {
		stats.TotalMessages++
		switch msg.Role {
		case history.RoleUser:
			stats.UserMessages++
		case history.RoleAssistant:
			stats.AssistantMessages++
		}
		stats.TotalCharacters += len(msg.Content)
	}
	stats.AverageMessageLength = stats.TotalCharacters / stats.TotalMessages

	first := messages[0].Timestamp
	last := messages[len(messages)-1].Timestamp
	stats.FirstMessage = first.Format(displayTimeLayout)
	stats.LastMessage = last.Format(displayTimeLayout)
	stats.ConversationDuration = last.Sub(first).Truncate(time.Second).String()
	return stats
}

// jsonDocument is the full-fidelity export schema. Field order is fixed so
// repeated exports of the same store diff cleanly.
type jsonDocument struct {
	AgentID    string             `json:"agent_id"`
	ExportedAt string             `json:"exported_at"`
	Model      jsonModelSection   `json:"model"`
	Config     config.AgentConfig `json:"config"`
	Messages   []history.Message  `json:"messages"`
	Statistics conversationStats  `json:"statistics"`
	ExportInfo jsonExportInfo     `json:"export_info"`
}

type jsonModelSection struct {
	Name        string           `json:"name"`
	DisplayName string           `json:"display_name"`
	Info        config.ModelInfo `json:"info"`
}

type jsonExportInfo struct {
	Format        string `json:"format"`
	Version       string `json:"version"`
	TotalMessages int    `json:"total_messages"`
}

func renderJSON(meta Meta, messages []history.Message, stats conversationStats) ([]byte, error) {
	if messages == nil {
		messages = []history.Message{}
	}
	doc := jsonDocument{
		AgentID:    meta.AgentID,
		ExportedAt: meta.ExportedAt.Format(time.RFC3339),
		Model: jsonModelSection{
			Name:        meta.Config.Model,
			DisplayName: meta.Model.DisplayName,
			Info:        meta.Model,
		},
		Config:     meta.Config,
		Messages:   messages,
		Statistics: stats,
		ExportInfo: jsonExportInfo{
			Format:        "json",
			Version:       "1.0",
			TotalMessages: len(messages),
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Reimport reconstructs the message sequence from a previously exported JSON
// document, preserving role, body, sequence index, and timestamp.
func Reimport(data []byte) (string, []history.Message, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", nil, fmt.Errorf("parse export document: %w", err)
	}
	return doc.AgentID, doc.Messages, nil
}
