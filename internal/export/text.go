package export

import (
	"fmt"
	"strings"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/history"
)

func renderText(meta Meta, messages []history.Message, stats conversationStats) []byte {
	var b strings.Builder
	rule := strings.Repeat("=", 50)
	sub := strings.Repeat("-", 20)

	b.WriteString("Conversation Export\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "Agent ID: %s\n", meta.AgentID)
	fmt.Fprintf(&b, "Model: %s (%s)\n", meta.Config.Model, meta.Model.DisplayName)
	fmt.Fprintf(&b, "Export Date: %s\n", meta.ExportedAt.Format(displayTimeLayout))
	fmt.Fprintf(&b, "Total Messages: %d\n", stats.TotalMessages)
	if stats.ConversationDuration != "" {
		fmt.Fprintf(&b, "Conversation Duration: %s\n", stats.ConversationDuration)
	}
	b.WriteString("\n" + rule + "\n\n")

	b.WriteString("CONFIGURATION:\n")
	b.WriteString(sub + "\n")
	fmt.Fprintf(&b, "Model: %s\n", meta.Config.Model)
	fmt.Fprintf(&b, "Temperature: %g\n", meta.Config.Temperature)
	fmt.Fprintf(&b, "Max Tokens: %d\n", meta.Config.MaxTokens)
	fmt.Fprintf(&b, "Top P: %g\n", meta.Config.TopP)
	fmt.Fprintf(&b, "Stream: %t\n", meta.Config.Stream)
	if meta.Config.SystemPrompt != "" {
		fmt.Fprintf(&b, "System Prompt: %s\n", meta.Config.SystemPrompt)
	}
	b.WriteString("\n")

	b.WriteString("STATISTICS:\n")
	b.WriteString(sub + "\n")
	fmt.Fprintf(&b, "Total Messages: %d\n", stats.TotalMessages)
	fmt.Fprintf(&b, "User Messages: %d\n", stats.UserMessages)
	fmt.Fprintf(&b, "Assistant Messages: %d\n", stats.AssistantMessages)
	fmt.Fprintf(&b, "Total Characters: %d\n", stats.TotalCharacters)
	fmt.Fprintf(&b, "Average Message Length: %d\n", stats.AverageMessageLength)
	if stats.FirstMessage != "" {
		fmt.Fprintf(&b, "First Message: %s\n", stats.FirstMessage)
		fmt.Fprintf(&b, "Last Message: %s\n", stats.LastMessage)
		fmt.Fprintf(&b, "Conversation Duration: %s\n", stats.ConversationDuration)
	}
	b.WriteString("\n" + rule + "\n\n")

	b.WriteString("CONVERSATION:\n")
	b.WriteString(sub + "\n\n")
	for i, msg := range messages {
		fmt.Fprintf(&b, "[%03d] [%s] %s:\n", i+1, msg.Timestamp.Format(displayTimeLayout), strings.ToUpper(msg.Role))
		b.WriteString(strings.Repeat("-", 40) + "\n")
		b.WriteString(msg.Content + "\n\n")
	}
	return []byte(b.String())
}
