package export

import (
	"fmt"
	"strings"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/history"
)

func renderMarkdown(meta Meta, messages []history.Message, stats conversationStats) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Conversation\n\n", meta.Model.DisplayName)
	fmt.Fprintf(&b, "**Agent ID:** `%s`  \n", meta.AgentID)
	fmt.Fprintf(&b, "**Model:** `%s`  \n", meta.Config.Model)
	fmt.Fprintf(&b, "**Export Date:** %s  \n", meta.ExportedAt.Format(displayTimeLayout))
	fmt.Fprintf(&b, "**Total Messages:** %d  \n\n", stats.TotalMessages)

	b.WriteString("## Model Information\n\n")
	fmt.Fprintf(&b, "- **Name:** %s\n", meta.Model.Name)
	fmt.Fprintf(&b, "- **Description:** %s\n", meta.Model.Description)
	fmt.Fprintf(&b, "- **Timeout:** %ds\n", meta.Model.TimeoutSeconds)
	fmt.Fprintf(&b, "- **Max Tokens:** %d\n", meta.Model.MaxTokens)
	fmt.Fprintf(&b, "- **Cost Tier:** %s\n\n", titleCase(meta.Model.CostTier))

	b.WriteString("## Configuration\n\n")
	fmt.Fprintf(&b, "- **Model:** `%s`\n", meta.Config.Model)
	fmt.Fprintf(&b, "- **Temperature:** `%g`\n", meta.Config.Temperature)
	fmt.Fprintf(&b, "- **Max Tokens:** `%d`\n", meta.Config.MaxTokens)
	fmt.Fprintf(&b, "- **Top P:** `%g`\n", meta.Config.TopP)
	fmt.Fprintf(&b, "- **Stream:** `%t`\n", meta.Config.Stream)
	if meta.Config.SystemPrompt != "" {
		fmt.Fprintf(&b, "- **System Prompt:** `%s`\n", meta.Config.SystemPrompt)
	}
	b.WriteString("\n")

	b.WriteString("## Statistics\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Total Messages | %d |\n", stats.TotalMessages)
	fmt.Fprintf(&b, "| User Messages | %d |\n", stats.UserMessages)
	fmt.Fprintf(&b, "| Assistant Messages | %d |\n", stats.AssistantMessages)
	fmt.Fprintf(&b, "| Total Characters | %d |\n", stats.TotalCharacters)
	fmt.Fprintf(&b, "| Average Message Length | %d |\n", stats.AverageMessageLength)
	if stats.ConversationDuration != "" {
		fmt.Fprintf(&b, "| Conversation Duration | %s |\n", stats.ConversationDuration)
	}
	b.WriteString("\n")

	b.WriteString("## Conversation\n\n")
	for i, msg := range messages {
		fmt.Fprintf(&b, "### %s - Message %d\n", roleLabel(msg.Role), i+1)
		fmt.Fprintf(&b, "*%s*\n\n", msg.Timestamp.Format(displayTimeLayout))
		b.WriteString(fenceCodeContent(msg.Content) + "\n\n")
		b.WriteString("---\n\n")
	}
	return []byte(b.String())
}

func roleLabel(role string) string {
	switch role {
	case history.RoleUser:
		return "User"
	case history.RoleAssistant:
		return "Assistant"
	default:
		return titleCase(role)
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// fenceCodeContent wraps runs of code-looking lines in fenced blocks.
// Content that already carries its own fences passes through untouched.
// The line classification is fixed so identical input always yields
// identical output.
func fenceCodeContent(content string) string {
	if strings.Contains(content, "```") {
		return content
	}

	lines := strings.Split(content, "\n")
	var out []string
	inBlock := false
	for _, line := range lines {
		switch {
		case looksLikeCode(line):
			if !inBlock {
				out = append(out, "```")
				inBlock = true
			}
		case inBlock && strings.TrimSpace(line) == "":
			// blank lines stay inside an open block
		case inBlock && !strings.ContainsAny(line, "(){}[];"):
			out = append(out, "```")
			inBlock = false
		}
		out = append(out, line)
	}
	if inBlock {
		out = append(out, "```")
	}
	return strings.Join(out, "\n")
}

func looksLikeCode(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"def ", "class ", "import ", "from ", "func ", "package ", ">", "#", "//", "--"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	if strings.Contains(line, "=") {
		for _, kw := range []string{"function", "const", "let", "var"} {
			if strings.Contains(line, kw) {
				return true
			}
		}
	}
	return false
}
