package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/history"
)

// renderHTML builds a self-contained document: all styling is inline and no
// external resources are referenced. Message bodies are escaped before any
// markup is added around them.
func renderHTML(meta Meta, messages []history.Message, stats conversationStats) []byte {
	var b strings.Builder

	title := html.EscapeString(fmt.Sprintf("%s Conversation - %s", meta.Model.DisplayName, meta.AgentID))
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<style>%s</style>
</head>
<body>
<div class="container">
`, title, htmlStyles)

	b.WriteString(`<div class="header"><div class="header-content">` + "\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(meta.Model.DisplayName))
	b.WriteString(`<p class="header-subtitle">Conversation Export</p>` + "\n")
	b.WriteString(`<div class="header-info">` + "\n")
	fmt.Fprintf(&b, `<div class="header-info-item"><strong>Agent ID:</strong> %s</div>`+"\n", html.EscapeString(meta.AgentID))
	fmt.Fprintf(&b, `<div class="header-info-item"><strong>Model:</strong> %s</div>`+"\n", html.EscapeString(meta.Config.Model))
	fmt.Fprintf(&b, `<div class="header-info-item"><strong>Export Date:</strong> %s</div>`+"\n", meta.ExportedAt.Format(displayTimeLayout))
	fmt.Fprintf(&b, `<div class="header-info-item"><strong>Temperature:</strong> %g</div>`+"\n", meta.Config.Temperature)
	b.WriteString("</div></div></div>\n")

	b.WriteString(`<div class="model-info"><h2>Model Information</h2><div class="info-grid">` + "\n")
	writeInfoCard(&b, "Model Name", meta.Model.Name)
	writeInfoCard(&b, "Description", meta.Model.Description)
	writeInfoCard(&b, "Timeout", fmt.Sprintf("%ds", meta.Model.TimeoutSeconds))
	writeInfoCard(&b, "Cost Tier", titleCase(meta.Model.CostTier))
	b.WriteString("</div></div>\n")

	b.WriteString(`<div class="stats"><h2>Conversation Statistics</h2><div class="stats-grid">` + "\n")
	writeStatCard(&b, fmt.Sprintf("%d", stats.TotalMessages), "Total Messages")
	writeStatCard(&b, fmt.Sprintf("%d", stats.UserMessages), "User Messages")
	writeStatCard(&b, fmt.Sprintf("%d", stats.AssistantMessages), "AI Messages")
	writeStatCard(&b, fmt.Sprintf("%d", stats.TotalCharacters), "Total Characters")
	writeStatCard(&b, fmt.Sprintf("%d", stats.AverageMessageLength), "Avg Length")
	duration := stats.ConversationDuration
	if duration == "" {
		duration = "N/A"
	}
	writeStatCard(&b, html.EscapeString(duration), "Duration")
	b.WriteString("</div></div>\n")

	b.WriteString(`<div class="messages"><h2>Conversation</h2>` + "\n")
	for _, msg := range messages {
		avatar := "AI"
		display := "Assistant"
		if msg.Role == history.RoleUser {
			avatar = "U"
			display = "User"
		} else if msg.Role == history.RoleSystem {
			avatar = "S"
			display = "System"
		}
		fmt.Fprintf(&b, `<div class="message %s">`+"\n", html.EscapeString(msg.Role))
		fmt.Fprintf(&b, `<div class="message-avatar">%s</div>`+"\n", avatar)
		b.WriteString(`<div class="message-content"><div class="message-bubble">` + "\n")
		fmt.Fprintf(&b, `<div class="message-header"><span class="message-role">%s</span><span class="message-time">%s</span></div>`+"\n",
			display, msg.Timestamp.Format(displayTimeLayout))
		fmt.Fprintf(&b, `<div class="message-text">%s</div>`+"\n", formatHTMLBody(msg.Content))
		b.WriteString("</div></div></div>\n")
	}
	b.WriteString("</div>\n")

	fmt.Fprintf(&b, `<div class="footer">
<p>Agent ID: %s &bull; %s</p>
<div class="footer-links"><span>Model: %s</span> &bull; <span>Messages: %d</span> &bull; <span>Export Format: HTML</span></div>
</div>
</div>
</body>
</html>
`, html.EscapeString(meta.AgentID), meta.ExportedAt.Format(displayTimeLayout), html.EscapeString(meta.Model.DisplayName), len(messages))

	return []byte(b.String())
}

func writeInfoCard(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, `<div class="info-card"><h3>%s</h3><div class="info-card-value">%s</div></div>`+"\n",
		html.EscapeString(label), html.EscapeString(value))
}

func writeStatCard(b *strings.Builder, value, label string) {
	fmt.Fprintf(b, `<div class="stat-card"><div class="stat-value">%s</div><div class="stat-label">%s</div></div>`+"\n",
		value, html.EscapeString(label))
}

// formatHTMLBody escapes the body, then renders fenced code spans as code
// blocks and newlines as breaks.
func formatHTMLBody(content string) string {
	escaped := html.EscapeString(content)
	if !strings.Contains(escaped, "```") {
		return strings.ReplaceAll(escaped, "\n", "<br>")
	}

	var out strings.Builder
	parts := strings.Split(escaped, "```")
	for i, part := range parts {
		if i%2 == 1 {
			out.WriteString(`<div class="code-block">` + strings.TrimSpace(part) + `</div>`)
		} else {
			out.WriteString(strings.ReplaceAll(part, "\n", "<br>"))
		}
	}
	return out.String()
}

const htmlStyles = `
:root {
  --primary-color: #2563eb;
  --secondary-color: #f1f5f9;
  --text-color: #1e293b;
  --text-secondary: #64748b;
  --border-color: #e2e8f0;
  --code-bg: #f8fafc;
  --shadow: 0 4px 6px -1px rgba(0,0,0,0.1), 0 2px 4px -1px rgba(0,0,0,0.06);
}
* { margin: 0; padding: 0; box-sizing: border-box; }
body {
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', 'Roboto', sans-serif;
  line-height: 1.6;
  color: var(--text-color);
  background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
  min-height: 100vh;
  padding: 1rem;
}
.container { max-width: 1200px; margin: 0 auto; background: white; border-radius: 1rem; overflow: hidden; }
.header { background: var(--primary-color); color: white; padding: 2rem; text-align: center; }
.header h1 { font-size: 2.5rem; margin-bottom: 0.5rem; }
.header-subtitle { font-size: 1.1rem; opacity: 0.9; margin-bottom: 1.5rem; }
.header-info { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 1rem; font-size: 0.9rem; }
.header-info-item { background: rgba(255,255,255,0.1); padding: 0.75rem 1rem; border-radius: 0.5rem; }
.model-info, .stats { background: var(--secondary-color); padding: 2rem; border-bottom: 1px solid var(--border-color); }
.model-info h2, .stats h2, .messages h2 { margin-bottom: 1rem; color: var(--primary-color); }
.info-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 1rem; }
.info-card { background: white; padding: 1.5rem; border-radius: 0.75rem; box-shadow: var(--shadow); border-left: 4px solid var(--primary-color); }
.info-card h3 { font-size: 0.9rem; color: var(--text-secondary); margin-bottom: 0.5rem; text-transform: uppercase; }
.info-card-value { font-size: 1.1rem; font-weight: 700; color: var(--primary-color); }
.stats-grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; }
.stat-card { background: white; padding: 1.5rem; border-radius: 0.75rem; text-align: center; box-shadow: var(--shadow); }
.stat-value { font-size: 2rem; font-weight: 800; color: var(--primary-color); }
.stat-label { font-size: 0.8rem; color: var(--text-secondary); text-transform: uppercase; }
.messages { padding: 2rem; background: #fafbfc; }
.message { margin-bottom: 2rem; display: flex; align-items: flex-start; gap: 1rem; }
.message.user { flex-direction: row-reverse; }
.message-avatar {
  width: 3rem; height: 3rem; border-radius: 50%;
  display: flex; align-items: center; justify-content: center;
  font-weight: bold; color: white; flex-shrink: 0; box-shadow: var(--shadow);
}
.message.user .message-avatar { background: linear-gradient(135deg, #3b82f6, #1d4ed8); }
.message.assistant .message-avatar { background: linear-gradient(135deg, #10b981, #059669); }
.message.system .message-avatar { background: linear-gradient(135deg, #64748b, #475569); }
.message-content { flex: 1; max-width: 70%; }
.message-bubble { background: white; padding: 1.5rem; border-radius: 1rem; box-shadow: var(--shadow); }
.message.user .message-bubble { background: linear-gradient(135deg, #eff6ff, #dbeafe); border: 1px solid #bfdbfe; }
.message.assistant .message-bubble { background: linear-gradient(135deg, #f0fdf4, #dcfce7); border: 1px solid #bbf7d0; }
.message-header { display: flex; justify-content: space-between; margin-bottom: 1rem; padding-bottom: 0.5rem; border-bottom: 1px solid var(--border-color); }
.message-role { font-weight: 600; font-size: 0.9rem; }
.message-time { font-size: 0.8rem; color: var(--text-secondary); }
.message-text { white-space: pre-wrap; word-wrap: break-word; line-height: 1.7; }
.code-block {
  background: var(--code-bg); border: 1px solid var(--border-color); border-radius: 0.5rem;
  padding: 1rem; margin: 1rem 0; overflow-x: auto;
  font-family: 'Monaco', 'Menlo', 'Ubuntu Mono', monospace; font-size: 0.9rem;
}
.footer { background: var(--secondary-color); padding: 1.5rem 2rem; text-align: center; font-size: 0.9rem; color: var(--text-secondary); border-top: 1px solid var(--border-color); }
`
