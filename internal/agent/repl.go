package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	prompt "github.com/c-bata/go-prompt"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/config"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/export"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/history"
)

type promptExit struct{}

var commandSuggestions = []prompt.Suggest{
	{Text: "/history", Description: "Show the conversation so far"},
	{Text: "/search", Description: "Search message bodies: /search <term>"},
	{Text: "/stats", Description: "Show conversation statistics"},
	{Text: "/config", Description: "Show or change settings: /config [key value]"},
	{Text: "/export", Description: "Export the conversation: /export <json|txt|md|html>"},
	{Text: "/clear", Description: "Snapshot and clear the conversation"},
	{Text: "/files", Description: "List files available for {inclusion}"},
	{Text: "/model", Description: "Show the current model and alternatives"},
	{Text: "/switch", Description: "Switch model: /switch <model>"},
	{Text: "/quit", Description: "Leave the session"},
	{Text: "/help", Description: "Show this command list"},
}

// Session drives the interactive loop for one agent.
type Session struct {
	agent  *Agent
	render *glamour.TermRenderer
	isTTY  bool
}

// NewSession wires a REPL session. Markdown rendering activates only when
// stdout is a terminal.
func NewSession(a *Agent) *Session {
	var renderer *glamour.TermRenderer
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		); err == nil {
			renderer = r
		}
	}
	return &Session{
		agent:  a,
		render: renderer,
		isTTY:  term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// Run starts the prompt loop and blocks until the session finishes.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Printf("Agent %s ready (model %s). Type /help for commands, /quit to leave.\n",
		s.agent.ID(), s.agent.Config().Model)
	if n := s.agent.Store().Len(); n > 0 {
		fmt.Printf("(loaded %d conversation messages)\n", n)
	}

	if s.isTTY {
		return s.runPrompt(ctx, cancel)
	}
	return s.runNonInteractive(ctx, cancel)
}

func (s *Session) runPrompt(ctx context.Context, cancel context.CancelFunc) (err error) {
	var restore func()
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		if state, terr := term.GetState(fd); terr == nil {
			restore = func() { _ = term.Restore(fd, state) }
		}
	}
	if restore != nil {
		defer restore()
	}

	var exitRequested atomic.Bool
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(promptExit); ok {
				err = nil
				return
			}
			panic(r)
		}
	}()

	executor := func(in string) {
		if exitRequested.Load() || ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(in)
		if line == "" {
			return
		}
		if exit := s.handleLine(ctx, line); exit {
			exitRequested.Store(true)
			cancel()
			panic(promptExit{})
		}
	}

	p := prompt.New(
		executor,
		s.commandCompleter(),
		prompt.OptionTitle("gptagent"),
		prompt.OptionLivePrefix(func() (string, bool) {
			return fmt.Sprintf("[%s] > ", s.agent.ID()), true
		}),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlD,
			Fn: func(buf *prompt.Buffer) {
				if buf.Text() == "" {
					exitRequested.Store(true)
					cancel()
					panic(promptExit{})
				}
			},
		}),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			if exitRequested.Load() {
				return true
			}
			select {
			case <-ctx.Done():
				return true
			default:
				return false
			}
		}),
	)
	p.Run()
	return nil
}

func (s *Session) commandCompleter() func(prompt.Document) []prompt.Suggest {
	return func(doc prompt.Document) []prompt.Suggest {
		word := doc.GetWordBeforeCursor()
		prefix := strings.TrimLeft(doc.TextBeforeCursor(), " \t")
		if !strings.HasPrefix(prefix, "/") {
			return nil
		}
		return prompt.FilterHasPrefix(commandSuggestions, word, true)
	}
}

func (s *Session) runNonInteractive(ctx context.Context, cancel context.CancelFunc) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Printf("[%s] > ", s.agent.ID())
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if exit := s.handleLine(ctx, strings.TrimSpace(line)); exit {
			cancel()
			return nil
		}
	}
}

// handleLine dispatches one input line. Returns true when the session
// should end.
func (s *Session) handleLine(ctx context.Context, input string) bool {
	if input == "" {
		return false
	}
	if strings.HasPrefix(input, "/") {
		return s.handleCommand(input)
	}

	first := true
	_, err := s.agent.Send(ctx, input, func(chunk string) {
		if first {
			first = false
		}
		fmt.Print(chunk)
	})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return false
	}
	if !first {
		fmt.Println()
	}
	return false
}

func (s *Session) handleCommand(input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		fmt.Println("Bye.")
		return true
	case "/help":
		for _, sug := range commandSuggestions {
			fmt.Printf("  %-10s %s\n", sug.Text, sug.Description)
		}
	case "/history":
		s.printHistory()
	case "/search":
		s.runSearch(strings.Join(args, " "))
	case "/stats":
		s.printStats()
	case "/config":
		s.handleConfig(args)
	case "/export":
		s.runExport(args)
	case "/clear":
		if err := s.agent.Clear(); err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Println("Conversation cleared (snapshot saved).")
		}
	case "/files":
		s.listFiles()
	case "/model":
		s.printModels()
	case "/switch":
		if len(args) != 1 {
			fmt.Println("usage: /switch <model>")
			break
		}
		if err := s.agent.SwitchModel(args[0]); err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Printf("Switched to %s.\n", config.DisplayName(args[0]))
		}
	default:
		fmt.Printf("Unknown command %s. Type /help for the list.\n", cmd)
	}
	return false
}

func (s *Session) printHistory() {
	msgs := s.agent.Store().Messages()
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	for _, msg := range msgs {
		s.printMessage(msg)
	}
}

func (s *Session) printMessage(msg history.Message) {
	fmt.Printf("[%03d] %s %s:\n", msg.Seq, msg.Timestamp.Format("2006-01-02 15:04:05"), strings.ToUpper(msg.Role))
	if msg.Role == history.RoleAssistant && s.render != nil {
		if out, err := s.render.Render(msg.Content); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Println(msg.Content)
}

func (s *Session) runSearch(term string) {
	results, err := s.agent.Search(term)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	fmt.Printf("%d matching messages:\n", len(results))
	for _, msg := range results {
		s.printMessage(msg)
	}
}

func (s *Session) printStats() {
	stats := s.agent.Stats()
	fmt.Printf("Total messages:   %d\n", stats.TotalMessages)
	roles := make([]string, 0, len(stats.MessagesByRole))
	for role := range stats.MessagesByRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		fmt.Printf("  %-12s %d\n", role+":", stats.MessagesByRole[role])
	}
	fmt.Printf("Total characters: %d\n", stats.TotalCharacters)
	fmt.Printf("Estimated tokens: %d\n", stats.TotalEstimatedTokens)
	if stats.FirstTimestamp != nil {
		fmt.Printf("First message:    %s\n", stats.FirstTimestamp.Format("2006-01-02 15:04:05"))
		fmt.Printf("Last message:     %s\n", stats.LastTimestamp.Format("2006-01-02 15:04:05"))
		fmt.Printf("Duration:         %s\n", stats.Duration)
	}
}

func (s *Session) handleConfig(args []string) {
	if len(args) == 0 {
		cfg := s.agent.Config()
		fmt.Printf("model:             %s\n", cfg.Model)
		fmt.Printf("temperature:       %g\n", cfg.Temperature)
		fmt.Printf("max_tokens:        %d\n", cfg.MaxTokens)
		fmt.Printf("top_p:             %g\n", cfg.TopP)
		fmt.Printf("stream:            %t\n", cfg.Stream)
		fmt.Printf("system_prompt:     %s\n", cfg.SystemPrompt)
		fmt.Printf("max_history_size:  %d\n", cfg.MaxHistorySize)
		fmt.Printf("max_backups:       %d\n", cfg.MaxBackups)
		fmt.Printf("timeout:           %ds\n", cfg.RequestTimeoutSeconds)
		return
	}
	if len(args) < 2 {
		fmt.Println("usage: /config <key> <value>")
		return
	}
	key, value := args[0], strings.Join(args[1:], " ")
	err := s.agent.UpdateConfig(func(c *config.AgentConfig) {
		applyConfigKey(c, key, value)
	})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("%s updated.\n", key)
}

func applyConfigKey(c *config.AgentConfig, key, value string) {
	switch key {
	case "temperature":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			c.Temperature = v
		}
	case "max_tokens":
		if v, err := strconv.Atoi(value); err == nil {
			c.MaxTokens = v
		}
	case "top_p":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			c.TopP = v
		}
	case "stream":
		if v, err := strconv.ParseBool(value); err == nil {
			c.Stream = v
		}
	case "system_prompt":
		c.SystemPrompt = value
	case "max_history_size":
		if v, err := strconv.Atoi(value); err == nil {
			c.MaxHistorySize = v
		}
	case "max_backups":
		if v, err := strconv.Atoi(value); err == nil {
			c.MaxBackups = v
		}
	}
}

func (s *Session) runExport(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: /export <json|txt|md|html>")
		return
	}
	format, err := export.ParseFormat(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	path, err := s.agent.ExportConversation(format)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("Exported to %s\n", path)
}

func (s *Session) listFiles() {
	dirs := []string{".", s.agent.UploadsDir()}
	found := false
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			fmt.Printf("  %s (%d bytes)\n", filepath.Join(dir, entry.Name()), info.Size())
			found = true
		}
	}
	if !found {
		fmt.Println("No files available. Drop files in the working directory or the agent's uploads directory.")
	}
}

func (s *Session) printModels() {
	current := s.agent.Config().Model
	for _, name := range config.ListModels() {
		info, _ := config.LookupModel(name)
		marker := " "
		if name == current {
			marker = "*"
		}
		fmt.Printf("%s %-14s %-12s timeout %ds\n", marker, name, info.CostTier, info.TimeoutSeconds)
	}
}
