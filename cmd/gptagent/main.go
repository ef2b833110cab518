package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/agent"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/config"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/credentials"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/export"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/llm"
	mockclient "github.com/simonpierreboucher02/gpt41-cli-agent/internal/llm/mockclient"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/openai"
	"github.com/simonpierreboucher02/gpt41-cli-agent/internal/usage"
)

// Version is set via -ldflags during build
var Version = "dev"

func main() {
	var (
		rootFlag    = flag.String("root", "", "Agents root directory (default: ./agents, or GPTAGENT_ROOT)")
		setupFlag   = flag.Bool("setup", false, "Run the agent setup wizard")
		listFlag    = flag.Bool("list", false, "List agents and exit")
		modelsFlag  = flag.Bool("models", false, "List supported models and exit")
		infoFlag    = flag.String("info", "", "Print an agent's configuration and stats, then exit")
		deleteFlag  = flag.String("delete", "", "Delete an agent and all its data, then exit")
		exportFlag  = flag.String("export", "", "Export an agent's conversation: --export <id> --format <fmt>")
		formatFlag  = flag.String("format", "json", "Export format: json, txt, md, html")
		modelFlag   = flag.String("model", "", "Model for a newly created agent")
		promptFlag  = flag.String("p", "", "Execute a single prompt against an agent and exit")
		usageFlag   = flag.Bool("usage", false, "Print per-model token usage totals and exit")
		versionFlag = flag.Bool("version", false, "Print version and exit")
	)
	flag.StringVar(promptFlag, "prompt", "", "Execute a single prompt against an agent and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("gptagent version %s\n", Version)
		return
	}
	if *modelsFlag {
		printModels()
		return
	}

	root := agentsRoot(*rootFlag)
	reg := agent.NewRegistry(root)

	switch {
	case *listFlag:
		listAgents(reg)
		return
	case *infoFlag != "":
		if err := printInfo(reg, *infoFlag); err != nil {
			log.Fatalf("Info failed: %v", err)
		}
		return
	case *deleteFlag != "":
		if err := deleteAgent(reg, *deleteFlag); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
		return
	case *usageFlag:
		if err := printUsage(root); err != nil {
			log.Fatalf("Usage report failed: %v", err)
		}
		return
	case *exportFlag != "":
		if err := exportAgent(reg, *exportFlag, *formatFlag); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		return
	}

	if *setupFlag {
		if err := runSetup(reg, *modelFlag); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	id := flag.Arg(0)
	if id == "" {
		fmt.Println("usage: gptagent [flags] <agent-id>")
		fmt.Println("       gptagent --setup [--model <model>]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	a, ledger, err := openAgent(reg, id)
	if err != nil {
		log.Fatalf("Failed to open agent: %v", err)
	}
	defer a.Close()
	if ledger != nil {
		defer ledger.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if *promptFlag != "" {
		if _, err := a.Send(ctx, *promptFlag, func(chunk string) { fmt.Print(chunk) }); err != nil {
			log.Fatalf("Prompt failed: %v", err)
		}
		fmt.Println()
		return
	}

	if err := agent.NewSession(a).Run(ctx); err != nil {
		log.Fatalf("Session failed: %v", err)
	}
}

func agentsRoot(flagValue string) string {
	root := flagValue
	if root == "" {
		root = os.Getenv("GPTAGENT_ROOT")
	}
	if root == "" {
		root = "agents"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		log.Fatalf("Failed to resolve agents root: %v", err)
	}
	return abs
}

// openAgent wires the completion client, usage ledger, and credentials for
// one agent. GPTAGENT_MOCK_LLM=1 swaps in the mock client for tests.
func openAgent(reg agent.Registry, id string) (*agent.Agent, *usage.Ledger, error) {
	if !reg.Exists(id) {
		return nil, nil, fmt.Errorf("%w: %s (create it with: gptagent --setup)", agent.ErrAgentNotFound, id)
	}
	cfg, err := config.Load(reg.AgentDir(id))
	if err != nil {
		return nil, nil, err
	}

	var client llm.Client
	if os.Getenv("GPTAGENT_MOCK_LLM") == "1" {
		client = mockclient.New()
	} else {
		key, err := resolveAPIKey(reg.Root(), cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		client = openai.NewClient(openai.DefaultEndpoint, key, cfg.RequestTimeout(), cfg.MaxRetries, nil)
	}

	ledger, err := usage.Open(filepath.Join(reg.Root(), "usage.db"))
	if err != nil {
		// Usage accounting is best-effort; the session still works.
		fmt.Fprintf(os.Stderr, "warning: usage ledger unavailable: %v\n", err)
		ledger = nil
	}

	a, err := agent.Open(reg, id, agent.Options{Client: client, Ledger: ledger})
	if err != nil {
		if ledger != nil {
			ledger.Close()
		}
		return nil, nil, err
	}
	return a, ledger, nil
}

func resolveAPIKey(root, model string) (string, error) {
	creds := credentials.NewManager(root)
	key, err := creds.APIKey(model)
	if err != nil {
		return "", err
	}
	if key != "" {
		return key, nil
	}

	display := config.DisplayName(model)
	fmt.Printf("No API key configured for %s.\n", display)
	key, err = credentials.PromptAPIKey(fmt.Sprintf("Enter API key for %s: ", display))
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("an API key is required")
	}
	if err := creds.SetAPIKey(model, key); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not save API key: %v\n", err)
	} else {
		fmt.Printf("API key saved (%s)\n", credentials.Mask(key))
	}
	return key, nil
}

func runSetup(reg agent.Registry, model string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Agent id: ")
	id, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := agent.ValidateID(id); err != nil {
		return err
	}
	if reg.Exists(id) {
		return fmt.Errorf("agent %q already exists", id)
	}

	if model == "" {
		printModels()
		fmt.Printf("Model [%s]: ", config.DefaultModel)
		choice, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		model = strings.TrimSpace(choice)
		if model == "" {
			model = config.DefaultModel
		}
	}
	if !config.IsValidModel(model) {
		return fmt.Errorf("unsupported model %q", model)
	}

	fmt.Print("System prompt (optional): ")
	sysPrompt, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	a, err := agent.Create(reg, id, model, agent.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	if sp := strings.TrimSpace(sysPrompt); sp != "" {
		if err := a.UpdateConfig(func(c *config.AgentConfig) { c.SystemPrompt = sp }); err != nil {
			return err
		}
	}

	fmt.Printf("Agent %s created with model %s.\n", id, config.DisplayName(model))
	fmt.Printf("Start a session with: gptagent %s\n", id)
	return nil
}

func listAgents(reg agent.Registry) {
	ids, err := reg.List()
	if err != nil {
		log.Fatalf("Failed to list agents: %v", err)
	}
	if len(ids) == 0 {
		fmt.Println("No agents yet. Create one with: gptagent --setup")
		return
	}
	fmt.Printf("Agents (%d):\n", len(ids))
	for _, id := range ids {
		line := "  " + id
		if cfg, err := config.Load(reg.AgentDir(id)); err == nil {
			line = fmt.Sprintf("  %-20s %s", id, cfg.Model)
		}
		fmt.Println(line)
	}
}

func printModels() {
	fmt.Println("Supported models:")
	for _, name := range config.ListModels() {
		info, _ := config.LookupModel(name)
		fmt.Printf("  %-14s %-10s %s\n", name, info.CostTier, info.Description)
	}
}

func printInfo(reg agent.Registry, id string) error {
	a, err := agent.Open(reg, id, agent.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config()
	fmt.Printf("Agent:       %s\n", id)
	fmt.Printf("Model:       %s (%s)\n", cfg.Model, config.DisplayName(cfg.Model))
	fmt.Printf("Created:     %s\n", cfg.CreatedAt)
	fmt.Printf("Directory:   %s\n", a.Dir())

	stats := a.Stats()
	fmt.Printf("Messages:    %d\n", stats.TotalMessages)
	fmt.Printf("Est. tokens: %d\n", stats.TotalEstimatedTokens)
	if stats.Duration != "" {
		fmt.Printf("Duration:    %s\n", stats.Duration)
	}
	return nil
}

func deleteAgent(reg agent.Registry, id string) error {
	fmt.Printf("Delete agent %q and all its data? [y/N] ", id)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Println("Aborted.")
		return nil
	}
	if err := reg.Delete(id); err != nil {
		return err
	}
	fmt.Printf("Agent %s deleted.\n", id)
	return nil
}

func exportAgent(reg agent.Registry, id, formatName string) error {
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}
	a, err := agent.Open(reg, id, agent.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := a.ExportConversation(format)
	if err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", path)
	return nil
}

func printUsage(root string) error {
	ledger, err := usage.Open(filepath.Join(root, "usage.db"))
	if err != nil {
		return err
	}
	defer ledger.Close()

	totals, err := ledger.TotalsByModel("")
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		fmt.Println("No usage recorded yet.")
		return nil
	}
	fmt.Printf("%-14s %10s %12s %12s %12s\n", "MODEL", "REQUESTS", "PROMPT", "COMPLETION", "TOTAL")
	for _, t := range totals {
		fmt.Printf("%-14s %10d %12d %12d %12d\n", t.Model, t.Requests, t.PromptTokens, t.CompletionTokens, t.TotalTokens)
	}
	return nil
}
