package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/kestrel/internal/agent"
	"github.com/rahul/kestrel/internal/gateway"
	"github.com/rahul/kestrel/internal/governance"
	"github.com/rahul/kestrel/internal/model"
	"github.com/rahul/kestrel/internal/observability"
	"github.com/rahul/kestrel/internal/store"
	"github.com/rahul/kestrel/internal/tools"
	"github.com/rahul/kestrel/pkg/config"
)

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal(err)
	}

	st, err := store.NewStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	// Initialize Tools
	registry := tools.NewRegistry()

	searchTool, err := tools.NewSearchTool()
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}

	registry.Register(tools.NewFilesystemTool(cfg.App.Workspace))
	registry.Register(tools.NewScraperTool())
	registry.Register(tools.NewScheduleTool(st))
	registry.Register(tools.NewShellTool(cfg.App.Workspace))
	registry.Register(tools.NewBrowserTool())
	registry.Register(tools.NewSystemTool())

	prompts := agent.NewPromptManager(cfg.Prompts.Dir)
	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: Block dangerous destructive commands
	_ = gov.DenyArgumentsForTool("shell", `rm\s+-rf`)
	_ = gov.DenyArgumentsForTool("shell", `mkfs`)
	_ = gov.DenyArgumentsForTool("shell", `shutdown`)
	_ = gov.DenyArgumentsForTool("shell", `reboot`)

	logger := observability.NewLogger()

	// Initialize LLM (using default enabled provider)
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	client := model.NewGateway(llm, cfg.Models, logger)
	if err := client.ValidateAliases("planner", "executor", "summarizer"); err != nil {
		log.Fatal(err)
	}

	engine := agent.NewEngine(client, st, registry, gov, prompts, logger,
		agent.FromEngineConfig(cfg.Engine))

	var messengers []gateway.Messenger
	if tgCfg, ok := cfg.GetGateway("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, engine)
		if err != nil {
			log.Fatal(err)
		}
		messengers = append(messengers, tg)
	}
	if dcCfg, ok := cfg.GetGateway("discord"); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, engine)
		if err != nil {
			log.Fatal(err)
		}
		messengers = append(messengers, dc)
	}
	if len(messengers) == 0 {
		log.Fatal("No gateway is enabled in config")
	}

	// Start Background Scheduler with a cancelable context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := agent.NewScheduler(engine, st, messengers[0])
	go scheduler.Start(ctx)

	// Start Live Resource Dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
			}
		}
	}()

	// Start Gateways in goroutines so we can wait for context in the main loop
	for _, m := range messengers {
		m := m
		go func() {
			if err := m.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop() // stop caller if gateway dies
			}
		}()
	}

	// Wait for shutdown signal
	<-ctx.Done()

	for _, m := range messengers {
		if err := m.Stop(); err != nil {
			log.Printf("Error stopping gateway: %v", err)
		}
	}

	// Reset terminal aesthetics
	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
}
