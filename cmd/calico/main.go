package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/calicobot/calico/pkg/agent"
	"github.com/calicobot/calico/pkg/bus"
	"github.com/calicobot/calico/pkg/channels"
	"github.com/calicobot/calico/pkg/config"
	"github.com/calicobot/calico/pkg/cron"
	"github.com/calicobot/calico/pkg/heartbeat"
	"github.com/calicobot/calico/pkg/logging"
	"github.com/calicobot/calico/pkg/providers"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	debug      bool
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "calico",
		Short: "calico 🐈 - a tiny message-driven agent",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	var message string
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the agent (server mode, or one-shot with -m)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(message)
		},
	}
	agentCmd.Flags().StringVarP(&message, "message", "m", "", "process a single message and exit")

	onboardCmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create the default config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	root.AddCommand(agentCmd, onboardCmd, statusCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func runAgent(message string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	workspace := expandPath(cfg.Agents.Defaults.Workspace)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	log := logging.New(filepath.Join(workspace, "logs"), debug)
	defer log.Sync()

	messageBus := bus.NewMessageBus(log)

	cronService := cron.NewService(filepath.Join(workspace, "cron.json"), func(job cron.Job) {
		if job.Payload.Kind != "agent_turn" {
			return
		}
		channel := "cron"
		chatID := job.ID
		if job.Payload.Channel != "" {
			channel = job.Payload.Channel
		}
		if job.Payload.To != "" {
			chatID = job.Payload.To
		}
		messageBus.PublishInbound(bus.InboundMessage{
			Channel:  channel,
			SenderID: "cron",
			ChatID:   chatID,
			Content:  job.Payload.Message,
		})
	}, log)

	provider, err := providers.NewProvider(cfg)
	if err != nil {
		fmt.Println("Please run 'calico onboard' or edit .calico/config.json")
		return fmt.Errorf("init provider: %w", err)
	}

	loop, err := agent.NewAgentLoop(messageBus, provider, workspace, cfg, cronService, log)
	if err != nil {
		return fmt.Errorf("init agent loop: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		messageBus.DispatchOutbound()
		return nil
	})
	g.Go(func() error {
		err := loop.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	cronService.Start()
	defer cronService.Stop()

	if message != "" {
		done := make(chan struct{})
		var once sync.Once
		messageBus.SubscribeOutbound("cli", func(msg bus.OutboundMessage) {
			fmt.Println(msg.Content)
			// A pass can emit more than one cli message (message tool
			// plus the final reply); only the first may end the wait.
			once.Do(func() { close(done) })
		})
		messageBus.PublishInbound(bus.InboundMessage{
			Channel:  "cli",
			SenderID: "user",
			ChatID:   "direct",
			Content:  message,
		})

		select {
		case <-done:
		case <-ctx.Done():
		}
		loop.Stop()
		messageBus.Stop()
		return nil
	}

	manager := channels.NewManager(cfg, messageBus, log)
	manager.StartAll()
	defer manager.StopAll()

	hb := heartbeat.NewService(workspace, cfg.Heartbeat.IntervalSeconds, cfg.Heartbeat.Enabled, func(prompt string) (string, error) {
		return loop.ProcessDirect(ctx, prompt, "heartbeat", "heartbeat")
	}, log)
	hb.Start()
	defer hb.Stop()

	fmt.Println("Agent running. Press Ctrl+C to stop.")
	<-ctx.Done()
	loop.Stop()
	messageBus.Stop()
	return g.Wait()
}

func runOnboard() error {
	configDir := ".calico"
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configFile := filepath.Join(configDir, "config.json")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		if abs, err := filepath.Abs(filepath.Join(configDir, "workspace")); err == nil {
			cfg.Agents.Defaults.Workspace = abs
		}
		if err := cfg.Save(configFile); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config file at %s\n", configFile)
	} else {
		fmt.Printf("Config file already exists at %s\n", configFile)
	}

	workspace := filepath.Join(configDir, "workspace")
	for _, dir := range []string{workspace, filepath.Join(workspace, "memory"), filepath.Join(workspace, "skills"), filepath.Join(workspace, "sessions")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	fmt.Printf("Created workspace at %s\n", workspace)

	soulPath := filepath.Join(workspace, "SOUL.md")
	if _, err := os.Stat(soulPath); os.IsNotExist(err) {
		soul := `# SOUL.md

You are calico, a friendly and pragmatic assistant.

- Be warm, be brief, be useful.
- Remember what matters to the user; write it to memory.
- Prefer doing over explaining how to do.
`
		if err := os.WriteFile(soulPath, []byte(soul), 0644); err != nil {
			return fmt.Errorf("create SOUL.md: %w", err)
		}
		fmt.Printf("Created default SOUL.md at %s\n", soulPath)
	}

	readmePath := filepath.Join(workspace, "skills", "README.md")
	if _, err := os.Stat(readmePath); os.IsNotExist(err) {
		readme := `# Skills

Add your skills here. Each skill lives in its own directory with a ` + "`SKILL.md`" + ` file.

Example structure:
` + "```" + `
skills/
  weather/
    SKILL.md
  github/
    SKILL.md
` + "```" + `

The ` + "`SKILL.md`" + ` file should contain YAML frontmatter defining the skill's description and requirements.
`
		if err := os.WriteFile(readmePath, []byte(readme), 0644); err != nil {
			return fmt.Errorf("create skills README: %w", err)
		}
	}

	fmt.Println("Done. Set an API key (e.g. OPENAI_API_KEY) and run 'calico agent'.")
	return nil
}

func runStatus() error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("calico status")
	fmt.Printf("  workspace: %s\n", expandPath(cfg.Agents.Defaults.Workspace))
	fmt.Printf("  model: %s\n", cfg.Agents.Defaults.Model)
	fmt.Printf("  max iterations: %d\n", cfg.Agents.Defaults.MaxToolIterations)
	fmt.Printf("  memory window: %d\n", cfg.Agents.Defaults.MemoryWindow)

	if _, err := providers.NewProvider(cfg); err != nil {
		fmt.Printf("  provider: not configured (%v)\n", err)
	} else {
		fmt.Println("  provider: configured")
	}

	tg := "disabled"
	if cfg.Channels.Telegram.Enabled {
		tg = "enabled"
	}
	fmt.Printf("  telegram: %s\n", tg)

	hb := "disabled"
	if cfg.Heartbeat.Enabled {
		hb = fmt.Sprintf("enabled (every %ds)", cfg.Heartbeat.IntervalSeconds)
	}
	fmt.Printf("  heartbeat: %s\n", hb)
	return nil
}
