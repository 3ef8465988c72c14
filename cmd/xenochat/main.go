package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xenolinkco/xenochat/internal/channel"
	"github.com/xenolinkco/xenochat/internal/config"
	"github.com/xenolinkco/xenochat/internal/gateway"
	"github.com/xenolinkco/xenochat/internal/logging"
	"github.com/xenolinkco/xenochat/internal/orchestrator"
	"github.com/xenolinkco/xenochat/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "xenochat",
	Short: "xenochat - character chat backend",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway (HTTP API, channels, maintenance)",
	RunE:  runServe,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a persona from the terminal",
	RunE:  runChat,
}

var indexCmd = &cobra.Command{
	Use:   "index <file.yaml>...",
	Short: "Index worldbook lore from YAML seed files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndex,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run one embedding backfill pass",
	RunE:  runBackfill,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize the config file and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show xenochat status",
	RunE:  runStatus,
}

var (
	messageFlag       string
	userFlag          string
	chatFlag          string
	profileFlag       string
	characterFlag     string
	characterNameFlag string
	batchSizeFlag     int
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	chatCmd.Flags().StringVar(&userFlag, "user", "cli-user", "User ID")
	chatCmd.Flags().StringVar(&chatFlag, "chat", "cli-chat", "Chat ID")
	chatCmd.Flags().StringVar(&profileFlag, "profile", "", "Xenoprofile ID to talk to (required)")
	chatCmd.Flags().StringVar(&characterFlag, "character", "cli-character", "Character ID for the user side")
	chatCmd.Flags().StringVar(&characterNameFlag, "character-name", "", "Display name for the user side")
	backfillCmd.Flags().IntVar(&batchSizeFlag, "batch-size", config.DefaultBackfillBatchSize, "Rows per pass")
	rootCmd.AddCommand(serveCmd, chatCmd, indexCmd, backfillCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfigAndLogging() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.Dev); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

func requireAPIKey(cfg *config.Config) error {
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'xenochat onboard' or set XENOCHAT_API_KEY / GOOGLE_GENAI_API_KEY")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigAndLogging()
	if err != nil {
		return err
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(context.Background())
}

// ChatOptions carries injectable dependencies for the chat command.
type ChatOptions struct {
	Responder channel.Responder
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}

func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

func runChatWithOptions(opts ChatOptions) error {
	if profileFlag == "" {
		return fmt.Errorf("--profile is required")
	}

	responder := opts.Responder
	if responder == nil {
		cfg, err := loadConfigAndLogging()
		if err != nil {
			return err
		}
		if err := requireAPIKey(cfg); err != nil {
			return err
		}
		gw, err := gateway.New(cfg)
		if err != nil {
			return fmt.Errorf("create gateway: %w", err)
		}
		defer func() { _ = gw.Shutdown() }()
		responder = gw.Orchestrator()
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	ctx := context.Background()
	ask := func(text string) {
		resp := responder.Respond(ctx, orchestrator.Request{
			UserID:        userFlag,
			ChatID:        chatFlag,
			ProfileID:     profileFlag,
			UserMessage:   text,
			CharacterID:   characterFlag,
			CharacterName: characterNameFlag,
		})
		fmt.Fprintln(stdout, resp.Reply)
	}

	if messageFlag != "" {
		ask(messageFlag)
		return nil
	}

	fmt.Fprintln(stdout, "xenochat (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		ask(input)
	}
	return nil
}

// loreSeed is the YAML shape of a worldbook seed file.
type loreSeed struct {
	Entries []store.LoreEntry `yaml:"entries"`
}

func loadLoreEntries(path string) ([]store.LoreEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var seed loreSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(seed.Entries) == 0 {
		return nil, fmt.Errorf("%s: no entries", path)
	}
	for i, entry := range seed.Entries {
		if strings.TrimSpace(entry.Content) == "" {
			return nil, fmt.Errorf("%s: entry %d has no content", path, i)
		}
	}
	return seed.Entries, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigAndLogging()
	if err != nil {
		return err
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer func() { _ = gw.Shutdown() }()

	ctx := context.Background()
	total := 0
	for _, path := range args {
		entries, err := loadLoreEntries(path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			n, err := gw.Store().IndexLore(ctx, entry)
			if err != nil {
				return fmt.Errorf("index %q from %s: %w", entry.Title, path, err)
			}
			total += n
		}
		fmt.Printf("Indexed %s (%d entries)\n", path, len(entries))
	}
	fmt.Printf("Stored %d chunks\n", total)
	return nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigAndLogging()
	if err != nil {
		return err
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer func() { _ = gw.Shutdown() }()

	repaired, err := gw.Store().BackfillEmbeddings(context.Background(), batchSizeFlag)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	fmt.Printf("Repaired %d rows\n", repaired)
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(filepath.Join(cfgDir, "data"), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set XENOCHAT_API_KEY environment variable")
	fmt.Println("  3. Run 'xenochat serve' to start the gateway")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Embedding model: %s\n", cfg.Memory.EmbeddingModel)
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Printf("Database: %s\n", cfg.DBPath())
	fmt.Printf("HTTP: enabled=%v (%s:%d)\n", cfg.Channels.HTTP.Enabled, cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Backfill: enabled=%v schedule=%q\n", cfg.Cron.Enabled, cfg.Cron.BackfillSchedule)
	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}
