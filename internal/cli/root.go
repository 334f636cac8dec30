// Package cli provides the command-line interface for parley.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/parley/internal/chat"
	"github.com/raphaelgruber/parley/internal/config"
	"github.com/raphaelgruber/parley/internal/llm"
	"github.com/raphaelgruber/parley/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger and thread store
	cfg       config.Config
	logger    *slog.Logger
	closeLogs func() error
	threads   *store.Store

	// Lazy-initialized LLM session
	session *chat.Session
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Terminal AI chat with persistent threads",
	Long: `Parley is an AI chat client for the terminal. Conversations are kept
in persistent threads that survive restarts, responses stream token by
token, and past exchanges can be edited, regenerated, and compared
across versions.

Works with OpenAI, Anthropic, Ollama, and Amazon Bedrock backends.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip store setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, closeLogs = config.SetupLogger(cfg)

		persister, err := store.OpenPebble(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("open thread store: %w", err)
		}
		threads, err = store.Open(persister,
			store.WithDefaultModel(cfg.LLMModel),
			store.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("load thread store: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if threads != nil {
			if err := threads.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close thread store: %v\n", err)
			}
		}
		if closeLogs != nil {
			_ = closeLogs()
		}
	},
}

// getSession creates the chat session on first use. Commands that only
// touch the store never pay the provider setup.
func getSession(ctx context.Context) (*chat.Session, error) {
	if session == nil {
		model, err := llm.NewModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init model: %w", err)
		}
		session = chat.NewSession(threads, model, chat.WithSessionLogger(logger))
	}
	return session, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(serveCmd)
}
