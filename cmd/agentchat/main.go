// agentchat - terminal chat client for the agent API
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/agentstream/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	// stdout carries the conversation, logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(cfg, logger).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "agentchat",
		Short:         "Chat with agents over a streamed reply API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.BaseURL, "api-url", cfg.BaseURL, "agent API root (API_URL)")
	flags.StringVar(&cfg.AgentID, "agent", cfg.AgentID, "agent ID to talk to (AGENT_ID)")
	flags.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout, 0 for none (REQUEST_TIMEOUT)")
	flags.BoolVar(&cfg.Stream.StrictEOF, "strict-eof", cfg.Stream.StrictEOF, "fail on a truncated final record (STREAM_STRICT_EOF)")

	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		return cfg.Validate()
	}

	root.AddCommand(
		newChatCommand(cfg, logger),
		newSendCommand(cfg, logger),
		newAgentsCommand(cfg, logger),
	)
	return root
}
