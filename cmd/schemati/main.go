// Command schemati is the command line client: an assistant REPL against
// the chat endpoint and project maintenance against the configured store.
//
//	schemati chat
//	schemati projects list
//	schemati projects export <id> -o flow.json
//	schemati projects import flow.json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemati/schemati-backend/config"
	"github.com/schemati/schemati-backend/internal/logging"
)

func main() {
	if err := buildRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "schemati",
		Short:         "Schemati diagram assistant and project tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, _, err := logging.New(logging.Options{Level: logLevel, Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.AddCommand(buildChatCmd(), buildProjectsCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
