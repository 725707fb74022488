// Package cmd defines and implements the CLI commands for the pokefetch
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Cyphercomp/pokefetch/internal/app"
	"github.com/Cyphercomp/pokefetch/internal/config"
)

var cfgFile string

// exitError carries a process exit code through cobra's error plumbing so
// partial and total failures surface as exit statuses, not just log lines.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pokefetch",
		Short: "Fetch Pokémon records from the PokeAPI and write them as JSON files.",
		Long: `pokefetch downloads Pokémon records from the PokeAPI REST endpoint,
writes each record to its own JSON file, and reports success and failure
counts. Fetches retry transient errors with bounded, jittered backoff; a
404 is terminal and never retried.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus POKEFETCH_* env vars)")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func buildApp(ctx context.Context, cfg config.Config) (*app.App, error) {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize application services: %w", err)
	}
	return a, nil
}

// Execute runs the CLI and returns the process exit code: 0 when every item
// succeeded, 1 when none did (or the command itself failed), 2 on partial
// success.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.msg != "" {
				fmt.Fprintln(os.Stderr, exitErr.msg)
			}
			return exitErr.code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
