package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Cyphercomp/pokefetch/internal/config"
	"github.com/Cyphercomp/pokefetch/internal/pokedex"
)

func newFetchCmd() *cobra.Command {
	var attempts int
	cmd := &cobra.Command{
		Use:   "fetch <name>...",
		Short: "Fetch records one at a time with bounded retries",
		Long: `Fetches each named record in order, writing one JSON file per record to
the output directory. Transient failures are retried with doubled, jittered
backoff; terminal failures are appended to the error log and counted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Sequential mode is the parallel pipeline with a single worker.
			cfg.Fetch.Concurrency = 1
			if attempts > 0 {
				cfg.Retry.MaxAttempts = attempts
			}
			return runFetch(cmd, cfg, args)
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 0, "override retry.max_attempts for this run")
	return cmd
}

func newBatchCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "batch <name>...",
		Short: "Fetch records in parallel with a bounded worker pool",
		Long: `Fetches the named records concurrently. The worker pool is fixed-size and
joins on a closed queue, so the concurrency cap is never exceeded and the
command blocks until every item has been processed. Interrupt cancels
outstanding fetches and the run is reported as canceled.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.Fetch.Concurrency = concurrency
			}
			return runFetch(cmd, cfg, args)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override fetch.concurrency for this run")
	return cmd
}

func runFetch(cmd *cobra.Command, cfg config.Config, names []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	run, err := a.Dispatcher().Submit(ctx, pokedex.RunParameters{Names: names})
	if err != nil {
		return fmt.Errorf("submit run: %w", err)
	}
	counters, err := a.Dispatcher().Execute(ctx, run)
	if err != nil {
		return fmt.Errorf("execute run: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "fetched %d/%d records (%d failed, %d retries)\n",
		counters.Succeeded, counters.Total(), counters.Failed, counters.Retries)

	if code := pokedex.ExitCode(counters); code != pokedex.ExitAllSucceeded {
		return &exitError{code: code}
	}
	return nil
}
