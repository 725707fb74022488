package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Cyphercomp/pokefetch/internal/report"
)

func newReportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize all downloaded records as CSV plus averages",
		Long: `Walks the output directory, writes a name,height_m,weight_kg CSV, and
prints the average height and weight across all parsed records. Files that
fail to parse are skipped and listed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				f, createErr := os.Create(output)
				if createErr != nil {
					return fmt.Errorf("create report file: %w", createErr)
				}
				defer f.Close()
				w = f
			}

			stats, err := report.WriteCSV(cfg.Storage.OutputDir, w)
			if err != nil {
				return fmt.Errorf("write report: %w", err)
			}

			out := cmd.OutOrStdout()
			if output != "-" {
				fmt.Fprintf(out, "wrote %s with %d records\n", output, stats.Count)
			}
			if stats.Count > 0 {
				fmt.Fprintf(out, "average height: %.2fm, average weight: %.2fkg\n",
					stats.AvgHeightM, stats.AvgWeightKG)
			}
			for _, skipped := range stats.SkippedFiles {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped unparseable file: %s\n", skipped)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "pokemon_report.csv", `report file path ("-" for stdout)`)
	return cmd
}
