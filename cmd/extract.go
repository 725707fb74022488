package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Cyphercomp/pokefetch/internal/report"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>...",
		Short: "Print a one-line summary of a downloaded record",
		Long: `Reads previously downloaded JSON records and prints one sentence per file,
for example: "Pikachu is of type electric, weighs 6kg, and is 0.4m tall."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				sentence, err := report.Summarize(path)
				if err != nil {
					return fmt.Errorf("summarize %s: %w", path, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), sentence)
			}
			return nil
		},
	}
}
