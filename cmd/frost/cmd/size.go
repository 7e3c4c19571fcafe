package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/frost/pkg/bag"
	"github.com/ssargent/frost/pkg/report"
)

func newSizeCmd() *cobra.Command {
	sizeCmd := &cobra.Command{
		Use:   "size FILE",
		Short: "Print size info about topics, or types with --types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byType, _ := cmd.Flags().GetBool("types")
			output, _ := cmd.Flags().GetString("output")

			c, err := containerFrom(cmd)
			if err != nil {
				return err
			}
			// Every message is visited, so decompress everything once.
			b, err := bag.OpenDecompressed(args[0], c.BagOptions()...)
			if err != nil {
				return err
			}
			defer b.Close()

			entries, err := report.Sizes(b, byType)
			if err != nil {
				return err
			}
			if output == report.FormatText {
				return report.Size(cmd.OutOrStdout(), b.Metadata(), entries)
			}
			return report.Encode(cmd.OutOrStdout(), output, entries)
		},
	}
	sizeCmd.Flags().Bool("types", false, "Aggregate size information by type")
	sizeCmd.Flags().StringP("output", "o", report.FormatText, "Output format: text, yaml or json")
	return sizeCmd
}
