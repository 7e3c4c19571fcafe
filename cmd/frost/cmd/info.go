package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/frost/pkg/report"
)

func newInfoCmd() *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info FILE",
		Short: "Print bag information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minimal, _ := cmd.Flags().GetBool("minimal")
			output, _ := cmd.Flags().GetString("output")

			c, err := containerFrom(cmd)
			if err != nil {
				return err
			}
			meta, err := c.MetadataSource().ReadMetadata(args[0])
			if err != nil {
				return err
			}

			if output == report.FormatText {
				return report.Info(cmd.OutOrStdout(), meta, minimal)
			}
			return report.Encode(cmd.OutOrStdout(), output, report.NewSummary(meta, minimal))
		},
	}
	infoCmd.Flags().BoolP("minimal", "m", false, "Show minimal info (without types/topics)")
	infoCmd.Flags().StringP("output", "o", report.FormatText, "Output format: text, yaml or json")
	return infoCmd
}

func newTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics FILE",
		Short: "Print bag topics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := containerFrom(cmd)
			if err != nil {
				return err
			}
			meta, err := c.MetadataSource().ReadMetadata(args[0])
			if err != nil {
				return err
			}
			return report.Topics(cmd.OutOrStdout(), meta)
		},
	}
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types FILE",
		Short: "Print bag message types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := containerFrom(cmd)
			if err != nil {
				return err
			}
			meta, err := c.MetadataSource().ReadMetadata(args[0])
			if err != nil {
				return err
			}
			return report.Types(cmd.OutOrStdout(), meta)
		},
	}
}
