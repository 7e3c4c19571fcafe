package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/frost/pkg/bag"
	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/query"
	"github.com/ssargent/frost/pkg/report"
)

func newMessagesCmd() *cobra.Command {
	messagesCmd := &cobra.Command{
		Use:   "messages FILE",
		Short: "Print time, topic and size of matching messages",
		Long: `Print one line per message matching the topic and time filters.

Times are seconds since the epoch (1700000000.5) or RFC 3339.

Examples:
  frost messages run.bag --topic /odom
  frost messages run.bag --start 1700000001 --end 1700000002.5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := queryFromFlags(cmd)
			if err != nil {
				return err
			}
			scan, _ := cmd.Flags().GetBool("scan")

			c, err := containerFrom(cmd)
			if err != nil {
				return err
			}
			opts := c.BagOptions()
			if scan {
				opts = append(opts, bag.WithForceScan())
			}
			b, err := bag.Open(args[0], opts...)
			if err != nil {
				return err
			}
			defer b.Close()

			it, err := b.ReadMessages(q)
			if err != nil {
				return err
			}
			n, err := report.Messages(cmd.OutOrStdout(), it)
			c.Logger().Debug("messages printed", "count", n, "query", q.String())
			return err
		},
	}
	messagesCmd.Flags().StringSliceP("topic", "t", nil, "Topic to include (repeatable)")
	messagesCmd.Flags().String("start", "", "Earliest message time")
	messagesCmd.Flags().String("end", "", "Latest message time")
	messagesCmd.Flags().Bool("scan", false, "Ignore the index and scan every chunk")
	return messagesCmd
}

func queryFromFlags(cmd *cobra.Command) (query.Query, error) {
	q := query.All()
	if topics, _ := cmd.Flags().GetStringSlice("topic"); len(topics) > 0 {
		q = query.ByTopic(topics...)
	}

	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	if startStr == "" && endStr == "" {
		return q, nil
	}
	start, end := codec.MinTime, codec.MaxTime
	var err error
	if startStr != "" {
		if start, err = query.ParseTime(startStr); err != nil {
			return q, errors.Wrap(err, "invalid --start")
		}
	}
	if endStr != "" {
		if end, err = query.ParseTime(endStr); err != nil {
			return q, errors.Wrap(err, "invalid --end")
		}
	}
	return q.WithTimeRange(start, end), nil
}
