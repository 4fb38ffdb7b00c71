package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strongdm/crashdispatch/internal/bench"
)

var benchOpts = bench.DefaultOptions()

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare a blocking and a pooled dispatcher under slow sends",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := bench.Compare(cmd.Context(), benchOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sync:  %d sends completed in %s\n", result.Sync, benchOpts.Window)
		fmt.Fprintf(cmd.OutOrStdout(), "async: %d sends completed in %s (%d workers)\n", result.Async, benchOpts.Window, benchOpts.Workers)
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchOpts.Sends, "sends", benchOpts.Sends, "dispatch calls per configuration")
	benchCmd.Flags().DurationVar(&benchOpts.Delay, "delay", benchOpts.Delay, "artificial latency per send")
	benchCmd.Flags().DurationVar(&benchOpts.Window, "window", benchOpts.Window, "observation window")
	benchCmd.Flags().IntVar(&benchOpts.Workers, "workers", benchOpts.Workers, "pool workers for the async run")
}
