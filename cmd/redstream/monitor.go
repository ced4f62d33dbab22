package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novaops/redstream/pkg/stream"
)

func newMonitorCommand(opts *rootOptions) *cobra.Command {
	var count int64
	var watch bool

	cmd := &cobra.Command{
		Use:   "monitor <stream>...",
		Short: "Read several streams at once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("invalid count %d: must be positive", count)
			}

			c, closeConn, err := connect(opts)
			if err != nil {
				return cliError(err)
			}
			defer closeConn()

			// Check every name before touching any stream so a typo in
			// the last argument does not produce partial output.
			for _, name := range args {
				if _, err := c.Validator().Validate(name); err != nil {
					return err
				}
			}

			if watch {
				return watchStreams(cmd, c, args, count)
			}

			for _, name := range args {
				msgs, err := c.Read(cmd.Context(), name, stream.ReadOptions{Count: count})
				if err != nil {
					return cliError(err)
				}
				for _, m := range msgs {
					fields, _ := json.Marshal(m.Fields)
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", name, m.ID, fields)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&count, "count", stream.DefaultReadCount, "Maximum messages per stream")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep reading new messages until interrupted")

	return cmd
}
