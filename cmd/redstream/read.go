package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novaops/redstream/pkg/stream"
)

func newReadCommand(opts *rootOptions) *cobra.Command {
	var count int64
	var reverse bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "read <stream>",
		Short: "Read messages from a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch && reverse {
				return fmt.Errorf("--watch reads forward and cannot be combined with --reverse")
			}
			if count <= 0 {
				return fmt.Errorf("invalid count %d: must be positive", count)
			}

			c, closeConn, err := connect(opts)
			if err != nil {
				return cliError(err)
			}
			defer closeConn()

			if watch {
				return watchStreams(cmd, c, args, count)
			}

			msgs, err := c.Read(cmd.Context(), args[0], stream.ReadOptions{
				Count:   count,
				Reverse: reverse,
			})
			if err != nil {
				return cliError(err)
			}

			// An empty stream is a normal outcome, not a failure.
			if msgs == nil {
				msgs = []stream.Message{}
			}
			b, _ := json.MarshalIndent(msgs, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.Flags().Int64Var(&count, "count", stream.DefaultReadCount, "Maximum messages to return")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Return newest messages first")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep reading new messages until interrupted")

	return cmd
}
