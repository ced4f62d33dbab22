package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novaops/redstream/pkg/stream"
)

// cliSource is the _source stamp on messages written by this tool.
const cliSource = "redstream-cli"

func newWriteCommand(opts *rootOptions) *cobra.Command {
	var msgType string
	var content string
	var priority string

	cmd := &cobra.Command{
		Use:   "write <stream>",
		Short: "Publish a message to a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch priority {
			case "normal", "high", "critical":
			default:
				return fmt.Errorf("invalid priority %q: expected one of normal, high, critical", priority)
			}

			c, closeConn, err := connect(opts)
			if err != nil {
				return cliError(err)
			}
			defer closeConn()

			fields := stream.Stamp(cmd.Context(), map[string]string{
				"type":     msgType,
				"content":  content,
				"priority": priority,
			}, cliSource)

			id, err := c.Publish(cmd.Context(), args[0], fields, stream.PublishOptions{})
			if err != nil {
				return cliError(err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&msgType, "type", "", "Message type (required)")
	cmd.Flags().StringVar(&content, "content", "", "Message content (required)")
	cmd.Flags().StringVar(&priority, "priority", "normal", "Message priority: normal, high or critical")

	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("content")

	return cmd
}
