package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	var pattern string
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "table" {
				return fmt.Errorf("invalid format %q: expected json or table", format)
			}

			c, closeConn, err := connect(opts)
			if err != nil {
				return cliError(err)
			}
			defer closeConn()

			streams, err := c.ListStreams(cmd.Context(), pattern)
			if err != nil {
				return cliError(err)
			}

			if format == "json" {
				if streams == nil {
					streams = []string{}
				}
				b, _ := json.MarshalIndent(streams, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}

			// ListStreams only returns names that pass validation, so
			// Parse cannot fail here.
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STREAM\tDOMAIN")
			for _, s := range streams {
				name, perr := c.Validator().Parse(s)
				if perr != nil {
					continue
				}
				domain := name.Domain()
				if name.Legacy {
					domain += " (legacy)"
				}
				fmt.Fprintf(w, "%s\t%s\n", s, domain)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "Glob pattern to filter stream names")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: json or table")

	return cmd
}
