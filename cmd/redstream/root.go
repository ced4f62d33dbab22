package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/novaops/redstream/pkg/direct"
	"github.com/novaops/redstream/pkg/naming"
	"github.com/novaops/redstream/pkg/redisconn"
	"github.com/novaops/redstream/pkg/state"
	"github.com/novaops/redstream/pkg/stream"
	"github.com/novaops/redstream/pkg/version"
)

// rootOptions carries the connection flags shared by every command.
type rootOptions struct {
	redisAddr string
	namespace string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "redstream",
		Short: "Operator tool for RedStream streams",
		Long: "redstream inspects and writes RedStream streams over the direct\n" +
			"backing-store path. It needs only the store itself, so it keeps\n" +
			"working when the service daemon is down.",
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr",
		envOr("REDSTREAM_REDIS_ADDR", "127.0.0.1:6379"),
		"Backing store address (env REDSTREAM_REDIS_ADDR)")
	cmd.PersistentFlags().StringVar(&opts.namespace, "namespace",
		envOr("REDSTREAM_NAMESPACE", naming.DefaultNamespace),
		"Root namespace token (env REDSTREAM_NAMESPACE)")

	cmd.AddCommand(
		newListCommand(opts),
		newWriteCommand(opts),
		newReadCommand(opts),
		newMonitorCommand(opts),
	)

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// connect builds the fallback client for the given flags. Package-level
// so tests can point commands at an in-memory backend.
var connect = func(opts *rootOptions) (*direct.Client, func() error, error) {
	rc := redisconn.DefaultConfig()
	rc.Addrs = []string{opts.redisAddr}

	client, err := redisconn.New(rc)
	if err != nil {
		return nil, nil, err
	}

	dc, err := direct.New(client, &direct.Config{Namespace: opts.namespace})
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	return dc, client.Close, nil
}

// cliError rewrites exhausted-retry backend failures to the fixed generic
// message. Validation errors pass through untouched: their messages name
// the offending input and the expected grammar, which is exactly what an
// operator needs.
func cliError(err error) error {
	if err == nil {
		return nil
	}
	if stream.IsBackendUnavailable(err) || state.IsUnavailable(err) {
		return errors.New("service unavailable, retry later")
	}
	return err
}
