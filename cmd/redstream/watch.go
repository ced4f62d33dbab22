package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/novaops/redstream/pkg/direct"
	"github.com/novaops/redstream/pkg/stream"
)

// watchBlock is the per-iteration blocking read budget of a watch loop.
// Interrupts cancel the read through the context, so this only bounds
// how long an idle loop holds a connection.
const watchBlock = 2 * time.Second

// tailEvent is one observation from a stream tail: a printable line or a
// terminal error.
type tailEvent struct {
	line string
	err  error
}

// watchStreams tails the named streams until the caller interrupts or a
// tail fails. Each stream gets its own goroutine and its own cursor, so a
// quiet stream never stalls a busy one. An interrupt is a clean exit.
func watchStreams(cmd *cobra.Command, c *direct.Client, streams []string, count int64) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan tailEvent, 64)
	var wg sync.WaitGroup
	for _, name := range streams {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			tailStream(ctx, c, name, count, events)
		}(name)
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			wg.Wait()
			return nil
		case ev := <-events:
			if ev.err != nil {
				stop()
				wg.Wait()
				return cliError(ev.err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ev.line)
		}
	}
}

// tailStream follows one stream from its current head. The cursor is
// local to this loop: it starts at the newest existing id (or the
// beginning of an empty stream) and advances past each delivered
// message, so nothing is skipped between iterations.
func tailStream(ctx context.Context, c *direct.Client, name string, count int64, events chan<- tailEvent) {
	cursor := "0"
	head, err := c.Read(ctx, name, stream.ReadOptions{Count: 1, Reverse: true})
	if err != nil {
		reportTail(ctx, events, tailEvent{err: err})
		return
	}
	if len(head) > 0 {
		cursor = head[0].ID
	}

	for {
		msgs, err := c.Read(ctx, name, stream.ReadOptions{
			Count:   count,
			SinceID: cursor,
			Block:   watchBlock,
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			reportTail(ctx, events, tailEvent{err: err})
			return
		}

		for _, m := range msgs {
			cursor = m.ID
			fields, _ := json.Marshal(m.Fields)
			reportTail(ctx, events, tailEvent{
				line: fmt.Sprintf("%s %s %s", name, m.ID, fields),
			})
		}
	}
}

// reportTail sends an event unless the watch is already shutting down.
func reportTail(ctx context.Context, events chan<- tailEvent, ev tailEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
