package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/novaops/redstream/pkg/naming"
	"github.com/novaops/redstream/pkg/redistest"
	"github.com/novaops/redstream/pkg/retry"
)

const testStream = "nova:devops:general:announce"

func newTestGateway(t *testing.T) (*Gateway, *redistest.Client) {
	t.Helper()

	client := redistest.New()
	g, err := New(client, &Config{
		Namespace: "nova",
		Retry: &retry.Policy{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        4 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g, client
}

func mustPublish(t *testing.T, g *Gateway, streamName string, fields map[string]string) string {
	t.Helper()

	id, err := g.Publish(context.Background(), streamName, fields, PublishOptions{})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	return id
}

func TestPublishReadRoundTrip(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	fields := map[string]string{"type": "event", "content": "hello"}
	id := mustPublish(t, g, testStream, fields)
	if id == "" {
		t.Fatal("Publish returned empty id")
	}

	msgs, err := g.Read(ctx, testStream, ReadOptions{Count: 1, Reverse: true})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Read returned %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != id {
		t.Errorf("message id = %q, want %q", msgs[0].ID, id)
	}
	if msgs[0].Fields["type"] != "event" || msgs[0].Fields["content"] != "hello" {
		t.Errorf("fields = %v", msgs[0].Fields)
	}
}

func TestPublishRejectsInvalidName(t *testing.T) {
	g, _ := newTestGateway(t)

	_, err := g.Publish(context.Background(), "Nova:devops:general:announce", map[string]string{"k": "v"}, PublishOptions{})
	if !naming.IsInvalidNameError(err) {
		t.Fatalf("err = %v, want InvalidNameError", err)
	}
}

func TestPublishRejectsEmptyFields(t *testing.T) {
	g, _ := newTestGateway(t)

	_, err := g.Publish(context.Background(), testStream, nil, PublishOptions{})
	if !IsInvalidArgument(err) {
		t.Fatalf("err = %v, want InvalidArgumentError", err)
	}
}

func TestPublishTrimsToMaxLen(t *testing.T) {
	g, client := newTestGateway(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.Publish(ctx, testStream, map[string]string{"n": string(rune('a' + i))}, PublishOptions{MaxLen: 3})
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	length, err := client.XLen(ctx, testStream).Result()
	if err != nil {
		t.Fatalf("XLen failed: %v", err)
	}
	if length != 3 {
		t.Errorf("stream length = %d, want 3", length)
	}
}

func TestReadOrderAndCursor(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	var ids []string
	for _, n := range []string{"1", "2", "3", "4"} {
		ids = append(ids, mustPublish(t, g, testStream, map[string]string{"n": n}))
	}

	oldest, err := g.Read(ctx, testStream, ReadOptions{Count: 2})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(oldest) != 2 || oldest[0].ID != ids[0] || oldest[1].ID != ids[1] {
		t.Errorf("forward read = %v, want first two ids", oldest)
	}

	newest, err := g.Read(ctx, testStream, ReadOptions{Count: 2, Reverse: true})
	if err != nil {
		t.Fatalf("Read reverse failed: %v", err)
	}
	if len(newest) != 2 || newest[0].ID != ids[3] || newest[1].ID != ids[2] {
		t.Errorf("reverse read = %v, want newest first", newest)
	}

	after, err := g.Read(ctx, testStream, ReadOptions{SinceID: ids[1]})
	if err != nil {
		t.Fatalf("Read since failed: %v", err)
	}
	if len(after) != 2 || after[0].ID != ids[2] || after[1].ID != ids[3] {
		t.Errorf("since read = %v, want entries strictly after %s", after, ids[1])
	}
}

func TestReadEmptyStream(t *testing.T) {
	g, _ := newTestGateway(t)

	msgs, err := g.Read(context.Background(), testStream, ReadOptions{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Read returned %d messages, want 0", len(msgs))
	}
}

func TestBlockingReadTimeoutIsEmptyResult(t *testing.T) {
	g, _ := newTestGateway(t)

	start := time.Now()
	msgs, err := g.Read(context.Background(), testStream, ReadOptions{Block: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Read returned %d messages, want 0", len(msgs))
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Error("blocking read returned before the block window elapsed")
	}
}

func TestBlockingReadDeliversLaterPublish(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	first := mustPublish(t, g, testStream, map[string]string{"n": "1"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = g.Publish(ctx, testStream, map[string]string{"n": "2"}, PublishOptions{})
	}()

	msgs, err := g.Read(ctx, testStream, ReadOptions{SinceID: first, Block: time.Second})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Fields["n"] != "2" {
		t.Fatalf("blocking read = %v, want the later message", msgs)
	}
}

func TestBlockingReadCanceled(t *testing.T) {
	g, _ := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.Read(ctx, testStream, ReadOptions{Block: 5 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if IsBackendUnavailable(err) {
		t.Error("cancellation misreported as backend unavailability")
	}
}

func TestCreateConsumerGroupIdempotent(t *testing.T) {
	g, client := newTestGateway(t)
	ctx := context.Background()

	mustPublish(t, g, testStream, map[string]string{"n": "1"})

	if err := g.CreateConsumerGroup(ctx, testStream, "workers", GroupOptions{}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := g.CreateConsumerGroup(ctx, testStream, "workers", GroupOptions{}); err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	groups := client.Groups(testStream)
	if len(groups) != 1 || groups[0] != "workers" {
		t.Errorf("groups = %v, want exactly one %q", groups, "workers")
	}
}

func TestCreateConsumerGroupMissingStream(t *testing.T) {
	g, client := newTestGateway(t)
	ctx := context.Background()

	err := g.CreateConsumerGroup(ctx, testStream, "workers", GroupOptions{})
	if err == nil {
		t.Fatal("create on missing stream succeeded without MkStream")
	}
	if IsBackendUnavailable(err) {
		t.Errorf("deterministic reply misreported as backend unavailability: %v", err)
	}

	if err := g.CreateConsumerGroup(ctx, testStream, "workers", GroupOptions{MkStream: true}); err != nil {
		t.Fatalf("create with MkStream failed: %v", err)
	}
	if groups := client.Groups(testStream); len(groups) != 1 {
		t.Errorf("groups = %v, want one", groups)
	}
}

func TestGroupReadPendingAndAck(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	var ids []string
	for _, n := range []string{"1", "2", "3"} {
		ids = append(ids, mustPublish(t, g, testStream, map[string]string{"n": n}))
	}
	if err := g.CreateConsumerGroup(ctx, testStream, "workers", GroupOptions{StartID: "0"}); err != nil {
		t.Fatalf("create group failed: %v", err)
	}

	tracked := GroupReadOptions{Count: 10, StartID: StartNewMessages}
	delivered, err := g.ReadAsConsumer(ctx, testStream, "workers", "c1", tracked)
	if err != nil {
		t.Fatalf("group read failed: %v", err)
	}
	if len(delivered) != 3 {
		t.Fatalf("group read returned %d messages, want 3", len(delivered))
	}

	pending, err := g.ReadAsConsumer(ctx, testStream, "workers", "c1", GroupReadOptions{Count: 10, StartID: StartPending})
	if err != nil {
		t.Fatalf("pending read failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending read returned %d messages, want 3", len(pending))
	}

	acked, err := g.Acknowledge(ctx, testStream, "workers", ids[0])
	if err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if !acked {
		t.Error("Acknowledge returned false for a pending id")
	}

	again, err := g.Acknowledge(ctx, testStream, "workers", ids[0])
	if err != nil {
		t.Fatalf("repeat Acknowledge failed: %v", err)
	}
	if again {
		t.Error("repeat Acknowledge returned true, want false")
	}

	remaining, err := g.ReadAsConsumer(ctx, testStream, "workers", "c1", GroupReadOptions{Count: 10, StartID: StartPending})
	if err != nil {
		t.Fatalf("pending read after ack failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("pending read returned %d messages after ack, want 2", len(remaining))
	}
	for _, m := range remaining {
		if m.ID == ids[0] {
			t.Errorf("acknowledged id %s still pending", ids[0])
		}
	}
}

func TestGroupReadNoAckLeavesNothingPending(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	mustPublish(t, g, testStream, map[string]string{"n": "1"})
	if err := g.CreateConsumerGroup(ctx, testStream, "workers", GroupOptions{StartID: "0"}); err != nil {
		t.Fatalf("create group failed: %v", err)
	}

	msgs, err := g.ReadAsConsumer(ctx, testStream, "workers", "c1", DefaultGroupReadOptions())
	if err != nil {
		t.Fatalf("group read failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("group read returned %d messages, want 1", len(msgs))
	}

	pending, err := g.ReadAsConsumer(ctx, testStream, "workers", "c1", GroupReadOptions{Count: 10, StartID: StartPending})
	if err != nil {
		t.Fatalf("pending read failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending read returned %d messages after NoAck delivery, want 0", len(pending))
	}
}

func TestGroupReadMissingGroup(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	mustPublish(t, g, testStream, map[string]string{"n": "1"})

	_, err := g.ReadAsConsumer(ctx, testStream, "ghosts", "c1", GroupReadOptions{Count: 1})
	if !IsGroupNotFound(err) {
		t.Fatalf("err = %v, want GroupNotFoundError", err)
	}
}

func TestGroupReadBlockTimeout(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	if err := g.CreateConsumerGroup(ctx, testStream, "workers", GroupOptions{MkStream: true}); err != nil {
		t.Fatalf("create group failed: %v", err)
	}

	msgs, err := g.ReadAsConsumer(ctx, testStream, "workers", "c1", GroupReadOptions{Count: 1, Block: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("group read failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("group read returned %d messages, want 0", len(msgs))
	}
}

func TestListStreams(t *testing.T) {
	g, client := newTestGateway(t)
	ctx := context.Background()

	mustPublish(t, g, "nova:devops:general:announce", map[string]string{"n": "1"})
	mustPublish(t, g, "nova:task:build:results", map[string]string{"n": "1"})
	mustPublish(t, g, "devops.announce.direct", map[string]string{"n": "1"})
	// A string key under the namespace must not appear in stream listings.
	if err := client.Set(ctx, "nova:state:memory:pref", "x", 0).Err(); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	all, err := g.ListStreams(ctx, "")
	if err != nil {
		t.Fatalf("ListStreams failed: %v", err)
	}
	want := []string{"nova:devops:general:announce", "nova:task:build:results"}
	if len(all) != len(want) || all[0] != want[0] || all[1] != want[1] {
		t.Errorf("ListStreams = %v, want %v", all, want)
	}

	devops, err := g.ListStreams(ctx, "nova:devops:*")
	if err != nil {
		t.Fatalf("ListStreams pattern failed: %v", err)
	}
	if len(devops) != 1 || devops[0] != "nova:devops:general:announce" {
		t.Errorf("ListStreams pattern = %v", devops)
	}

	everything, err := g.ListStreams(ctx, "*")
	if err != nil {
		t.Fatalf("ListStreams * failed: %v", err)
	}
	if len(everything) != 3 {
		t.Errorf("ListStreams * = %v, want 3 streams", everything)
	}
}

func TestPublishRecoversFromTransientFailures(t *testing.T) {
	g, client := newTestGateway(t)

	client.FailNext(2)
	id := mustPublish(t, g, testStream, map[string]string{"n": "1"})
	if id == "" {
		t.Fatal("Publish returned empty id after recovery")
	}
}

func TestPublishBackendUnavailable(t *testing.T) {
	g, client := newTestGateway(t)

	client.SetDown(true)
	_, err := g.Publish(context.Background(), testStream, map[string]string{"n": "1"}, PublishOptions{})
	if !IsBackendUnavailable(err) {
		t.Fatalf("err = %v, want BackendUnavailableError", err)
	}
}

func TestStamp(t *testing.T) {
	fields := Stamp(context.Background(), map[string]string{"type": "event"}, "cli")

	if fields["type"] != "event" {
		t.Errorf("payload field lost: %v", fields)
	}
	if fields[FieldTimestamp] == "" {
		t.Error("timestamp not stamped")
	}
	if fields[FieldSource] != "cli" {
		t.Errorf("source = %q, want cli", fields[FieldSource])
	}
	if fields[FieldTraceID] == "" {
		t.Error("trace id not stamped")
	}

	preset := Stamp(context.Background(), map[string]string{FieldSource: "other"}, "cli")
	if preset[FieldSource] != "other" {
		t.Errorf("explicit source overwritten: %q", preset[FieldSource])
	}
}
