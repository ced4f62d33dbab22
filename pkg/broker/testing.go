package broker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/novaops/redstream/pkg/memory"
	"github.com/novaops/redstream/pkg/naming"
	"github.com/novaops/redstream/pkg/state"
	"github.com/novaops/redstream/pkg/stream"
	"github.com/novaops/redstream/pkg/task"
)

// ConformanceSuite defines contract tests that can be run against any
// Broker implementation. The service broker and the direct fallback
// client must both pass it unchanged; a behavioral difference between
// them is a bug in whichever diverged, not a suite failure to paper
// over. NewBroker must return a fresh broker over an empty backend,
// configured for naming.DefaultNamespace, and register its own cleanup.
type ConformanceSuite struct {
	NewBroker func(t *testing.T) Broker
}

// RunAllTests runs every conformance test against the provided broker
// implementation.
func (s *ConformanceSuite) RunAllTests(t *testing.T) {
	t.Run("PublishReadRoundTrip", s.TestPublishReadRoundTrip)
	t.Run("ReadOrderingAndPaging", s.TestReadOrderingAndPaging)
	t.Run("PublishTrimsApproximately", s.TestPublishTrimsApproximately)
	t.Run("NamingRejected", s.TestNamingRejected)
	t.Run("LegacyNamesAccepted", s.TestLegacyNamesAccepted)
	t.Run("GroupCreateIdempotent", s.TestGroupCreateIdempotent)
	t.Run("AtLeastOnceDelivery", s.TestAtLeastOnceDelivery)
	t.Run("AcknowledgeRemovesPending", s.TestAcknowledgeRemovesPending)
	t.Run("CompetingConsumers", s.TestCompetingConsumers)
	t.Run("BlockingReadTimeout", s.TestBlockingReadTimeout)
	t.Run("ListStreams", s.TestListStreams)
	t.Run("StateRoundTrip", s.TestStateRoundTrip)
	t.Run("StateTTLExpiry", s.TestStateTTLExpiry)
	t.Run("MemoryScenario", s.TestMemoryScenario)
	t.Run("MemoryLifecycle", s.TestMemoryLifecycle)
	t.Run("TaskStateMachine", s.TestTaskStateMachine)
	t.Run("TaskLifecycle", s.TestTaskLifecycle)
}

// suiteStream builds a canonical stream name in the default namespace.
func suiteStream(domain, category, base string) string {
	return naming.DefaultNamespace + ":" + domain + ":" + category + ":" + base
}

func ptr[T any](v T) *T { return &v }

// TestPublishReadRoundTrip publishes one message and reads it back with
// field-for-field equality.
func (s *ConformanceSuite) TestPublishReadRoundTrip(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()
	streamName := suiteStream("devops", "general", "announce")

	fields := map[string]string{"type": "event", "content": "hello"}
	id, err := b.Publish(ctx, streamName, fields, stream.PublishOptions{})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a store-assigned message id")
	}

	msgs, err := b.Read(ctx, streamName, stream.ReadOptions{Count: 1, Reverse: true})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != id {
		t.Errorf("expected id %s, got %s", id, msgs[0].ID)
	}
	if len(msgs[0].Fields) != len(fields) {
		t.Errorf("expected %d fields, got %d", len(fields), len(msgs[0].Fields))
	}
	for k, v := range fields {
		if msgs[0].Fields[k] != v {
			t.Errorf("field %s: expected %q, got %q", k, v, msgs[0].Fields[k])
		}
	}
}

// TestReadOrderingAndPaging checks append-order reads, reverse reads, and
// caller-held since_id paging.
func (s *ConformanceSuite) TestReadOrderingAndPaging(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()
	streamName := suiteStream("agent", "worker", "inbox")

	ids := make([]string, 3)
	for i := range ids {
		id, err := b.Publish(ctx, streamName, map[string]string{"seq": string(rune('0' + i))}, stream.PublishOptions{})
		if err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
		ids[i] = id
	}

	// Forward reads follow append order.
	msgs, err := b.Read(ctx, streamName, stream.ReadOptions{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != ids[i] {
			t.Errorf("position %d: expected id %s, got %s", i, ids[i], m.ID)
		}
	}

	// Reverse returns newest first.
	msgs, err = b.Read(ctx, streamName, stream.ReadOptions{Reverse: true})
	if err != nil {
		t.Fatalf("Read (reverse) failed: %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != ids[2] || msgs[2].ID != ids[0] {
		t.Errorf("reverse read out of order: %+v", msgs)
	}

	// Paging from a caller-held cursor excludes the cursor entry itself.
	msgs, err = b.Read(ctx, streamName, stream.ReadOptions{SinceID: ids[0]})
	if err != nil {
		t.Fatalf("Read (since) failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != ids[1] {
		t.Errorf("expected the 2 entries after %s, got %+v", ids[0], msgs)
	}
}

// TestPublishTrimsApproximately publishes past a maxlen bound and checks
// the stream was trimmed from the oldest end. The trim is approximate;
// only the bound's direction is guaranteed.
func (s *ConformanceSuite) TestPublishTrimsApproximately(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()
	streamName := suiteStream("devops", "general", "firehose")

	var last string
	for i := 0; i < 5; i++ {
		id, err := b.Publish(ctx, streamName, map[string]string{"n": string(rune('0' + i))}, stream.PublishOptions{MaxLen: 3})
		if err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
		last = id
	}

	msgs, err := b.Read(ctx, streamName, stream.ReadOptions{Count: 100})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) < 3 || len(msgs) > 5 {
		t.Errorf("expected between 3 and 5 retained messages, got %d", len(msgs))
	}
	if msgs[len(msgs)-1].ID != last {
		t.Errorf("newest message must survive the trim: expected %s, got %s", last, msgs[len(msgs)-1].ID)
	}
}

// TestNamingRejected feeds grammar violations to several operations and
// expects InvalidNameError before any backend effect.
func (s *ConformanceSuite) TestNamingRejected(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()

	invalid := []string{
		"",
		"Nova:devops:general:announce",
		"nova:devops:general",
		"nova:devops:general:announce:extra",
		"nova:devops::announce",
		"nova:devops:general:an nounce",
		"other:devops:general:announce",
		"nova:dev0ps:general:announce",
	}
	for _, name := range invalid {
		if _, err := b.Publish(ctx, name, map[string]string{"k": "v"}, stream.PublishOptions{}); !naming.IsInvalidNameError(err) {
			t.Errorf("Publish(%q): expected InvalidNameError, got %v", name, err)
		}
		if _, err := b.Read(ctx, name, stream.ReadOptions{}); !naming.IsInvalidNameError(err) {
			t.Errorf("Read(%q): expected InvalidNameError, got %v", name, err)
		}
		if err := b.CreateConsumerGroup(ctx, name, "g", stream.GroupOptions{MkStream: true}); !naming.IsInvalidNameError(err) {
			t.Errorf("CreateConsumerGroup(%q): expected InvalidNameError, got %v", name, err)
		}
	}

	// Nothing may have reached the backend.
	streams, err := b.ListStreams(ctx, "")
	if err != nil {
		t.Fatalf("ListStreams failed: %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("expected no streams after rejected operations, got %v", streams)
	}
}

// TestLegacyNamesAccepted checks the dotted compatibility grammar works
// end to end.
func (s *ConformanceSuite) TestLegacyNamesAccepted(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()

	id, err := b.Publish(ctx, "task.created", map[string]string{"task": "t-1"}, stream.PublishOptions{})
	if err != nil {
		t.Fatalf("Publish to legacy name failed: %v", err)
	}
	msgs, err := b.Read(ctx, "task.created", stream.ReadOptions{})
	if err != nil {
		t.Fatalf("Read from legacy name failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != id {
		t.Errorf("expected the published message back, got %+v", msgs)
	}
}

// TestGroupCreateIdempotent creates the same group twice and verifies a
// single delivery cursor exists.
func (s *ConformanceSuite) TestGroupCreateIdempotent(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()
	streamName := suiteStream("agent", "worker", "jobs")

	for i := 0; i < 2; i++ {
		if err := b.CreateConsumerGroup(ctx, streamName, "workers", stream.GroupOptions{MkStream: true}); err != nil {
			t.Fatalf("CreateConsumerGroup call %d failed: %v", i+1, err)
		}
	}

	if _, err := b.Publish(ctx, streamName, map[string]string{"job": "a"}, stream.PublishOptions{}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs, err := b.ReadAsConsumer(ctx, streamName, "workers", "c1", stream.GroupReadOptions{})
	if err != nil {
		t.Fatalf("ReadAsConsumer failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(msgs))
	}

	// A second new-messages read proves there is one cursor, not two.
	msgs, err = b.ReadAsConsumer(ctx, streamName, "workers", "c1", stream.GroupReadOptions{})
	if err != nil {
		t.Fatalf("ReadAsConsumer (repeat) failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no redelivery from a single group cursor, got %d messages", len(msgs))
	}
}

// TestAtLeastOnceDelivery reads without acknowledging and finds the same
// messages again in the consumer's pending backlog.
func (s *ConformanceSuite) TestAtLeastOnceDelivery(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()
	streamName := suiteStream("task", "dispatch", "queue")

	if err := b.CreateConsumerGroup(ctx, streamName, "g", stream.GroupOptions{StartID: "0", MkStream: true}); err != nil {
		t.Fatalf("CreateConsumerGroup failed: %v", err)
	}

	published := make(map[string]bool, 3)
	for i := 0; i < 3; i++ {
		id, err := b.Publish(ctx, streamName, map[string]string{"n": string(rune('0' + i))}, stream.PublishOptions{})
		if err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
		published[id] = true
	}

	delivered, err := b.ReadAsConsumer(ctx, streamName, "g", "c1", stream.GroupReadOptions{Count: 10, StartID: stream.StartNewMessages})
	if err != nil {
		t.Fatalf("ReadAsConsumer (new) failed: %v", err)
	}
	if len(delivered) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(delivered))
	}

	pending, err := b.ReadAsConsumer(ctx, streamName, "g", "c1", stream.GroupReadOptions{Count: 10, StartID: stream.StartPending})
	if err != nil {
		t.Fatalf("ReadAsConsumer (pending) failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending messages, got %d", len(pending))
	}
	for _, m := range pending {
		if !published[m.ID] {
			t.Errorf("pending message %s was never published here", m.ID)
		}
	}
}

// TestAcknowledgeRemovesPending acknowledges one delivery and checks it
// leaves the pending backlog exactly once.
func (s *ConformanceSuite) TestAcknowledgeRemovesPending(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()
	streamName := suiteStream("task", "dispatch", "queue")

	if err := b.CreateConsumerGroup(ctx, streamName, "g", stream.GroupOptions{StartID: "0", MkStream: true}); err != nil {
		t.Fatalf("CreateConsumerGroup failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := b.Publish(ctx, streamName, map[string]string{"n": string(rune('0' + i))}, stream.PublishOptions{}); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	delivered, err := b.ReadAsConsumer(ctx, streamName, "g", "c1", stream.GroupReadOptions{Count: 10})
	if err != nil {
		t.Fatalf("ReadAsConsumer failed: %v", err)
	}
	if len(delivered) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(delivered))
	}

	acked, err := b.Acknowledge(ctx, streamName, "g", delivered[0].ID)
	if err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	if !acked {
		t.Error("expected the first acknowledge to report true")
	}

	pending, err := b.ReadAsConsumer(ctx, streamName, "g", "c1", stream.GroupReadOptions{Count: 10, StartID: stream.StartPending})
	if err != nil {
		t.Fatalf("ReadAsConsumer (pending) failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != delivered[1].ID {
		t.Errorf("expected only %s pending, got %+v", delivered[1].ID, pending)
	}

	// Acking an id that is no longer pending is false, not an error.
	acked, err = b.Acknowledge(ctx, streamName, "g", delivered[0].ID)
	if err != nil {
		t.Fatalf("Acknowledge (repeat) failed: %v", err)
	}
	if acked {
		t.Error("expected the repeated acknowledge to report false")
	}
}

// TestCompetingConsumers runs two consumers of one group concurrently and
// checks every message is delivered to exactly one of them.
func (s *ConformanceSuite) TestCompetingConsumers(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()
	streamName := suiteStream("task", "dispatch", "shared")

	if err := b.CreateConsumerGroup(ctx, streamName, "g", stream.GroupOptions{StartID: "0", MkStream: true}); err != nil {
		t.Fatalf("CreateConsumerGroup failed: %v", err)
	}
	published := make(map[string]bool, 10)
	for i := 0; i < 10; i++ {
		id, err := b.Publish(ctx, streamName, map[string]string{"n": string(rune('0' + i))}, stream.PublishOptions{})
		if err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
		published[id] = true
	}

	var (
		wg      sync.WaitGroup
		results = make([][]stream.Message, 2)
		errs    = make([]error, 2)
	)
	for i, consumer := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(slot int, consumer string) {
			defer wg.Done()
			results[slot], errs[slot] = b.ReadAsConsumer(ctx, streamName, "g", consumer, stream.GroupReadOptions{Count: 10})
		}(i, consumer)
	}
	wg.Wait()

	seen := make(map[string]bool, 10)
	total := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("consumer %d read failed: %v", i+1, errs[i])
		}
		for _, m := range results[i] {
			if seen[m.ID] {
				t.Errorf("message %s delivered to both consumers", m.ID)
			}
			if !published[m.ID] {
				t.Errorf("message %s was never published here", m.ID)
			}
			seen[m.ID] = true
			total++
		}
	}
	if total != 10 {
		t.Errorf("expected 10 deliveries across both consumers, got %d", total)
	}
}

// TestBlockingReadTimeout expects an elapsed block window to be an empty
// result, not an error.
func (s *ConformanceSuite) TestBlockingReadTimeout(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()
	streamName := suiteStream("agent", "worker", "idle")

	if err := b.CreateConsumerGroup(ctx, streamName, "g", stream.GroupOptions{MkStream: true}); err != nil {
		t.Fatalf("CreateConsumerGroup failed: %v", err)
	}

	msgs, err := b.ReadAsConsumer(ctx, streamName, "g", "c1", stream.GroupReadOptions{Block: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("blocking group read failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected an empty result on timeout, got %d messages", len(msgs))
	}

	msgs, err = b.Read(ctx, streamName, stream.ReadOptions{Block: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("blocking read failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected an empty result on timeout, got %d messages", len(msgs))
	}
}

// TestListStreams publishes to two streams and lists them by pattern.
func (s *ConformanceSuite) TestListStreams(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()

	announce := suiteStream("devops", "general", "announce")
	inbox := suiteStream("agent", "worker", "inbox")
	for _, name := range []string{announce, inbox} {
		if _, err := b.Publish(ctx, name, map[string]string{"k": "v"}, stream.PublishOptions{}); err != nil {
			t.Fatalf("Publish to %s failed: %v", name, err)
		}
	}

	streams, err := b.ListStreams(ctx, "")
	if err != nil {
		t.Fatalf("ListStreams failed: %v", err)
	}
	if len(streams) != 2 || streams[0] != inbox || streams[1] != announce {
		t.Errorf("expected sorted [%s %s], got %v", inbox, announce, streams)
	}

	streams, err = b.ListStreams(ctx, naming.DefaultNamespace+":devops:*")
	if err != nil {
		t.Fatalf("ListStreams (pattern) failed: %v", err)
	}
	if len(streams) != 1 || streams[0] != announce {
		t.Errorf("expected only %s, got %v", announce, streams)
	}
}

// TestStateRoundTrip writes, reads, and deletes a state value.
func (s *ConformanceSuite) TestStateRoundTrip(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()

	if err := b.SetState(ctx, "ui:mode", map[string]string{"mode": "dark"}, 0); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	raw, err := b.GetState(ctx, "ui:mode")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("stored state is not the JSON that was written: %v", err)
	}
	if got["mode"] != "dark" {
		t.Errorf("expected mode dark, got %q", got["mode"])
	}

	if _, err := b.GetState(ctx, "never-set"); !state.IsNotFound(err) {
		t.Errorf("expected NotFoundError for a missing key, got %v", err)
	}

	// Delete is idempotent.
	for i := 0; i < 2; i++ {
		if err := b.DeleteState(ctx, "ui:mode"); err != nil {
			t.Fatalf("DeleteState call %d failed: %v", i+1, err)
		}
	}
	if _, err := b.GetState(ctx, "ui:mode"); !state.IsNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}

// TestStateTTLExpiry checks native expiry surfaces as NotFound.
func (s *ConformanceSuite) TestStateTTLExpiry(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()

	if err := b.SetState(ctx, "ephemeral", "v", 50*time.Millisecond); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if _, err := b.GetState(ctx, "ephemeral"); err != nil {
		t.Fatalf("GetState before expiry failed: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	if _, err := b.GetState(ctx, "ephemeral"); !state.IsNotFound(err) {
		t.Errorf("expected NotFoundError after expiry, got %v", err)
	}
}

// TestMemoryScenario stores a preference, recalls it, and finds it in the
// category listing.
func (s *ConformanceSuite) TestMemoryScenario(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()

	opts := memory.RememberOptions{Category: memory.CategoryUser, Priority: memory.PriorityMedium}
	if err := b.Remember(ctx, "pref:theme", map[string]string{"theme": "dark"}, opts); err != nil {
		t.Fatalf("Remember failed: %v", err)
	}

	entry, err := b.Recall(ctx, "pref:theme")
	if err != nil {
		t.Fatalf("Recall failed: %v", err)
	}
	var value map[string]string
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		t.Fatalf("recalled value is not the JSON that was stored: %v", err)
	}
	if value["theme"] != "dark" {
		t.Errorf("expected theme dark, got %q", value["theme"])
	}
	if entry.Category != memory.CategoryUser || entry.Priority != memory.PriorityMedium {
		t.Errorf("expected user/medium, got %s/%s", entry.Category, entry.Priority)
	}

	entries, err := b.ListMemories(ctx, memory.CategoryUser)
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Key == "pref:theme" {
			found = true
		}
	}
	if !found {
		t.Error("expected pref:theme in the user category listing")
	}
}

// TestMemoryLifecycle checks forget semantics and enum validation.
func (s *ConformanceSuite) TestMemoryLifecycle(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()

	if err := b.Remember(ctx, "note", "remember me", memory.RememberOptions{}); err != nil {
		t.Fatalf("Remember failed: %v", err)
	}

	// Forget is idempotent; a recall afterwards is NotFound.
	for i := 0; i < 2; i++ {
		if err := b.Forget(ctx, "note"); err != nil {
			t.Fatalf("Forget call %d failed: %v", i+1, err)
		}
	}
	if _, err := b.Recall(ctx, "note"); !memory.IsNotFound(err) {
		t.Errorf("expected NotFoundError after forget, got %v", err)
	}

	if err := b.Remember(ctx, "note", "x", memory.RememberOptions{Category: "archive"}); !memory.IsInvalidArgument(err) {
		t.Errorf("expected InvalidArgumentError for an unknown category, got %v", err)
	}
	if _, err := b.ListMemories(ctx, "archive"); !memory.IsInvalidArgument(err) {
		t.Errorf("expected InvalidArgumentError for an unknown list category, got %v", err)
	}

	entries, err := b.ListMemories(ctx, "")
	if err != nil {
		t.Fatalf("ListMemories failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected an empty bank, got %d entries", len(entries))
	}
}

// TestTaskStateMachine drives a task into a terminal status and verifies
// the backward transition is rejected without corrupting the record.
func (s *ConformanceSuite) TestTaskStateMachine(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()

	created, err := b.CreateTask(ctx, task.CreateInput{Title: "deploy"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if created.Status != task.StatusCreated {
		t.Fatalf("expected status created, got %s", created.Status)
	}

	if _, err := b.UpdateTask(ctx, created.ID, task.Updates{Status: ptr(task.StatusCompleted)}); err != nil {
		t.Fatalf("UpdateTask to completed failed: %v", err)
	}

	_, err = b.UpdateTask(ctx, created.ID, task.Updates{Status: ptr(task.StatusInProgress)})
	if !task.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	got, err := b.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("status must remain completed after the rejected transition, got %s", got.Status)
	}
}

// TestTaskLifecycle exercises create, merge updates, completion, lookup,
// and filtered listing.
func (s *ConformanceSuite) TestTaskLifecycle(t *testing.T) {
	b := s.NewBroker(t)
	ctx := context.Background()

	created, err := b.CreateTask(ctx, task.CreateInput{
		Title:    "rotate keys",
		Priority: task.PriorityHigh,
		Assignee: "ops",
		Metadata: map[string]string{"team": "sre"},
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be assigned: %+v", created)
	}

	updated, err := b.UpdateTask(ctx, created.ID, task.Updates{
		Status:   ptr(task.StatusInProgress),
		Metadata: map[string]string{"runbook": "rb-7"},
	})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Status != task.StatusInProgress {
		t.Errorf("expected status in_progress, got %s", updated.Status)
	}
	if updated.Metadata["team"] != "sre" || updated.Metadata["runbook"] != "rb-7" {
		t.Errorf("expected merged metadata, got %v", updated.Metadata)
	}

	completed, err := b.CompleteTask(ctx, created.ID, "rotated 3 keys")
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if completed.Status != task.StatusCompleted || completed.Result != "rotated 3 keys" {
		t.Errorf("expected completed with result, got %s / %q", completed.Status, completed.Result)
	}

	if _, err := b.GetTask(ctx, "01zzzzzzzzzzzzzzzzzzzzzzzz"); !task.IsNotFound(err) {
		t.Errorf("expected NotFoundError for an unknown id, got %v", err)
	}

	second, err := b.CreateTask(ctx, task.CreateInput{Title: "verify rotation"})
	if err != nil {
		t.Fatalf("CreateTask (second) failed: %v", err)
	}

	all, err := b.ListTasks(ctx, task.Filter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != created.ID || all[1].ID != second.ID {
		t.Errorf("expected both tasks in creation order, got %+v", all)
	}

	done, err := b.ListTasks(ctx, task.Filter{Status: task.StatusCompleted})
	if err != nil {
		t.Fatalf("ListTasks (status) failed: %v", err)
	}
	if len(done) != 1 || done[0].ID != created.ID {
		t.Errorf("expected only the completed task, got %+v", done)
	}
}
