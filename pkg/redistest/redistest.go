// Package redistest provides an in-memory stand-in for the subset of Redis
// commands RedStream issues: streams with consumer groups, string values
// with expiry, and type-filtered key scans. Tests across the repository use
// it to exercise backend behavior without a live server; the fallback client
// and the broker service run against the same stand-in so the conformance
// suite can hold both to identical results.
package redistest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned by every command while the client is marked
// down via SetDown. It is a plain error, not a server reply, so error
// classification treats it like a connectivity failure.
var ErrUnavailable = errors.New("redistest: backend unavailable")

// replyError is a server error reply. It carries the redis.Error marker so
// classification code sees it exactly as it would see the real client's
// reply errors.
type replyError string

func (e replyError) Error() string { return string(e) }
func (e replyError) RedisError()   {}

type streamID struct {
	ms  uint64
	seq uint64
}

func (id streamID) String() string {
	return fmt.Sprintf("%d-%d", id.ms, id.seq)
}

func (id streamID) less(other streamID) bool {
	if id.ms != other.ms {
		return id.ms < other.ms
	}
	return id.seq < other.seq
}

type entry struct {
	id     streamID
	values map[string]interface{}
}

type pendingEntry struct {
	id       streamID
	consumer string
	delivery int64
}

type group struct {
	lastDelivered streamID
	pending       map[string]*pendingEntry
}

type stream struct {
	entries []entry
	lastID  streamID
	groups  map[string]*group
}

type stringValue struct {
	value    string
	expireAt time.Time
}

// Client implements the Redis commands RedStream uses against in-process
// maps. Unimplemented redis.Cmdable methods panic, which keeps accidental
// use of an unsupported command loud in tests.
type Client struct {
	redis.Cmdable

	mu       sync.Mutex
	streams  map[string]*stream
	strings  map[string]stringValue
	down     atomic.Bool
	failNext atomic.Int64
}

// New returns an empty in-memory client.
func New() *Client {
	return &Client{
		streams: make(map[string]*stream),
		strings: make(map[string]stringValue),
	}
}

// SetDown switches every subsequent command to fail with ErrUnavailable
// until called again with false.
func (c *Client) SetDown(down bool) {
	c.down.Store(down)
}

// FailNext makes the next n commands fail with ErrUnavailable before the
// client recovers. Used to exercise retry behavior.
func (c *Client) FailNext(n int64) {
	c.failNext.Store(n)
}

func (c *Client) failing() bool {
	if c.down.Load() {
		return true
	}
	for {
		n := c.failNext.Load()
		if n <= 0 {
			return false
		}
		if c.failNext.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// Groups lists the consumer groups of a stream. Test helper, not a Redis
// command.
func (c *Client) Groups(name string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// PendingCount reports the size of a group's pending set. Test helper.
func (c *Client) PendingCount(name, groupName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[name]
	if !ok {
		return 0
	}
	g, ok := s.groups[groupName]
	if !ok {
		return 0
	}
	return len(g.pending)
}

func (c *Client) Ping(_ context.Context) *redis.StatusCmd {
	if c.failing() {
		return redis.NewStatusResult("", ErrUnavailable)
	}
	return redis.NewStatusResult("PONG", nil)
}

func (c *Client) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if c.failing() {
		return redis.NewStringResult("", ErrUnavailable)
	}

	values, err := normalizeValues(a.Values)
	if err != nil {
		return redis.NewStringResult("", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[a.Stream]
	if !ok {
		if a.NoMkStream {
			return redis.NewStringResult("", redis.Nil)
		}
		s = &stream{groups: make(map[string]*group)}
		c.streams[a.Stream] = s
	}

	var id streamID
	if a.ID == "" || a.ID == "*" {
		id = nextID(s.lastID, uint64(time.Now().UnixMilli()))
	} else {
		parsed, err := parseID(a.ID, 0)
		if err != nil {
			return redis.NewStringResult("", err)
		}
		if !s.lastID.less(parsed) {
			return redis.NewStringResult("", replyError("ERR The ID specified in XADD is equal or smaller than the target stream top item"))
		}
		id = parsed
	}

	s.entries = append(s.entries, entry{id: id, values: values})
	s.lastID = id

	if a.MaxLen > 0 && int64(len(s.entries)) > a.MaxLen {
		s.entries = s.entries[int64(len(s.entries))-a.MaxLen:]
	}

	return redis.NewStringResult(id.String(), nil)
}

func (c *Client) XLen(_ context.Context, key string) *redis.IntCmd {
	if c.failing() {
		return redis.NewIntResult(0, ErrUnavailable)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[key]
	if !ok {
		return redis.NewIntResult(0, nil)
	}
	return redis.NewIntResult(int64(len(s.entries)), nil)
}

func (c *Client) XRange(ctx context.Context, key, start, stop string) *redis.XMessageSliceCmd {
	return c.xrange(key, start, stop, 0, false)
}

func (c *Client) XRangeN(_ context.Context, key, start, stop string, count int64) *redis.XMessageSliceCmd {
	return c.xrange(key, start, stop, count, false)
}

func (c *Client) XRevRange(_ context.Context, key, stop, start string) *redis.XMessageSliceCmd {
	return c.xrange(key, start, stop, 0, true)
}

func (c *Client) XRevRangeN(_ context.Context, key, stop, start string, count int64) *redis.XMessageSliceCmd {
	return c.xrange(key, start, stop, count, true)
}

func (c *Client) xrange(key, start, stop string, count int64, reverse bool) *redis.XMessageSliceCmd {
	if c.failing() {
		return redis.NewXMessageSliceCmdResult(nil, ErrUnavailable)
	}

	lo, exclusiveLo, err := parseRangeBound(start, true)
	if err != nil {
		return redis.NewXMessageSliceCmdResult(nil, err)
	}
	hi, exclusiveHi, err := parseRangeBound(stop, false)
	if err != nil {
		return redis.NewXMessageSliceCmdResult(nil, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[key]
	if !ok {
		return redis.NewXMessageSliceCmdResult([]redis.XMessage{}, nil)
	}

	var selected []redis.XMessage
	for _, e := range s.entries {
		if e.id.less(lo) || hi.less(e.id) {
			continue
		}
		if exclusiveLo && e.id == lo {
			continue
		}
		if exclusiveHi && e.id == hi {
			continue
		}
		selected = append(selected, toXMessage(e))
	}

	if reverse {
		for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
			selected[i], selected[j] = selected[j], selected[i]
		}
	}
	if count > 0 && int64(len(selected)) > count {
		selected = selected[:count]
	}
	if selected == nil {
		selected = []redis.XMessage{}
	}
	return redis.NewXMessageSliceCmdResult(selected, nil)
}

func (c *Client) XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd {
	if c.failing() {
		return redis.NewXStreamSliceCmdResult(nil, ErrUnavailable)
	}
	if len(a.Streams)%2 != 0 || len(a.Streams) == 0 {
		return redis.NewXStreamSliceCmdResult(nil, replyError("ERR Unbalanced XREAD list of streams"))
	}

	half := len(a.Streams) / 2
	keys := a.Streams[:half]
	ids := a.Streams[half:]

	// Resolve "$" to each stream's current tail before waiting.
	after := make([]streamID, half)
	for i, raw := range ids {
		if raw == "$" {
			c.mu.Lock()
			if s, ok := c.streams[keys[i]]; ok {
				after[i] = s.lastID
			}
			c.mu.Unlock()
			continue
		}
		id, err := parseID(strings.TrimPrefix(raw, "("), 0)
		if err != nil {
			return redis.NewXStreamSliceCmdResult(nil, err)
		}
		after[i] = id
	}

	deadline := time.Now().Add(a.Block)
	for {
		if c.failing() {
			return redis.NewXStreamSliceCmdResult(nil, ErrUnavailable)
		}

		c.mu.Lock()
		var out []redis.XStream
		for i, key := range keys {
			s, ok := c.streams[key]
			if !ok {
				continue
			}
			var msgs []redis.XMessage
			for _, e := range s.entries {
				if !after[i].less(e.id) {
					continue
				}
				msgs = append(msgs, toXMessage(e))
				if a.Count > 0 && int64(len(msgs)) == a.Count {
					break
				}
			}
			if len(msgs) > 0 {
				out = append(out, redis.XStream{Stream: key, Messages: msgs})
			}
		}
		c.mu.Unlock()

		if len(out) > 0 {
			return redis.NewXStreamSliceCmdResult(out, nil)
		}
		if a.Block < 0 {
			return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
		}
		if a.Block > 0 && time.Now().After(deadline) {
			return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
		}
		select {
		case <-ctx.Done():
			return redis.NewXStreamSliceCmdResult(nil, ctx.Err())
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (c *Client) XGroupCreate(_ context.Context, key, groupName, start string) *redis.StatusCmd {
	return c.groupCreate(key, groupName, start, false)
}

func (c *Client) XGroupCreateMkStream(_ context.Context, key, groupName, start string) *redis.StatusCmd {
	return c.groupCreate(key, groupName, start, true)
}

func (c *Client) groupCreate(key, groupName, start string, mkStream bool) *redis.StatusCmd {
	if c.failing() {
		return redis.NewStatusResult("", ErrUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[key]
	if !ok {
		if !mkStream {
			return redis.NewStatusResult("", replyError("ERR The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically."))
		}
		s = &stream{groups: make(map[string]*group)}
		c.streams[key] = s
	}

	if _, exists := s.groups[groupName]; exists {
		return redis.NewStatusResult("", replyError("BUSYGROUP Consumer Group name already exists"))
	}

	g := &group{pending: make(map[string]*pendingEntry)}
	switch start {
	case "$":
		g.lastDelivered = s.lastID
	case "0", "0-0", "":
	default:
		id, err := parseID(start, 0)
		if err != nil {
			return redis.NewStatusResult("", err)
		}
		g.lastDelivered = id
	}
	s.groups[groupName] = g
	return redis.NewStatusResult("OK", nil)
}

func (c *Client) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	if c.failing() {
		return redis.NewXStreamSliceCmdResult(nil, ErrUnavailable)
	}
	if len(a.Streams) != 2 {
		return redis.NewXStreamSliceCmdResult(nil, replyError("ERR Unbalanced XREADGROUP list of streams"))
	}
	key, offset := a.Streams[0], a.Streams[1]

	if offset != ">" {
		return c.readGroupPending(key, offset, a)
	}

	deadline := time.Now().Add(a.Block)
	for {
		if c.failing() {
			return redis.NewXStreamSliceCmdResult(nil, ErrUnavailable)
		}

		c.mu.Lock()
		s, ok := c.streams[key]
		if !ok {
			c.mu.Unlock()
			return redis.NewXStreamSliceCmdResult(nil, groupMissingErr(key, a.Group))
		}
		g, ok := s.groups[a.Group]
		if !ok {
			c.mu.Unlock()
			return redis.NewXStreamSliceCmdResult(nil, groupMissingErr(key, a.Group))
		}

		var msgs []redis.XMessage
		for _, e := range s.entries {
			if !g.lastDelivered.less(e.id) {
				continue
			}
			msgs = append(msgs, toXMessage(e))
			g.lastDelivered = e.id
			if !a.NoAck {
				g.pending[e.id.String()] = &pendingEntry{id: e.id, consumer: a.Consumer, delivery: 1}
			}
			if a.Count > 0 && int64(len(msgs)) == a.Count {
				break
			}
		}
		c.mu.Unlock()

		if len(msgs) > 0 {
			return redis.NewXStreamSliceCmdResult([]redis.XStream{{Stream: key, Messages: msgs}}, nil)
		}
		if a.Block < 0 {
			return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
		}
		if a.Block > 0 && time.Now().After(deadline) {
			return redis.NewXStreamSliceCmdResult(nil, redis.Nil)
		}
		select {
		case <-ctx.Done():
			return redis.NewXStreamSliceCmdResult(nil, ctx.Err())
		case <-time.After(2 * time.Millisecond):
		}
	}
}

// readGroupPending serves XREADGROUP with an explicit id: the calling
// consumer's own pending entries after that id. BLOCK does not apply here,
// matching the real server.
func (c *Client) readGroupPending(key, offset string, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	after, err := parseID(offset, 0)
	if err != nil {
		return redis.NewXStreamSliceCmdResult(nil, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[key]
	if !ok {
		return redis.NewXStreamSliceCmdResult(nil, groupMissingErr(key, a.Group))
	}
	g, ok := s.groups[a.Group]
	if !ok {
		return redis.NewXStreamSliceCmdResult(nil, groupMissingErr(key, a.Group))
	}

	var ids []streamID
	for _, p := range g.pending {
		if p.consumer != a.Consumer {
			continue
		}
		if p.id.less(after) || p.id == after {
			continue
		}
		ids = append(ids, p.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].less(ids[j]) })
	if a.Count > 0 && int64(len(ids)) > a.Count {
		ids = ids[:a.Count]
	}

	byID := make(map[streamID]entry, len(s.entries))
	for _, e := range s.entries {
		byID[e.id] = e
	}

	msgs := make([]redis.XMessage, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			msgs = append(msgs, toXMessage(e))
		} else {
			// Trimmed from the stream but still pending.
			msgs = append(msgs, redis.XMessage{ID: id.String()})
		}
	}

	// An empty pending backlog is an empty reply, not a nil one.
	return redis.NewXStreamSliceCmdResult([]redis.XStream{{Stream: key, Messages: msgs}}, nil)
}

func (c *Client) XAck(_ context.Context, key, groupName string, ids ...string) *redis.IntCmd {
	if c.failing() {
		return redis.NewIntResult(0, ErrUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[key]
	if !ok {
		return redis.NewIntResult(0, nil)
	}
	g, ok := s.groups[groupName]
	if !ok {
		return redis.NewIntResult(0, nil)
	}

	var acked int64
	for _, id := range ids {
		if _, pending := g.pending[id]; pending {
			delete(g.pending, id)
			acked++
		}
	}
	return redis.NewIntResult(acked, nil)
}

func (c *Client) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if c.failing() {
		return redis.NewStatusResult("", ErrUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sv := stringValue{value: normalizeValue(value)}
	if expiration > 0 {
		sv.expireAt = time.Now().Add(expiration)
	}
	c.strings[key] = sv
	return redis.NewStatusResult("OK", nil)
}

func (c *Client) Get(_ context.Context, key string) *redis.StringCmd {
	if c.failing() {
		return redis.NewStringResult("", ErrUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sv, ok := c.strings[key]
	if !ok || expired(sv) {
		delete(c.strings, key)
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(sv.value, nil)
}

func (c *Client) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if c.failing() {
		return redis.NewIntResult(0, ErrUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if sv, ok := c.strings[key]; ok {
			if !expired(sv) {
				removed++
			}
			delete(c.strings, key)
		}
		if _, ok := c.streams[key]; ok {
			delete(c.streams, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (c *Client) TTL(_ context.Context, key string) *redis.DurationCmd {
	if c.failing() {
		return redis.NewDurationResult(0, ErrUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sv, ok := c.strings[key]
	if !ok || expired(sv) {
		delete(c.strings, key)
		if _, isStream := c.streams[key]; isStream {
			return redis.NewDurationResult(time.Duration(-1), nil)
		}
		return redis.NewDurationResult(time.Duration(-2), nil)
	}
	if sv.expireAt.IsZero() {
		return redis.NewDurationResult(time.Duration(-1), nil)
	}
	return redis.NewDurationResult(time.Until(sv.expireAt), nil)
}

func (c *Client) ScanType(_ context.Context, cursor uint64, match string, count int64, keyType string) *redis.ScanCmd {
	if c.failing() {
		return redis.NewScanCmdResult(nil, 0, ErrUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	if keyType == "" || keyType == "stream" {
		for key := range c.streams {
			if globMatch(match, key) {
				keys = append(keys, key)
			}
		}
	}
	if keyType == "" || keyType == "string" {
		for key, sv := range c.strings {
			if expired(sv) {
				delete(c.strings, key)
				continue
			}
			if globMatch(match, key) {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return redis.NewScanCmdResult(keys, 0, nil)
}

func expired(sv stringValue) bool {
	return !sv.expireAt.IsZero() && time.Now().After(sv.expireAt)
}

func globMatch(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}

func toXMessage(e entry) redis.XMessage {
	values := make(map[string]interface{}, len(e.values))
	for k, v := range e.values {
		values[k] = v
	}
	return redis.XMessage{ID: e.id.String(), Values: values}
}

func nextID(last streamID, nowMs uint64) streamID {
	if nowMs > last.ms {
		return streamID{ms: nowMs}
	}
	return streamID{ms: last.ms, seq: last.seq + 1}
}

// parseID parses "ms-seq" or bare "ms", substituting defaultSeq for a
// missing sequence part.
func parseID(raw string, defaultSeq uint64) (streamID, error) {
	ms, seqPart, hasSeq := strings.Cut(raw, "-")
	id := streamID{seq: defaultSeq}

	var err error
	id.ms, err = strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return streamID{}, replyError("ERR Invalid stream ID specified as stream command argument")
	}
	if hasSeq {
		id.seq, err = strconv.ParseUint(seqPart, 10, 64)
		if err != nil {
			return streamID{}, replyError("ERR Invalid stream ID specified as stream command argument")
		}
	}
	return id, nil
}

func parseRangeBound(raw string, isStart bool) (streamID, bool, error) {
	exclusive := strings.HasPrefix(raw, "(")
	raw = strings.TrimPrefix(raw, "(")

	switch raw {
	case "-":
		return streamID{}, exclusive, nil
	case "+":
		return streamID{ms: ^uint64(0), seq: ^uint64(0)}, exclusive, nil
	}

	defaultSeq := uint64(0)
	if !isStart {
		defaultSeq = ^uint64(0)
	}
	id, err := parseID(raw, defaultSeq)
	return id, exclusive, err
}

func groupMissingErr(key, groupName string) error {
	return replyError(fmt.Sprintf("NOGROUP No such consumer group '%s' for key name '%s'", groupName, key))
}

func normalizeValues(v interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	switch vals := v.(type) {
	case map[string]interface{}:
		for k, val := range vals {
			out[k] = normalizeValue(val)
		}
	case []interface{}:
		if len(vals)%2 != 0 {
			return nil, replyError("ERR wrong number of arguments for 'xadd' command")
		}
		for i := 0; i < len(vals); i += 2 {
			out[normalizeValue(vals[i])] = normalizeValue(vals[i+1])
		}
	case []string:
		if len(vals)%2 != 0 {
			return nil, replyError("ERR wrong number of arguments for 'xadd' command")
		}
		for i := 0; i < len(vals); i += 2 {
			out[vals[i]] = vals[i+1]
		}
	default:
		return nil, fmt.Errorf("redistest: unsupported XADD values type %T", v)
	}
	return out, nil
}

func normalizeValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
