// Package memory implements the memory bank: categorized, prioritized,
// optionally-expiring entries kept in the state store for fast lookup,
// with every write audited to a fixed operations stream. Reads are not
// audited, so hot keys do not amplify into stream writes.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/novaops/redstream/pkg/naming"
	"github.com/novaops/redstream/pkg/state"
	"github.com/novaops/redstream/pkg/stream"
)

// KeyPrefix namespaces memory entries inside the state keyspace. Every
// write path stores entries under it, so listings see one keyspace no
// matter which implementation wrote them.
const KeyPrefix = "memory:"

// DefaultAuditMaxLen caps the audit stream when no cap is configured.
const DefaultAuditMaxLen = 10000

// DefaultSource is the _source stamped on audit messages by default.
const DefaultSource = "memory-bank"

// Audit message field names and operation values. Consumers tailing the
// operations stream key off these.
const (
	AuditFieldOp       = "op"
	AuditFieldKey      = "key"
	AuditFieldCategory = "category"
	AuditFieldPriority = "priority"

	AuditOpStore  = "store"
	AuditOpDelete = "delete"
)

// Config holds bank settings.
type Config struct {
	// Source is the _source stamped on audit messages. Empty selects
	// DefaultSource.
	Source string

	// AuditMaxLen trims the audit stream to approximately this many
	// entries on every append. Zero selects DefaultAuditMaxLen; negative
	// disables trimming.
	AuditMaxLen int64
}

// DefaultConfig returns bank settings with the default audit cap.
func DefaultConfig() *Config {
	return &Config{Source: DefaultSource, AuditMaxLen: DefaultAuditMaxLen}
}

// AuditStreamName returns the fixed operations stream for memory audits
// under the validator's namespace. Both write paths derive the name
// here.
func AuditStreamName(v *naming.Validator) (string, error) {
	return v.Build(naming.DomainSystem, "memory", "bank")
}

// Bank stores memory entries through the state store and audits every
// write through the stream gateway. Concurrent use is safe; concurrent
// writes to the same key are last-writer-wins.
type Bank struct {
	store       *state.Store
	gateway     *stream.Gateway
	auditStream string
	source      string
	auditMaxLen int64
}

// New creates a Bank over the given state store and stream gateway. The
// audit stream name is derived from the gateway's namespace.
func New(store *state.Store, gateway *stream.Gateway, cfg *Config) (*Bank, error) {
	if store == nil {
		return nil, fmt.Errorf("state store cannot be nil")
	}
	if gateway == nil {
		return nil, fmt.Errorf("stream gateway cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	auditStream, err := AuditStreamName(gateway.Validator())
	if err != nil {
		return nil, fmt.Errorf("audit stream name: %w", err)
	}

	source := cfg.Source
	if source == "" {
		source = DefaultSource
	}
	maxLen := cfg.AuditMaxLen
	if maxLen == 0 {
		maxLen = DefaultAuditMaxLen
	}
	if maxLen < 0 {
		maxLen = 0
	}

	return &Bank{
		store:       store,
		gateway:     gateway,
		auditStream: auditStream,
		source:      source,
		auditMaxLen: maxLen,
	}, nil
}

// AuditStream returns the operations stream the bank appends audits to.
func (b *Bank) AuditStream() string {
	return b.auditStream
}

// RememberOptions control how an entry is stored.
type RememberOptions struct {
	// Category classifies the entry. Empty selects DefaultCategory.
	Category Category

	// Priority ranks the entry. Empty selects DefaultPriority.
	Priority Priority

	// TTL expires the entry after this duration. Zero or negative stores
	// it without expiry.
	TTL time.Duration
}

// NewEntry validates and normalizes a remember call into the entry that
// gets persisted, plus the effective expiry for the state write. Every
// write path builds entries here, so stored records are identical no
// matter which implementation wrote them.
func NewEntry(key string, value interface{}, opts RememberOptions) (*Entry, time.Duration, error) {
	if err := ValidateKey(key); err != nil {
		return nil, 0, err
	}
	category, err := ResolveCategory(opts.Category)
	if err != nil {
		return nil, 0, err
	}
	priority, err := ResolvePriority(opts.Priority)
	if err != nil {
		return nil, 0, err
	}
	raw, err := NormalizeValue(value)
	if err != nil {
		return nil, 0, err
	}

	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &Entry{
		Key:        key,
		Value:      raw,
		Category:   category,
		Priority:   priority,
		TTLSeconds: int64(ttl.Seconds()),
		StoredAt:   time.Now().UTC(),
	}, ttl, nil
}

// Remember stores an entry under key, overwriting any previous revision,
// and appends a store audit message. value may be any JSON-serializable
// Go value or pre-encoded raw JSON. The state write and the audit append
// are not atomic: a failed audit leaves the entry stored and surfaces the
// audit error, and since Remember overwrites, retrying it is safe.
func (b *Bank) Remember(ctx context.Context, key string, value interface{}, opts RememberOptions) error {
	entry, ttl, err := NewEntry(key, value, opts)
	if err != nil {
		return err
	}
	if err := b.store.Set(ctx, KeyPrefix+key, entry, ttl); err != nil {
		return err
	}

	return b.audit(ctx, map[string]string{
		AuditFieldOp:       AuditOpStore,
		AuditFieldKey:      key,
		AuditFieldCategory: string(entry.Category),
		AuditFieldPriority: string(entry.Priority),
	})
}

// Recall returns the entry stored under key without touching the audit
// stream.
func (b *Bank) Recall(ctx context.Context, key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var entry Entry
	if err := b.store.Get(ctx, KeyPrefix+key, &entry); err != nil {
		if state.IsNotFound(err) {
			return nil, &NotFoundError{Key: key}
		}
		return nil, err
	}
	return &entry, nil
}

// Forget deletes the entry stored under key and appends a delete audit
// message. Forgetting an absent key is a success and is still audited;
// the audit trail records operations, not their effect.
func (b *Bank) Forget(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := b.store.Delete(ctx, KeyPrefix+key); err != nil {
		return err
	}

	return b.audit(ctx, map[string]string{
		AuditFieldOp:  AuditOpDelete,
		AuditFieldKey: key,
	})
}

// List returns the stored entries, sorted by key, optionally restricted
// to one category. This is a linear scan over the memory keyspace, sized
// for hundreds to low thousands of entries.
func (b *Bank) List(ctx context.Context, category Category) ([]*Entry, error) {
	if category != "" && !category.Valid() {
		return nil, &InvalidArgumentError{Field: "category", Reason: enumReason(string(category), Categories())}
	}

	keys, err := b.store.Keys(ctx, KeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(keys))
	for _, k := range keys {
		var entry Entry
		if err := b.store.Get(ctx, k, &entry); err != nil {
			if state.IsNotFound(err) {
				// Expired or forgotten between the scan and the read.
				continue
			}
			return nil, err
		}
		if category != "" && entry.Category != category {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (b *Bank) audit(ctx context.Context, fields map[string]string) error {
	stamped := stream.Stamp(ctx, fields, b.source)
	_, err := b.gateway.Publish(ctx, b.auditStream, stamped, stream.PublishOptions{MaxLen: b.auditMaxLen})
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

// NormalizeValue coerces a remember value into raw JSON: pre-encoded
// bytes are checked for validity, anything else is marshaled.
func NormalizeValue(value interface{}) (json.RawMessage, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, &InvalidArgumentError{Field: "value", Reason: "not valid JSON"}
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, &InvalidArgumentError{Field: "value", Reason: "not valid JSON"}
		}
		return json.RawMessage(v), nil
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, &InvalidArgumentError{Field: "value", Reason: err.Error()}
		}
		return raw, nil
	}
}

// ValidateKey checks a memory key: non-empty, no whitespace, no
// wildcards. Colons are allowed, so keys like "pref:theme" work.
func ValidateKey(key string) error {
	if key == "" {
		return &InvalidArgumentError{Field: "key", Reason: "must not be empty"}
	}
	if strings.ContainsFunc(key, unicode.IsSpace) {
		return &InvalidArgumentError{Field: "key", Reason: "must not contain whitespace"}
	}
	if strings.Contains(key, "*") {
		return &InvalidArgumentError{Field: "key", Reason: "must not contain *"}
	}
	return nil
}
