package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category classifies an entry for retention policy and listing filters.
type Category string

const (
	CategorySystem       Category = "system"
	CategoryUser         Category = "user"
	CategoryConversation Category = "conversation"
	CategoryTask         Category = "task"
	CategoryKnowledge    Category = "knowledge"
)

// DefaultCategory is applied when a write does not name one.
const DefaultCategory = CategoryUser

// Categories returns every valid category.
func Categories() []Category {
	return []Category{
		CategorySystem,
		CategoryUser,
		CategoryConversation,
		CategoryTask,
		CategoryKnowledge,
	}
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySystem, CategoryUser, CategoryConversation, CategoryTask, CategoryKnowledge:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }

// ParseCategory parses a category string. Unlike the write path, it does
// not default the empty string.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", &InvalidArgumentError{Field: "category", Reason: enumReason(s, Categories())}
	}
	return c, nil
}

// ResolveCategory applies the write-path default and validates the
// result.
func ResolveCategory(c Category) (Category, error) {
	if c == "" {
		return DefaultCategory, nil
	}
	if !c.Valid() {
		return "", &InvalidArgumentError{Field: "category", Reason: enumReason(string(c), Categories())}
	}
	return c, nil
}

// Priority orders entries for retention decisions.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DefaultPriority is applied when a write does not name one.
const DefaultPriority = PriorityMedium

// Priorities returns every valid priority.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
}

// Valid reports whether p is one of the fixed priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

func (p Priority) String() string { return string(p) }

// ParsePriority parses a priority string. Unlike the write path, it does
// not default the empty string.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", &InvalidArgumentError{Field: "priority", Reason: enumReason(s, Priorities())}
	}
	return p, nil
}

// ResolvePriority applies the write-path default and validates the
// result.
func ResolvePriority(p Priority) (Priority, error) {
	if p == "" {
		return DefaultPriority, nil
	}
	if !p.Valid() {
		return "", &InvalidArgumentError{Field: "priority", Reason: enumReason(string(p), Priorities())}
	}
	return p, nil
}

// Entry is one stored memory record.
type Entry struct {
	// Key is the logical memory key, without the state-store prefix.
	Key string `json:"key"`

	// Value is the stored document, kept as raw JSON.
	Value json.RawMessage `json:"value"`

	// Category groups entries for listing and retention.
	Category Category `json:"category"`

	// Priority ranks entries for retention decisions.
	Priority Priority `json:"priority"`

	// TTLSeconds records the expiry requested at write time, rounded down
	// to whole seconds. Zero means the entry does not expire. Expiry
	// itself is enforced by the backing store, not by this field.
	TTLSeconds int64 `json:"ttl_seconds,omitempty"`

	// StoredAt is the timestamp of the write that produced this revision.
	StoredAt time.Time `json:"stored_at"`
}

func enumReason[T ~string](got string, valid []T) string {
	if got == "" {
		got = "(empty)"
	}
	names := make([]string, len(valid))
	for i, v := range valid {
		names[i] = string(v)
	}
	return fmt.Sprintf("%s is not one of %s", got, strings.Join(names, ", "))
}
