// Package models defines API request/response data structures.
package models

import "github.com/novaops/redstream/pkg/stream"

// PublishRequest carries the fields for a message append.
type PublishRequest struct {
	// Fields is the flat field map to append. Keys must be valid labels.
	Fields map[string]string `json:"fields" validate:"required,min=1"`
}

// PublishResponse returns the id the backend assigned.
type PublishResponse struct {
	// ID is the backend-assigned message id.
	ID string `json:"id"`

	// Stream is the stream the message landed on.
	Stream string `json:"stream"`
}

// MessagesResponse carries a batch of read messages.
type MessagesResponse struct {
	Stream   string           `json:"stream"`
	Messages []stream.Message `json:"messages"`
	Count    int              `json:"count"`
}

// StreamListResponse lists the streams visible to the server.
type StreamListResponse struct {
	Streams []string `json:"streams"`
	Total   int      `json:"total"`
}

// CreateGroupRequest names a consumer group to create.
type CreateGroupRequest struct {
	// Group is the consumer group name.
	Group string `json:"group" validate:"required,min=1"`

	// StartID positions the group cursor: "$" for new messages only
	// (the default), "0" for the full history.
	StartID string `json:"start_id,omitempty"`

	// MkStream creates the stream when it does not exist yet.
	MkStream bool `json:"mkstream,omitempty"`
}

// GroupReadRequest asks for the next batch on behalf of a consumer.
type GroupReadRequest struct {
	// Count caps the number of messages returned.
	Count int64 `json:"count,omitempty" validate:"omitempty,min=1"`

	// BlockMS is how long to wait for new messages, in milliseconds.
	// Zero returns immediately.
	BlockMS int64 `json:"block_ms,omitempty" validate:"omitempty,min=0"`

	// StartID selects new messages (">", the default) or the
	// consumer's pending entries ("0").
	StartID string `json:"start_id,omitempty"`

	// NoAck skips pending-list tracking for this read.
	NoAck bool `json:"no_ack,omitempty"`
}

// AckRequest acknowledges one message for a consumer group.
type AckRequest struct {
	// ID is the message id to acknowledge.
	ID string `json:"id" validate:"required"`
}

// AckResponse reports whether the ack removed a pending entry.
type AckResponse struct {
	Acknowledged bool `json:"acknowledged"`
}
