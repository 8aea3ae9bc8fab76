package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session record does not exist or has
// expired.
var ErrNotFound = errors.New("store: session not found")

// Record is the persisted metadata for one session.
type Record struct {
	SessionID    string         `json:"sessionId"`
	UserRequest  string         `json:"userRequest"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
}

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Store persists session metadata. Implementations must treat Put as an
// upsert that also refreshes the TTL, and must report expired records as
// ErrNotFound.
type Store interface {
	Get(ctx context.Context, sessionID string) (Record, error)
	Put(ctx context.Context, sessionID string, rec Record, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
	ListActive(ctx context.Context) ([]string, error)
	Close() error
}
