// Package eventlog implements the append-only audit log over a storage
// backend: validation and identity at append time, filtered queries with
// cursor resumption, and live tail subscriptions.
//
// Events are the engine's source of truth. Every state transition is
// appended here before the action it describes is taken, so a crash between
// the two leaves evidence of intent rather than an unexplained action.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/types"
)

// MaxPayloadBytes bounds the marshaled payload accepted at append time.
// Larger content (build logs, diffs) belongs in external storage, referenced
// by a blob_key tag.
const MaxPayloadBytes = 64 * 1024

// DefaultTailBuffer is the per-subscriber buffer for live tails. A
// subscriber that falls further behind than this loses events (counted and
// logged) rather than stalling appends.
const DefaultTailBuffer = 256

// Log wraps a storage backend with event-store semantics.
type Log struct {
	store  storage.Store
	logger *slog.Logger

	hub hub
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger used for subscriber drop warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// WithTailBuffer overrides the per-subscriber buffer size.
func WithTailBuffer(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.hub.bufSize = n
		}
	}
}

// New creates a Log over the given store.
func New(store storage.Store, opts ...Option) *Log {
	l := &Log{
		store:  store,
		logger: slog.Default(),
	}
	l.hub.bufSize = DefaultTailBuffer
	for _, opt := range opts {
		opt(l)
	}
	l.hub.logger = l.logger
	return l
}

// Append validates and persists one event, then publishes it to live
// subscribers. The event's ID (UUIDv7) and timestamp are assigned here when
// absent; the store may shift the timestamp forward to keep the writer's
// clock monotonic, and the final value is reflected in the passed event.
//
// An append failure means the action the event describes must not proceed.
func (l *Log) Append(ctx context.Context, event *types.Event) (string, error) {
	if err := event.Validate(); err != nil {
		return "", fmt.Errorf("invalid event: %w", err)
	}
	if len(event.Payload) > MaxPayloadBytes {
		return "", fmt.Errorf("payload is %d bytes (limit %d): %w", len(event.Payload), MaxPayloadBytes, storage.ErrPayloadTooLarge)
	}
	if len(event.Payload) > 0 && !json.Valid(event.Payload) {
		return "", fmt.Errorf("payload for %s is not valid JSON", event.Type)
	}

	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generating event id: %w", err)
		}
		event.ID = id.String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := l.store.AppendEvent(ctx, event); err != nil {
		return "", fmt.Errorf("appending %s: %w", event.Type, err)
	}

	l.hub.publish(event)
	return event.ID, nil
}

// Query returns events matching the filter, ascending by (timestamp, id).
// The last element's (Timestamp, ID) is the cursor for the next page.
func (l *Log) Query(ctx context.Context, filter types.EventFilter) ([]*types.Event, error) {
	return l.store.QueryEvents(ctx, filter)
}
