// Package storage provides shared types for supervision-state storage.
//
// The concrete implementations live in the sqlite and mysql sub-packages.
// This package holds the interface and sentinel errors referenced by both
// the backends and their consumers (eventlog, monitor, escalation, cmd).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tammahq/tamma/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrStoreUnavailable is returned when the backend cannot currently serve
// reads or writes. It is an unknown-state condition, distinct from an empty
// result, and callers must fail closed rather than assume an empty log.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrSessionActive is returned when attempting to claim monitoring of a
// resource that already has an active session. The existing session should
// be looked up and reused.
var ErrSessionActive = errors.New("resource already has an active session")

// ErrSessionClosed is returned when writing to a session that has already
// reached a terminal status.
var ErrSessionClosed = errors.New("session already closed")

// ErrAlreadyResolved is returned on a second resolution attempt for the same
// escalation. Resolutions are recorded at most once.
var ErrAlreadyResolved = errors.New("escalation already resolved")

// ErrPayloadTooLarge is returned when an event payload exceeds the append
// limit. Oversized content belongs in external storage, referenced by a
// blob_key tag.
var ErrPayloadTooLarge = errors.New("event payload too large")

// Store is the interface satisfied by *sqlite.Store and *mysql.Store.
// Consumers depend on this interface rather than on the concrete types so
// that backends can be swapped per deployment.
type Store interface {
	// Events. AppendEvent persists one immutable event. The backend enforces
	// per-writer timestamp monotonicity inside the insert transaction: an
	// event whose timestamp does not advance the writer's high-water mark is
	// shifted forward one millisecond past it, and the adjusted value is
	// written back to the passed event. Events are never updated or deleted.
	AppendEvent(ctx context.Context, event *types.Event) error
	QueryEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error)

	// Sessions. CreateSession claims the per-resource arena slot and returns
	// ErrSessionActive when another active session holds it. CloseSession
	// releases the slot and sets the terminal status; closing an already
	// closed session returns ErrSessionClosed.
	CreateSession(ctx context.Context, session *types.MonitoringSession) error
	GetSession(ctx context.Context, id string) (*types.MonitoringSession, error)
	GetActiveSession(ctx context.Context, resourceID string) (*types.MonitoringSession, error)
	UpdateSessionSnapshot(ctx context.Context, id string, checkedAt time.Time, snapshot *types.ResourceStatus) error
	CloseSession(ctx context.Context, id string, status types.SessionStatus, endedAt time.Time) error
	ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.MonitoringSession, error)

	// Escalations. ResolveEscalation records the resolution only when none
	// exists yet; a second attempt returns ErrAlreadyResolved.
	CreateEscalation(ctx context.Context, esc *types.Escalation) error
	GetEscalation(ctx context.Context, id string) (*types.Escalation, error)
	ResolveEscalation(ctx context.Context, id string, res *types.Resolution) error
	ListEscalations(ctx context.Context, filter types.EscalationFilter) ([]*types.Escalation, error)

	// Configuration
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	// Lifecycle
	Close() error
}
