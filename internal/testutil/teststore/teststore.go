// Package teststore provides SQLite-backed test helpers for supervision
// tests.
//
// Each test gets an isolated store in its own temp directory. All helper
// methods operate through the storage.Store interface, making tests
// backend-agnostic: the same helpers work against the mysql backend when a
// test wires one up explicitly.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    env := teststore.NewEnv(t)
//	    env.AppendEvent("SESSION.STARTED", "session-1", nil)
//	    env.AssertEventCount(types.EventFilter{TypePrefix: "SESSION"}, 1)
//	}
package teststore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/storage/sqlite"
	"github.com/tammahq/tamma/internal/types"
)

// New creates an isolated SQLite-backed storage.Store for a single test or
// benchmark. The store and its temp directory are cleaned up automatically
// when the test completes.
func New(t testing.TB) storage.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tamma-test.db")
	store, err := sqlite.New(context.Background(), path)
	if err != nil {
		t.Fatalf("teststore: failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Env provides a test environment with common setup and helpers.
type Env struct {
	t     *testing.T
	Store storage.Store
	Ctx   context.Context

	// Clock is the base timestamp for helper-created records; helpers
	// advance it one millisecond per record so ordering is deterministic.
	Clock time.Time
}

// NewEnv creates a new test environment backed by an isolated SQLite store.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	return &Env{
		t:     t,
		Store: New(t),
		Ctx:   context.Background(),
		Clock: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Tick advances the environment clock one millisecond and returns it.
func (e *Env) Tick() time.Time {
	e.Clock = e.Clock.Add(time.Millisecond)
	return e.Clock
}

// AppendEvent appends an event with the given type, writer, and tags using
// the environment clock. Returns the appended event.
func (e *Env) AppendEvent(eventType, writer string, tags map[string]string) *types.Event {
	e.t.Helper()
	ev := &types.Event{
		ID:        "ev-" + e.Tick().Format("150405.000"),
		Type:      eventType,
		Timestamp: e.Clock,
		Writer:    writer,
		Tags:      tags,
	}
	if err := e.Store.AppendEvent(e.Ctx, ev); err != nil {
		e.t.Fatalf("AppendEvent(%s) failed: %v", eventType, err)
	}
	return ev
}

// StartSession creates an active monitoring session for the resource.
func (e *Env) StartSession(sessionID, resourceID string) *types.MonitoringSession {
	e.t.Helper()
	session := &types.MonitoringSession{
		ID:         sessionID,
		ResourceID: resourceID,
		Status:     types.SessionActive,
		StartedAt:  e.Tick(),
	}
	if err := e.Store.CreateSession(e.Ctx, session); err != nil {
		e.t.Fatalf("CreateSession(%s) failed: %v", resourceID, err)
	}
	return session
}

// CreateEscalation creates an open escalation with sensible defaults.
func (e *Env) CreateEscalation(id string, escType types.EscalationType, severity types.Severity) *types.Escalation {
	e.t.Helper()
	esc := &types.Escalation{
		ID:        id,
		Type:      escType,
		Severity:  severity,
		Reason:    "test escalation",
		CreatedAt: e.Tick(),
	}
	if err := e.Store.CreateEscalation(e.Ctx, esc); err != nil {
		e.t.Fatalf("CreateEscalation(%s) failed: %v", id, err)
	}
	return esc
}

// QueryEvents returns events matching the filter or fails the test.
func (e *Env) QueryEvents(filter types.EventFilter) []*types.Event {
	e.t.Helper()
	events, err := e.Store.QueryEvents(e.Ctx, filter)
	if err != nil {
		e.t.Fatalf("QueryEvents failed: %v", err)
	}
	return events
}

// AssertEventCount asserts the number of events matching the filter.
func (e *Env) AssertEventCount(filter types.EventFilter, want int) {
	e.t.Helper()
	events := e.QueryEvents(filter)
	if len(events) != want {
		got := make([]string, 0, len(events))
		for _, ev := range events {
			got = append(got, ev.Type)
		}
		e.t.Errorf("got %d events %v, want %d", len(events), got, want)
	}
}

// AssertOrdered asserts events are ascending by (timestamp, id).
func (e *Env) AssertOrdered(events []*types.Event) {
	e.t.Helper()
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.Timestamp.Before(prev.Timestamp) ||
			(cur.Timestamp.Equal(prev.Timestamp) && cur.ID < prev.ID) {
			e.t.Errorf("events out of order at %d: %s@%v after %s@%v",
				i, cur.ID, cur.Timestamp, prev.ID, prev.Timestamp)
		}
	}
}
