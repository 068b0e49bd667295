// Package tamma provides a minimal public API for embedding the supervision
// engine in other Go programs.
//
// Most integrations should drive the tamma CLI; this package exports only
// the essential types and the store constructor needed to read the audit
// log and escalation state programmatically.
package tamma

import (
	"context"

	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/storage/sqlite"
	"github.com/tammahq/tamma/internal/types"
)

// Core types for working with the audit log and escalations
type (
	Event             = types.Event
	EventFilter       = types.EventFilter
	Cursor            = types.Cursor
	MonitoringSession = types.MonitoringSession
	SessionFilter     = types.SessionFilter
	Escalation        = types.Escalation
	EscalationFilter  = types.EscalationFilter
	Resolution        = types.Resolution
	RetryContext      = types.RetryContext
)

// Session status constants
const (
	SessionActive   = types.SessionActive
	SessionStopped  = types.SessionStopped
	SessionTimedOut = types.SessionTimedOut
)

// Severity constants
const (
	SeverityLow      = types.SeverityLow
	SeverityMedium   = types.SeverityMedium
	SeverityHigh     = types.SeverityHigh
	SeverityCritical = types.SeverityCritical
)

// Store provides the persistence interface for embedding integrations
type Store = storage.Store

// Open opens a tamma SQLite database for programmatic access. Most
// integrations use this to query events and inspect open escalations.
func Open(ctx context.Context, dbPath string) (Store, error) {
	return sqlite.New(ctx, dbPath)
}

// ParseCursor parses a "unixmilli:id" cursor produced by Cursor.String.
func ParseCursor(s string) (Cursor, error) {
	return types.ParseCursor(s)
}
