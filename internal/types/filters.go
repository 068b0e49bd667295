package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is a resumption point in the event log: the (timestamp, id) pair of
// the last event already seen. Queries filtered by a cursor return events
// strictly after it in log order.
type Cursor struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
}

// String encodes the cursor as "unixmilli:id" for CLI flags and checkpoints.
func (c Cursor) String() string {
	return fmt.Sprintf("%d:%s", c.Timestamp.UnixMilli(), c.ID)
}

// ParseCursor decodes a cursor produced by Cursor.String.
func ParseCursor(s string) (Cursor, error) {
	ms, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("invalid cursor %q: want unixmilli:id", s)
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor timestamp %q: %w", ms, err)
	}
	return Cursor{Timestamp: time.UnixMilli(n).UTC(), ID: id}, nil
}

// EventFilter selects events from the log. Zero-value fields do not filter.
// Results are always ordered ascending by (timestamp, id).
type EventFilter struct {
	// TypePrefix matches the event type itself or any dotted prefix of it,
	// so "RETRY" matches RETRY.ATTEMPT.FAILED but not RETRYX.FOO.
	TypePrefix string            `json:"type_prefix,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Writer     string            `json:"writer,omitempty"`
	Since      *time.Time        `json:"since,omitempty"`
	Until      *time.Time        `json:"until,omitempty"`
	After      *Cursor           `json:"after,omitempty"`
	Limit      int               `json:"limit,omitempty"`
}

// MatchesType reports whether eventType satisfies the TypePrefix filter.
func (f *EventFilter) MatchesType(eventType string) bool {
	if f.TypePrefix == "" {
		return true
	}
	if eventType == f.TypePrefix {
		return true
	}
	return strings.HasPrefix(eventType, f.TypePrefix+".")
}

// Matches reports whether an event satisfies every filter dimension. The SQL
// backends push these predicates into queries; this form serves the tail
// path, where events are matched in memory as they are published.
func (f *EventFilter) Matches(e *Event) bool {
	if !f.MatchesType(e.Type) {
		return false
	}
	if f.Writer != "" && e.Writer != f.Writer {
		return false
	}
	for k, v := range f.Tags {
		if e.Tag(k) != v {
			return false
		}
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	if f.After != nil {
		if e.Timestamp.Before(f.After.Timestamp) {
			return false
		}
		if e.Timestamp.Equal(f.After.Timestamp) && e.ID <= f.After.ID {
			return false
		}
	}
	return true
}

// SessionFilter selects monitoring sessions.
type SessionFilter struct {
	ResourceID string        `json:"resource_id,omitempty"`
	Status     SessionStatus `json:"status,omitempty"`
	Limit      int           `json:"limit,omitempty"`
}

// EscalationFilter selects escalations. Resolved nil means both open and
// resolved.
type EscalationFilter struct {
	ResourceID string         `json:"resource_id,omitempty"`
	Type       EscalationType `json:"type,omitempty"`
	Severity   Severity       `json:"severity,omitempty"`
	Resolved   *bool          `json:"resolved,omitempty"`
	Limit      int            `json:"limit,omitempty"`
}
