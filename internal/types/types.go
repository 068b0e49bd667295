// Package types defines core data structures for the tamma supervision engine.
package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Event is a single immutable entry in the audit log. Events are appended
// before the action they describe is taken and are never updated or deleted.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Writer    string            `json:"writer"`
	Tags      map[string]string `json:"tags,omitempty"`
	Metadata  EventMetadata     `json:"metadata,omitzero"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
}

// EventMetadata carries provenance for an event.
type EventMetadata struct {
	SchemaVersion int    `json:"schema_version,omitempty"`
	Source        string `json:"source,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Event type constants. Types are dotted paths: at least an aggregate and an
// action segment, with a status segment where one applies.
const (
	EventSessionStarted  = "SESSION.STARTED"
	EventSessionStopped  = "SESSION.STOPPED"
	EventSessionTimedOut = "SESSION.TIMED_OUT"

	EventPollFailed   = "MONITOR.POLL.FAILED"
	EventPollDegraded = "MONITOR.POLL.DEGRADED"

	EventStateChanged    = "RESOURCE.STATE.CHANGED"
	EventReviewReceived  = "RESOURCE.REVIEW.RECEIVED"
	EventCommentReceived = "RESOURCE.COMMENT.RECEIVED"
	EventMergeReady      = "RESOURCE.MERGE.READY"

	EventRetryAttemptFailed    = "RETRY.ATTEMPT.FAILED"
	EventRetryAttemptScheduled = "RETRY.ATTEMPT.SCHEDULED"

	EventRunSuccess           = "OPERATION.RUN.SUCCESS"
	EventRunSuccessAfterRetry = "OPERATION.RUN.SUCCESS_AFTER_RETRY"
	EventRunExhausted         = "OPERATION.RUN.EXHAUSTED"

	EventEscalationTriggered = "ESCALATION.TRIGGERED"
	EventEscalationResolved  = "ESCALATION.RESOLVED"
)

// CheckEventType builds the RESOURCE.CHECK.<STATUS> type for a check status.
func CheckEventType(status CheckStatus) string {
	return "RESOURCE.CHECK." + strings.ToUpper(string(status))
}

// Well-known tag keys. Tags are the queryable dimension of an event; payload
// content is not indexed.
const (
	TagResourceID     = "resource_id"
	TagSessionID      = "session_id"
	TagOperationID    = "operation_id"
	TagEscalationID   = "escalation_id"
	TagCheckID        = "check_id"
	TagClassification = "classification"
	TagAttempt        = "attempt"
	TagSeverity       = "severity"
	TagChannel        = "channel"
	TagBlobKey        = "blob_key"
)

var eventTypeRe = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)+$`)

// ValidEventType reports whether t is a well-formed dotted event type:
// two or more non-empty segments of letters, digits, underscores, hyphens.
func ValidEventType(t string) bool {
	return eventTypeRe.MatchString(t)
}

// Validate checks the structural invariants enforced at append time.
// Payload size limits are enforced by the event store, not here.
func (e *Event) Validate() error {
	if !ValidEventType(e.Type) {
		return fmt.Errorf("invalid event type %q: want DOTTED.PATH with at least two segments", e.Type)
	}
	if e.Writer == "" {
		return fmt.Errorf("event writer is required")
	}
	for k := range e.Tags {
		if k == "" {
			return fmt.Errorf("empty tag key")
		}
	}
	return nil
}

// Tag returns the value for key, or "" when absent.
func (e *Event) Tag(key string) string {
	if e.Tags == nil {
		return ""
	}
	return e.Tags[key]
}

// SessionStatus is the persisted state of a monitoring session.
type SessionStatus string

// Session status constants
const (
	SessionActive   SessionStatus = "active"
	SessionStopped  SessionStatus = "stopped"
	SessionTimedOut SessionStatus = "timed_out"
)

// IsValid checks if the session status value is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionStopped, SessionTimedOut:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStopped || s == SessionTimedOut
}

// MonitoringSession tracks supervision of one external resource. The
// last-known snapshot is a diff cache; the event log is the authority on
// what happened.
type MonitoringSession struct {
	ID            string          `json:"id"`
	ResourceID    string          `json:"resource_id"`
	Status        SessionStatus   `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	LastCheckedAt time.Time       `json:"last_checked_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	LastKnown     *ResourceStatus `json:"last_known,omitempty"`
}

// Elapsed returns how long the session has been (or was) running.
func (s *MonitoringSession) Elapsed(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
