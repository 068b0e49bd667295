package types

import "time"

// EscalationType identifies what condition raised the escalation.
type EscalationType string

// Escalation type constants
const (
	EscalationRetryExhausted  EscalationType = "retry_exhausted"
	EscalationCIFailure       EscalationType = "ci_failure"
	EscalationReviewBlocking  EscalationType = "review_blocking"
	EscalationMergeConflict   EscalationType = "merge_conflict"
	EscalationTimeout         EscalationType = "timeout"
	EscalationApprovalTimeout EscalationType = "approval_timeout"
)

// IsValid checks if the escalation type value is valid
func (t EscalationType) IsValid() bool {
	switch t {
	case EscalationRetryExhausted, EscalationCIFailure, EscalationReviewBlocking,
		EscalationMergeConflict, EscalationTimeout, EscalationApprovalTimeout:
		return true
	}
	return false
}

// Severity ranks how urgently a human should look at an escalation.
type Severity string

// Severity constants, lowest to highest
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank maps severity to an ordinal for comparisons. Unknown values rank
// lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// ResolutionAction is what the resolver asked the engine to do next.
type ResolutionAction string

// Resolution action constants
const (
	ActionResume  ResolutionAction = "resume"
	ActionStop    ResolutionAction = "stop"
	ActionDismiss ResolutionAction = "dismiss"
)

// IsValid checks if the resolution action value is valid
func (a ResolutionAction) IsValid() bool {
	switch a {
	case ActionResume, ActionStop, ActionDismiss:
		return true
	}
	return false
}

// Resolution records the human (or automated) response to an escalation.
// An escalation is resolved at most once.
type Resolution struct {
	Actor       string           `json:"actor"`
	Action      ResolutionAction `json:"action"`
	Description string           `json:"description,omitempty"`
	Channel     string           `json:"channel,omitempty"`
	ResolvedAt  time.Time        `json:"resolved_at"`
}

// Escalation is a request for human attention, created when automated
// handling gives up. Severity is fixed at creation; a recurring condition
// raises a new escalation rather than mutating an old one.
type Escalation struct {
	ID           string         `json:"id"`
	Type         EscalationType `json:"type"`
	Severity     Severity       `json:"severity"`
	ResourceID   string         `json:"resource_id,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	OperationID  string         `json:"operation_id,omitempty"`
	Reason       string         `json:"reason"`
	RetryHistory []RetryAttempt `json:"retry_history,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Resolution   *Resolution    `json:"resolution,omitempty"`
}

// Resolved reports whether a resolution has been recorded.
func (e *Escalation) Resolved() bool {
	return e.Resolution != nil
}
