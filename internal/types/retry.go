package types

import "time"

// ErrorClassification is the category assigned to an operation failure. The
// category, not the raw error, drives retry and escalation policy.
type ErrorClassification string

// Retryable classifications
const (
	ClassNetworkTimeout        ErrorClassification = "network_timeout"
	ClassTemporaryFailure      ErrorClassification = "temporary_failure"
	ClassRateLimited           ErrorClassification = "rate_limited"
	ClassResourceExhausted     ErrorClassification = "resource_exhausted"
	ClassDependencyUnavailable ErrorClassification = "dependency_unavailable"
	ClassBuildTimeout          ErrorClassification = "build_timeout"
	ClassCompilationError      ErrorClassification = "compilation_error"
	ClassTestFailure           ErrorClassification = "test_failure"
)

// Non-retryable classifications
const (
	ClassAuthenticationFailed ErrorClassification = "authentication_failed"
	ClassConfigurationError   ErrorClassification = "configuration_error"
	ClassMissingDependency    ErrorClassification = "missing_dependency"
	ClassInvalidCredentials   ErrorClassification = "invalid_credentials"
	ClassPermissionDenied     ErrorClassification = "permission_denied"
	ClassSyntaxError          ErrorClassification = "syntax_error"
)

// Retryable reports whether failures in this category may be retried.
func (c ErrorClassification) Retryable() bool {
	switch c {
	case ClassNetworkTimeout, ClassTemporaryFailure, ClassRateLimited,
		ClassResourceExhausted, ClassDependencyUnavailable, ClassBuildTimeout,
		ClassCompilationError, ClassTestFailure:
		return true
	}
	return false
}

// IsValid checks if the classification value is valid
func (c ErrorClassification) IsValid() bool {
	if c.Retryable() {
		return true
	}
	switch c {
	case ClassAuthenticationFailed, ClassConfigurationError, ClassMissingDependency,
		ClassInvalidCredentials, ClassPermissionDenied, ClassSyntaxError:
		return true
	}
	return false
}

// BackoffStrategy selects how retry delays grow across attempts.
type BackoffStrategy string

// Backoff strategy constants
const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffImmediate   BackoffStrategy = "immediate"
)

// IsValid checks if the backoff strategy value is valid
func (s BackoffStrategy) IsValid() bool {
	switch s {
	case BackoffExponential, BackoffLinear, BackoffFixed, BackoffImmediate:
		return true
	}
	return false
}

// RetryContext carries the per-invocation retry state for one operation. It
// lives only in memory; the durable history is the event log.
type RetryContext struct {
	OperationID   string          `json:"operation_id"`
	OperationKind string          `json:"operation_kind,omitempty"`
	AttemptCount  int             `json:"attempt_count"`
	MaxAttempts   int             `json:"max_attempts"`
	Strategy      BackoffStrategy `json:"strategy,omitempty"`
	BaseDelay     time.Duration   `json:"base_delay"`
	MaxDelay      time.Duration   `json:"max_delay"`

	// Optional per-operation pattern overrides, checked before the built-in
	// classification table.
	RetryablePatterns    []string `json:"retryable_patterns,omitempty"`
	NonRetryablePatterns []string `json:"non_retryable_patterns,omitempty"`

	Attempts []RetryAttempt `json:"attempts,omitempty"`
}

// Exhausted reports whether the attempt budget is spent.
func (rc *RetryContext) Exhausted() bool {
	return rc.AttemptCount >= rc.MaxAttempts
}

// RetryAttempt records one failed attempt of an operation.
type RetryAttempt struct {
	Attempt        int                 `json:"attempt"`
	Error          string              `json:"error"`
	Classification ErrorClassification `json:"classification"`
	At             time.Time           `json:"at"`
	Delay          time.Duration       `json:"delay"`
}

// RetryDecision is the engine's answer to "should this failure be retried".
type RetryDecision struct {
	ShouldRetry    bool                `json:"should_retry"`
	Reason         string              `json:"reason"`
	Classification ErrorClassification `json:"classification"`
	Delay          time.Duration       `json:"delay"`
	NextAttemptAt  time.Time           `json:"next_attempt_at,omitzero"`
}

// RetryOutcome is how a retried invocation ended.
type RetryOutcome string

// Retry outcome constants
const (
	OutcomeSuccess           RetryOutcome = "success"
	OutcomeSuccessAfterRetry RetryOutcome = "success_after_retry"
	OutcomeExhausted         RetryOutcome = "exhausted"
	OutcomeNonRetryable      RetryOutcome = "non_retryable"
	OutcomeAborted           RetryOutcome = "aborted"
)

// RetryResult summarizes a completed ExecuteWithRetry invocation.
type RetryResult struct {
	Outcome      RetryOutcome   `json:"outcome"`
	Attempts     int            `json:"attempts"`
	History      []RetryAttempt `json:"history,omitempty"`
	EscalationID string         `json:"escalation_id,omitempty"`
	Err          error          `json:"-"`
}

// Succeeded reports whether the operation eventually completed.
func (r *RetryResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeSuccessAfterRetry
}
