package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tammahq/tamma/internal/escalation"
	"github.com/tammahq/tamma/internal/eventlog"
	"github.com/tammahq/tamma/internal/types"
)

// Default retry budget, used when the context leaves fields zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// Operation is one retryable unit of work.
type Operation func(ctx context.Context) error

// Escalator receives the trigger when retries give up. Satisfied by
// *escalation.Manager.
type Escalator interface {
	Escalate(ctx context.Context, trigger escalation.Trigger) (*types.Escalation, error)
}

// Engine drives retryable operations: it classifies failures, decides retry
// versus escalate, and records every attempt in the event log before acting
// on the decision. If the log cannot be written, the operation aborts rather
// than proceeding on unrecorded state.
type Engine struct {
	log       *eventlog.Log
	escalator Escalator
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a retry engine. escalator may be nil, in which case
// exhaustion is recorded in the log but nobody is paged.
func NewEngine(log *eventlog.Log, escalator Escalator, opts ...Option) *Engine {
	e := &Engine{
		log:       log,
		escalator: escalator,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ShouldRetry decides whether the failure recorded as the context's latest
// attempt should be retried:
//
//  1. a spent attempt budget refuses regardless of the error,
//  2. a non-retryable classification refuses regardless of remaining budget,
//  3. otherwise the classification selects a strategy and the delay is
//     computed from the attempt count.
//
// rc.AttemptCount must already include the failed attempt being decided.
func (e *Engine) ShouldRetry(failure error, rc *types.RetryContext) types.RetryDecision {
	applyDefaults(rc)
	class := Classify(failure, rc)
	decision := types.RetryDecision{Classification: class}

	if rc.AttemptCount >= rc.MaxAttempts {
		decision.Reason = fmt.Sprintf("max attempts exceeded (%d/%d)", rc.AttemptCount, rc.MaxAttempts)
		return decision
	}
	if !class.Retryable() {
		decision.Reason = fmt.Sprintf("non-retryable: %s", class)
		return decision
	}

	strategy := rc.Strategy
	if strategy == "" {
		strategy = StrategyFor(class)
	}
	decision.ShouldRetry = true
	decision.Delay = Delay(strategy, rc.AttemptCount, rc.BaseDelay, rc.MaxDelay)
	decision.NextAttemptAt = e.now().UTC().Add(decision.Delay)
	decision.Reason = fmt.Sprintf("retry with %s backoff", strategy)
	return decision
}

// ExecuteWithRetry runs op under the retry context's policy. Every failed
// attempt is appended to the log before the retry decision is consulted, and
// exactly one terminal event is emitted per invocation: success,
// success_after_retry, or exhausted. On refusal the escalator receives the
// full retry history.
//
// A log append failure aborts the invocation immediately ("commit before
// act"): the operation is not retried and no terminal event is claimed.
func (e *Engine) ExecuteWithRetry(ctx context.Context, op Operation, rc *types.RetryContext) *types.RetryResult {
	applyDefaults(rc)
	result := &types.RetryResult{}

	for {
		start := e.now().UTC()
		opErr := op(ctx)
		elapsed := e.now().UTC().Sub(start)
		rc.AttemptCount++

		if opErr == nil {
			result.Attempts = rc.AttemptCount
			result.History = rc.Attempts
			if rc.AttemptCount > 1 {
				result.Outcome = types.OutcomeSuccessAfterRetry
			} else {
				result.Outcome = types.OutcomeSuccess
			}
			if err := e.emitTerminal(ctx, rc, result.Outcome, ""); err != nil {
				return aborted(result, rc, err)
			}
			return result
		}

		class := Classify(opErr, rc)
		decision := e.ShouldRetry(opErr, rc)
		attempt := types.RetryAttempt{
			Attempt:        rc.AttemptCount,
			Error:          opErr.Error(),
			Classification: class,
			At:             start,
			Delay:          decision.Delay,
		}
		rc.Attempts = append(rc.Attempts, attempt)

		if err := e.emitAttemptFailed(ctx, rc, attempt, elapsed); err != nil {
			return aborted(result, rc, err)
		}

		if !decision.ShouldRetry {
			result.Attempts = rc.AttemptCount
			result.History = rc.Attempts
			result.Outcome = types.OutcomeExhausted
			if !class.Retryable() {
				result.Outcome = types.OutcomeNonRetryable
			}
			result.Err = opErr
			if err := e.emitTerminal(ctx, rc, types.OutcomeExhausted, decision.Reason); err != nil {
				return aborted(result, rc, err)
			}
			e.escalate(ctx, rc, opErr, class, decision.Reason, result)
			return result
		}

		if err := e.emitScheduled(ctx, rc, decision); err != nil {
			return aborted(result, rc, err)
		}

		e.logger.Debug("retrying operation",
			"operation_id", rc.OperationID, "attempt", rc.AttemptCount,
			"classification", class, "delay", decision.Delay)

		if err := sleep(ctx, decision.Delay); err != nil {
			result.Attempts = rc.AttemptCount
			result.History = rc.Attempts
			result.Outcome = types.OutcomeAborted
			result.Err = err
			return result
		}
	}
}

// RecordFailure registers one externally observed failure of an operation
// the engine does not itself execute (a CI check failing on the platform,
// for example). It increments the context's attempt count, appends the
// attempt to the log before consulting the decision, and emits the scheduled
// event when the decision is affirmative.
//
// On refusal it emits the exhausted terminal event; escalation is the
// caller's responsibility, since the caller knows the domain-level
// escalation type. A log append failure is returned and the decision must
// not be acted on.
func (e *Engine) RecordFailure(ctx context.Context, failure error, rc *types.RetryContext) (types.RetryDecision, error) {
	applyDefaults(rc)
	rc.AttemptCount++

	class := Classify(failure, rc)
	decision := e.ShouldRetry(failure, rc)
	attempt := types.RetryAttempt{
		Attempt:        rc.AttemptCount,
		Error:          failure.Error(),
		Classification: class,
		At:             e.now().UTC(),
		Delay:          decision.Delay,
	}
	rc.Attempts = append(rc.Attempts, attempt)

	if err := e.emitAttemptFailed(ctx, rc, attempt, 0); err != nil {
		return types.RetryDecision{}, err
	}
	if decision.ShouldRetry {
		if err := e.emitScheduled(ctx, rc, decision); err != nil {
			return types.RetryDecision{}, err
		}
	} else if err := e.emitTerminal(ctx, rc, types.OutcomeExhausted, decision.Reason); err != nil {
		return types.RetryDecision{}, err
	}
	return decision, nil
}

// escalate hands the exhausted context to the escalation manager. Escalation
// failures are logged, not returned: the terminal event is already durable
// and re-raising here would double-report the original failure.
func (e *Engine) escalate(ctx context.Context, rc *types.RetryContext, finalErr error, class types.ErrorClassification, reason string, result *types.RetryResult) {
	if e.escalator == nil {
		return
	}
	esc, err := e.escalator.Escalate(ctx, escalation.Trigger{
		Type:           types.EscalationRetryExhausted,
		OperationID:    rc.OperationID,
		Reason:         fmt.Sprintf("%s after %d attempt(s): %v (%s)", rc.OperationKind, rc.AttemptCount, finalErr, reason),
		Classification: class,
		RetryHistory:   rc.Attempts,
	})
	if err != nil {
		e.logger.Error("failed to escalate exhausted operation",
			"operation_id", rc.OperationID, "error", err)
		return
	}
	result.EscalationID = esc.ID
}

func (e *Engine) emitAttemptFailed(ctx context.Context, rc *types.RetryContext, attempt types.RetryAttempt, elapsed time.Duration) error {
	payload, err := json.Marshal(map[string]any{
		"error":       attempt.Error,
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("marshaling attempt payload: %w", err)
	}
	_, err = e.log.Append(ctx, &types.Event{
		Type:    types.EventRetryAttemptFailed,
		Writer:  rc.OperationID,
		Tags:    e.tags(rc, map[string]string{types.TagClassification: string(attempt.Classification)}),
		Payload: payload,
		Metadata: types.EventMetadata{
			SchemaVersion: 1,
			Source:        "retry",
			CorrelationID: rc.OperationID,
		},
	})
	return err
}

func (e *Engine) emitScheduled(ctx context.Context, rc *types.RetryContext, decision types.RetryDecision) error {
	payload, err := json.Marshal(map[string]any{
		"delay_ms":        decision.Delay.Milliseconds(),
		"next_attempt_at": decision.NextAttemptAt,
		"reason":          decision.Reason,
	})
	if err != nil {
		return fmt.Errorf("marshaling schedule payload: %w", err)
	}
	_, err = e.log.Append(ctx, &types.Event{
		Type:    types.EventRetryAttemptScheduled,
		Writer:  rc.OperationID,
		Tags:    e.tags(rc, nil),
		Payload: payload,
		Metadata: types.EventMetadata{
			SchemaVersion: 1,
			Source:        "retry",
			CorrelationID: rc.OperationID,
		},
	})
	return err
}

func (e *Engine) emitTerminal(ctx context.Context, rc *types.RetryContext, outcome types.RetryOutcome, reason string) error {
	eventType := types.EventRunSuccess
	switch outcome {
	case types.OutcomeSuccessAfterRetry:
		eventType = types.EventRunSuccessAfterRetry
	case types.OutcomeExhausted, types.OutcomeNonRetryable:
		eventType = types.EventRunExhausted
	}
	payload, err := json.Marshal(map[string]any{
		"attempts": rc.AttemptCount,
		"reason":   reason,
	})
	if err != nil {
		return fmt.Errorf("marshaling terminal payload: %w", err)
	}
	_, err = e.log.Append(ctx, &types.Event{
		Type:    eventType,
		Writer:  rc.OperationID,
		Tags:    e.tags(rc, nil),
		Payload: payload,
		Metadata: types.EventMetadata{
			SchemaVersion: 1,
			Source:        "retry",
			CorrelationID: rc.OperationID,
		},
	})
	return err
}

func (e *Engine) tags(rc *types.RetryContext, extra map[string]string) map[string]string {
	tags := map[string]string{
		types.TagOperationID: rc.OperationID,
		types.TagAttempt:     strconv.Itoa(rc.AttemptCount),
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

func applyDefaults(rc *types.RetryContext) {
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = DefaultMaxAttempts
	}
	if rc.BaseDelay <= 0 {
		rc.BaseDelay = DefaultBaseDelay
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = DefaultMaxDelay
	}
}

func aborted(result *types.RetryResult, rc *types.RetryContext, err error) *types.RetryResult {
	result.Attempts = rc.AttemptCount
	result.History = rc.Attempts
	result.Outcome = types.OutcomeAborted
	result.Err = err
	return result
}

// sleep waits for d or until the context is cancelled, whichever comes
// first. Cancellation wakes the timer promptly so a stop request never waits
// out a stale backoff delay.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
