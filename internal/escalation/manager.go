// Package escalation implements the escalation manager: when automated
// recovery gives up (retries exhausted, non-retryable error, monitoring
// timeout, blocking review state), it persists a human-actionable record,
// emits the durable trigger event, and dispatches notifications.
//
// Resolution arrives asynchronously through Resolve; the manager never
// blocks waiting for a human. An escalation is resolved at most once, and a
// recurring condition raises a new escalation rather than mutating an old
// one.
package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tammahq/tamma/internal/eventlog"
	"github.com/tammahq/tamma/internal/notify"
	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/types"
)

// Trigger describes a blocking condition that needs human attention.
type Trigger struct {
	Type           types.EscalationType
	ResourceID     string
	SessionID      string
	OperationID    string
	Reason         string
	Classification types.ErrorClassification
	RetryHistory   []types.RetryAttempt

	// SeverityOverride forces a severity instead of deriving one from the
	// classification.
	SeverityOverride types.Severity
}

// DeriveSeverity maps a failure classification to escalation severity:
// authentication and permission failures are high (retrying cannot help and
// access is broken), transient categories that exhausted their budget are
// medium, everything else is low.
func DeriveSeverity(class types.ErrorClassification) types.Severity {
	switch class {
	case types.ClassAuthenticationFailed, types.ClassInvalidCredentials, types.ClassPermissionDenied:
		return types.SeverityHigh
	}
	if class.Retryable() {
		return types.SeverityMedium
	}
	return types.SeverityLow
}

// Manager persists escalations, emits their events, and dispatches
// notifications.
type Manager struct {
	store      storage.Store
	log        *eventlog.Log
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithDispatcher sets the notification dispatcher. Without one, escalations
// are persisted and logged but not dispatched anywhere else.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(m *Manager) { m.dispatcher = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an escalation manager over the given store and log.
func NewManager(store storage.Store, log *eventlog.Log, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		log:    log,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Escalate creates and persists a new escalation for the trigger, emits
// ESCALATION.TRIGGERED, and dispatches notifications. The escalation is
// committed before any notification is attempted, and notification failures
// never surface as errors here.
//
// The returned escalation is open; resolution arrives later via Resolve.
func (m *Manager) Escalate(ctx context.Context, trigger Trigger) (*types.Escalation, error) {
	if !trigger.Type.IsValid() {
		return nil, fmt.Errorf("invalid escalation type %q", trigger.Type)
	}

	severity := trigger.SeverityOverride
	if severity == "" {
		severity = DeriveSeverity(trigger.Classification)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating escalation id: %w", err)
	}

	esc := &types.Escalation{
		ID:           id.String(),
		Type:         trigger.Type,
		Severity:     severity,
		ResourceID:   trigger.ResourceID,
		SessionID:    trigger.SessionID,
		OperationID:  trigger.OperationID,
		Reason:       trigger.Reason,
		RetryHistory: trigger.RetryHistory,
		CreatedAt:    m.now().UTC(),
	}

	if err := m.store.CreateEscalation(ctx, esc); err != nil {
		return nil, fmt.Errorf("persisting escalation: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"reason":         esc.Reason,
		"classification": trigger.Classification,
		"attempts":       len(esc.RetryHistory),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling trigger payload: %w", err)
	}
	if _, err := m.log.Append(ctx, &types.Event{
		Type:      types.EventEscalationTriggered,
		Timestamp: esc.CreatedAt,
		Writer:    "escalation:" + esc.ID,
		Tags:      m.eventTags(esc, nil),
		Metadata:  types.EventMetadata{SchemaVersion: 1, Source: "escalation"},
		Payload:   payload,
	}); err != nil {
		return nil, fmt.Errorf("recording escalation trigger: %w", err)
	}

	if m.dispatcher != nil {
		m.dispatcher.Dispatch(ctx, esc)
	} else {
		m.logger.Warn("escalation created (no notification routes)",
			"escalation_id", esc.ID, "type", esc.Type, "severity", esc.Severity, "reason", esc.Reason)
	}

	return esc, nil
}

// Resolve records the resolution for an open escalation and emits
// ESCALATION.RESOLVED tagged with the channel it arrived through. A second
// resolution attempt returns storage.ErrAlreadyResolved without altering the
// first. Callers that want the resolution to act on a monitoring session
// rely on subscribers of the resolved event (the monitor tails it).
func (m *Manager) Resolve(ctx context.Context, id string, res types.Resolution) error {
	if res.Actor == "" {
		return fmt.Errorf("resolution actor is required")
	}
	if res.Action == "" {
		res.Action = types.ActionDismiss
	}
	if !res.Action.IsValid() {
		return fmt.Errorf("invalid resolution action %q", res.Action)
	}
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = m.now().UTC()
	}

	if err := m.store.ResolveEscalation(ctx, id, &res); err != nil {
		return fmt.Errorf("resolving escalation %s: %w", id, err)
	}

	esc, err := m.store.GetEscalation(ctx, id)
	if err != nil {
		return fmt.Errorf("loading resolved escalation %s: %w", id, err)
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling resolution payload: %w", err)
	}
	if _, err := m.log.Append(ctx, &types.Event{
		Type:      types.EventEscalationResolved,
		Timestamp: res.ResolvedAt,
		Writer:    "escalation:" + id,
		Tags:      m.eventTags(esc, &res),
		Metadata:  types.EventMetadata{SchemaVersion: 1, Source: "escalation"},
		Payload:   payload,
	}); err != nil {
		return fmt.Errorf("recording escalation resolution: %w", err)
	}

	m.logger.Info("escalation resolved",
		"escalation_id", id, "actor", res.Actor, "action", res.Action, "channel", res.Channel)
	return nil
}

// Get returns one escalation by id.
func (m *Manager) Get(ctx context.Context, id string) (*types.Escalation, error) {
	return m.store.GetEscalation(ctx, id)
}

// List returns escalations matching the filter.
func (m *Manager) List(ctx context.Context, filter types.EscalationFilter) ([]*types.Escalation, error) {
	return m.store.ListEscalations(ctx, filter)
}

func (m *Manager) eventTags(esc *types.Escalation, res *types.Resolution) map[string]string {
	tags := map[string]string{
		types.TagEscalationID: esc.ID,
		types.TagSeverity:     string(esc.Severity),
	}
	if esc.ResourceID != "" {
		tags[types.TagResourceID] = esc.ResourceID
	}
	if esc.SessionID != "" {
		tags[types.TagSessionID] = esc.SessionID
	}
	if esc.OperationID != "" {
		tags[types.TagOperationID] = esc.OperationID
	}
	if res != nil && res.Channel != "" {
		tags[types.TagChannel] = res.Channel
	}
	return tags
}
