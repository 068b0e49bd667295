// Package monitor implements the external status monitor: one polling loop
// per supervised resource, structural diffing against the last-known
// snapshot, per-transition event emission, CI-check retry handoff, and the
// hard monitoring timeout.
//
// The last-known snapshot is a diff cache owned by the session (persisted
// alongside it so a restarted process resumes without re-raising old
// transitions); the event log remains the only cross-component source of
// truth.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tammahq/tamma/internal/escalation"
	"github.com/tammahq/tamma/internal/eventlog"
	"github.com/tammahq/tamma/internal/platform"
	"github.com/tammahq/tamma/internal/retry"
	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/types"
)

// Config holds the manager-level defaults for new sessions.
type Config struct {
	// PollInterval is how often each session polls (default 30s).
	PollInterval time.Duration
	// MaxDuration is the hard monitoring ceiling per session (default 2h).
	MaxDuration time.Duration
	// DegradedThreshold is how many consecutive poll failures raise the
	// degraded-monitoring warning (default 3).
	DegradedThreshold int
	// CheckRetry is the template retry context applied to each failing CI
	// check. Zero fields take the retry package defaults.
	CheckRetry types.RetryContext
}

// DefaultConfig returns the manager defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      30 * time.Second,
		MaxDuration:       2 * time.Hour,
		DegradedThreshold: 3,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = d.DegradedThreshold
	}
}

// Manager owns monitoring sessions: it starts and stops their poll loops,
// runs one goroutine per session, and applies escalation resolutions tailed
// from the event log.
type Manager struct {
	store     storage.Store
	log       *eventlog.Log
	provider  platform.StatusProvider
	engine    *retry.Engine
	escalator retry.Escalator
	logger    *slog.Logger
	now       func() time.Time
	config    Config

	group errgroup.Group

	mu     sync.Mutex
	states map[string]*sessionState // keyed by session id
}

// sessionState is the per-session runtime the store does not hold: the loop
// cancel, poll-failure counters, and in-memory check retry contexts. The
// poll loop and the resolution tailer both touch it, so the mutable fields
// below mu are guarded by it; the fields above are set once before the
// state is published and never change. cancel and closed are guarded by the
// manager's mutex.
type sessionState struct {
	resourceID   string
	startedAt    time.Time
	pollInterval time.Duration
	maxDuration  time.Duration
	cancel       context.CancelFunc
	closed       bool

	mu           sync.Mutex
	pollFailures int
	degraded     bool
	checks       map[string]*checkState
}

type checkState struct {
	rc         *types.RetryContext
	lastStatus types.CheckStatus
	exhausted  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithConfig overrides the session defaults.
func WithConfig(config Config) Option {
	return func(m *Manager) { m.config = config }
}

// WithRetryEngine sets the engine consulted for failing CI checks.
func WithRetryEngine(engine *retry.Engine) Option {
	return func(m *Manager) { m.engine = engine }
}

// WithEscalator sets the escalation sink for timeouts and exhausted checks.
func WithEscalator(escalator retry.Escalator) Option {
	return func(m *Manager) { m.escalator = escalator }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a monitor manager polling through the given provider.
func NewManager(store storage.Store, log *eventlog.Log, provider platform.StatusProvider, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		log:      log,
		provider: provider,
		logger:   slog.Default(),
		now:      time.Now,
		config:   DefaultConfig(),
		states:   make(map[string]*sessionState),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.config.applyDefaults()
	return m
}

// StartMonitoring begins supervising a resource and returns the session id.
// Idempotent: if the resource already has an active session, that session's
// id is returned instead of an error, so duplicate start calls (including
// concurrent ones) converge on one session.
//
// Zero pollInterval or maxDuration take the manager defaults. The poll loop
// runs until the resource reaches a terminal state, maxDuration elapses, or
// StopMonitoring is called.
func (m *Manager) StartMonitoring(ctx context.Context, resourceID string, pollInterval, maxDuration time.Duration) (string, error) {
	if resourceID == "" {
		return "", fmt.Errorf("resource id is required")
	}
	if pollInterval <= 0 {
		pollInterval = m.config.PollInterval
	}
	if maxDuration <= 0 {
		maxDuration = m.config.MaxDuration
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	session := &types.MonitoringSession{
		ID:         id.String(),
		ResourceID: resourceID,
		Status:     types.SessionActive,
		StartedAt:  m.now().UTC(),
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, storage.ErrSessionActive) {
			existing, lookupErr := m.store.GetActiveSession(ctx, resourceID)
			if lookupErr != nil {
				return "", fmt.Errorf("resource %s is claimed but its session is unreadable: %w", resourceID, lookupErr)
			}
			return existing.ID, nil
		}
		return "", fmt.Errorf("starting session for %s: %w", resourceID, err)
	}

	payload, err := json.Marshal(map[string]any{
		"poll_interval_ms": pollInterval.Milliseconds(),
		"max_duration_ms":  maxDuration.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("marshaling session payload: %w", err)
	}
	if _, err := m.log.Append(ctx, &types.Event{
		Type:      types.EventSessionStarted,
		Timestamp: session.StartedAt,
		Writer:    session.ID,
		Tags:      m.sessionTags(session.ID, resourceID, nil),
		Metadata:  types.EventMetadata{SchemaVersion: 1, Source: "monitor", CorrelationID: resourceID},
		Payload:   payload,
	}); err != nil {
		// Commit-before-act: without the started event the session must not
		// run. Release the arena slot so a later start can succeed.
		_ = m.store.CloseSession(ctx, session.ID, types.SessionStopped, m.now().UTC())
		return "", fmt.Errorf("recording session start: %w", err)
	}

	state := &sessionState{
		resourceID:   resourceID,
		startedAt:    session.StartedAt,
		pollInterval: pollInterval,
		maxDuration:  maxDuration,
		checks:       make(map[string]*checkState),
	}
	m.mu.Lock()
	m.states[session.ID] = state
	m.mu.Unlock()

	m.spawnLoop(session.ID, state)

	m.logger.Info("monitoring started",
		"session_id", session.ID, "resource_id", resourceID,
		"poll_interval", pollInterval, "max_duration", maxDuration)
	return session.ID, nil
}

// Attach restarts poll loops for sessions that are active in the store but
// have no loop in this process (a restart, or a shared store written by
// another process). Returns the ids it attached.
func (m *Manager) Attach(ctx context.Context) ([]string, error) {
	sessions, err := m.store.ListSessions(ctx, types.SessionFilter{Status: types.SessionActive})
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}

	var attached []string
	for _, session := range sessions {
		m.mu.Lock()
		if _, ok := m.states[session.ID]; ok {
			m.mu.Unlock()
			continue
		}
		state := &sessionState{
			resourceID:   session.ResourceID,
			startedAt:    session.StartedAt,
			pollInterval: m.config.PollInterval,
			maxDuration:  m.config.MaxDuration,
			checks:       make(map[string]*checkState),
		}
		m.states[session.ID] = state
		m.mu.Unlock()

		m.spawnLoop(session.ID, state)
		attached = append(attached, session.ID)
	}
	return attached, nil
}

// StopMonitoring stops a session. Always succeeds: an unknown or already
// stopped session is a no-op. The SESSION.STOPPED event carries the elapsed
// duration and is emitted exactly once per session.
func (m *Manager) StopMonitoring(ctx context.Context, sessionID string) error {
	m.finishSession(ctx, sessionID, types.SessionStopped)
	return nil
}

// finishSession cancels the loop, closes the stored session with the given
// terminal status, and emits the stop event. The store's one-shot close
// guarantees exactly-once emission even when stop races the timeout path.
func (m *Manager) finishSession(ctx context.Context, sessionID string, status types.SessionStatus) {
	m.mu.Lock()
	state := m.states[sessionID]
	var cancel context.CancelFunc
	if state != nil && !state.closed {
		state.closed = true
		cancel = state.cancel
	}
	delete(m.states, sessionID)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// The caller may be running on the loop context that was just cancelled;
	// the close and its event must still go through.
	ctx = context.WithoutCancel(ctx)

	endedAt := m.now().UTC()
	err := m.store.CloseSession(ctx, sessionID, status, endedAt)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrSessionClosed):
		return // unknown or already finished: no-op, no second event
	case err != nil:
		m.logger.Error("failed to close session", "session_id", sessionID, "error", err)
		return
	}

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		m.logger.Error("closed session vanished", "session_id", sessionID, "error", err)
		return
	}

	payload, merr := json.Marshal(map[string]any{
		"elapsed_ms": session.Elapsed(endedAt).Milliseconds(),
		"status":     status,
	})
	if merr != nil {
		m.logger.Error("failed to marshal stop payload", "session_id", sessionID, "error", merr)
		return
	}
	if _, err := m.log.Append(ctx, &types.Event{
		Type:      types.EventSessionStopped,
		Timestamp: endedAt,
		Writer:    sessionID,
		Tags:      m.sessionTags(sessionID, session.ResourceID, nil),
		Metadata:  types.EventMetadata{SchemaVersion: 1, Source: "monitor", CorrelationID: session.ResourceID},
		Payload:   payload,
	}); err != nil {
		m.logger.Error("failed to record session stop", "session_id", sessionID, "error", err)
	}

	m.logger.Info("monitoring stopped",
		"session_id", sessionID, "resource_id", session.ResourceID,
		"status", status, "elapsed", session.Elapsed(endedAt))
}

// spawnLoop runs the session's poll loop on the manager's errgroup.
func (m *Manager) spawnLoop(sessionID string, state *sessionState) {
	loopCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	state.cancel = cancel
	m.mu.Unlock()

	m.group.Go(func() error {
		defer cancel()
		ticker := time.NewTicker(state.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return nil
			case <-ticker.C:
				if m.timedOut(loopCtx, sessionID, state) {
					return nil
				}
				if err := m.Poll(loopCtx, sessionID); err != nil {
					if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrSessionClosed) {
						return nil
					}
					m.logger.Error("poll tick failed", "session_id", sessionID, "error", err)
				}
			}
		}
	})
}

// timedOut enforces the hard monitoring ceiling: past maxDuration the
// session emits SESSION.TIMED_OUT, raises a timeout escalation, and stops.
func (m *Manager) timedOut(ctx context.Context, sessionID string, state *sessionState) bool {
	if m.now().UTC().Sub(state.startedAt) <= state.maxDuration {
		return false
	}

	if _, err := m.log.Append(ctx, &types.Event{
		Type:     types.EventSessionTimedOut,
		Writer:   sessionID,
		Tags:     m.sessionTags(sessionID, state.resourceID, nil),
		Metadata: types.EventMetadata{SchemaVersion: 1, Source: "monitor", CorrelationID: state.resourceID},
	}); err != nil {
		// Cannot record the transition: keep the session alive and try again
		// on the next tick rather than acting on unrecorded state.
		m.logger.Error("failed to record session timeout", "session_id", sessionID, "error", err)
		return false
	}

	if m.escalator != nil {
		_, err := m.escalator.Escalate(ctx, escalation.Trigger{
			Type:       types.EscalationTimeout,
			ResourceID: state.resourceID,
			SessionID:  sessionID,
			Reason: fmt.Sprintf("monitoring %s exceeded the %s ceiling without reaching a terminal state",
				state.resourceID, state.maxDuration),
			SeverityOverride: types.SeverityMedium,
		})
		if err != nil {
			m.logger.Error("failed to escalate timeout", "session_id", sessionID, "error", err)
		}
	}

	m.finishSession(ctx, sessionID, types.SessionTimedOut)
	return true
}

// Poll performs one tick for a session: fetch the resource status, diff it
// against the last-known snapshot, emit one event per discrete transition,
// hand failing checks to the retry engine, then persist the new snapshot.
//
// A failed fetch never transitions the session; it is recorded and tolerated
// up to the degraded threshold.
func (m *Manager) Poll(ctx context.Context, sessionID string) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if session.Status != types.SessionActive {
		return storage.ErrSessionClosed
	}
	state := m.state(sessionID, session)

	current, err := m.provider.GetResourceStatus(ctx, session.ResourceID)
	if err != nil {
		return m.recordPollFailure(ctx, sessionID, session.ResourceID, state, err)
	}
	state.mu.Lock()
	state.pollFailures = 0
	state.degraded = false
	state.mu.Unlock()
	current.ResourceID = session.ResourceID
	now := m.now().UTC()
	current.FetchedAt = now

	transitions := diff(session.LastKnown, current)
	for _, tr := range transitions {
		if err := m.emitTransition(ctx, sessionID, session.ResourceID, tr); err != nil {
			// Commit-before-act: the snapshot is not updated, so the same
			// transition is re-detected and re-emitted on the next tick.
			return fmt.Errorf("recording transition: %w", err)
		}
		if tr.Kind == TransitionCheckChanged && tr.Check.Status == types.CheckFailed {
			m.handleCheckFailure(ctx, sessionID, session.ResourceID, state, tr.Check)
		}
	}

	if err := m.store.UpdateSessionSnapshot(ctx, sessionID, now, current); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}

	if current.State.Terminal() {
		m.logger.Info("resource reached terminal state",
			"session_id", sessionID, "resource_id", session.ResourceID, "state", current.State)
		m.finishSession(ctx, sessionID, types.SessionStopped)
	}
	return nil
}

// recordPollFailure absorbs one transient poll failure: the session stays
// active, the failure becomes an event, and the degraded warning fires once
// after the configured run of consecutive failures.
func (m *Manager) recordPollFailure(ctx context.Context, sessionID, resourceID string, state *sessionState, pollErr error) error {
	state.mu.Lock()
	state.pollFailures++
	failures := state.pollFailures
	state.mu.Unlock()

	payload, err := json.Marshal(map[string]any{
		"error":                pollErr.Error(),
		"consecutive_failures": failures,
	})
	if err != nil {
		return fmt.Errorf("marshaling poll failure: %w", err)
	}
	if _, err := m.log.Append(ctx, &types.Event{
		Type:     types.EventPollFailed,
		Writer:   sessionID,
		Tags:     m.sessionTags(sessionID, resourceID, nil),
		Metadata: types.EventMetadata{SchemaVersion: 1, Source: "monitor", CorrelationID: resourceID},
		Payload:  payload,
	}); err != nil {
		return fmt.Errorf("recording poll failure: %w", err)
	}

	state.mu.Lock()
	warn := failures >= m.config.DegradedThreshold && !state.degraded
	if warn {
		state.degraded = true
	}
	state.mu.Unlock()
	if warn {
		if _, err := m.log.Append(ctx, &types.Event{
			Type:     types.EventPollDegraded,
			Writer:   sessionID,
			Tags:     m.sessionTags(sessionID, resourceID, nil),
			Metadata: types.EventMetadata{SchemaVersion: 1, Source: "monitor", CorrelationID: resourceID},
			Payload:  payload,
		}); err != nil {
			return fmt.Errorf("recording degraded monitoring: %w", err)
		}
		m.logger.Warn("monitoring degraded",
			"session_id", sessionID, "resource_id", resourceID,
			"consecutive_failures", failures, "error", pollErr)
	}
	return nil
}

// handleCheckFailure feeds one failed CI check into the retry engine. While
// the budget lasts, affirmative decisions re-queue the check on the platform
// after the decided delay; exhaustion escalates once with the accumulated
// history and the check is left alone until a resolution resets it.
func (m *Manager) handleCheckFailure(ctx context.Context, sessionID, resourceID string, state *sessionState, check *types.Check) {
	if m.engine == nil {
		return
	}
	state.mu.Lock()
	cs := state.checks[check.ID]
	if cs == nil {
		rc := m.config.CheckRetry // copy of the template
		rc.OperationID = sessionID + "/check/" + check.ID
		rc.OperationKind = "ci_check"
		cs = &checkState{rc: &rc}
		state.checks[check.ID] = cs
	}
	cs.lastStatus = check.Status
	exhausted := cs.exhausted
	state.mu.Unlock()
	if exhausted {
		return
	}

	failure := errors.New(checkFailureText(check))
	decision, err := m.engine.RecordFailure(ctx, failure, cs.rc)
	if err != nil {
		m.logger.Error("failed to record check failure",
			"session_id", sessionID, "check_id", check.ID, "error", err)
		return
	}

	if !decision.ShouldRetry {
		state.mu.Lock()
		cs.exhausted = true
		state.mu.Unlock()
		if m.escalator != nil {
			_, err := m.escalator.Escalate(ctx, escalation.Trigger{
				Type:           types.EscalationCIFailure,
				ResourceID:     resourceID,
				SessionID:      sessionID,
				OperationID:    cs.rc.OperationID,
				Reason:         fmt.Sprintf("check %s: %s (%s)", check.Name, failure, decision.Reason),
				Classification: decision.Classification,
				RetryHistory:   cs.rc.Attempts,
			})
			if err != nil {
				m.logger.Error("failed to escalate check failure",
					"session_id", sessionID, "check_id", check.ID, "error", err)
			}
		}
		return
	}

	// Re-queue after the decided delay, off the poll path so a long backoff
	// never stalls the tick. The sleep aborts if the session stops.
	loopCtx := ctx
	checkID := check.ID
	m.group.Go(func() error {
		timer := time.NewTimer(decision.Delay)
		defer timer.Stop()
		select {
		case <-loopCtx.Done():
			return nil
		case <-timer.C:
		}
		if err := m.provider.RetryCheck(loopCtx, resourceID, checkID); err != nil {
			m.logger.Warn("check re-queue failed",
				"session_id", sessionID, "check_id", checkID, "error", err)
		}
		return nil
	})
}

// Run tails escalation resolutions from the event log and applies their
// actions to the originating sessions: stop ends the session, resume resets
// its retry budgets so exhausted checks may be retried again. Blocks until
// ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	events, cancel := m.log.Tail(ctx, types.EventFilter{TypePrefix: types.EventEscalationResolved})
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			m.applyResolution(ctx, e)
		}
	}
}

func (m *Manager) applyResolution(ctx context.Context, e *types.Event) {
	sessionID := e.Tag(types.TagSessionID)
	if sessionID == "" {
		return
	}
	var res types.Resolution
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &res); err != nil {
			m.logger.Warn("unparseable resolution payload", "event_id", e.ID, "error", err)
			return
		}
	}

	switch res.Action {
	case types.ActionStop:
		m.logger.Info("resolution stops session", "session_id", sessionID, "actor", res.Actor)
		m.finishSession(ctx, sessionID, types.SessionStopped)
	case types.ActionResume:
		m.mu.Lock()
		state := m.states[sessionID]
		m.mu.Unlock()
		if state != nil {
			state.mu.Lock()
			state.checks = make(map[string]*checkState)
			state.pollFailures = 0
			state.degraded = false
			state.mu.Unlock()
		}
		m.logger.Info("resolution resumes session", "session_id", sessionID, "actor", res.Actor)
	default:
		// dismiss: escalation acknowledged, monitoring continues unchanged.
	}
}

// Session returns one session by id.
func (m *Manager) Session(ctx context.Context, id string) (*types.MonitoringSession, error) {
	return m.store.GetSession(ctx, id)
}

// Sessions returns sessions matching the filter.
func (m *Manager) Sessions(ctx context.Context, filter types.SessionFilter) ([]*types.MonitoringSession, error) {
	return m.store.ListSessions(ctx, filter)
}

// Wait blocks until every loop the manager spawned has exited. Call after
// cancelling or stopping all sessions.
func (m *Manager) Wait() error {
	return m.group.Wait()
}

// Shutdown cancels every running loop without closing the sessions in the
// store (they stay active for a later Attach) and waits for the loops to
// exit.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	for _, state := range m.states {
		if state.cancel != nil {
			state.cancel()
		}
	}
	m.states = make(map[string]*sessionState)
	m.mu.Unlock()
	return m.group.Wait()
}

// state returns the runtime state for a session, creating a loop-less one
// for sessions driven by explicit Poll calls.
func (m *Manager) state(sessionID string, session *types.MonitoringSession) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sessionID]
	if !ok {
		st = &sessionState{
			resourceID:   session.ResourceID,
			startedAt:    session.StartedAt,
			pollInterval: m.config.PollInterval,
			maxDuration:  m.config.MaxDuration,
			checks:       make(map[string]*checkState),
		}
		m.states[sessionID] = st
	}
	return st
}

func (m *Manager) emitTransition(ctx context.Context, sessionID, resourceID string, tr Transition) error {
	var (
		eventType string
		payload   map[string]any
		extraTags map[string]string
	)
	switch tr.Kind {
	case TransitionStateChanged:
		eventType = types.EventStateChanged
		payload = map[string]any{"from": tr.From, "to": tr.To}
	case TransitionReviewReceived:
		eventType = types.EventReviewReceived
		payload = map[string]any{"review_id": tr.Review.ID, "author": tr.Review.Author, "verdict": tr.Review.Verdict}
	case TransitionCommentReceived:
		eventType = types.EventCommentReceived
		payload = map[string]any{"comment_id": tr.Comment.ID, "author": tr.Comment.Author}
	case TransitionCheckChanged:
		eventType = types.CheckEventType(tr.Check.Status)
		payload = map[string]any{"check_id": tr.Check.ID, "name": tr.Check.Name, "summary": tr.Check.Summary}
		extraTags = map[string]string{types.TagCheckID: tr.Check.ID}
	case TransitionMergeReady:
		eventType = types.EventMergeReady
	default:
		return fmt.Errorf("unknown transition kind %q", tr.Kind)
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling %s payload: %w", eventType, err)
		}
		raw = b
	}
	_, err := m.log.Append(ctx, &types.Event{
		Type:     eventType,
		Writer:   sessionID,
		Tags:     m.sessionTags(sessionID, resourceID, extraTags),
		Metadata: types.EventMetadata{SchemaVersion: 1, Source: "monitor", CorrelationID: resourceID},
		Payload:  raw,
	})
	return err
}

func (m *Manager) sessionTags(sessionID, resourceID string, extra map[string]string) map[string]string {
	tags := map[string]string{
		types.TagSessionID:  sessionID,
		types.TagResourceID: resourceID,
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

func checkFailureText(check *types.Check) string {
	if check.Summary != "" {
		return check.Summary
	}
	return fmt.Sprintf("check %s failed", check.Name)
}
