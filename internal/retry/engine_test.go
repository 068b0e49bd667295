package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tammahq/tamma/internal/escalation"
	"github.com/tammahq/tamma/internal/eventlog"
	"github.com/tammahq/tamma/internal/testutil/teststore"
	"github.com/tammahq/tamma/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *eventlog.Log, *escalation.Manager) {
	t.Helper()
	store := teststore.New(t)
	log := eventlog.New(store)
	mgr := escalation.NewManager(store, log)
	return NewEngine(log, mgr), log, mgr
}

// fastContext returns a retry context with millisecond delays so tests don't
// actually wait out backoff windows.
func fastContext(operationID string, maxAttempts int) *types.RetryContext {
	return &types.RetryContext{
		OperationID:   operationID,
		OperationKind: "ci_check",
		MaxAttempts:   maxAttempts,
		BaseDelay:     time.Millisecond,
		MaxDelay:      4 * time.Millisecond,
	}
}

func TestShouldRetryConnectionTimeout(t *testing.T) {
	e, _, _ := newTestEngine(t)

	rc := &types.RetryContext{
		OperationID: "check-lint",
		MaxAttempts: 4,
		BaseDelay:   2000 * time.Millisecond,
		MaxDelay:    8000 * time.Millisecond,
	}
	err := errors.New("connection timeout")

	wantDelays := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range wantDelays {
		rc.AttemptCount = i + 1
		d := e.ShouldRetry(err, rc)
		if !d.ShouldRetry {
			t.Fatalf("attempt %d refused: %s", rc.AttemptCount, d.Reason)
		}
		if d.Classification != types.ClassNetworkTimeout {
			t.Errorf("classification = %s", d.Classification)
		}
		if d.Delay != want {
			t.Errorf("attempt %d delay = %v, want %v", rc.AttemptCount, d.Delay, want)
		}
		if d.NextAttemptAt.IsZero() {
			t.Error("next attempt time not set")
		}
	}

	// Budget spent: the fourth failure is refused.
	rc.AttemptCount = 4
	d := e.ShouldRetry(err, rc)
	if d.ShouldRetry {
		t.Fatal("attempt past budget was affirmed")
	}
	if !strings.Contains(d.Reason, "max attempts exceeded") {
		t.Errorf("reason = %q, want max attempts exceeded", d.Reason)
	}
}

func TestShouldRetryNonRetryableBeatsBudget(t *testing.T) {
	e, _, _ := newTestEngine(t)

	rc := fastContext("op-auth", 5)
	rc.AttemptCount = 1
	d := e.ShouldRetry(errors.New("authentication failed"), rc)
	if d.ShouldRetry {
		t.Fatal("auth failure was affirmed despite remaining budget")
	}
	if !strings.Contains(d.Reason, "non-retryable") {
		t.Errorf("reason = %q", d.Reason)
	}
}

func TestExecuteFirstAttemptSuccess(t *testing.T) {
	e, log, _ := newTestEngine(t)
	ctx := context.Background()

	calls := 0
	result := e.ExecuteWithRetry(ctx, func(context.Context) error {
		calls++
		return nil
	}, fastContext("op-ok", 3))

	require.Equal(t, types.OutcomeSuccess, result.Outcome)
	require.Equal(t, 1, calls)
	assert.Empty(t, result.History)

	events, err := log.Query(ctx, types.EventFilter{Writer: "op-ok"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventRunSuccess, events[0].Type)
}

func TestExecuteSuccessAfterRetry(t *testing.T) {
	e, log, _ := newTestEngine(t)
	ctx := context.Background()

	calls := 0
	result := e.ExecuteWithRetry(ctx, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection timeout")
		}
		return nil
	}, fastContext("op-flaky", 5))

	require.Equal(t, types.OutcomeSuccessAfterRetry, result.Outcome)
	require.Equal(t, 3, result.Attempts)
	require.Len(t, result.History, 2)

	events, err := log.Query(ctx, types.EventFilter{Writer: "op-flaky"})
	require.NoError(t, err)
	// 2x failed, 2x scheduled, 1x terminal — and strictly ordered per writer.
	var typs []string
	for _, ev := range events {
		typs = append(typs, ev.Type)
	}
	assert.Equal(t, []string{
		types.EventRetryAttemptFailed,
		types.EventRetryAttemptScheduled,
		types.EventRetryAttemptFailed,
		types.EventRetryAttemptScheduled,
		types.EventRunSuccessAfterRetry,
	}, typs)

	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp),
			"events out of order at %d", i)
	}
}

func TestExecuteExhaustionEscalates(t *testing.T) {
	e, log, mgr := newTestEngine(t)
	ctx := context.Background()

	calls := 0
	result := e.ExecuteWithRetry(ctx, func(context.Context) error {
		calls++
		return errors.New("connection timeout")
	}, fastContext("op-dead", 3))

	require.Equal(t, types.OutcomeExhausted, result.Outcome)
	require.Equal(t, 3, calls, "attemptCount must never exceed maxAttempts")
	require.Len(t, result.History, 3)
	require.NotEmpty(t, result.EscalationID)

	esc, err := mgr.Get(ctx, result.EscalationID)
	require.NoError(t, err)
	assert.Equal(t, types.EscalationRetryExhausted, esc.Type)
	assert.Equal(t, types.SeverityMedium, esc.Severity, "transient exhaustion is medium")
	assert.Len(t, esc.RetryHistory, 3)
	assert.Contains(t, esc.Reason, "connection timeout")

	// Exactly one terminal event.
	terminal, err := log.Query(ctx, types.EventFilter{TypePrefix: "OPERATION.RUN", Writer: "op-dead"})
	require.NoError(t, err)
	require.Len(t, terminal, 1)
	assert.Equal(t, types.EventRunExhausted, terminal[0].Type)
}

func TestExecuteNonRetryableSingleAttempt(t *testing.T) {
	e, _, mgr := newTestEngine(t)
	ctx := context.Background()

	calls := 0
	result := e.ExecuteWithRetry(ctx, func(context.Context) error {
		calls++
		return errors.New("authentication failed: bad app key")
	}, fastContext("op-auth", 5))

	require.Equal(t, types.OutcomeNonRetryable, result.Outcome)
	require.Equal(t, 1, calls, "non-retryable errors get exactly one attempt")
	require.NotEmpty(t, result.EscalationID)

	esc, err := mgr.Get(ctx, result.EscalationID)
	require.NoError(t, err)
	assert.Equal(t, types.SeverityHigh, esc.Severity, "auth failures escalate high")
}

func TestExecuteCancelledDuringBackoff(t *testing.T) {
	e, _, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	rc := fastContext("op-cancel", 5)
	rc.BaseDelay = 10 * time.Second // would stall the test if not woken
	rc.MaxDelay = 10 * time.Second

	calls := 0
	done := make(chan *types.RetryResult, 1)
	go func() {
		done <- e.ExecuteWithRetry(ctx, func(context.Context) error {
			calls++
			cancel() // cancel while the engine is about to sleep
			return errors.New("connection timeout")
		}, rc)
	}()

	select {
	case result := <-done:
		require.Equal(t, types.OutcomeAborted, result.Outcome)
		require.Equal(t, 1, calls)
		require.ErrorIs(t, result.Err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("cancellation did not wake the backoff sleep")
	}
}

func TestExecuteFailsClosedWhenStoreGone(t *testing.T) {
	store := teststore.New(t)
	log := eventlog.New(store)
	e := NewEngine(log, nil)

	// Tearing down the store makes every append fail: the engine must stop
	// without retrying.
	require.NoError(t, store.Close())

	calls := 0
	result := e.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection timeout")
	}, fastContext("op-nostore", 5))

	require.Equal(t, types.OutcomeAborted, result.Outcome)
	require.Equal(t, 1, calls, "must not retry when the attempt could not be recorded")
	require.Error(t, result.Err)
}
