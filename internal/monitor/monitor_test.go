package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tammahq/tamma/internal/escalation"
	"github.com/tammahq/tamma/internal/eventlog"
	"github.com/tammahq/tamma/internal/platform"
	"github.com/tammahq/tamma/internal/retry"
	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/testutil/teststore"
	"github.com/tammahq/tamma/internal/types"
)

type fixture struct {
	store    storage.Store
	log      *eventlog.Log
	provider *platform.Fake
	engine   *retry.Engine
	escmgr   *escalation.Manager
	manager  *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := teststore.New(t)
	log := eventlog.New(store)
	provider := platform.NewFake()
	escmgr := escalation.NewManager(store, log)
	engine := retry.NewEngine(log, escmgr)

	base := []Option{
		WithRetryEngine(engine),
		WithEscalator(escmgr),
		WithConfig(Config{
			// Slow ticker so explicit Poll calls drive the tests.
			PollInterval:      time.Hour,
			MaxDuration:       24 * time.Hour,
			DegradedThreshold: 3,
			CheckRetry: types.RetryContext{
				MaxAttempts: 3,
				BaseDelay:   time.Millisecond,
				MaxDelay:    4 * time.Millisecond,
			},
		}),
	}
	m := NewManager(store, log, provider, append(base, opts...)...)
	t.Cleanup(func() { _ = m.Shutdown() })

	return &fixture{store: store, log: log, provider: provider, engine: engine, escmgr: escmgr, manager: m}
}

func openPR(resourceID string) *types.ResourceStatus {
	return &types.ResourceStatus{ResourceID: resourceID, State: types.ResourceOpen}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartMonitoringIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.SetStatus("PR-42", openPR("PR-42"))

	first, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first != second {
		t.Errorf("duplicate start returned %s, want %s", second, first)
	}

	active, err := f.store.ListSessions(ctx, types.SessionFilter{Status: types.SessionActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("got %d active sessions, want 1", len(active))
	}
}

func TestStartMonitoringConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.SetStatus("PR-42", openPR("PR-42"))

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
			if err != nil {
				t.Errorf("start %d: %v", i, err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got %s, caller 0 got %s", i, ids[i], ids[0])
		}
	}
	active, _ := f.store.ListSessions(ctx, types.SessionFilter{Status: types.SessionActive})
	if len(active) != 1 {
		t.Errorf("got %d active sessions, want 1", len(active))
	}
}

func TestStopMonitoring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.SetStatus("PR-42", openPR("PR-42"))

	id, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.manager.StopMonitoring(ctx, id); err != nil {
		t.Fatalf("stop: %v", err)
	}

	session, err := f.store.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.Status != types.SessionStopped {
		t.Errorf("status = %s, want stopped", session.Status)
	}

	// Stopping again, and stopping an unknown id, are no-ops.
	if err := f.manager.StopMonitoring(ctx, id); err != nil {
		t.Errorf("second stop: %v", err)
	}
	if err := f.manager.StopMonitoring(ctx, "no-such-session"); err != nil {
		t.Errorf("unknown stop: %v", err)
	}

	stopped, err := f.log.Query(ctx, types.EventFilter{TypePrefix: types.EventSessionStopped, Writer: id})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(stopped) != 1 {
		t.Fatalf("got %d SESSION.STOPPED events, want exactly 1", len(stopped))
	}
	if len(stopped[0].Payload) == 0 {
		t.Error("stop event has no elapsed payload")
	}
}

func TestPollUnchangedEmitsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status := openPR("PR-42")
	status.Reviews = []types.Review{{ID: "r1", Verdict: types.ReviewCommented}}
	f.provider.SetStatus("PR-42", status)

	id, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := f.manager.Poll(ctx, id); err != nil {
		t.Fatalf("poll 1: %v", err)
	}
	baseline := len(f.manager.mustEvents(t, ctx, id))

	if err := f.manager.Poll(ctx, id); err != nil {
		t.Fatalf("poll 2: %v", err)
	}
	if err := f.manager.Poll(ctx, id); err != nil {
		t.Fatalf("poll 3: %v", err)
	}
	if got := len(f.manager.mustEvents(t, ctx, id)); got != baseline {
		t.Errorf("unchanged polls added %d events", got-baseline)
	}
}

// mustEvents is a test helper on Manager for reading one session's events.
func (m *Manager) mustEvents(t *testing.T, ctx context.Context, sessionID string) []*types.Event {
	t.Helper()
	events, err := m.log.Query(ctx, types.EventFilter{Tags: map[string]string{types.TagSessionID: sessionID}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	return events
}

func TestPollEmitsOneEventPerTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.SetStatus("PR-42", openPR("PR-42"))
	id, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.manager.Poll(ctx, id); err != nil {
		t.Fatalf("baseline poll: %v", err)
	}

	next := openPR("PR-42")
	next.Reviews = []types.Review{{ID: "r1", Author: "alex", Verdict: types.ReviewApproved}}
	next.Checks = []types.Check{{ID: "lint", Name: "lint", Status: types.CheckPassed}}
	f.provider.SetStatus("PR-42", next)

	if err := f.manager.Poll(ctx, id); err != nil {
		t.Fatalf("poll: %v", err)
	}

	reviews, _ := f.log.Query(ctx, types.EventFilter{TypePrefix: types.EventReviewReceived, Writer: id})
	if len(reviews) != 1 {
		t.Errorf("got %d review events, want 1", len(reviews))
	}
	checks, _ := f.log.Query(ctx, types.EventFilter{TypePrefix: "RESOURCE.CHECK", Writer: id})
	if len(checks) != 1 {
		t.Errorf("got %d check events, want 1", len(checks))
	}
	if len(checks) == 1 && checks[0].Type != "RESOURCE.CHECK.PASSED" {
		t.Errorf("check event type = %s", checks[0].Type)
	}
}

func TestPollFailuresDegradeButDoNotStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.SetStatus("PR-42", openPR("PR-42"))
	id, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.provider.FailPolls("PR-42", errors.New("dial tcp: connection refused"))
	for i := 0; i < 4; i++ {
		if err := f.manager.Poll(ctx, id); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	failed, _ := f.log.Query(ctx, types.EventFilter{TypePrefix: types.EventPollFailed, Writer: id})
	if len(failed) != 4 {
		t.Errorf("got %d poll-failed events, want 4", len(failed))
	}
	degraded, _ := f.log.Query(ctx, types.EventFilter{TypePrefix: types.EventPollDegraded, Writer: id})
	if len(degraded) != 1 {
		t.Errorf("got %d degraded events, want exactly 1", len(degraded))
	}

	session, _ := f.store.GetSession(ctx, id)
	if session.Status != types.SessionActive {
		t.Errorf("session status = %s; poll failures must not stop it", session.Status)
	}

	// Recovery resets the failure run; a fresh run re-raises the warning.
	f.provider.SetStatus("PR-42", openPR("PR-42"))
	if err := f.manager.Poll(ctx, id); err != nil {
		t.Fatalf("recovery poll: %v", err)
	}
	f.provider.FailPolls("PR-42", errors.New("dial tcp: connection refused"))
	for i := 0; i < 3; i++ {
		if err := f.manager.Poll(ctx, id); err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	degraded, _ = f.log.Query(ctx, types.EventFilter{TypePrefix: types.EventPollDegraded, Writer: id})
	if len(degraded) != 2 {
		t.Errorf("got %d degraded events after recovery cycle, want 2", len(degraded))
	}
}

func TestCheckFailureRetriesThenEscalates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.SetStatus("PR-42", openPR("PR-42"))
	id, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.manager.Poll(ctx, id); err != nil {
		t.Fatalf("baseline: %v", err)
	}

	fail := func() {
		status := openPR("PR-42")
		status.Checks = []types.Check{{ID: "build", Name: "build", Status: types.CheckFailed, Summary: "connection timeout"}}
		f.provider.SetStatus("PR-42", status)
		if err := f.manager.Poll(ctx, id); err != nil {
			t.Fatalf("failing poll: %v", err)
		}
		status2 := openPR("PR-42")
		status2.Checks = []types.Check{{ID: "build", Name: "build", Status: types.CheckRunning}}
		f.provider.SetStatus("PR-42", status2)
		if err := f.manager.Poll(ctx, id); err != nil {
			t.Fatalf("requeued poll: %v", err)
		}
	}

	// Two failures stay inside the budget of 3: each is recorded and the
	// check is re-queued on the platform after the decided delay.
	fail()
	fail()
	eventually(t, 2*time.Second, func() bool {
		return len(f.provider.RetriedChecks()) == 2
	}, "check was not re-queued twice")

	// Third failure exhausts the budget: one CI-failure escalation, no
	// further re-queues.
	fail()
	escs, err := f.escmgr.List(ctx, types.EscalationFilter{Type: types.EscalationCIFailure})
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	if len(escs) != 1 {
		t.Fatalf("got %d CI escalations, want 1", len(escs))
	}
	if len(escs[0].RetryHistory) != 3 {
		t.Errorf("escalation history has %d attempts, want 3", len(escs[0].RetryHistory))
	}

	attempts, _ := f.log.Query(ctx, types.EventFilter{TypePrefix: types.EventRetryAttemptFailed})
	if len(attempts) != 3 {
		t.Errorf("got %d attempt events, want 3", len(attempts))
	}

	session, _ := f.store.GetSession(ctx, id)
	if session.Status != types.SessionActive {
		t.Errorf("escalation must not stop monitoring, status = %s", session.Status)
	}
}

func TestTerminalResourceStateStopsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.SetStatus("PR-42", openPR("PR-42"))
	id, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.manager.Poll(ctx, id); err != nil {
		t.Fatalf("baseline: %v", err)
	}

	f.provider.SetStatus("PR-42", &types.ResourceStatus{ResourceID: "PR-42", State: types.ResourceMerged})
	if err := f.manager.Poll(ctx, id); err != nil {
		t.Fatalf("merge poll: %v", err)
	}

	session, _ := f.store.GetSession(ctx, id)
	if session.Status != types.SessionStopped {
		t.Errorf("status = %s, want stopped after terminal state", session.Status)
	}

	state, _ := f.log.Query(ctx, types.EventFilter{TypePrefix: types.EventStateChanged, Writer: id})
	if len(state) != 1 {
		t.Errorf("got %d state-changed events, want 1", len(state))
	}
}

func TestTimeoutEscalatesAndStops(t *testing.T) {
	store := teststore.New(t)
	log := eventlog.New(store)
	provider := platform.NewFake()
	escmgr := escalation.NewManager(store, log)
	m := NewManager(store, log, provider,
		WithEscalator(escmgr),
		WithConfig(Config{PollInterval: time.Hour, MaxDuration: 24 * time.Hour, DegradedThreshold: 3}),
	)
	t.Cleanup(func() { _ = m.Shutdown() })
	ctx := context.Background()

	provider.SetStatus("PR-42", openPR("PR-42"))
	// Tiny window and fast ticker: the first tick crosses the ceiling.
	id, err := m.StartMonitoring(ctx, "PR-42", 10*time.Millisecond, time.Millisecond)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	eventually(t, 3*time.Second, func() bool {
		session, err := m.Session(ctx, id)
		return err == nil && session.Status == types.SessionTimedOut
	}, "session never timed out")

	timedOut, _ := log.Query(ctx, types.EventFilter{TypePrefix: types.EventSessionTimedOut, Writer: id})
	if len(timedOut) != 1 {
		t.Errorf("got %d TIMED_OUT events, want exactly 1", len(timedOut))
	}
	stopped, _ := log.Query(ctx, types.EventFilter{TypePrefix: types.EventSessionStopped, Writer: id})
	if len(stopped) != 1 {
		t.Errorf("got %d STOPPED events, want exactly 1", len(stopped))
	}

	escs, err := escmgr.List(ctx, types.EscalationFilter{Type: types.EscalationTimeout})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(escs) != 1 {
		t.Fatalf("got %d timeout escalations, want 1", len(escs))
	}
	if escs[0].SessionID != id {
		t.Errorf("escalation session = %s, want %s", escs[0].SessionID, id)
	}
}

func TestResolutionStopsSession(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.provider.SetStatus("PR-42", openPR("PR-42"))
	id, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = f.manager.Run(ctx)
	}()
	// Give Run a beat to subscribe before the resolution event is appended.
	time.Sleep(50 * time.Millisecond)

	esc, err := f.escmgr.Escalate(ctx, escalation.Trigger{
		Type:       types.EscalationReviewBlocking,
		ResourceID: "PR-42",
		SessionID:  id,
		Reason:     "changes requested by reviewer",
	})
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if err := f.escmgr.Resolve(ctx, esc.ID, types.Resolution{
		Actor:   "alex",
		Action:  types.ActionStop,
		Channel: "cli",
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	eventually(t, 3*time.Second, func() bool {
		session, err := f.store.GetSession(ctx, id)
		return err == nil && session.Status == types.SessionStopped
	}, "resolution did not stop the session")

	cancel()
	<-runDone
}

// Resume resolutions arrive on the Run tailer goroutine while the poll loop
// is live; both sides mutate the session's failure counters and per-check
// retry state, so they must be safe to interleave (run with -race).
func TestResumeResolutionsConcurrentWithPolls(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.provider.SetStatus("PR-42", openPR("PR-42"))
	id, err := f.manager.StartMonitoring(ctx, "PR-42", 0, 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = f.manager.Run(ctx)
	}()
	// Give Run a beat to subscribe before the resolutions start flowing.
	time.Sleep(50 * time.Millisecond)

	// Drive polls that exercise every mutable piece of session state: a
	// stretch of fetch failures bumps the failure counters, and a check
	// flipping between failed and running feeds the per-check retry map.
	pollsDone := make(chan struct{})
	go func() {
		defer close(pollsDone)
		for i := 0; i < 40; i++ {
			if i%4 == 0 {
				f.provider.FailPolls("PR-42", errors.New("connection reset"))
			} else {
				status := openPR("PR-42")
				checkStatus := types.CheckFailed
				if i%2 == 0 {
					checkStatus = types.CheckRunning
				}
				status.Checks = []types.Check{{ID: "build", Name: "build", Status: checkStatus, Summary: "connection timeout"}}
				f.provider.SetStatus("PR-42", status)
			}
			if err := f.manager.Poll(ctx, id); err != nil {
				t.Errorf("poll %d: %v", i, err)
				return
			}
		}
	}()

	payload, err := json.Marshal(types.Resolution{Actor: "alex", Action: types.ActionResume, Channel: "cli"})
	if err != nil {
		t.Fatalf("marshal resolution: %v", err)
	}
	for i := 0; i < 40; i++ {
		if _, err := f.log.Append(ctx, &types.Event{
			Type:    types.EventEscalationResolved,
			Writer:  "escalation:resume-storm",
			Tags:    map[string]string{types.TagSessionID: id, types.TagResourceID: "PR-42"},
			Payload: payload,
		}); err != nil {
			t.Fatalf("append resolution %d: %v", i, err)
		}
	}

	<-pollsDone
	session, err := f.store.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.Status != types.SessionActive {
		t.Errorf("status = %s; resume resolutions must not stop the session", session.Status)
	}

	cancel()
	<-runDone
}

func TestAttachRestartsActiveSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Session created by "another process": directly in the store, no loop.
	session := &types.MonitoringSession{
		ID:         "sess-ext",
		ResourceID: "PR-7",
		Status:     types.SessionActive,
		StartedAt:  time.Now().UTC(),
	}
	if err := f.store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.provider.SetStatus("PR-7", openPR("PR-7"))

	attached, err := f.manager.Attach(ctx)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if len(attached) != 1 || attached[0] != "sess-ext" {
		t.Errorf("attached = %v", attached)
	}

	// Second attach is a no-op for already-running loops.
	attached, err = f.manager.Attach(ctx)
	if err != nil {
		t.Fatalf("attach 2: %v", err)
	}
	if len(attached) != 0 {
		t.Errorf("re-attached %v", attached)
	}
}
