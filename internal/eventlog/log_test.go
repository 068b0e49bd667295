package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/testutil/teststore"
	"github.com/tammahq/tamma/internal/types"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	return New(teststore.New(t))
}

func TestAppendAssignsIdentity(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	e := &types.Event{
		Type:   types.EventSessionStarted,
		Writer: "session-1",
		Tags:   map[string]string{types.TagResourceID: "PR-42"},
	}
	id, err := l.Append(ctx, e)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == "" || e.ID != id {
		t.Errorf("id not assigned: %q vs %q", id, e.ID)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}

	got, err := l.Query(ctx, types.EventFilter{Writer: "session-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("appended event not queryable: %v", got)
	}
}

func TestAppendRejectsBadType(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	for _, badType := range []string{"", "SESSION", "SESSION.", ".STARTED", "SESSION..STARTED", "SESSION STARTED"} {
		_, err := l.Append(ctx, &types.Event{Type: badType, Writer: "w"})
		if err == nil {
			t.Errorf("append accepted invalid type %q", badType)
		}
	}
}

func TestAppendRejectsOversizedPayload(t *testing.T) {
	l := newTestLog(t)

	big, _ := json.Marshal(map[string]string{"log": strings.Repeat("x", MaxPayloadBytes)})
	_, err := l.Append(context.Background(), &types.Event{
		Type:    types.EventRetryAttemptFailed,
		Writer:  "op-1",
		Payload: big,
	})
	if !errors.Is(err, storage.ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestAppendRejectsInvalidJSONPayload(t *testing.T) {
	l := newTestLog(t)

	_, err := l.Append(context.Background(), &types.Event{
		Type:    types.EventRetryAttemptFailed,
		Writer:  "op-1",
		Payload: []byte(`{"unterminated`),
	})
	if err == nil {
		t.Fatal("append accepted invalid JSON payload")
	}
}

func TestQueryCursorResumption(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := l.Append(ctx, &types.Event{
			Type:      types.EventPollFailed,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Writer:    "session-1",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page1, err := l.Query(ctx, types.EventFilter{Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("page 1 len = %d, want 2", len(page1))
	}

	cursor := &types.Cursor{Timestamp: page1[1].Timestamp, ID: page1[1].ID}
	page2, err := l.Query(ctx, types.EventFilter{After: cursor})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 3 {
		t.Fatalf("page 2 len = %d, want 3", len(page2))
	}
	if page2[0].ID == page1[1].ID {
		t.Error("cursor page repeated the cursor event")
	}
}

func TestTailDeliversInAppendOrder(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	ch, cancel := l.Tail(ctx, types.EventFilter{TypePrefix: "RETRY"})
	defer cancel()

	want := []string{"RETRY.ATTEMPT.FAILED", "RETRY.ATTEMPT.SCHEDULED", "RETRY.ATTEMPT.FAILED"}
	for _, typ := range want {
		if _, err := l.Append(ctx, &types.Event{Type: typ, Writer: "op-1"}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	// Filtered out: should not show up on the tail.
	if _, err := l.Append(ctx, &types.Event{Type: types.EventSessionStarted, Writer: "s-1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	for i, typ := range want {
		select {
		case e := <-ch:
			if e.Type != typ {
				t.Errorf("delivery %d = %s, want %s", i, e.Type, typ)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}

	select {
	case e := <-ch:
		t.Errorf("unexpected extra delivery: %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTailTwoIndependentSubscribers(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	ch1, cancel1 := l.Tail(ctx, types.EventFilter{})
	defer cancel1()
	ch2, cancel2 := l.Tail(ctx, types.EventFilter{})
	defer cancel2()

	if _, err := l.Append(ctx, &types.Event{Type: types.EventEscalationTriggered, Writer: "esc"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	for i, ch := range []<-chan *types.Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != types.EventEscalationTriggered {
				t.Errorf("subscriber %d got %s", i, e.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestTailCancelClosesChannel(t *testing.T) {
	l := newTestLog(t)

	ch, cancel := l.Tail(context.Background(), types.EventFilter{})
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Appends after cancel must not block or panic.
	if _, err := l.Append(context.Background(), &types.Event{Type: types.EventSessionStopped, Writer: "s-1"}); err != nil {
		t.Fatalf("append after cancel: %v", err)
	}
}
