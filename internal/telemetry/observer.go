package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tammahq/tamma/internal/eventlog"
	"github.com/tammahq/tamma/internal/types"
)

const observerScopeName = "github.com/tammahq/tamma/supervision"

// Observer tails the event log and turns supervision events into counters:
// polls, retry attempts, and escalations, each broken down by event type.
// Because it counts from the log, the metrics agree with the audit record by
// construction.
type Observer struct {
	log      *eventlog.Log
	polls    metric.Int64Counter
	retries  metric.Int64Counter
	escs     metric.Int64Counter
	sessions metric.Int64Counter
}

// NewObserver creates an observer over the given log. Returns nil when
// telemetry is disabled; Run on a nil observer is a no-op.
func NewObserver(log *eventlog.Log) *Observer {
	if !Enabled() {
		return nil
	}
	m := Meter(observerScopeName)
	polls, _ := m.Int64Counter("tamma.monitor.polls",
		metric.WithDescription("Poll outcomes recorded in the event log"),
	)
	retries, _ := m.Int64Counter("tamma.retry.attempts",
		metric.WithDescription("Retry attempt events recorded in the event log"),
	)
	escs, _ := m.Int64Counter("tamma.escalations",
		metric.WithDescription("Escalation events recorded in the event log"),
	)
	sessions, _ := m.Int64Counter("tamma.monitor.sessions",
		metric.WithDescription("Session lifecycle events recorded in the event log"),
	)
	return &Observer{log: log, polls: polls, retries: retries, escs: escs, sessions: sessions}
}

// Run consumes the tail until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) {
	if o == nil {
		return
	}
	events, cancel := o.log.Tail(ctx, types.EventFilter{})
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			o.record(ctx, e)
		}
	}
}

func (o *Observer) record(ctx context.Context, e *types.Event) {
	attrs := metric.WithAttributes(attribute.String("tamma.event.type", e.Type))
	switch {
	case strings.HasPrefix(e.Type, "MONITOR.POLL."):
		o.polls.Add(ctx, 1, attrs)
	case strings.HasPrefix(e.Type, "RETRY."):
		o.retries.Add(ctx, 1, attrs)
	case strings.HasPrefix(e.Type, "ESCALATION."):
		o.escs.Add(ctx, 1, attrs)
	case strings.HasPrefix(e.Type, "SESSION."):
		o.sessions.Add(ctx, 1, attrs)
	}
}
