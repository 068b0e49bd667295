package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tammahq/tamma/internal/storage"
	"github.com/tammahq/tamma/internal/types"
)

const storageScopeName = "github.com/tammahq/tamma/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in tamma.storage.* metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner  storage.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("tamma.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("tamma.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("tamma.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Events ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) AppendEvent(ctx context.Context, event *types.Event) error {
	attrs := []attribute.KeyValue{
		attribute.String("tamma.event.type", event.Type),
		attribute.String("tamma.event.writer", event.Writer),
	}
	ctx, span, t := s.op(ctx, "AppendEvent", attrs...)
	err := s.inner.AppendEvent(ctx, event)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) QueryEvents(ctx context.Context, filter types.EventFilter) ([]*types.Event, error) {
	attrs := []attribute.KeyValue{attribute.String("tamma.filter.type_prefix", filter.TypePrefix)}
	ctx, span, t := s.op(ctx, "QueryEvents", attrs...)
	events, err := s.inner.QueryEvents(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("tamma.result.count", len(events)))
	}
	s.done(ctx, span, t, err, attrs...)
	return events, err
}

// ── Sessions ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateSession(ctx context.Context, session *types.MonitoringSession) error {
	attrs := []attribute.KeyValue{attribute.String("tamma.resource.id", session.ResourceID)}
	ctx, span, t := s.op(ctx, "CreateSession", attrs...)
	err := s.inner.CreateSession(ctx, session)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetSession(ctx context.Context, id string) (*types.MonitoringSession, error) {
	attrs := []attribute.KeyValue{attribute.String("tamma.session.id", id)}
	ctx, span, t := s.op(ctx, "GetSession", attrs...)
	v, err := s.inner.GetSession(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetActiveSession(ctx context.Context, resourceID string) (*types.MonitoringSession, error) {
	attrs := []attribute.KeyValue{attribute.String("tamma.resource.id", resourceID)}
	ctx, span, t := s.op(ctx, "GetActiveSession", attrs...)
	v, err := s.inner.GetActiveSession(ctx, resourceID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) UpdateSessionSnapshot(ctx context.Context, id string, checkedAt time.Time, snapshot *types.ResourceStatus) error {
	attrs := []attribute.KeyValue{attribute.String("tamma.session.id", id)}
	ctx, span, t := s.op(ctx, "UpdateSessionSnapshot", attrs...)
	err := s.inner.UpdateSessionSnapshot(ctx, id, checkedAt, snapshot)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) CloseSession(ctx context.Context, id string, status types.SessionStatus, endedAt time.Time) error {
	attrs := []attribute.KeyValue{
		attribute.String("tamma.session.id", id),
		attribute.String("tamma.session.status", string(status)),
	}
	ctx, span, t := s.op(ctx, "CloseSession", attrs...)
	err := s.inner.CloseSession(ctx, id, status, endedAt)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.MonitoringSession, error) {
	ctx, span, t := s.op(ctx, "ListSessions")
	v, err := s.inner.ListSessions(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("tamma.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Escalations ──────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateEscalation(ctx context.Context, esc *types.Escalation) error {
	attrs := []attribute.KeyValue{
		attribute.String("tamma.escalation.type", string(esc.Type)),
		attribute.String("tamma.escalation.severity", string(esc.Severity)),
	}
	ctx, span, t := s.op(ctx, "CreateEscalation", attrs...)
	err := s.inner.CreateEscalation(ctx, esc)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetEscalation(ctx context.Context, id string) (*types.Escalation, error) {
	attrs := []attribute.KeyValue{attribute.String("tamma.escalation.id", id)}
	ctx, span, t := s.op(ctx, "GetEscalation", attrs...)
	v, err := s.inner.GetEscalation(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ResolveEscalation(ctx context.Context, id string, res *types.Resolution) error {
	attrs := []attribute.KeyValue{
		attribute.String("tamma.escalation.id", id),
		attribute.String("tamma.resolution.action", string(res.Action)),
	}
	ctx, span, t := s.op(ctx, "ResolveEscalation", attrs...)
	err := s.inner.ResolveEscalation(ctx, id, res)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListEscalations(ctx context.Context, filter types.EscalationFilter) ([]*types.Escalation, error) {
	ctx, span, t := s.op(ctx, "ListEscalations")
	v, err := s.inner.ListEscalations(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("tamma.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Configuration ────────────────────────────────────────────────────────────

func (s *InstrumentedStore) SetConfig(ctx context.Context, key, value string) error {
	attrs := []attribute.KeyValue{attribute.String("tamma.config.key", key)}
	ctx, span, t := s.op(ctx, "SetConfig", attrs...)
	err := s.inner.SetConfig(ctx, key, value)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetConfig(ctx context.Context, key string) (string, error) {
	attrs := []attribute.KeyValue{attribute.String("tamma.config.key", key)}
	ctx, span, t := s.op(ctx, "GetConfig", attrs...)
	v, err := s.inner.GetConfig(ctx, key)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

var _ storage.Store = (*InstrumentedStore)(nil)
