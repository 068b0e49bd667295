package eventlog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tammahq/tamma/internal/types"
)

// hub fans appended events out to live tail subscribers. Each subscriber is
// served by its own delivery goroutine reading from a bounded buffer, so a
// slow consumer never blocks appends or other subscribers. Delivery order
// per subscriber is append order; dropped events (buffer full) are counted
// and logged, never reordered.
type hub struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	bufSize int
	logger  *slog.Logger
}

type subscriber struct {
	filter  types.EventFilter
	buf     chan *types.Event
	out     chan *types.Event
	done    chan struct{}
	dropped int64
}

// Tail returns a channel of events matching the filter, starting with events
// appended after the call. The returned cancel function must be called to
// release the subscription; the channel is closed afterwards. Cancellation
// of ctx has the same effect.
func (l *Log) Tail(ctx context.Context, filter types.EventFilter) (<-chan *types.Event, context.CancelFunc) {
	sub := &subscriber{
		filter: filter,
		buf:    make(chan *types.Event, l.hub.bufSize),
		out:    make(chan *types.Event),
		done:   make(chan struct{}),
	}

	l.hub.mu.Lock()
	id := l.hub.nextID
	l.hub.nextID++
	if l.hub.subs == nil {
		l.hub.subs = make(map[int]*subscriber)
	}
	l.hub.subs[id] = sub
	l.hub.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.hub.mu.Lock()
			delete(l.hub.subs, id)
			l.hub.mu.Unlock()
			close(sub.done)
		})
	}

	// Delivery goroutine: drains the buffer into the unbuffered out channel
	// so the subscriber sees a plain receive-only stream.
	go func() {
		defer close(sub.out)
		for {
			select {
			case <-sub.done:
				return
			case <-ctx.Done():
				cancel()
				return
			case e := <-sub.buf:
				select {
				case sub.out <- e:
				case <-sub.done:
					return
				case <-ctx.Done():
					cancel()
					return
				}
			}
		}
	}()

	return sub.out, cancel
}

// publish offers an event to every matching subscriber. Called after the
// durable append succeeds, never before.
func (h *hub) publish(e *types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if !sub.filter.Matches(e) {
			continue
		}
		select {
		case sub.buf <- e:
		default:
			sub.dropped++
			if h.logger != nil {
				h.logger.Warn("tail subscriber buffer full, dropping event",
					"event_type", e.Type, "event_id", e.ID, "dropped_total", sub.dropped)
			}
		}
	}
}
