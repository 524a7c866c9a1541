package notifier

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher is the bounded handoff between the executor and the notifier.
// Dispatch never blocks: when the queue is full the event is dropped and
// counted, which is acceptable because notifications are advisory.
type Dispatcher struct {
	notifier Notifier
	queue    chan Event
	logger   *slog.Logger
	silent   bool
	dropped  atomic.Int64
	timeout  time.Duration

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher creates a dispatcher and starts its worker goroutine.
// notifier may be nil, in which case events are discarded (no channel
// configured). silent suppresses all automatic dispatch; callers that batch
// their own notifications set it process-wide.
func NewDispatcher(notifier Notifier, queueSize int, timeout time.Duration, silent bool, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 32
	}
	d := &Dispatcher{
		notifier: notifier,
		queue:    make(chan Event, queueSize),
		logger:   logger,
		silent:   silent,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch hands an event to the worker without blocking. Returns false when
// the event was suppressed or dropped. Safe to call concurrently with Close;
// events arriving after Close are dropped.
func (d *Dispatcher) Dispatch(event Event) bool {
	if d.silent || d.notifier == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- event:
		return true
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("notification queue full, event dropped",
			"platform", event.Platform,
			"action", event.Action,
			"dropped_total", n,
		)
		return false
	}
}

// Dropped returns the number of events dropped due to a full queue.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events and drains the queue before returning.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
		<-d.done
	})
}

// run delivers queued events one at a time. Errors are logged and swallowed;
// a notification failure must never surface to the action path.
func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		delivered, err := d.notifier.Send(ctx, event)
		cancel()
		if err != nil {
			d.logger.Warn("notification delivery failed",
				"platform", event.Platform,
				"action", event.Action,
				"error", err,
			)
			continue
		}
		d.logger.Debug("notification dispatched",
			"platform", event.Platform,
			"action", event.Action,
			"delivered", delivered,
		)
	}
}
