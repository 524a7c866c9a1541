package notifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// recordingNotifier captures sent events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{} // when non-nil, Send blocks until closed
	fail   bool
}

func (r *recordingNotifier) Send(ctx context.Context, event Event) (bool, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return false, context.DeadlineExceeded
	}
	r.events = append(r.events, event)
	return true, nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestDispatchDelivers(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, 8, time.Second, false, slog.Default())

	if !d.Dispatch(Event{Event: "action_result", Platform: "x", Action: "like", Success: true}) {
		t.Error("Dispatch() = false, want true")
	}
	d.Close()

	if rec.count() != 1 {
		t.Errorf("delivered %d events, want 1", rec.count())
	}
}

func TestDispatchSilent(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, 8, time.Second, true, slog.Default())
	defer d.Close()

	if d.Dispatch(Event{Platform: "x"}) {
		t.Error("Dispatch() = true with silence flag set")
	}
	d.Close()
	if rec.count() != 0 {
		t.Errorf("silent dispatcher delivered %d events", rec.count())
	}
}

func TestDispatchNilNotifier(t *testing.T) {
	d := NewDispatcher(nil, 8, time.Second, false, slog.Default())
	defer d.Close()

	if d.Dispatch(Event{Platform: "x"}) {
		t.Error("Dispatch() = true with nil notifier")
	}
}

func TestDispatchNeverBlocks(t *testing.T) {
	rec := &recordingNotifier{block: make(chan struct{})}
	d := NewDispatcher(rec, 1, time.Second, false, slog.Default())

	// Fill the worker plus the queue, then keep dispatching: calls must
	// return promptly and report drops.
	deadline := time.After(2 * time.Second)
	dispatched := 0
	for i := 0; i < 10; i++ {
		done := make(chan bool, 1)
		go func() { done <- d.Dispatch(Event{Platform: "x", Action: "like"}) }()
		select {
		case ok := <-done:
			if ok {
				dispatched++
			}
		case <-deadline:
			t.Fatal("Dispatch blocked")
		}
	}

	if d.Dropped() == 0 {
		t.Error("expected dropped events with a full queue")
	}
	close(rec.block)
	d.Close()
}

func TestDispatchAfterClose(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, 8, time.Second, false, slog.Default())
	d.Close()

	// Late events are dropped, never sent into the closed queue.
	if d.Dispatch(Event{Platform: "x", Action: "like"}) {
		t.Error("Dispatch() = true after Close")
	}
	if rec.count() != 0 {
		t.Errorf("closed dispatcher delivered %d events", rec.count())
	}
	d.Close() // idempotent
}

func TestDispatcherSwallowsErrors(t *testing.T) {
	rec := &recordingNotifier{fail: true}
	d := NewDispatcher(rec, 8, time.Second, false, slog.Default())

	d.Dispatch(Event{Platform: "x", Action: "like"})
	d.Close() // must not panic or hang on a failing notifier
}

func TestWebhookSend(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, 5*time.Second)
	delivered, err := w.Send(context.Background(), Event{
		Event:    "action_result",
		Platform: "instagram",
		Action:   "comment",
		Success:  true,
		Target:   "https://instagram.com/p/abc",
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if !delivered {
		t.Error("Send() delivered = false")
	}
	if got.Platform != "instagram" || got.Action != "comment" {
		t.Errorf("server received %+v", got)
	}
}

func TestWebhookSendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, 5*time.Second)
	delivered, err := w.Send(context.Background(), Event{Platform: "x"})
	if err == nil {
		t.Error("Send() error = nil for 502")
	}
	if delivered {
		t.Error("Send() delivered = true for 502")
	}
}
