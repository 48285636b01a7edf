package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/valentindosimont/focusgate/internal/browser"
	"github.com/valentindosimont/focusgate/internal/coordinator"
)

type recordingHandler struct {
	mu      sync.Mutex
	events  []browser.Event
	alarms  []string
	changes int
	ticks   int

	// count is only touched from HandleMessage, without h.mu, so lost
	// updates show up when messages run concurrently.
	count int
}

func (h *recordingHandler) OnBrowserEvent(_ context.Context, ev browser.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) OnAlarm(_ context.Context, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alarms = append(h.alarms, name)
}

func (h *recordingHandler) OnStoreChanged(context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes++
}

func (h *recordingHandler) OnTick(context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ticks++
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg coordinator.Message) coordinator.Response {
	n := h.count
	time.Sleep(time.Millisecond)
	h.count = n + 1
	return coordinator.Response{"success": true, "action": msg.Action, "count": h.count}
}

func (h *recordingHandler) snapshot() (int, int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events), len(h.alarms), h.changes, h.ticks
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLoopDispatches(t *testing.T) {
	h := &recordingHandler{}
	events := make(chan browser.Event, 1)
	changes := make(chan struct{}, 1)

	l := NewLoop(h, 20*time.Millisecond)
	l.SetBrowserEvents(events)
	l.SetStoreChanges(changes)
	l.Start(context.Background())
	defer l.Stop()

	events <- browser.Event{Kind: browser.EventNavigate, TabID: 1, URL: "https://foo.com"}
	l.Alarm("focus-session-end")
	changes <- struct{}{}

	waitFor(t, func() bool {
		ev, al, ch, ticks := h.snapshot()
		return ev == 1 && al == 1 && ch == 1 && ticks > 0
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.alarms[0] != "focus-session-end" {
		t.Errorf("alarm = %q, want focus-session-end", h.alarms[0])
	}
	if h.events[0].TabID != 1 {
		t.Errorf("event = %+v, want tab 1", h.events[0])
	}
}

func TestLoopStopIsIdempotent(t *testing.T) {
	l := NewLoop(&recordingHandler{}, time.Hour)
	l.Start(context.Background())
	l.Stop()
	l.Stop()

	// Alarms after stop must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 32; i++ {
			l.Alarm("late")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Alarm() blocked after Stop()")
	}
}

func TestLoopSerializesMessages(t *testing.T) {
	h := &recordingHandler{}
	l := NewLoop(h, time.Hour)
	l.Start(context.Background())
	defer l.Stop()

	const callers = 20
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := l.HandleMessage(context.Background(), coordinator.Message{Action: "addBlockedUrl"})
			if resp["success"] != true {
				t.Errorf("HandleMessage() = %v", resp)
			}
		}()
	}
	wg.Wait()

	l.Stop()
	if h.count != callers {
		t.Errorf("count = %d, want %d", h.count, callers)
	}
}

func TestHandleMessageAfterStop(t *testing.T) {
	l := NewLoop(&recordingHandler{}, time.Hour)
	l.Start(context.Background())
	l.Stop()

	resp := l.HandleMessage(context.Background(), coordinator.Message{Action: "getTimerState"})
	if resp["success"] != false {
		t.Errorf("HandleMessage() after Stop = %v, want failure", resp)
	}
}
