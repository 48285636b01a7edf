package daemon

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/valentindosimont/focusgate/internal/browser"
	"github.com/valentindosimont/focusgate/internal/coordinator"
)

// Handler receives everything the loop dispatches
type Handler interface {
	OnBrowserEvent(ctx context.Context, ev browser.Event)
	OnAlarm(ctx context.Context, name string)
	OnStoreChanged(ctx context.Context)
	OnTick(ctx context.Context)
	HandleMessage(ctx context.Context, msg coordinator.Message) coordinator.Response
}

type messageRequest struct {
	msg   coordinator.Message
	reply chan coordinator.Response
}

// Loop serializes API messages, browser events, fired alarms, store changes
// and the periodic expiry tick onto one goroutine.
type Loop struct {
	handler Handler

	browserEvents <-chan browser.Event
	storeChanges  <-chan struct{}
	alarmCh       chan string
	messageCh     chan messageRequest

	pollInterval time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once
	debug        bool
}

// NewLoop creates a loop that ticks every pollInterval
func NewLoop(handler Handler, pollInterval time.Duration) *Loop {
	return &Loop{
		handler:      handler,
		alarmCh:      make(chan string, 16),
		messageCh:    make(chan messageRequest),
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

func (l *Loop) SetDebug(debug bool) {
	l.debug = debug
}

func (l *Loop) debugLog(format string, args ...interface{}) {
	if l.debug {
		log.Printf("daemon: "+format, args...)
	}
}

// SetBrowserEvents sets the source of browser events
func (l *Loop) SetBrowserEvents(ch <-chan browser.Event) {
	l.browserEvents = ch
}

// SetStoreChanges sets the source of store change signals
func (l *Loop) SetStoreChanges(ch <-chan struct{}) {
	l.storeChanges = ch
}

// Alarm queues a fired alarm. It is the scheduler's fire handler and may
// be called from any goroutine.
func (l *Loop) Alarm(name string) {
	select {
	case l.alarmCh <- name:
	case <-l.stopCh:
	}
}

// HandleMessage runs msg on the loop goroutine and waits for the answer.
// It may be called from any goroutine.
func (l *Loop) HandleMessage(ctx context.Context, msg coordinator.Message) coordinator.Response {
	req := messageRequest{msg: msg, reply: make(chan coordinator.Response, 1)}

	select {
	case l.messageCh <- req:
	case <-ctx.Done():
		return unavailable("Request cancelled")
	case <-l.doneCh:
		return unavailable("Daemon is shutting down")
	}

	select {
	case resp := <-req.reply:
		return resp
	case <-l.doneCh:
		return unavailable("Daemon is shutting down")
	}
}

func unavailable(message string) coordinator.Response {
	return coordinator.Response{"success": false, "message": message}
}

// Start starts the loop
func (l *Loop) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop stops the loop and waits for the handler in flight to return
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-l.browserEvents:
			if !ok {
				l.browserEvents = nil
				continue
			}
			l.debugLog("browser %s tab=%d", ev.Kind, ev.TabID)
			l.handler.OnBrowserEvent(ctx, ev)
		case req := <-l.messageCh:
			l.debugLog("message %s", req.msg.Action)
			req.reply <- l.handler.HandleMessage(ctx, req.msg)
		case name := <-l.alarmCh:
			l.debugLog("alarm %s", name)
			l.handler.OnAlarm(ctx, name)
		case _, ok := <-l.storeChanges:
			if !ok {
				l.storeChanges = nil
				continue
			}
			l.debugLog("store changed")
			l.handler.OnStoreChanged(ctx)
		case <-ticker.C:
			l.handler.OnTick(ctx)
		}
	}
}
