// Package coordinator is the dispatch core of the daemon. It answers the
// message API, routes browser events to the enforcer and fired alarms to
// the scheduler, and carries out the side effects of session transitions.
package coordinator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/valentindosimont/focusgate/internal/browser"
	"github.com/valentindosimont/focusgate/internal/challenge"
	"github.com/valentindosimont/focusgate/internal/enforcer"
	"github.com/valentindosimont/focusgate/internal/history"
	"github.com/valentindosimont/focusgate/internal/scheduler"
	"github.com/valentindosimont/focusgate/internal/session"
	"github.com/valentindosimont/focusgate/internal/store"
)

// Surface is the user-visible side of the browser: toolbar icon and
// desktop notifications.
type Surface interface {
	SetIcon(active bool) error
	Notify(title, message string) error
	Connected() bool
}

type Store interface {
	BlockedURLs(ctx context.Context) ([]string, error)
	SetBlockedURLs(ctx context.Context, entries []string) error
	ListPresets(ctx context.Context) ([]store.Preset, error)
	GetPreset(ctx context.Context, id string) (*store.Preset, error)
	SavePreset(ctx context.Context, p store.Preset) error
	DeletePreset(ctx context.Context, id string) (bool, error)
}

// Coordinator implements session.Effects
type Coordinator struct {
	sessions  *session.Machine
	store     Store
	recorder  *history.Recorder
	scheduler *scheduler.Scheduler
	enforcer  *enforcer.Enforcer
	referee   *challenge.Referee
	surface   Surface

	now   func() time.Time
	newID func() string
	debug bool
}

func New(
	sessions *session.Machine,
	st Store,
	recorder *history.Recorder,
	sched *scheduler.Scheduler,
	enf *enforcer.Enforcer,
	surface Surface,
) *Coordinator {
	c := &Coordinator{
		sessions:  sessions,
		store:     st,
		recorder:  recorder,
		scheduler: sched,
		enforcer:  enf,
		referee:   challenge.NewReferee(challenge.DefaultShots, challenge.DefaultHitsToWin),
		surface:   surface,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	c.referee.OnWin(func(ctx context.Context) {
		log.Printf("coordinator: challenge won, ending session")
		c.expire(ctx, false, session.ReasonMinigameWon)
	})
	sessions.SetEffects(c)
	sched.SetNotifier(c)
	return c
}

// SetClock replaces the time source used in responses
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Coordinator) SetDebug(debug bool) {
	c.debug = debug
	c.enforcer.SetDebug(debug)
}

func (c *Coordinator) debugLog(format string, args ...interface{}) {
	if c.debug {
		log.Printf("coordinator: "+format, args...)
	}
}

func (c *Coordinator) IconChanged(active bool) {
	if err := c.surface.SetIcon(active); err != nil {
		c.surfaceError("set icon", err)
	}
}

func (c *Coordinator) BlockingActivated(ctx context.Context) {
	c.enforcer.Sweep(ctx)
}

func (c *Coordinator) Notify(ctx context.Context, title, message string) {
	if err := c.surface.Notify(title, message); err != nil {
		c.surfaceError("notify", err)
	}
}

func (c *Coordinator) surfaceError(op string, err error) {
	if errors.Is(err, browser.ErrNotConnected) {
		c.debugLog("%s skipped: %v", op, err)
		return
	}
	log.Printf("coordinator: %s: %v", op, err)
}

// OnBrowserEvent handles one event from the extension
func (c *Coordinator) OnBrowserEvent(ctx context.Context, ev browser.Event) {
	switch ev.Kind {
	case browser.EventNavigate:
		c.enforcer.OnBeforeNavigate(ctx, ev)
	case browser.EventTabUpdated:
		c.enforcer.OnTabUpdated(ctx, ev.TabID, ev.URL)
	case browser.EventTabs:
		// A fresh tab snapshot arrives on every (re)connect.
		c.enforcer.Sweep(ctx)
	case browser.EventConnected:
		c.IconChanged(c.sessions.Blocking(ctx))
	case browser.EventDisconnected:
		c.debugLog("browser disconnected")
	}
}

// OnAlarm handles a fired alarm
func (c *Coordinator) OnAlarm(ctx context.Context, name string) {
	c.debugLog("alarm %s fired", name)
	c.scheduler.HandleAlarm(ctx, name)
}

// OnTick runs the expiry check so an overdue session ends even when
// nothing queries it.
func (c *Coordinator) OnTick(ctx context.Context) {
	c.sessions.State(ctx)
}

// OnStoreChanged reconciles with writes made by another process
func (c *Coordinator) OnStoreChanged(ctx context.Context) {
	if err := c.sessions.Reconcile(ctx); err != nil {
		log.Printf("coordinator: %v", err)
	}
	if err := c.scheduler.SyncPresets(ctx); err != nil {
		log.Printf("coordinator: %v", err)
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
