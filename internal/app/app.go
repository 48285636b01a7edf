package app

import (
	"context"
	"log"
	"time"

	"github.com/valentindosimont/focusgate/internal/browser"
	"github.com/valentindosimont/focusgate/internal/config"
	"github.com/valentindosimont/focusgate/internal/coordinator"
	"github.com/valentindosimont/focusgate/internal/daemon"
	"github.com/valentindosimont/focusgate/internal/enforcer"
	"github.com/valentindosimont/focusgate/internal/history"
	"github.com/valentindosimont/focusgate/internal/scheduler"
	"github.com/valentindosimont/focusgate/internal/server"
	"github.com/valentindosimont/focusgate/internal/session"
	"github.com/valentindosimont/focusgate/internal/store"
)

// Config holds application configuration
type Config struct {
	DBPath           string
	ListenAddr       string
	PollInterval     time.Duration
	WatchDebounce    time.Duration
	ReduceFloor      time.Duration
	HistoryLimit     int
	NotifyOnComplete bool
	WeeklyInterval   time.Duration
	CloseTimeout     time.Duration
	Debug            bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return fromFile(config.Default())
}

func fromFile(fc *config.Config) Config {
	return Config{
		DBPath:           fc.Store.Path,
		ListenAddr:       fc.Server.ListenAddr,
		PollInterval:     time.Second,
		WatchDebounce:    200 * time.Millisecond,
		ReduceFloor:      fc.ReduceFloor(),
		HistoryLimit:     fc.Session.HistoryLimit,
		NotifyOnComplete: fc.Session.NotifyOnComplete,
		WeeklyInterval:   fc.WeeklyCheckInterval(),
		CloseTimeout:     fc.CloseTimeout(),
		Debug:            fc.Log.Debug,
	}
}

// LoadConfig loads configuration from file and merges with defaults
func LoadConfig() (Config, *config.Config) {
	return LoadConfigFrom(config.DefaultPath())
}

// LoadConfigFrom is LoadConfig with an explicit file path. A malformed
// file falls back to defaults.
func LoadConfigFrom(path string) (Config, *config.Config) {
	fileCfg, err := config.Load(path)
	if err != nil {
		log.Printf("app: config %s: %v (using defaults)", path, err)
		fileCfg = config.Default()
	}
	return fromFile(fileCfg), fileCfg
}

// App is the focusgate daemon
type App struct {
	config      Config
	store       *store.Store
	recorder    *history.Recorder
	sessions    *session.Machine
	scheduler   *scheduler.Scheduler
	bridge      *browser.Bridge
	coordinator *coordinator.Coordinator
	watcher     *store.Watcher
	loop        *daemon.Loop
	server      *server.Server
}

// New opens the store and wires the components. Nothing runs until Run.
func New(cfg Config) (*App, error) {
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	recorder := history.NewRecorder(st, cfg.HistoryLimit)
	sessions := session.NewMachine(st, recorder, cfg.ReduceFloor)
	sessions.SetNotifyOnComplete(cfg.NotifyOnComplete)

	// Alarms only fire after Run has started the loop.
	var loop *daemon.Loop
	sched := scheduler.New(st, recorder, cfg.WeeklyInterval, func(name string) {
		loop.Alarm(name)
	})
	sched.SetSessions(sessions)
	sessions.SetAlarms(sched)

	bridge := browser.NewBridge(cfg.CloseTimeout)
	enf := enforcer.New(sessions, st, bridge)
	coord := coordinator.New(sessions, st, recorder, sched, enf, bridge)
	coord.SetDebug(cfg.Debug)

	loop = daemon.NewLoop(coord, cfg.PollInterval)
	loop.SetDebug(cfg.Debug)
	loop.SetBrowserEvents(bridge.Events())

	a := &App{
		config:      cfg,
		store:       st,
		recorder:    recorder,
		sessions:    sessions,
		scheduler:   sched,
		bridge:      bridge,
		coordinator: coord,
		loop:        loop,
	}

	watcher, err := store.NewWatcher(cfg.DBPath, cfg.WatchDebounce)
	if err != nil {
		log.Printf("app: store watcher disabled: %v", err)
	} else {
		a.watcher = watcher
		loop.SetStoreChanges(watcher.Changes())
	}

	// API messages run on the loop goroutine like every other mutation.
	srv, err := server.New(cfg.ListenAddr, server.NewRouter(loop, bridge, cfg.Debug))
	if err != nil {
		_ = st.Close()
		if a.watcher != nil {
			a.watcher.Stop()
		}
		return nil, err
	}
	a.server = srv

	return a, nil
}

// Coordinator exposes the message handler
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}

// Addr returns the address the API is bound to
func (a *App) Addr() string {
	return a.server.Addr()
}

// Run restores persisted state, starts every background component and
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.sessions.Restore(ctx); err != nil {
		log.Printf("app: restore: %v", err)
	}
	if reset, err := a.recorder.CheckWeeklyReset(ctx); err != nil {
		log.Printf("app: weekly reset: %v", err)
	} else if reset {
		log.Printf("app: stats reset for week %s", a.recorder.CurrentWeek())
	}
	if err := a.scheduler.Start(ctx); err != nil {
		log.Printf("app: %v", err)
	}

	a.loop.Start(ctx)
	if a.watcher != nil {
		a.watcher.Start()
	}
	a.server.Start()

	<-ctx.Done()
	return a.shutdown()
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	a.bridge.Close()
	a.loop.Stop()
	a.scheduler.Stop()
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	return err
}

// Close cleans up resources
func (a *App) Close() error {
	return a.store.Close()
}
