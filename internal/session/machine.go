package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/valentindosimont/focusgate/internal/history"
	"github.com/valentindosimont/focusgate/internal/store"
)

var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrNoActiveTimer   = errors.New("no active timer")
)

// End reasons recorded on history entries
const (
	ReasonAlarmExpired   = "alarm-expired"
	ReasonLazyExpired    = "lazy-check-expired"
	ReasonStartupExpired = "startup-expired"
	ReasonManual         = "manual"
	ReasonReplaced       = "replaced"
	ReasonMinigameWon    = "minigame-won"
	ReasonInvalidState   = "invalid-state"
)

// Status is the coarse machine state derived from the persisted flags
type Status int

const (
	StatusIdle Status = iota
	StatusManuallyBlocking
	StatusTimedSession
)

func (s Status) String() string {
	switch s {
	case StatusManuallyBlocking:
		return "manually_blocking"
	case StatusTimedSession:
		return "timed_session"
	default:
		return "idle"
	}
}

// StatusOf classifies a state snapshot
func StatusOf(s store.SessionState) Status {
	switch {
	case s.TimerActive:
		return StatusTimedSession
	case s.Enabled:
		return StatusManuallyBlocking
	default:
		return StatusIdle
	}
}

// Blocking reports whether enforcement applies in s
func Blocking(s store.SessionState) bool {
	return s.Enabled || s.TimerActive
}

type StateStore interface {
	LoadSessionState(ctx context.Context) (store.SessionState, error)
	SaveSessionState(ctx context.Context, state store.SessionState) error
}

type Recorder interface {
	RecordStart(ctx context.Context, durationMinutes int, source string) (string, error)
	Finalize(ctx context.Context, sessionID string, in history.FinalizeInput) (store.HistoryEntry, error)
}

// Alarms arms the platform timer that ends a session
type Alarms interface {
	ArmSessionEnd(at time.Time)
	DisarmSessionEnd()
}

// Effects are the outbound side effects of transitions. They run after the
// machine lock is released and may call back into the machine.
type Effects interface {
	IconChanged(active bool)
	BlockingActivated(ctx context.Context)
	Notify(ctx context.Context, title, message string)
}

type noEffects struct{}

func (noEffects) IconChanged(bool)                       {}
func (noEffects) BlockingActivated(context.Context)      {}
func (noEffects) Notify(context.Context, string, string) {}

type noAlarms struct{}

func (noAlarms) ArmSessionEnd(time.Time) {}
func (noAlarms) DisarmSessionEnd()       {}

// EndOptions describes how a session ends
type EndOptions struct {
	Completed bool
	Reason    string
	Notify    bool
}

// Machine owns the authoritative session state. Every transition updates
// memory first and then persists under the same lock, so readers never see
// a state the store has not been asked to hold.
type Machine struct {
	mu       sync.Mutex
	state    store.SessionState
	store    StateStore
	recorder Recorder
	alarms   Alarms
	effects  Effects

	now              func() time.Time
	reduceFloor      time.Duration
	notifyOnComplete bool
}

// NewMachine creates a machine in the Idle state. Call Restore to load
// persisted state.
func NewMachine(st StateStore, recorder Recorder, reduceFloor time.Duration) *Machine {
	return &Machine{
		store:            st,
		recorder:         recorder,
		alarms:           noAlarms{},
		effects:          noEffects{},
		now:              time.Now,
		reduceFloor:      reduceFloor,
		notifyOnComplete: true,
	}
}

// SetNotifyOnComplete controls the completion notification
func (m *Machine) SetNotifyOnComplete(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyOnComplete = on
}

// SetAlarms sets the session-end alarm service
func (m *Machine) SetAlarms(a Alarms) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms = a
}

// SetEffects sets the side effect sink
func (m *Machine) SetEffects(e Effects) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.effects = e
}

// SetClock replaces the time source
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func (m *Machine) persistLocked(ctx context.Context) {
	if err := m.store.SaveSessionState(ctx, m.state); err != nil {
		log.Printf("session: persist state: %v", err)
	}
}

// clock returns now at the precision the store keeps.
func (m *Machine) clock() time.Time {
	return m.now().Round(0).Truncate(time.Millisecond)
}

func (m *Machine) expiredLocked() bool {
	return m.state.TimerActive && !m.now().Before(m.state.TimerEndTime)
}

// endLocked is the single place a timed session terminates. The
// TimerActive guard makes concurrent callers converge on one finalize.
func (m *Machine) endLocked(ctx context.Context, opts EndOptions) []func() {
	if !m.state.TimerActive {
		return nil
	}

	prev := m.state
	duration := prev.TimerDurationMinutes
	if duration <= 0 {
		duration = history.ElapsedMinutes(prev.TimerStartTime, prev.TimerEndTime)
	}

	m.alarms.DisarmSessionEnd()
	m.state = store.SessionState{}
	m.persistLocked(ctx)

	if _, err := m.recorder.Finalize(ctx, prev.CurrentSessionID, history.FinalizeInput{
		Completed:       opts.Completed,
		Reason:          opts.Reason,
		DurationMinutes: duration,
	}); err != nil {
		log.Printf("session: finalize history: %v", err)
	}

	log.Printf("session: ended (completed=%v reason=%s)", opts.Completed, opts.Reason)

	effects := m.effects
	after := []func(){func() { effects.IconChanged(false) }}
	if opts.Notify && m.notifyOnComplete {
		after = append(after, func() {
			effects.Notify(ctx, "Focus Session complete! YAY! 🎉",
				"Your focus session has ended. You can now access all sites.")
		})
	}
	return after
}

// lazyExpireLocked ends an overdue session; it is the safety net for
// alarms that fired late or never.
func (m *Machine) lazyExpireLocked(ctx context.Context) []func() {
	if !m.expiredLocked() {
		return nil
	}
	return m.endLocked(ctx, EndOptions{Completed: true, Reason: ReasonLazyExpired, Notify: true})
}

// Start begins a timed session of the given length and returns the new state.
func (m *Machine) Start(ctx context.Context, minutes int, source string) (store.SessionState, error) {
	if minutes < 1 || minutes > MaxMinutes {
		return m.Snapshot(), ErrInvalidDuration
	}

	m.mu.Lock()
	now := m.clock()
	end := now.Add(time.Duration(minutes) * time.Minute)
	if !end.After(now) {
		s := m.state
		m.mu.Unlock()
		return s, ErrInvalidDuration
	}

	var after []func()
	if m.state.TimerActive {
		after = m.endLocked(ctx, EndOptions{Completed: false, Reason: ReasonReplaced})
	}

	sessionID, err := m.recorder.RecordStart(ctx, minutes, source)
	if err != nil {
		log.Printf("session: %v", err)
	}

	m.state = store.SessionState{
		Enabled:              true,
		TimerActive:          true,
		TimerStartTime:       now,
		TimerEndTime:         end,
		TimerDurationMinutes: minutes,
		CurrentSessionID:     sessionID,
	}
	m.persistLocked(ctx)
	m.alarms.ArmSessionEnd(m.state.TimerEndTime)
	snapshot := m.state
	effects := m.effects
	m.mu.Unlock()

	runAll(after)
	log.Printf("session: started %d min (source=%s)", minutes, source)

	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	effects.IconChanged(true)
	effects.Notify(ctx, "Focus Session Started! 🎯",
		fmt.Sprintf("Focus mode activated for %d %s. You can do it!", minutes, unit))
	effects.BlockingActivated(ctx)

	return snapshot, nil
}

// End terminates the active session. It reports whether this call performed
// the transition; calls without an active session are no-ops.
func (m *Machine) End(ctx context.Context, opts EndOptions) bool {
	m.mu.Lock()
	after := m.endLocked(ctx, opts)
	m.mu.Unlock()

	runAll(after)
	return after != nil
}

// State returns a snapshot after ending the session if it is overdue.
func (m *Machine) State(ctx context.Context) store.SessionState {
	m.mu.Lock()
	after := m.lazyExpireLocked(ctx)
	s := m.state
	m.mu.Unlock()

	runAll(after)
	return s
}

// Blocking reports whether navigation should currently be enforced.
func (m *Machine) Blocking(ctx context.Context) bool {
	return Blocking(m.State(ctx))
}

// Snapshot returns the in-memory state without the expiry check.
func (m *Machine) Snapshot() store.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Toggle switches manual blocking. It is ignored while a timed session runs.
func (m *Machine) Toggle(ctx context.Context, enabled bool) store.SessionState {
	m.mu.Lock()
	after := m.lazyExpireLocked(ctx)

	if m.state.TimerActive || m.state.Enabled == enabled {
		s := m.state
		m.mu.Unlock()
		runAll(after)
		return s
	}

	m.state.Enabled = enabled
	m.persistLocked(ctx)
	s := m.state
	effects := m.effects
	m.mu.Unlock()

	runAll(after)
	log.Printf("session: manual blocking %v", enabled)
	effects.IconChanged(enabled)
	if enabled {
		effects.BlockingActivated(ctx)
	}
	return s
}

// Reduce shortens the active session by minutes, never leaving less than
// the reduce floor. clamped reports whether the floor cut the reduction short.
func (m *Machine) Reduce(ctx context.Context, minutes int) (s store.SessionState, clamped bool, err error) {
	if minutes < 1 {
		minutes = 1
	}
	if minutes > MaxMinutes {
		minutes = MaxMinutes
	}

	m.mu.Lock()
	after := m.lazyExpireLocked(ctx)

	if !m.state.TimerActive {
		s = m.state
		m.mu.Unlock()
		runAll(after)
		return s, false, ErrNoActiveTimer
	}

	now := m.clock()
	end := m.state.TimerEndTime.Add(-time.Duration(minutes) * time.Minute)
	if floor := now.Add(m.reduceFloor); end.Before(floor) {
		end = floor
		clamped = true
	}

	m.state.TimerEndTime = end
	m.state.TimerDurationMinutes = history.ElapsedMinutes(m.state.TimerStartTime, end)
	m.persistLocked(ctx)
	m.alarms.ArmSessionEnd(end)
	s = m.state
	m.mu.Unlock()

	log.Printf("session: reduced by %d min (clamped=%v)", minutes, clamped)
	return s, clamped, nil
}

// sanitize restores the invariants on state read from storage.
func sanitize(s store.SessionState) (store.SessionState, bool) {
	if !s.TimerActive {
		return s, true
	}
	if !s.TimerEndTime.After(s.TimerStartTime) {
		return s, false
	}
	s.Enabled = true
	return s, true
}

func sameState(a, b store.SessionState) bool {
	return a.Enabled == b.Enabled &&
		a.TimerActive == b.TimerActive &&
		a.TimerStartTime.Equal(b.TimerStartTime) &&
		a.TimerEndTime.Equal(b.TimerEndTime) &&
		a.TimerDurationMinutes == b.TimerDurationMinutes &&
		a.CurrentSessionID == b.CurrentSessionID
}

// Restore loads persisted state once at startup, ending a session that
// expired while the process was down and re-arming one that is still live.
func (m *Machine) Restore(ctx context.Context) error {
	persisted, err := m.store.LoadSessionState(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	m.mu.Lock()
	state, valid := sanitize(persisted)
	m.state = state

	var after []func()
	switch {
	case !valid:
		after = m.endLocked(ctx, EndOptions{Completed: false, Reason: ReasonInvalidState})
	case m.expiredLocked():
		after = m.endLocked(ctx, EndOptions{Completed: true, Reason: ReasonStartupExpired, Notify: true})
	case m.state.TimerActive:
		m.alarms.ArmSessionEnd(m.state.TimerEndTime)
	}
	if valid && !sameState(state, persisted) {
		m.persistLocked(ctx)
	}
	s := m.state
	effects := m.effects
	m.mu.Unlock()

	runAll(after)
	effects.IconChanged(Blocking(s))
	log.Printf("session: restored state %s", StatusOf(s))
	return nil
}

// Reconcile adopts state written to the store by another process.
// The load happens under the lock so a transition cannot land between the
// read and the adoption.
func (m *Machine) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	persisted, err := m.store.LoadSessionState(ctx)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("reconcile session: %w", err)
	}
	persisted, valid := sanitize(persisted)
	if !valid {
		m.mu.Unlock()
		return nil
	}

	prev := m.state
	if sameState(prev, persisted) {
		m.mu.Unlock()
		return nil
	}
	m.state = persisted

	switch {
	case persisted.TimerActive && !persisted.TimerEndTime.Equal(prev.TimerEndTime):
		m.alarms.ArmSessionEnd(persisted.TimerEndTime)
	case !persisted.TimerActive && prev.TimerActive:
		m.alarms.DisarmSessionEnd()
	}
	effects := m.effects
	m.mu.Unlock()

	log.Printf("session: reconciled external change %s -> %s", StatusOf(prev), StatusOf(persisted))
	effects.IconChanged(Blocking(persisted))
	if Blocking(persisted) && (!Blocking(prev) || (persisted.TimerActive && !prev.TimerActive)) {
		effects.BlockingActivated(ctx)
	}
	return nil
}
