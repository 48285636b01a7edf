// Package scheduler maps named alarms onto session transitions: the end of
// a focus session, daily preset starts and the weekly statistics reset.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/valentindosimont/focusgate/internal/session"
	"github.com/valentindosimont/focusgate/internal/store"
)

const (
	AlarmSessionEnd  = "focus-session-end"
	AlarmWeeklyReset = "weekly-reset"

	presetPrefix = "preset-"
	day          = 24 * time.Hour
)

var ErrInvalidClock = errors.New("invalid time of day")

type PresetStore interface {
	ListPresets(ctx context.Context) ([]store.Preset, error)
	GetPreset(ctx context.Context, id string) (*store.Preset, error)
}

type Sessions interface {
	Start(ctx context.Context, minutes int, source string) (store.SessionState, error)
	End(ctx context.Context, opts session.EndOptions) bool
	State(ctx context.Context) store.SessionState
}

type WeeklyResetter interface {
	CheckWeeklyReset(ctx context.Context) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, title, message string)
}

// Scheduler owns the alarm set. It implements session.Alarms.
type Scheduler struct {
	alarms   *Alarms
	presets  PresetStore
	sessions Sessions
	weekly   WeeklyResetter
	notifier Notifier

	weeklyInterval time.Duration
	now            func() time.Time
}

// New creates a scheduler whose alarms are delivered to fire. The daemon
// passes a function that queues the name onto its event loop.
func New(presets PresetStore, weekly WeeklyResetter, weeklyInterval time.Duration, fire Handler) *Scheduler {
	return &Scheduler{
		alarms:         NewAlarms(fire),
		presets:        presets,
		weekly:         weekly,
		weeklyInterval: weeklyInterval,
		now:            time.Now,
	}
}

// SetSessions wires the session machine; the machine and the scheduler
// depend on each other so one side is set after construction.
func (s *Scheduler) SetSessions(sessions Sessions) {
	s.sessions = sessions
}

func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// Alarms exposes the underlying alarm set
func (s *Scheduler) Alarms() *Alarms {
	return s.alarms
}

func (s *Scheduler) ArmSessionEnd(at time.Time) {
	s.alarms.Set(AlarmSessionEnd, at, 0)
}

func (s *Scheduler) DisarmSessionEnd() {
	s.alarms.Clear(AlarmSessionEnd)
}

// Start arms the weekly reset check and all scheduled presets.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.weeklyInterval > 0 {
		s.alarms.Set(AlarmWeeklyReset, s.now().Add(s.weeklyInterval), s.weeklyInterval)
	}
	return s.SyncPresets(ctx)
}

// Stop disarms everything
func (s *Scheduler) Stop() {
	s.alarms.ClearAll()
}

// SyncPresets re-arms one daily alarm per preset with a schedule time.
func (s *Scheduler) SyncPresets(ctx context.Context) error {
	presets, err := s.presets.ListPresets(ctx)
	if err != nil {
		return fmt.Errorf("sync presets: %w", err)
	}

	for _, name := range s.alarms.Names() {
		if strings.HasPrefix(name, presetPrefix) {
			s.alarms.Clear(name)
		}
	}

	now := s.now()
	for _, p := range presets {
		if p.ScheduleTime == "" {
			continue
		}
		at, err := NextFire(p.ScheduleTime, now)
		if err != nil {
			log.Printf("scheduler: preset %s: %v", p.ID, err)
			continue
		}
		s.alarms.Set(presetPrefix+p.ID, at, day)
	}
	return nil
}

// HandleAlarm performs the transition for a fired alarm.
func (s *Scheduler) HandleAlarm(ctx context.Context, name string) {
	switch {
	case name == AlarmSessionEnd:
		if s.sessions == nil {
			return
		}
		s.sessions.End(ctx, session.EndOptions{
			Completed: true,
			Reason:    session.ReasonAlarmExpired,
			Notify:    true,
		})

	case name == AlarmWeeklyReset:
		if _, err := s.weekly.CheckWeeklyReset(ctx); err != nil {
			log.Printf("scheduler: %v", err)
		}

	case strings.HasPrefix(name, presetPrefix):
		s.startPreset(ctx, strings.TrimPrefix(name, presetPrefix))

	default:
		log.Printf("scheduler: unknown alarm %q", name)
	}
}

func (s *Scheduler) startPreset(ctx context.Context, id string) {
	p, err := s.presets.GetPreset(ctx, id)
	if err != nil {
		log.Printf("scheduler: load preset %s: %v", id, err)
		return
	}
	if p == nil {
		s.alarms.Clear(presetPrefix + id)
		return
	}
	if s.sessions == nil {
		return
	}

	if s.sessions.State(ctx).TimerActive {
		log.Printf("scheduler: preset %q skipped, session already running", p.Name)
		if s.notifier != nil {
			s.notifier.Notify(ctx, "Scheduled session skipped",
				fmt.Sprintf("%q did not start because a focus session is already running.", p.Name))
		}
		return
	}

	if _, err := s.sessions.Start(ctx, p.Minutes, "preset"); err != nil {
		log.Printf("scheduler: start preset %s: %v", id, err)
	}
}

// NextFire returns the first occurrence of the "HH:MM" wall time strictly
// after now, in now's location.
func NextFire(hhmm string, now time.Time) (time.Time, error) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", hhmm, ErrInvalidClock)
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// ParseClock normalizes a user-supplied time of day to "HH:MM". It accepts
// the canonical form as well as phrases like "9am" or "at 6:30 pm".
func ParseClock(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, err := time.Parse("15:04", s); err == nil {
		return t.Format("15:04"), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(s, now)
	if err != nil || result == nil {
		return "", fmt.Errorf("%q: %w", s, ErrInvalidClock)
	}
	return result.Time.Format("15:04"), nil
}
