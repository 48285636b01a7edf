package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Handler receives the name of an alarm that fired
type Handler func(name string)

type alarm struct {
	timer  *time.Timer
	at     time.Time
	period time.Duration
	gen    uint64
}

// Alarms is a set of named one-shot or periodic wall-clock alarms. Setting
// an existing name replaces it; a replaced timer that already fired is
// discarded by its generation number.
type Alarms struct {
	mu      sync.Mutex
	alarms  map[string]*alarm
	gen     uint64
	handler Handler
	now     func() time.Time
}

func NewAlarms(handler Handler) *Alarms {
	return &Alarms{
		alarms:  make(map[string]*alarm),
		handler: handler,
		now:     time.Now,
	}
}

// Set arms name to fire at the given time and then every period, if period
// is positive. Times in the past fire immediately.
func (a *Alarms) Set(name string, at time.Time, period time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked(name)
	a.gen++
	entry := &alarm{at: at, period: period, gen: a.gen}
	a.alarms[name] = entry
	a.scheduleLocked(name, entry)
}

func (a *Alarms) scheduleLocked(name string, entry *alarm) {
	gen := entry.gen
	delay := entry.at.Sub(a.now())
	if delay < 0 {
		delay = 0
	}
	entry.timer = time.AfterFunc(delay, func() { a.fire(name, gen) })
}

func (a *Alarms) stopLocked(name string) bool {
	entry, ok := a.alarms[name]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(a.alarms, name)
	return true
}

// Clear disarms name and reports whether it was armed
func (a *Alarms) Clear(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked(name)
}

// ClearAll disarms every alarm
func (a *Alarms) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name := range a.alarms {
		a.stopLocked(name)
	}
}

// Get returns the next fire time of name
func (a *Alarms) Get(name string) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.alarms[name]
	if !ok {
		return time.Time{}, false
	}
	return entry.at, true
}

// Names lists armed alarms in sorted order
func (a *Alarms) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.alarms))
	for name := range a.alarms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Alarms) fire(name string, gen uint64) {
	a.mu.Lock()
	entry, ok := a.alarms[name]
	if !ok || entry.gen != gen {
		a.mu.Unlock()
		return
	}

	if entry.period > 0 {
		now := a.now()
		next := entry.at.Add(entry.period)
		for !next.After(now) {
			next = next.Add(entry.period)
		}
		entry.at = next
		a.scheduleLocked(name, entry)
	} else {
		delete(a.alarms, name)
	}
	handler := a.handler
	a.mu.Unlock()

	if handler != nil {
		handler(name)
	}
}
