package coordinator

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valentindosimont/focusgate/internal/browser"
	"github.com/valentindosimont/focusgate/internal/enforcer"
	"github.com/valentindosimont/focusgate/internal/history"
	"github.com/valentindosimont/focusgate/internal/scheduler"
	"github.com/valentindosimont/focusgate/internal/session"
	"github.com/valentindosimont/focusgate/internal/store"
)

type fakeBrowser struct {
	mu        sync.Mutex
	tabs      []browser.Tab
	closed    []int
	icons     []bool
	notices   []string
	connected bool
}

func (f *fakeBrowser) Tabs(context.Context) ([]browser.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]browser.Tab(nil), f.tabs...), nil
}

func (f *fakeBrowser) CloseTab(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tabs {
		if t.ID == id {
			f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
			f.closed = append(f.closed, id)
			return nil
		}
	}
	return browser.ErrTabNotFound
}

func (f *fakeBrowser) SetIcon(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.icons = append(f.icons, active)
	return nil
}

func (f *fakeBrowser) Notify(title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, title)
	return nil
}

func (f *fakeBrowser) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fixture struct {
	c        *Coordinator
	st       *store.Store
	recorder *history.Recorder
	browser  *fakeBrowser
	now      time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) send(t *testing.T, msg Message) Response {
	t.Helper()
	return f.c.HandleMessage(context.Background(), msg)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "focusgate.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		st:      st,
		browser: &fakeBrowser{},
		now:     time.Date(2026, 10, 13, 9, 0, 0, 0, time.Local),
	}

	f.recorder = history.NewRecorder(st, 100)
	f.recorder.SetClock(f.clock)

	machine := session.NewMachine(st, f.recorder, 10*time.Second)
	machine.SetClock(f.clock)

	sched := scheduler.New(st, f.recorder, 0, func(string) {})
	sched.SetSessions(machine)
	machine.SetAlarms(sched)
	t.Cleanup(sched.Stop)

	enf := enforcer.New(machine, st, f.browser)
	f.c = New(machine, st, f.recorder, sched, enf, f.browser)
	f.c.SetClock(f.clock)
	return f
}

func boolPtr(b bool) *bool { return &b }

func TestStartTimer(t *testing.T) {
	tests := []struct {
		name        string
		minutes     any
		wantSuccess bool
	}{
		{"number", float64(25), true},
		{"numeric string", "5", true},
		{"zero", float64(0), false},
		{"negative", float64(-2), false},
		{"text", "abc", false},
		{"missing", nil, false},
		{"longer than a week", "200000000", false},
		{"overflowing number", float64(1e18), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp := f.send(t, Message{Action: "startTimer", Minutes: tt.minutes})

			if resp["success"] != tt.wantSuccess {
				t.Fatalf("startTimer(%v) = %v", tt.minutes, resp)
			}
			if !tt.wantSuccess {
				if resp["message"] != "Invalid time" {
					t.Errorf("message = %v, want Invalid time", resp["message"])
				}
				state := f.send(t, Message{Action: "getTimerState"})
				if state["timerActive"] != false || state["enabled"] != false {
					t.Errorf("state changed after rejected start: %v", state)
				}
			}
		})
	}
}

func TestSessionScenario(t *testing.T) {
	f := newFixture(t)

	resp := f.send(t, Message{Action: "startTimer", Minutes: float64(5)})
	end := resp["timerEndTime"].(int64)
	if end-f.now.UnixMilli() != 5*60000 {
		t.Errorf("timerEndTime - now = %d, want 300000", end-f.now.UnixMilli())
	}

	state := f.send(t, Message{Action: "getTimerState"})
	if state["timerActive"] != true || state["timerDurationMinutes"] != 5 {
		t.Errorf("getTimerState() = %v, want active 5 minute session", state)
	}

	f.now = f.now.Add(5*time.Minute + time.Second)
	state = f.send(t, Message{Action: "getTimerState"})
	if state["timerActive"] != false || state["enabled"] != false {
		t.Errorf("getTimerState() after end = %v, want idle", state)
	}

	hist := f.send(t, Message{Action: "getHistory"})["history"].([]HistoryView)
	if len(hist) != 1 || !hist[0].Completed || hist[0].Reason != session.ReasonLazyExpired {
		t.Errorf("history = %+v, want one completed entry", hist)
	}
}

func TestReduceTimer(t *testing.T) {
	f := newFixture(t)

	resp := f.send(t, Message{Action: "reduceTimer", Minutes: float64(5)})
	if resp["success"] != false || resp["message"] != "No active timer" {
		t.Errorf("reduceTimer() without timer = %v", resp)
	}

	f.send(t, Message{Action: "startTimer", Minutes: float64(10)})
	resp = f.send(t, Message{Action: "reduceTimer", Minutes: "abc"})
	if resp["timerDurationMinutes"] != 9 || resp["clamped"] != false {
		t.Errorf("reduceTimer(abc) = %v, want one minute off", resp)
	}

	resp = f.send(t, Message{Action: "reduceTimer", Minutes: float64(60)})
	if resp["clamped"] != true || resp["timerEndTime"] != f.now.Add(10*time.Second).UnixMilli() {
		t.Errorf("reduceTimer(60) = %v, want clamped to now+10s", resp)
	}
}

func TestToggleIgnoredDuringTimer(t *testing.T) {
	f := newFixture(t)
	f.send(t, Message{Action: "startTimer", Minutes: float64(10)})

	resp := f.send(t, Message{Action: "toggle", Enabled: boolPtr(false)})
	if resp["enabled"] != true || resp["timerActive"] != true {
		t.Errorf("toggle(false) during timer = %v", resp)
	}
}

func TestExpireTimerDefaults(t *testing.T) {
	f := newFixture(t)
	f.send(t, Message{Action: "startTimer", Minutes: float64(10)})

	resp := f.send(t, Message{Action: "expireTimer"})
	if resp["success"] != true || resp["timerActive"] != false || resp["enabled"] != false {
		t.Errorf("expireTimer() = %v", resp)
	}

	hist, _ := f.recorder.List(context.Background(), 0)
	if len(hist) != 1 || hist[0].Completed || hist[0].Reason != session.ReasonManual {
		t.Errorf("history = %+v, want incomplete manual entry", hist)
	}
}

func TestAddBlockedURLSweeps(t *testing.T) {
	f := newFixture(t)
	f.browser.tabs = []browser.Tab{
		{ID: 1, URL: "https://foo.com/page"},
		{ID: 2, URL: "https://example.org"},
	}
	f.send(t, Message{Action: "toggle", Enabled: boolPtr(true)})

	resp := f.send(t, Message{Action: "addBlockedUrl", URL: "https://www.foo.com/some/article"})
	if resp["domain"] != "foo.com" || resp["duplicate"] != false {
		t.Fatalf("addBlockedUrl() = %v", resp)
	}
	if len(f.browser.closed) != 1 || f.browser.closed[0] != 1 {
		t.Errorf("closed = %v, want [1]", f.browser.closed)
	}

	resp = f.send(t, Message{Action: "addBlockedUrl", URL: "foo.com"})
	if resp["duplicate"] != true {
		t.Errorf("second addBlockedUrl() = %v, want duplicate", resp)
	}
	last := f.browser.notices[len(f.browser.notices)-1]
	if last != "Already blocked" {
		t.Errorf("last notification = %q, want Already blocked", last)
	}

	urls := f.send(t, Message{Action: "getBlockedUrls"})["urls"].([]string)
	if len(urls) != 1 || urls[0] != "foo.com" {
		t.Errorf("getBlockedUrls() = %v", urls)
	}

	resp = f.send(t, Message{Action: "removeBlockedUrl", URL: "https://foo.com"})
	if resp["removed"] != true {
		t.Errorf("removeBlockedUrl() = %v", resp)
	}
}

func TestUpdateURLsNormalizes(t *testing.T) {
	f := newFixture(t)

	f.send(t, Message{Action: "updateUrls", URLs: []string{"https://www.a.com", "a.com", "B.com/", "reddit.com/r/golang"}})
	urls := f.send(t, Message{Action: "getBlockedUrls"})["urls"].([]string)

	want := []string{"a.com", "b.com", "reddit.com/r/golang"}
	if strings.Join(urls, ",") != strings.Join(want, ",") {
		t.Errorf("blocked = %v, want %v", urls, want)
	}
}

func TestPresets(t *testing.T) {
	f := newFixture(t)

	resp := f.send(t, Message{Action: "savePreset", Name: "Evening", Minutes: float64(40), ScheduleTime: "9pm"})
	if resp["success"] != true {
		t.Fatalf("savePreset() = %v", resp)
	}
	p := resp["preset"].(PresetView)
	if p.ScheduleTime != "21:00" || p.ID == "" {
		t.Errorf("preset = %+v, want scheduled at 21:00 with an id", p)
	}

	debug := f.send(t, Message{Action: "debug"})
	alarms := debug["alarms"].([]string)
	if len(alarms) != 1 || alarms[0] != "preset-"+p.ID {
		t.Errorf("alarms = %v, want preset alarm", alarms)
	}

	if resp := f.send(t, Message{Action: "savePreset", Name: "Bad", Minutes: float64(0)}); resp["success"] != false {
		t.Errorf("savePreset(0 minutes) = %v, want failure", resp)
	}

	resp = f.send(t, Message{Action: "startPreset", ID: p.ID})
	if resp["success"] != true || resp["timerDurationMinutes"] != 40 {
		t.Errorf("startPreset() = %v", resp)
	}

	resp = f.send(t, Message{Action: "deletePreset", ID: p.ID})
	if resp["removed"] != true {
		t.Errorf("deletePreset() = %v", resp)
	}
	presets := f.send(t, Message{Action: "listPresets"})["presets"].([]PresetView)
	if len(presets) != 0 {
		t.Errorf("listPresets() = %v, want empty", presets)
	}
	if resp := f.send(t, Message{Action: "startPreset", ID: p.ID}); resp["message"] != "Preset not found" {
		t.Errorf("startPreset(deleted) = %v", resp)
	}
}

func TestChallengeWinEndsSession(t *testing.T) {
	f := newFixture(t)

	if resp := f.send(t, Message{Action: "challengeStart"}); resp["success"] != false {
		t.Errorf("challengeStart() without timer = %v, want failure", resp)
	}

	f.send(t, Message{Action: "startTimer", Minutes: float64(30)})
	if resp := f.send(t, Message{Action: "challengeStart"}); resp["shotsRemaining"] != 3 {
		t.Fatalf("challengeStart() = %v", resp)
	}

	var resp Response
	for i := 0; i < 3; i++ {
		resp = f.send(t, Message{Action: "challengeShot", Hit: boolPtr(true)})
	}
	if resp["won"] != true {
		t.Fatalf("third hit = %v, want won", resp)
	}

	state := f.send(t, Message{Action: "getTimerState"})
	if state["timerActive"] != false || state["enabled"] != false {
		t.Errorf("state after win = %v, want idle", state)
	}
	hist, _ := f.recorder.List(context.Background(), 0)
	if len(hist) != 1 || hist[0].Completed || hist[0].Reason != session.ReasonMinigameWon {
		t.Errorf("history = %+v, want minigame-won entry", hist)
	}
}

func TestStatsAndReset(t *testing.T) {
	f := newFixture(t)
	f.send(t, Message{Action: "updateUrls", URLs: []string{"foo.com"}})
	f.send(t, Message{Action: "startTimer", Minutes: float64(15)})
	f.now = f.now.Add(16 * time.Minute)
	f.send(t, Message{Action: "getTimerState"})

	stats := f.send(t, Message{Action: "getStats"})
	daily := stats["dailyMinutes"].([7]int)
	if daily[f.now.Weekday()] != 15 {
		t.Errorf("dailyMinutes = %v, want 15 on %v", daily, f.now.Weekday())
	}
	if stats["weekKey"] != history.WeekKey(f.now) {
		t.Errorf("weekKey = %v", stats["weekKey"])
	}

	f.send(t, Message{Action: "resetStats"})
	stats = f.send(t, Message{Action: "getStats"})
	if stats["dailyMinutes"].([7]int) != [7]int{} {
		t.Errorf("dailyMinutes after reset = %v", stats["dailyMinutes"])
	}
}

func TestNavigationEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.browser.tabs = []browser.Tab{{ID: 9, URL: "https://foo.com"}}
	f.send(t, Message{Action: "updateUrls", URLs: []string{"foo.com"}})

	f.c.OnBrowserEvent(ctx, browser.Event{Kind: browser.EventNavigate, TabID: 9, URL: "https://foo.com"})
	if len(f.browser.closed) != 0 {
		t.Errorf("closed while idle: %v", f.browser.closed)
	}

	f.send(t, Message{Action: "toggle", Enabled: boolPtr(true)})
	if len(f.browser.closed) != 1 {
		t.Errorf("closed = %v after enabling, want sweep to close tab 9", f.browser.closed)
	}

	f.browser.tabs = append(f.browser.tabs, browser.Tab{ID: 10, URL: "https://mail.foo.com"})
	f.c.OnBrowserEvent(ctx, browser.Event{Kind: browser.EventTabUpdated, TabID: 10, URL: "https://mail.foo.com"})
	if len(f.browser.closed) != 2 {
		t.Errorf("closed = %v, want tab 10 closed on update", f.browser.closed)
	}
}

func TestUnknownAction(t *testing.T) {
	f := newFixture(t)
	resp := f.send(t, Message{Action: "launchRocket"})
	if resp["success"] != false {
		t.Errorf("unknown action = %v, want failure", resp)
	}
}

func TestDebugReportsBrowserConnection(t *testing.T) {
	f := newFixture(t)

	if resp := f.send(t, Message{Action: "debug"}); resp["browserConnected"] != false {
		t.Errorf("debug browserConnected = %v, want false", resp["browserConnected"])
	}

	f.browser.mu.Lock()
	f.browser.connected = true
	f.browser.mu.Unlock()
	if resp := f.send(t, Message{Action: "debug"}); resp["browserConnected"] != true {
		t.Errorf("debug browserConnected = %v, want true", resp["browserConnected"])
	}
}
