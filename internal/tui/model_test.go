package tui

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/valentindosimont/focusgate/internal/client"
	"github.com/valentindosimont/focusgate/internal/coordinator"
	"github.com/valentindosimont/focusgate/internal/tui/messages"
)

type fakeAPI struct {
	state client.State
	calls []coordinator.Message
}

func (f *fakeAPI) State(context.Context) (client.State, error) {
	return f.state, nil
}

func (f *fakeAPI) Call(_ context.Context, msg coordinator.Message, _ any) error {
	f.calls = append(f.calls, msg)
	return nil
}

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)

func activeState() client.State {
	return client.State{
		Enabled:              true,
		TimerActive:          true,
		TimerStartTime:       base.UnixMilli(),
		TimerEndTime:         base.Add(10 * time.Minute).UnixMilli(),
		TimerDurationMinutes: 10,
		CurrentTime:          base.Add(4 * time.Minute).UnixMilli(),
	}
}

func newTestModel(api *fakeAPI) (*Model, *time.Time) {
	now := base.Add(4 * time.Minute)
	m := New(api, 25)
	m.now = func() time.Time { return now }
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m, &now
}

func TestRemainingAdvancesLocally(t *testing.T) {
	api := &fakeAPI{}
	m, now := newTestModel(api)
	m.Update(messages.StateMsg{State: activeState(), FetchedAt: *now})

	if got := m.remaining(); got != 6*time.Minute {
		t.Errorf("remaining() = %v, want 6m", got)
	}

	*now = now.Add(90 * time.Second)
	if got := m.remaining(); got != 4*time.Minute+30*time.Second {
		t.Errorf("remaining() = %v, want 4m30s", got)
	}
	if got := m.elapsedFraction(); math.Abs(got-0.55) > 1e-9 {
		t.Errorf("elapsedFraction() = %v, want 0.55", got)
	}

	*now = now.Add(time.Hour)
	if got := m.remaining(); got != 0 {
		t.Errorf("remaining() past the end = %v, want 0", got)
	}
}

func TestViewStates(t *testing.T) {
	tests := []struct {
		name  string
		state client.State
		want  string
	}{
		{"active", activeState(), "06:00"},
		{"manual", client.State{Enabled: true}, "Blocking is on"},
		{"idle", client.State{}, "Blocking is off"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, now := newTestModel(&fakeAPI{})
			m.Update(messages.StateMsg{State: tt.state, FetchedAt: *now})
			if view := m.View(); !strings.Contains(view, tt.want) {
				t.Errorf("View() does not contain %q:\n%s", tt.want, view)
			}
		})
	}
}

func TestViewDaemonUnreachable(t *testing.T) {
	m, _ := newTestModel(&fakeAPI{})
	m.Update(messages.StateMsg{Err: errors.New("connection refused")})

	if view := m.View(); !strings.Contains(view, "Daemon unreachable") {
		t.Errorf("View() = %s", view)
	}
}

func TestKeysSendMessages(t *testing.T) {
	tests := []struct {
		key        string
		wantAction string
	}{
		{"s", "startTimer"},
		{"r", "reduceTimer"},
		{"x", "expireTimer"},
		{"b", "toggle"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			api := &fakeAPI{}
			m, _ := newTestModel(api)

			_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(tt.key)})
			if cmd == nil {
				t.Fatal("expected a command")
			}
			done, ok := cmd().(messages.ActionDoneMsg)
			if !ok || done.Err != nil {
				t.Fatalf("command returned %#v", done)
			}
			if len(api.calls) != 1 || api.calls[0].Action != tt.wantAction {
				t.Errorf("calls = %+v, want one %s", api.calls, tt.wantAction)
			}
		})
	}
}

func TestStartUsesDefaultMinutes(t *testing.T) {
	api := &fakeAPI{}
	m, _ := newTestModel(api)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	cmd()

	if got := api.calls[0].Minutes; got != 25 {
		t.Errorf("Minutes = %v, want 25", got)
	}
	if api.calls[0].Source != "watch" {
		t.Errorf("Source = %q, want watch", api.calls[0].Source)
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{59*time.Second + 600*time.Millisecond, "01:00"},
		{25 * time.Minute, "25:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}

	for _, tt := range tests {
		if got := formatCountdown(tt.d); got != tt.want {
			t.Errorf("formatCountdown(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
