package enforcer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/valentindosimont/focusgate/internal/browser"
)

type fakeGate struct{ blocking bool }

func (f *fakeGate) Blocking(context.Context) bool { return f.blocking }

type fakeBlocked struct{ entries []string }

func (f *fakeBlocked) BlockedURLs(context.Context) ([]string, error) { return f.entries, nil }

type fakeTabs struct {
	tabs    []browser.Tab
	closed  []int
	failFor map[int]error
}

func (f *fakeTabs) Tabs(context.Context) ([]browser.Tab, error) { return f.tabs, nil }

func (f *fakeTabs) CloseTab(_ context.Context, id int) error {
	if err, ok := f.failFor[id]; ok {
		return err
	}
	f.closed = append(f.closed, id)
	return nil
}

func TestOnBeforeNavigate(t *testing.T) {
	tests := []struct {
		name     string
		blocking bool
		frameID  int
		url      string
		want     bool
	}{
		{"blocked domain", true, 0, "https://foo.com/page", true},
		{"subdomain", true, 0, "https://mail.foo.com", true},
		{"unrelated", true, 0, "https://notfoo.com", false},
		{"sub frame", true, 2, "https://foo.com", false},
		{"idle", false, 0, "https://foo.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tabs := &fakeTabs{}
			e := New(&fakeGate{blocking: tt.blocking}, &fakeBlocked{entries: []string{"foo.com"}}, tabs)

			if got := e.OnBeforeNavigate(context.Background(), browser.Event{Kind: browser.EventNavigate, TabID: 1, FrameID: tt.frameID, URL: tt.url}); got != tt.want {
				t.Errorf("OnBeforeNavigate() = %v, want %v", got, tt.want)
			}
			if tt.want && len(tabs.closed) != 1 {
				t.Errorf("closed = %v, want [1]", tabs.closed)
			}
		})
	}
}

func TestOnTabUpdatedSwallowsMissingTab(t *testing.T) {
	tabs := &fakeTabs{failFor: map[int]error{4: browser.ErrTabNotFound}}
	e := New(&fakeGate{blocking: true}, &fakeBlocked{entries: []string{"foo.com"}}, tabs)

	if e.OnTabUpdated(context.Background(), 4, "https://foo.com") {
		t.Error("OnTabUpdated() = true for a tab that was already gone")
	}
}

func TestSweepClosesMatchingTabs(t *testing.T) {
	tabs := &fakeTabs{
		tabs: []browser.Tab{
			{ID: 1, URL: "https://foo.com/page"},
			{ID: 2, URL: "https://example.org"},
			{ID: 3, URL: "https://www.bar.com/x"},
			{ID: 4, URL: "https://foo.com/other"},
		},
		failFor: map[int]error{4: errors.New("boom")},
	}
	e := New(&fakeGate{blocking: true}, &fakeBlocked{entries: []string{"foo.com", "bar.com"}}, tabs)

	if got := e.Sweep(context.Background()); got != 2 {
		t.Errorf("Sweep() = %d, want 2", got)
	}
	if !reflect.DeepEqual(tabs.closed, []int{1, 3}) {
		t.Errorf("closed = %v, want [1 3]", tabs.closed)
	}
}

func TestSweepIdle(t *testing.T) {
	tabs := &fakeTabs{tabs: []browser.Tab{{ID: 1, URL: "https://foo.com"}}}
	e := New(&fakeGate{}, &fakeBlocked{entries: []string{"foo.com"}}, tabs)

	if got := e.Sweep(context.Background()); got != 0 || len(tabs.closed) != 0 {
		t.Errorf("Sweep() while idle = %d, closed %v", got, tabs.closed)
	}
}
