// Package browser talks to the companion browser extension. The extension
// reports navigation and tab changes and executes tab, icon and
// notification commands on the daemon's behalf.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrTabNotFound means the tab closed before the command reached it
	ErrTabNotFound  = errors.New("tab not found")
	ErrNotConnected = errors.New("browser not connected")
)

// Tab is an open browser tab
type Tab struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// EventKind identifies what the extension reported
type EventKind int

const (
	EventNavigate EventKind = iota
	EventTabUpdated
	EventTabs
	EventConnected
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventNavigate:
		return "navigate"
	case EventTabUpdated:
		return "tab_updated"
	case EventTabs:
		return "tabs"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a browser signal delivered to the daemon loop
type Event struct {
	Kind    EventKind
	TabID   int
	FrameID int
	URL     string
}

// MainFrame reports whether the event concerns a top-level document
func (e Event) MainFrame() bool {
	return e.FrameID == 0
}

// Tabs enumerates and closes tabs
type Tabs interface {
	Tabs(ctx context.Context) ([]Tab, error)
	CloseTab(ctx context.Context, tabID int) error
}
