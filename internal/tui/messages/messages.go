package messages

import (
	"time"

	"github.com/valentindosimont/focusgate/internal/client"
)

// TickMsg is sent on every redraw tick
type TickMsg struct {
	Time time.Time
}

// PollMsg asks for a fresh state from the daemon
type PollMsg struct{}

// StateMsg carries the daemon's timer state
type StateMsg struct {
	State     client.State
	FetchedAt time.Time
	Err       error
}

// ActionDoneMsg reports the outcome of a key-triggered action
type ActionDoneMsg struct {
	Note string
	Err  error
}
