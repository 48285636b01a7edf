// Package client sends messages to a running focusgate daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/valentindosimont/focusgate/internal/coordinator"
)

var ErrDaemonUnavailable = errors.New("focusgate daemon is not running")

type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the daemon listening on addr (host:port)
func New(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one message and decodes the response object
func (c *Client) Send(ctx context.Context, msg coordinator.Message) (map[string]any, error) {
	var out map[string]any
	if err := c.Call(ctx, msg, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Call posts one message and decodes the response into out. A response
// with success:false is returned as an error carrying its message.
func (c *Client) Call(ctx context.Context, msg coordinator.Message, out any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	var status struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &status)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s: %s", resp.Status, status.Message)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if status.Success != nil && !*status.Success {
		return &ActionError{Action: msg.Action, Message: status.Message}
	}
	return nil
}

// ActionError is a {success:false} answer from the daemon
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// State is the decoded getTimerState response
type State struct {
	Enabled              bool  `json:"enabled"`
	TimerActive          bool  `json:"timerActive"`
	TimerEndTime         int64 `json:"timerEndTime"`
	TimerStartTime       int64 `json:"timerStartTime"`
	TimerDurationMinutes int   `json:"timerDurationMinutes"`
	CurrentTime          int64 `json:"currentTime"`
}

// EndTime returns the session end as a time.Time
func (s State) EndTime() time.Time {
	return time.UnixMilli(s.TimerEndTime)
}

// StartTime returns the session start as a time.Time
func (s State) StartTime() time.Time {
	return time.UnixMilli(s.TimerStartTime)
}

// Remaining returns the time left measured on the daemon's clock
func (s State) Remaining() time.Duration {
	if !s.TimerActive {
		return 0
	}
	d := time.Duration(s.TimerEndTime-s.CurrentTime) * time.Millisecond
	if d < 0 {
		return 0
	}
	return d
}

// State fetches the timer state
func (c *Client) State(ctx context.Context) (State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/state", nil)
	if err != nil {
		return State{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	var s State
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}
