package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/valentindosimont/focusgate/internal/blocklist"
	"github.com/valentindosimont/focusgate/internal/history"
	"github.com/valentindosimont/focusgate/internal/scheduler"
	"github.com/valentindosimont/focusgate/internal/session"
	"github.com/valentindosimont/focusgate/internal/store"
)

// Message is a request from the popup, the minigame or the CLI. Fields
// not used by an action are ignored.
type Message struct {
	Action       string   `json:"action"`
	Enabled      *bool    `json:"enabled,omitempty"`
	Minutes      any      `json:"minutes,omitempty"`
	Source       string   `json:"source,omitempty"`
	Completed    *bool    `json:"completed,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	URLs         []string `json:"urls,omitempty"`
	URL          string   `json:"url,omitempty"`
	Title        string   `json:"title,omitempty"`
	Message      string   `json:"message,omitempty"`
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	ScheduleTime string   `json:"scheduleTime,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Hit          *bool    `json:"hit,omitempty"`
}

// Response is the JSON object returned for a message
type Response map[string]any

func failure(message string) Response {
	return Response{"success": false, "message": message}
}

// PresetView is the wire form of a preset
type PresetView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Minutes      int    `json:"minutes"`
	ScheduleTime string `json:"scheduleTime,omitempty"`
}

func presetView(p store.Preset) PresetView {
	return PresetView{ID: p.ID, Name: p.Name, Minutes: p.Minutes, ScheduleTime: p.ScheduleTime}
}

// HistoryView is the wire form of a history entry
type HistoryView struct {
	ID              string   `json:"id"`
	Date            int64    `json:"date"`
	Duration        int      `json:"duration"`
	Completed       bool     `json:"completed"`
	CompletedAt     int64    `json:"completedAt,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Source          string   `json:"source"`
	BlockedSnapshot []string `json:"blockedSnapshot"`
}

func historyView(e store.HistoryEntry) HistoryView {
	v := HistoryView{
		ID:              e.ID,
		Date:            millis(e.Date),
		Duration:        e.DurationMinutes,
		Completed:       e.Completed,
		Reason:          e.Reason,
		Source:          e.Source,
		BlockedSnapshot: e.BlockedSnapshot,
	}
	if e.CompletedAt != nil {
		v.CompletedAt = millis(*e.CompletedAt)
	}
	if v.BlockedSnapshot == nil {
		v.BlockedSnapshot = []string{}
	}
	return v
}

// HandleMessage dispatches one message and never fails; errors become
// {success:false, message} responses.
func (c *Coordinator) HandleMessage(ctx context.Context, msg Message) Response {
	c.debugLog("message %s", msg.Action)

	switch msg.Action {
	case "toggle":
		return c.toggle(ctx, msg)
	case "startTimer":
		return c.startTimer(ctx, msg)
	case "reduceTimer":
		return c.reduceTimer(ctx, msg)
	case "expireTimer":
		return c.expireTimer(ctx, msg)
	case "getTimerState":
		return c.timerState(ctx)
	case "updateUrls":
		return c.updateURLs(ctx, msg)
	case "showNotification":
		c.Notify(ctx, msg.Title, msg.Message)
		return Response{"success": true}
	case "debug":
		return c.debugState(ctx)
	case "addBlockedUrl":
		return c.addBlockedURL(ctx, msg)
	case "removeBlockedUrl":
		return c.removeBlockedURL(ctx, msg)
	case "getBlockedUrls":
		return c.blockedURLs(ctx)
	case "listPresets":
		return c.listPresets(ctx)
	case "savePreset":
		return c.savePreset(ctx, msg)
	case "deletePreset":
		return c.deletePreset(ctx, msg)
	case "startPreset":
		return c.startPreset(ctx, msg)
	case "getHistory":
		return c.history(ctx, msg)
	case "getStats":
		return c.stats(ctx)
	case "resetStats":
		return c.resetStats(ctx)
	case "challengeStart":
		return c.challengeStart(ctx)
	case "challengeShot":
		return c.challengeShot(ctx, msg)
	default:
		return failure(fmt.Sprintf("Unknown action %q", msg.Action))
	}
}

func (c *Coordinator) toggle(ctx context.Context, msg Message) Response {
	enabled := msg.Enabled != nil && *msg.Enabled
	s := c.sessions.Toggle(ctx, enabled)
	return Response{"enabled": s.Enabled, "timerActive": s.TimerActive}
}

func timerStarted(s store.SessionState) Response {
	return Response{
		"success":              true,
		"timerEndTime":         millis(s.TimerEndTime),
		"timerActive":          s.TimerActive,
		"timerDurationMinutes": s.TimerDurationMinutes,
	}
}

func (c *Coordinator) start(ctx context.Context, minutes int, source string) Response {
	s, err := c.sessions.Start(ctx, minutes, source)
	if err != nil {
		return failure("Invalid time")
	}
	c.referee.Reset()
	return timerStarted(s)
}

func (c *Coordinator) startTimer(ctx context.Context, msg Message) Response {
	minutes, err := session.ParseMinutes(msg.Minutes)
	if err != nil {
		return failure("Invalid time")
	}
	source := msg.Source
	if source == "" {
		source = "popup"
	}
	return c.start(ctx, minutes, source)
}

func (c *Coordinator) reduceTimer(ctx context.Context, msg Message) Response {
	minutes, err := session.ParseMinutes(msg.Minutes)
	if err != nil || minutes < 1 {
		minutes = 1
	}

	s, clamped, err := c.sessions.Reduce(ctx, minutes)
	if errors.Is(err, session.ErrNoActiveTimer) {
		return failure("No active timer")
	}
	return Response{
		"success":              true,
		"timerEndTime":         millis(s.TimerEndTime),
		"timerDurationMinutes": s.TimerDurationMinutes,
		"clamped":              clamped,
	}
}

// expire ends the timed session and also lifts manual blocking.
func (c *Coordinator) expire(ctx context.Context, completed bool, reason string) store.SessionState {
	c.sessions.End(ctx, session.EndOptions{Completed: completed, Reason: reason})
	c.referee.Reset()
	return c.sessions.Toggle(ctx, false)
}

func (c *Coordinator) expireTimer(ctx context.Context, msg Message) Response {
	completed := msg.Completed != nil && *msg.Completed
	reason := msg.Reason
	if reason == "" {
		reason = session.ReasonManual
	}

	s := c.expire(ctx, completed, reason)
	return Response{"success": true, "timerActive": s.TimerActive, "enabled": s.Enabled}
}

func (c *Coordinator) timerState(ctx context.Context) Response {
	s := c.sessions.State(ctx)
	return Response{
		"enabled":              s.Enabled,
		"timerActive":          s.TimerActive,
		"timerEndTime":         millis(s.TimerEndTime),
		"timerStartTime":       millis(s.TimerStartTime),
		"timerDurationMinutes": s.TimerDurationMinutes,
		"currentTime":          c.now().UnixMilli(),
	}
}

func (c *Coordinator) debugState(ctx context.Context) Response {
	s := c.sessions.Snapshot()
	blocked, err := c.store.BlockedURLs(ctx)
	if err != nil {
		log.Printf("coordinator: debug: %v", err)
	}
	if blocked == nil {
		blocked = []string{}
	}
	return Response{
		"enabled":              s.Enabled,
		"timerActive":          s.TimerActive,
		"timerEndTime":         millis(s.TimerEndTime),
		"timerStartTime":       millis(s.TimerStartTime),
		"timerDurationMinutes": s.TimerDurationMinutes,
		"currentSessionId":     s.CurrentSessionID,
		"currentTime":          c.now().UnixMilli(),
		"blockedUrls":          blocked,
		"alarms":               c.scheduler.Alarms().Names(),
		"challenge":            c.referee.Result().State.String(),
		"browserConnected":     c.surface.Connected(),
	}
}

func (c *Coordinator) updateURLs(ctx context.Context, msg Message) Response {
	set := blocklist.NewSet(msg.URLs)
	if err := c.store.SetBlockedURLs(ctx, set.Entries()); err != nil {
		log.Printf("coordinator: update urls: %v", err)
		return failure("Could not save blocked sites")
	}
	log.Printf("coordinator: blocked set replaced (%d entries)", set.Len())
	c.enforcer.Sweep(ctx)
	return Response{"success": true}
}

func (c *Coordinator) loadSet(ctx context.Context) (*blocklist.Set, error) {
	entries, err := c.store.BlockedURLs(ctx)
	if err != nil {
		return nil, err
	}
	return blocklist.NewSet(entries), nil
}

func (c *Coordinator) addBlockedURL(ctx context.Context, msg Message) Response {
	set, err := c.loadSet(ctx)
	if err != nil {
		log.Printf("coordinator: add blocked url: %v", err)
		return failure("Could not load blocked sites")
	}

	// The context-menu action blocks the whole site of the current page.
	domain, ok := blocklist.Normalize(msg.URL)
	if !ok {
		return failure("Invalid URL")
	}
	if set.Contains(domain) {
		c.Notify(ctx, "Already blocked", fmt.Sprintf("%s is already on your block list.", domain))
		return Response{"success": true, "domain": domain, "duplicate": true}
	}
	set.Add(domain)

	if err := c.store.SetBlockedURLs(ctx, set.Entries()); err != nil {
		log.Printf("coordinator: add blocked url: %v", err)
		return failure("Could not save blocked sites")
	}
	c.Notify(ctx, "Site blocked", fmt.Sprintf("%s added to your block list.", domain))
	c.enforcer.Sweep(ctx)
	return Response{"success": true, "domain": domain, "duplicate": false}
}

func (c *Coordinator) removeBlockedURL(ctx context.Context, msg Message) Response {
	set, err := c.loadSet(ctx)
	if err != nil {
		log.Printf("coordinator: remove blocked url: %v", err)
		return failure("Could not load blocked sites")
	}
	if !set.Remove(msg.URL) {
		return Response{"success": true, "removed": false}
	}
	if err := c.store.SetBlockedURLs(ctx, set.Entries()); err != nil {
		log.Printf("coordinator: remove blocked url: %v", err)
		return failure("Could not save blocked sites")
	}
	return Response{"success": true, "removed": true}
}

func (c *Coordinator) blockedURLs(ctx context.Context) Response {
	entries, err := c.store.BlockedURLs(ctx)
	if err != nil {
		log.Printf("coordinator: blocked urls: %v", err)
		return failure("Could not load blocked sites")
	}
	if entries == nil {
		entries = []string{}
	}
	return Response{"urls": entries}
}

func (c *Coordinator) listPresets(ctx context.Context) Response {
	presets, err := c.store.ListPresets(ctx)
	if err != nil {
		log.Printf("coordinator: list presets: %v", err)
		return failure("Could not load presets")
	}
	views := make([]PresetView, 0, len(presets))
	for _, p := range presets {
		views = append(views, presetView(p))
	}
	return Response{"presets": views}
}

func (c *Coordinator) savePreset(ctx context.Context, msg Message) Response {
	minutes, err := session.ParseMinutes(msg.Minutes)
	if err != nil || minutes < 1 {
		return failure("Invalid time")
	}
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		return failure("Name required")
	}
	clock, err := scheduler.ParseClock(msg.ScheduleTime, c.now())
	if err != nil {
		return failure("Invalid schedule time")
	}

	p := store.Preset{ID: msg.ID, Name: name, Minutes: minutes, ScheduleTime: clock}
	if p.ID == "" {
		p.ID = c.newID()
	}
	if err := c.store.SavePreset(ctx, p); err != nil {
		log.Printf("coordinator: save preset: %v", err)
		return failure("Could not save preset")
	}
	c.syncPresets(ctx)
	return Response{"success": true, "preset": presetView(p)}
}

func (c *Coordinator) deletePreset(ctx context.Context, msg Message) Response {
	removed, err := c.store.DeletePreset(ctx, msg.ID)
	if err != nil {
		log.Printf("coordinator: delete preset: %v", err)
		return failure("Could not delete preset")
	}
	c.syncPresets(ctx)
	return Response{"success": true, "removed": removed}
}

func (c *Coordinator) syncPresets(ctx context.Context) {
	if err := c.scheduler.SyncPresets(ctx); err != nil {
		log.Printf("coordinator: %v", err)
	}
}

func (c *Coordinator) startPreset(ctx context.Context, msg Message) Response {
	p, err := c.store.GetPreset(ctx, msg.ID)
	if err != nil {
		log.Printf("coordinator: start preset: %v", err)
		return failure("Could not load preset")
	}
	if p == nil {
		return failure("Preset not found")
	}
	return c.start(ctx, p.Minutes, "preset")
}

func (c *Coordinator) history(ctx context.Context, msg Message) Response {
	entries, err := c.recorder.List(ctx, msg.Limit)
	if err != nil {
		log.Printf("coordinator: history: %v", err)
		return failure("Could not load history")
	}
	views := make([]HistoryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, historyView(e))
	}
	return Response{"history": views}
}

func (c *Coordinator) stats(ctx context.Context) Response {
	stats, err := c.recorder.Stats(ctx)
	if err != nil {
		log.Printf("coordinator: stats: %v", err)
		return failure("Could not load stats")
	}
	return Response{
		"dailyMinutes": stats.DailyMinutes,
		"blockedSites": stats.BlockedSites,
		"weekKey":      history.WeekKey(c.now()),
	}
}

func (c *Coordinator) resetStats(ctx context.Context) Response {
	if err := c.recorder.Reset(ctx); err != nil {
		log.Printf("coordinator: reset stats: %v", err)
		return failure("Could not reset stats")
	}
	return Response{"success": true}
}

func (c *Coordinator) challengeStart(ctx context.Context) Response {
	if !c.sessions.State(ctx).TimerActive {
		return failure("No active timer")
	}
	res := c.referee.Start()
	return Response{
		"success":        true,
		"score":          res.Score,
		"shotsRemaining": res.ShotsRemaining,
		"message":        res.Message,
	}
}

func (c *Coordinator) challengeShot(ctx context.Context, msg Message) Response {
	hit := msg.Hit != nil && *msg.Hit
	res, err := c.referee.Shot(ctx, hit)
	if err != nil {
		return failure("No challenge in play")
	}
	return Response{
		"success":        true,
		"score":          res.Score,
		"shotsRemaining": res.ShotsRemaining,
		"won":            res.Won(),
		"lost":           res.Lost(),
		"message":        res.Message,
	}
}
