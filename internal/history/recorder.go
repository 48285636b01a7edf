// Package history records one entry per focus session and keeps the weekly
// focus statistics derived from completed sessions.
package history

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/valentindosimont/focusgate/internal/store"
)

// Store is the persistence the recorder needs.
type Store interface {
	BlockedURLs(ctx context.Context) ([]string, error)
	InsertHistory(ctx context.Context, e store.HistoryEntry, limit int) error
	GetHistoryEntry(ctx context.Context, id string) (*store.HistoryEntry, error)
	FinalizeHistory(ctx context.Context, e store.HistoryEntry, weekday time.Weekday) error
	ListHistory(ctx context.Context, limit int) ([]store.HistoryEntry, error)
	GetStats(ctx context.Context) (store.Stats, error)
	ResetWeek(ctx context.Context, weekKey string) error
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
}

// FinalizeInput describes how a session ended.
type FinalizeInput struct {
	Completed       bool
	Reason          string
	DurationMinutes int
}

// Recorder appends and finalizes history entries.
type Recorder struct {
	store Store
	limit int
	now   func() time.Time
	newID func() string
}

// NewRecorder keeps at most limit entries (limit <= 0 keeps everything).
func NewRecorder(st Store, limit int) *Recorder {
	return &Recorder{
		store: st,
		limit: limit,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// SetClock replaces the time source.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// RecordStart appends an unfinished entry, freezing the current blocked set.
func (r *Recorder) RecordStart(ctx context.Context, durationMinutes int, source string) (string, error) {
	blocked, err := r.store.BlockedURLs(ctx)
	if err != nil {
		log.Printf("history: snapshot blocked urls: %v", err)
		blocked = nil
	}

	entry := store.HistoryEntry{
		ID:              r.newID(),
		Date:            r.now(),
		DurationMinutes: durationMinutes,
		Source:          source,
		BlockedSnapshot: blocked,
	}
	if err := r.store.InsertHistory(ctx, entry, r.limit); err != nil {
		return entry.ID, fmt.Errorf("record start: %w", err)
	}
	return entry.ID, nil
}

// Finalize closes the entry for sessionID. A missing entry is synthesized
// from the current blocked set so completed time is never dropped. An entry
// that was already finalized is left alone.
func (r *Recorder) Finalize(ctx context.Context, sessionID string, in FinalizeInput) (store.HistoryEntry, error) {
	now := r.now()

	var entry *store.HistoryEntry
	if sessionID != "" {
		found, err := r.store.GetHistoryEntry(ctx, sessionID)
		if err != nil {
			return store.HistoryEntry{}, fmt.Errorf("finalize: %w", err)
		}
		entry = found
	}

	if entry != nil && entry.CompletedAt != nil {
		return *entry, nil
	}

	if entry == nil {
		log.Printf("history: no entry for session %q, synthesizing one", sessionID)
		blocked, _ := r.store.BlockedURLs(ctx)
		id := sessionID
		if id == "" {
			id = r.newID()
		}
		entry = &store.HistoryEntry{
			ID:              id,
			Date:            now.Add(-time.Duration(in.DurationMinutes) * time.Minute),
			Source:          "unknown",
			BlockedSnapshot: blocked,
		}
	}

	entry.Completed = in.Completed
	entry.CompletedAt = &now
	entry.Reason = in.Reason
	if in.DurationMinutes > 0 {
		entry.DurationMinutes = in.DurationMinutes
	}

	if err := r.store.FinalizeHistory(ctx, *entry, now.Weekday()); err != nil {
		return *entry, fmt.Errorf("finalize: %w", err)
	}
	return *entry, nil
}

// List returns up to limit entries, newest first.
func (r *Recorder) List(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	return r.store.ListHistory(ctx, limit)
}

// Stats returns the current weekly aggregates.
func (r *Recorder) Stats(ctx context.Context) (store.Stats, error) {
	return r.store.GetStats(ctx)
}

// WeekKey identifies the ISO week containing t, e.g. "2026-W42".
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// CurrentWeek returns the week key for now.
func (r *Recorder) CurrentWeek() string {
	return WeekKey(r.now())
}

// CheckWeeklyReset clears history and stats when the stored week differs
// from the current one. The first run only records the week.
func (r *Recorder) CheckWeeklyReset(ctx context.Context) (bool, error) {
	current := r.CurrentWeek()

	last, err := r.store.GetMeta(ctx, store.MetaLastResetWeek)
	if err != nil {
		return false, fmt.Errorf("weekly reset: %w", err)
	}
	if last == "" {
		return false, r.store.SetMeta(ctx, store.MetaLastResetWeek, current)
	}
	if last == current {
		return false, nil
	}

	if err := r.store.ResetWeek(ctx, current); err != nil {
		return false, fmt.Errorf("weekly reset: %w", err)
	}
	log.Printf("history: weekly reset %s -> %s", last, current)
	return true, nil
}

// Reset clears history and stats unconditionally.
func (r *Recorder) Reset(ctx context.Context) error {
	return r.store.ResetWeek(ctx, r.CurrentWeek())
}

// ElapsedMinutes converts a session span to whole minutes.
func ElapsedMinutes(start, end time.Time) int {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Minutes()))
}
