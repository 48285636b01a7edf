package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store handles SQLite persistence
type Store struct {
	db   *sql.DB
	path string
}

// SessionState is the persisted singleton describing blocking and the timed session.
type SessionState struct {
	Enabled              bool
	TimerActive          bool
	TimerStartTime       time.Time
	TimerEndTime         time.Time
	TimerDurationMinutes int
	CurrentSessionID     string
}

// Preset is a named reusable session template, optionally scheduled daily.
type Preset struct {
	ID           string
	Name         string
	Minutes      int
	ScheduleTime string // "HH:MM", empty when unscheduled
}

// HistoryEntry records one session attempt.
type HistoryEntry struct {
	ID              string
	Date            time.Time
	DurationMinutes int
	Completed       bool
	CompletedAt     *time.Time
	Reason          string
	Source          string
	BlockedSnapshot []string
}

// Stats holds the weekly focus aggregates.
type Stats struct {
	DailyMinutes [7]int
	BlockedSites map[string]int
}

// New creates a new Store with the database at the given path
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: dbPath}

	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema, err := migrationsFS.ReadFile("migrations/001_initial.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}

	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// LoadSessionState retrieves the session singleton
func (s *Store) LoadSessionState(ctx context.Context) (SessionState, error) {
	var state SessionState
	var startMs, endMs int64
	var sessionID sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT enabled, timer_active, timer_start_ms, timer_end_ms,
		       timer_duration_minutes, current_session_id
		FROM session_state WHERE id = 1
	`).Scan(
		&state.Enabled,
		&state.TimerActive,
		&startMs,
		&endMs,
		&state.TimerDurationMinutes,
		&sessionID,
	)
	if err != nil {
		return SessionState{}, fmt.Errorf("load session state: %w", err)
	}

	state.TimerStartTime = fromMillis(startMs)
	state.TimerEndTime = fromMillis(endMs)
	if sessionID.Valid {
		state.CurrentSessionID = sessionID.String
	}
	return state, nil
}

// SaveSessionState writes every session field in one statement
func (s *Store) SaveSessionState(ctx context.Context, state SessionState) error {
	var sessionID sql.NullString
	if state.CurrentSessionID != "" {
		sessionID = sql.NullString{String: state.CurrentSessionID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE session_state SET
			enabled = ?,
			timer_active = ?,
			timer_start_ms = ?,
			timer_end_ms = ?,
			timer_duration_minutes = ?,
			current_session_id = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`,
		state.Enabled,
		state.TimerActive,
		toMillis(state.TimerStartTime),
		toMillis(state.TimerEndTime),
		state.TimerDurationMinutes,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

// BlockedURLs returns the blocked entries in insertion order
func (s *Store) BlockedURLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entry FROM blocked_urls ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("get blocked urls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []string{}
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("scan blocked url: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SetBlockedURLs replaces the blocked list
func (s *Store) SetBlockedURLs(ctx context.Context, entries []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocked_urls`); err != nil {
		return fmt.Errorf("clear blocked urls: %w", err)
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO blocked_urls (entry, position) VALUES (?, ?)
		`, e, i); err != nil {
			return fmt.Errorf("insert blocked url: %w", err)
		}
	}
	return tx.Commit()
}

// ListPresets returns all presets in creation order
func (s *Store) ListPresets(ctx context.Context) ([]Preset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, minutes, COALESCE(schedule_time, '')
		FROM presets ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	presets := []Preset{}
	for rows.Next() {
		var p Preset
		if err := rows.Scan(&p.ID, &p.Name, &p.Minutes, &p.ScheduleTime); err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// GetPreset returns nil when the preset does not exist
func (s *Store) GetPreset(ctx context.Context, id string) (*Preset, error) {
	var p Preset
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, minutes, COALESCE(schedule_time, '') FROM presets WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Minutes, &p.ScheduleTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preset: %w", err)
	}
	return &p, nil
}

// SavePreset inserts or updates a preset
func (s *Store) SavePreset(ctx context.Context, p Preset) error {
	var schedule sql.NullString
	if p.ScheduleTime != "" {
		schedule = sql.NullString{String: p.ScheduleTime, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presets (id, name, minutes, schedule_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			minutes = excluded.minutes,
			schedule_time = excluded.schedule_time
	`, p.ID, p.Name, p.Minutes, schedule)
	if err != nil {
		return fmt.Errorf("save preset: %w", err)
	}
	return nil
}

// DeletePreset reports whether a row was removed
func (s *Store) DeletePreset(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM presets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete preset: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertHistory adds an entry and trims history to the newest limit rows
func (s *Store) InsertHistory(ctx context.Context, e HistoryEntry, limit int) error {
	snapshot, err := json.Marshal(e.BlockedSnapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (id, started_at_ms, duration_minutes, completed, completed_at_ms,
		                     reason, source, blocked_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		toMillis(e.Date),
		e.DurationMinutes,
		e.Completed,
		completedAtMillis(e.CompletedAt),
		e.Reason,
		e.Source,
		string(snapshot),
	); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	if limit > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM history WHERE id NOT IN (
				SELECT id FROM history ORDER BY started_at_ms DESC, rowid DESC LIMIT ?
			)
		`, limit); err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	return tx.Commit()
}

func completedAtMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func scanHistory(scan func(dest ...any) error) (HistoryEntry, error) {
	var e HistoryEntry
	var startedMs int64
	var completedMs sql.NullInt64
	var reason sql.NullString
	var snapshot string

	if err := scan(&e.ID, &startedMs, &e.DurationMinutes, &e.Completed, &completedMs,
		&reason, &e.Source, &snapshot); err != nil {
		return HistoryEntry{}, err
	}

	e.Date = fromMillis(startedMs)
	if completedMs.Valid {
		t := time.UnixMilli(completedMs.Int64)
		e.CompletedAt = &t
	}
	e.Reason = reason.String
	if err := json.Unmarshal([]byte(snapshot), &e.BlockedSnapshot); err != nil {
		e.BlockedSnapshot = nil
	}
	return e, nil
}

const historyColumns = `id, started_at_ms, duration_minutes, completed, completed_at_ms,
	reason, source, blocked_snapshot`

// GetHistoryEntry returns nil when the entry does not exist
func (s *Store) GetHistoryEntry(ctx context.Context, id string) (*HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM history WHERE id = ?`, id)
	e, err := scanHistory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get history entry: %w", err)
	}
	return &e, nil
}

// ListHistory returns up to limit entries, newest first
func (s *Store) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+` FROM history
		ORDER BY started_at_ms DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []HistoryEntry{}
	for rows.Next() {
		e, err := scanHistory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FinalizeHistory upserts the entry and, when it completed, credits the
// stats in the same transaction.
func (s *Store) FinalizeHistory(ctx context.Context, e HistoryEntry, weekday time.Weekday) error {
	snapshot, err := json.Marshal(e.BlockedSnapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history (id, started_at_ms, duration_minutes, completed, completed_at_ms,
		                     reason, source, blocked_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			duration_minutes = excluded.duration_minutes,
			completed = excluded.completed,
			completed_at_ms = excluded.completed_at_ms,
			reason = excluded.reason
	`,
		e.ID,
		toMillis(e.Date),
		e.DurationMinutes,
		e.Completed,
		completedAtMillis(e.CompletedAt),
		e.Reason,
		e.Source,
		string(snapshot),
	); err != nil {
		return fmt.Errorf("finalize history: %w", err)
	}

	if e.Completed {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stats_daily (weekday, minutes) VALUES (?, ?)
			ON CONFLICT(weekday) DO UPDATE SET minutes = minutes + excluded.minutes
		`, int(weekday), e.DurationMinutes); err != nil {
			return fmt.Errorf("add daily minutes: %w", err)
		}
		for _, domain := range e.BlockedSnapshot {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stats_sites (domain, count) VALUES (?, 1)
				ON CONFLICT(domain) DO UPDATE SET count = count + 1
			`, domain); err != nil {
				return fmt.Errorf("increment site count: %w", err)
			}
		}
	}

	return tx.Commit()
}

// GetStats returns the weekly aggregates
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{BlockedSites: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT weekday, minutes FROM stats_daily`)
	if err != nil {
		return stats, fmt.Errorf("get daily stats: %w", err)
	}
	for rows.Next() {
		var day, minutes int
		if err := rows.Scan(&day, &minutes); err != nil {
			_ = rows.Close()
			return stats, fmt.Errorf("scan daily stats: %w", err)
		}
		if day >= 0 && day < 7 {
			stats.DailyMinutes[day] = minutes
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("get daily stats: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT domain, count FROM stats_sites`)
	if err != nil {
		return stats, fmt.Errorf("get site stats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var domain string
		var count int
		if err := rows.Scan(&domain, &count); err != nil {
			return stats, fmt.Errorf("scan site stats: %w", err)
		}
		stats.BlockedSites[domain] = count
	}
	return stats, rows.Err()
}

// ResetWeek clears history and stats and records the new week key
func (s *Store) ResetWeek(ctx context.Context, weekKey string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM history`,
		`DELETE FROM stats_daily`,
		`DELETE FROM stats_sites`,
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("reset week: %w", err)
		}
	}
	if err := setMeta(ctx, tx, MetaLastResetWeek, weekKey); err != nil {
		return err
	}
	return tx.Commit()
}

const MetaLastResetWeek = "last_reset_week"

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setMeta(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta returns "" when the key is unset
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return setMeta(ctx, s.db, key, value)
}
