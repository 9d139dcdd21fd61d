// Package storage provides SQLite-backed persistence for recurring events,
// cycle intervals and the notification ledger used to avoid resending
// reminders.
//
// Dates are stored as YYYY-MM-DD text so that rows stay readable with the
// sqlite3 shell and sort correctly as strings. Tag lists are stored as JSON
// arrays.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/sweetsync/internal/models"
)

// ErrNotFound is returned when a record with the requested ID does not exist.
var ErrNotFound = errors.New("record not found")

// Storage wraps a single SQLite database
type Storage struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and applies
// migrations. ":memory:" opens a private in-memory database.
func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		createEventsTable,
		createCyclesTable,
		createNotificationsTable,
	}

	for i, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	event_date TEXT NOT NULL,
	is_recurring BOOLEAN NOT NULL DEFAULT false,
	reminder_days INTEGER NOT NULL DEFAULT 0,
	monthly_reminder BOOLEAN NOT NULL DEFAULT false,
	monthly_reminder_day INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER DEFAULT (strftime('%s', 'now'))
);`

const createCyclesTable = `
CREATE TABLE IF NOT EXISTS cycles (
	id TEXT PRIMARY KEY,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	symptoms TEXT NOT NULL DEFAULT '[]', -- JSON array
	moods TEXT NOT NULL DEFAULT '[]', -- JSON array
	notes TEXT NOT NULL DEFAULT '',
	created_at INTEGER DEFAULT (strftime('%s', 'now'))
);`

const createNotificationsTable = `
CREATE TABLE IF NOT EXISTS notifications (
	key TEXT PRIMARY KEY,
	sent_at INTEGER NOT NULL
);`

// AddEvent inserts or replaces an event. An empty ID is filled with a fresh UUID.
func (s *Storage) AddEvent(event *models.RecurringEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	_, err := s.db.Exec(`
INSERT INTO events (id, title, type, event_date, is_recurring, reminder_days, monthly_reminder, monthly_reminder_day)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	type = excluded.type,
	event_date = excluded.event_date,
	is_recurring = excluded.is_recurring,
	reminder_days = excluded.reminder_days,
	monthly_reminder = excluded.monthly_reminder,
	monthly_reminder_day = excluded.monthly_reminder_day`,
		event.ID, event.Title, event.Type, event.EventDate, event.IsRecurring, event.ReminderDays,
		event.MonthlyReminder, event.MonthlyReminderDay)
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", event.ID, err)
	}
	return nil
}

// GetEvent retrieves an event by ID
func (s *Storage) GetEvent(id string) (*models.RecurringEvent, error) {
	row := s.db.QueryRow(`
SELECT id, title, type, event_date, is_recurring, reminder_days, monthly_reminder, monthly_reminder_day
FROM events WHERE id = ?`, id)

	var event models.RecurringEvent
	err := row.Scan(&event.ID, &event.Title, &event.Type, &event.EventDate, &event.IsRecurring, &event.ReminderDays,
		&event.MonthlyReminder, &event.MonthlyReminderDay)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", id, err)
	}
	return &event, nil
}

// GetAllEvents returns all events ordered by event date, then ID
func (s *Storage) GetAllEvents() ([]models.RecurringEvent, error) {
	rows, err := s.db.Query(`
SELECT id, title, type, event_date, is_recurring, reminder_days, monthly_reminder, monthly_reminder_day
FROM events ORDER BY event_date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]models.RecurringEvent, 0)
	for rows.Next() {
		var event models.RecurringEvent
		if err := rows.Scan(&event.ID, &event.Title, &event.Type, &event.EventDate, &event.IsRecurring, &event.ReminderDays,
			&event.MonthlyReminder, &event.MonthlyReminderDay); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// DeleteEvent removes an event by ID
func (s *Storage) DeleteEvent(id string) error {
	return s.deleteByID("events", id)
}

// AddCycle inserts or replaces a cycle interval. An empty ID is filled with a fresh UUID.
func (s *Storage) AddCycle(cycle *models.CycleInterval) error {
	if err := cycle.Validate(); err != nil {
		return fmt.Errorf("invalid cycle: %w", err)
	}
	if cycle.ID == "" {
		cycle.ID = uuid.NewString()
	}

	symptoms, err := encodeTags(cycle.Symptoms)
	if err != nil {
		return err
	}
	moods, err := encodeTags(cycle.Moods)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
INSERT INTO cycles (id, start_date, end_date, symptoms, moods, notes)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	start_date = excluded.start_date,
	end_date = excluded.end_date,
	symptoms = excluded.symptoms,
	moods = excluded.moods,
	notes = excluded.notes`,
		cycle.ID, cycle.StartDate, cycle.EndDate, symptoms, moods, cycle.Notes)
	if err != nil {
		return fmt.Errorf("failed to save cycle %s: %w", cycle.ID, err)
	}
	return nil
}

// GetAllCycles returns all cycle intervals, most recent start first
func (s *Storage) GetAllCycles() ([]models.CycleInterval, error) {
	rows, err := s.db.Query(`
SELECT id, start_date, end_date, symptoms, moods, notes
FROM cycles ORDER BY start_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	cycles := make([]models.CycleInterval, 0)
	for rows.Next() {
		var (
			cycle    models.CycleInterval
			symptoms string
			moods    string
		)
		if err := rows.Scan(&cycle.ID, &cycle.StartDate, &cycle.EndDate, &symptoms, &moods, &cycle.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		if cycle.Symptoms, err = decodeTags(symptoms); err != nil {
			return nil, fmt.Errorf("cycle %s symptoms: %w", cycle.ID, err)
		}
		if cycle.Moods, err = decodeTags(moods); err != nil {
			return nil, fmt.Errorf("cycle %s moods: %w", cycle.ID, err)
		}
		cycles = append(cycles, cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cycles: %w", err)
	}
	return cycles, nil
}

// DeleteCycle removes a cycle interval by ID
func (s *Storage) DeleteCycle(id string) error {
	return s.deleteByID("cycles", id)
}

func (s *Storage) deleteByID(table, id string) error {
	res, err := s.db.Exec("DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

// WasNotified reports whether a notification with key has been recorded
func (s *Storage) WasNotified(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM notifications WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up notification %s: %w", key, err)
	}
	return true, nil
}

// RecordNotification marks key as sent at the given time
func (s *Storage) RecordNotification(key string, sentAt time.Time) error {
	_, err := s.db.Exec(`
INSERT INTO notifications (key, sent_at) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET sent_at = excluded.sent_at`, key, sentAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record notification %s: %w", key, err)
	}
	return nil
}

// PruneNotifications deletes ledger entries sent before cutoff and returns
// how many were removed.
func (s *Storage) PruneNotifications(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM notifications WHERE sent_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return n, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(data string) ([]string, error) {
	tags := []string{}
	if data == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(data), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}
