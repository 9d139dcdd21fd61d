// Package monitor runs sweeps over stored events and cycle history.
//
// A sweep loads every record, resolves upcoming reminders, summarizes events
// and computes cycle statistics for a given calendar day. Records that fail
// validation are reported as SweepErrors and left out; they never abort the
// sweep.
//
// Delivery de-duplication is keyed by occurrence, not by day:
//
//	reminder:<event id>:<occurrence date>
//	monthly:<event id>:<reminder date>
//	cycle:<predicted start date>
//
// so a reminder that stays due across several sweeps (lookahead > 0) is sent
// once, and the next year's occurrence gets a fresh key.
package monitor

import (
	"fmt"
	"time"

	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/cyclestats"
	"github.com/rewired-gh/sweetsync/internal/logger"
	"github.com/rewired-gh/sweetsync/internal/models"
	"github.com/rewired-gh/sweetsync/internal/recurrence"
	"github.com/rewired-gh/sweetsync/internal/storage"
)

// Monitor runs sweeps against a Storage
type Monitor struct {
	storage *storage.Storage
}

// New creates a new Monitor instance
func New(s *storage.Storage) *Monitor {
	return &Monitor{storage: s}
}

// SweepError represents a per-record error during a sweep
type SweepError struct {
	Kind     string // "event" or "cycle"
	RecordID string
	Err      error
}

func (e SweepError) Error() string {
	return fmt.Sprintf("sweep error for %s %s: %v", e.Kind, e.RecordID, e.Err)
}

func (e SweepError) Unwrap() error {
	return e.Err
}

// Options controls which notifications a sweep considers due
type Options struct {
	// LookaheadDays widens "due" from daysUntilReminder == 0 to
	// daysUntilReminder <= LookaheadDays.
	LookaheadDays         int
	// CycleNotifyDaysBefore is how many days ahead of the predicted start a
	// cycle notice becomes due.
	CycleNotifyDaysBefore int
	// ScheduleOccurrences is how many upcoming occurrences to list per
	// event. 0 leaves the schedule empty.
	ScheduleOccurrences   int
}

// SweepResult is everything one sweep computed
type SweepResult struct {
	Today      civil.Date          `json:"today"`
	Reminders  []models.Reminder   `json:"reminders"`
	Due        []models.Reminder   `json:"dueReminders"`
	Summary    models.EventSummary `json:"summary"`
	CycleStats models.CycleStats   `json:"cycleStats"`

	// Monthly holds this month's reminder for every event with monthly
	// reminders; MonthlyDue is the subset due within LookaheadDays.
	Monthly    []models.MonthlyReminder `json:"monthlyReminders"`
	MonthlyDue []models.MonthlyReminder `json:"dueMonthlyReminders"`
	Schedule   []models.EventSchedule   `json:"schedule"`

	// CycleDue is set when at least one cycle is recorded and the predicted
	// start is within CycleNotifyDaysBefore days.
	CycleDue bool `json:"cycleDue"`

	// Events holds the events that passed validation.
	Events []models.RecurringEvent `json:"-"`
	Errors []SweepError            `json:"-"`
}

// Sweep loads all records and evaluates them for today. Storage failures are
// returned as an error; invalid records are collected in SweepResult.Errors.
func (m *Monitor) Sweep(today civil.Date, opts Options) (*SweepResult, error) {
	if !today.IsValid() {
		return nil, &civil.InvalidDateError{Field: "today", Value: today.String(), Reason: "no such calendar day"}
	}

	events, err := m.storage.GetAllEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	cycles, err := m.storage.GetAllCycles()
	if err != nil {
		return nil, fmt.Errorf("failed to load cycles: %w", err)
	}

	result := &SweepResult{Today: today}

	validEvents := make([]models.RecurringEvent, 0, len(events))
	for i := range events {
		if err := events[i].Validate(); err != nil {
			result.Errors = append(result.Errors, SweepError{Kind: "event", RecordID: events[i].ID, Err: err})
			continue
		}
		validEvents = append(validEvents, events[i])
	}

	validCycles := make([]models.CycleInterval, 0, len(cycles))
	for i := range cycles {
		if err := cycles[i].Validate(); err != nil {
			result.Errors = append(result.Errors, SweepError{Kind: "cycle", RecordID: cycles[i].ID, Err: err})
			continue
		}
		validCycles = append(validCycles, cycles[i])
	}

	// Inputs are pre-validated, so the engines cannot fail here.
	if result.Reminders, err = recurrence.UpcomingReminders(validEvents, today); err != nil {
		return nil, fmt.Errorf("failed to resolve reminders: %w", err)
	}
	if result.Summary, err = recurrence.Summarize(validEvents, today); err != nil {
		return nil, fmt.Errorf("failed to summarize events: %w", err)
	}
	result.Summary.TotalEvents = len(events)
	result.Events = validEvents

	if result.Monthly, err = recurrence.MonthlyReminders(validEvents, today); err != nil {
		return nil, fmt.Errorf("failed to resolve monthly reminders: %w", err)
	}
	if result.Schedule, err = recurrence.Schedules(validEvents, today, opts.ScheduleOccurrences); err != nil {
		return nil, fmt.Errorf("failed to list occurrences: %w", err)
	}

	if result.CycleStats, err = cyclestats.Compute(validCycles, today); err != nil {
		return nil, fmt.Errorf("failed to compute cycle stats: %w", err)
	}

	result.Due = DueReminders(result.Reminders, opts.LookaheadDays)
	result.MonthlyDue = DueMonthlyReminders(result.Monthly, opts.LookaheadDays)
	result.CycleDue = CycleDue(result.CycleStats, today, opts.CycleNotifyDaysBefore)

	logger.Debug("Sweep for %s: %d events (%d invalid), %d cycles (%d invalid), %d upcoming reminders, %d due",
		today, len(events), len(events)-len(validEvents), len(cycles), len(cycles)-len(validCycles),
		len(result.Reminders), len(result.Due))

	return result, nil
}

// DueReminders returns the reminders whose trigger date is within
// lookaheadDays of today, keeping their order.
func DueReminders(reminders []models.Reminder, lookaheadDays int) []models.Reminder {
	due := make([]models.Reminder, 0)
	for _, r := range reminders {
		if r.DaysUntilReminder >= 0 && r.DaysUntilReminder <= lookaheadDays {
			due = append(due, r)
		}
	}
	return due
}

// DueMonthlyReminders returns the monthly reminders that fall between today
// and lookaheadDays ahead
func DueMonthlyReminders(reminders []models.MonthlyReminder, lookaheadDays int) []models.MonthlyReminder {
	due := make([]models.MonthlyReminder, 0)
	for _, r := range reminders {
		if r.DaysUntilReminder >= 0 && r.DaysUntilReminder <= lookaheadDays {
			due = append(due, r)
		}
	}
	return due
}

// CycleDue reports whether a cycle notice should go out today
func CycleDue(stats models.CycleStats, today civil.Date, notifyDaysBefore int) bool {
	if stats.TotalCycles == 0 {
		return false
	}
	days := stats.NextPredictedDate.DaysSince(today)
	return days >= 0 && days <= notifyDaysBefore
}

// ReminderKey is the ledger key for one occurrence of an event's reminder
func ReminderKey(r models.Reminder) string {
	return "reminder:" + r.EventID + ":" + r.ReminderOccurrence.String()
}

// MonthlyKey is the ledger key for one month's reminder of an event
func MonthlyKey(r models.MonthlyReminder) string {
	return "monthly:" + r.EventID + ":" + r.ReminderDate.String()
}

// CycleKey is the ledger key for a predicted cycle start
func CycleKey(predicted civil.Date) string {
	return "cycle:" + predicted.String()
}

// FilterAlreadySent removes reminders whose occurrence has already been
// notified. Returns a non-nil slice.
func (m *Monitor) FilterAlreadySent(reminders []models.Reminder) ([]models.Reminder, error) {
	result := make([]models.Reminder, 0, len(reminders))
	for _, r := range reminders {
		sent, err := m.storage.WasNotified(ReminderKey(r))
		if err != nil {
			return nil, err
		}
		if sent {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

// RecordNotified records the given reminders as sent at now.
// Call this after a successful Telegram send.
func (m *Monitor) RecordNotified(reminders []models.Reminder, now time.Time) error {
	for _, r := range reminders {
		if err := m.storage.RecordNotification(ReminderKey(r), now); err != nil {
			return err
		}
	}
	return nil
}

// FilterMonthlyAlreadySent removes monthly reminders already notified this
// month. Returns a non-nil slice.
func (m *Monitor) FilterMonthlyAlreadySent(reminders []models.MonthlyReminder) ([]models.MonthlyReminder, error) {
	result := make([]models.MonthlyReminder, 0, len(reminders))
	for _, r := range reminders {
		sent, err := m.storage.WasNotified(MonthlyKey(r))
		if err != nil {
			return nil, err
		}
		if !sent {
			result = append(result, r)
		}
	}
	return result, nil
}

// RecordMonthlyNotified records the given monthly reminders as sent at now
func (m *Monitor) RecordMonthlyNotified(reminders []models.MonthlyReminder, now time.Time) error {
	for _, r := range reminders {
		if err := m.storage.RecordNotification(MonthlyKey(r), now); err != nil {
			return err
		}
	}
	return nil
}

// CycleAlreadySent reports whether the notice for this predicted start went out
func (m *Monitor) CycleAlreadySent(predicted civil.Date) (bool, error) {
	return m.storage.WasNotified(CycleKey(predicted))
}

// RecordCycleNotified records the notice for this predicted start as sent at now
func (m *Monitor) RecordCycleNotified(predicted civil.Date, now time.Time) error {
	return m.storage.RecordNotification(CycleKey(predicted), now)
}

// PruneNotified drops ledger entries older than retention
func (m *Monitor) PruneNotified(now time.Time, retention time.Duration) (int64, error) {
	return m.storage.PruneNotifications(now.Add(-retention))
}
