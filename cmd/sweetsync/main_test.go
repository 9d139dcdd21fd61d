package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/config"
	"github.com/rewired-gh/sweetsync/internal/models"
	"github.com/rewired-gh/sweetsync/internal/monitor"
	"github.com/rewired-gh/sweetsync/internal/storage"
)

func mustMonitor(t *testing.T) (*monitor.Monitor, *storage.Storage) {
	t.Helper()
	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("storage.New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return monitor.New(s), s
}

func mustAddEvent(t *testing.T, s *storage.Storage, event models.RecurringEvent) {
	t.Helper()
	if err := s.AddEvent(&event); err != nil {
		t.Fatalf("AddEvent(%s) failed: %v", event.ID, err)
	}
}

func TestWriteReport(t *testing.T) {
	mon, s := mustMonitor(t)
	mustAddEvent(t, s, models.RecurringEvent{
		ID: "leap", Title: "Leap", EventDate: civil.MustParse("2024-02-29"), IsRecurring: true, ReminderDays: 3,
	})
	mustAddEvent(t, s, models.RecurringEvent{
		ID: "dating", Title: "Dating", EventDate: civil.MustParse("2020-05-20"), MonthlyReminder: true,
	})
	if err := s.AddCycle(&models.CycleInterval{
		ID: "c1", StartDate: civil.MustParse("2025-02-01"), EndDate: civil.MustParse("2025-02-05"),
	}); err != nil {
		t.Fatalf("AddCycle failed: %v", err)
	}

	var buf bytes.Buffer
	if err := writeReport(&buf, mon, civil.MustParse("2025-03-15"), monitor.Options{ScheduleOccurrences: 2}); err != nil {
		t.Fatalf("writeReport failed: %v", err)
	}

	var report struct {
		Today     string `json:"today"`
		Reminders []struct {
			ID                string `json:"id"`
			EventDate         string `json:"eventDate"`
			ReminderDate      string `json:"reminderDate"`
			DaysUntilReminder int    `json:"daysUntilReminder"`
		} `json:"reminders"`
		Monthly []struct {
			ID           string `json:"id"`
			OriginalDate string `json:"originalDate"`
			ReminderDate string `json:"reminderDate"`
		} `json:"monthlyReminders"`
		Schedule []struct {
			ID          string   `json:"id"`
			Occurrences []string `json:"occurrences"`
		} `json:"schedule"`
		CycleStats struct {
			AverageCycleLength int    `json:"averageCycleLength"`
			NextPredictedDate  string `json:"nextPredictedDate"`
			TotalCycles        int    `json:"totalCycles"`
		} `json:"cycleStats"`
	}
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}

	if report.Today != "2025-03-15" {
		t.Errorf("today = %s, want 2025-03-15", report.Today)
	}
	if len(report.Reminders) != 1 {
		t.Fatalf("expected 1 reminder, got %+v", report.Reminders)
	}
	r := report.Reminders[0]
	if r.ID != "leap" || r.EventDate != "2026-02-28" || r.ReminderDate != "2026-02-25" || r.DaysUntilReminder != 347 {
		t.Errorf("unexpected reminder: %+v", r)
	}

	if len(report.Monthly) != 1 || report.Monthly[0].ID != "dating" ||
		report.Monthly[0].OriginalDate != "2020-05-20" || report.Monthly[0].ReminderDate != "2025-03-20" {
		t.Errorf("unexpected monthly reminders: %+v", report.Monthly)
	}

	// "dating" is a one-off event in the past, so only "leap" is scheduled.
	if len(report.Schedule) != 1 || report.Schedule[0].ID != "leap" ||
		!reflect.DeepEqual(report.Schedule[0].Occurrences, []string{"2026-02-28", "2027-02-28"}) {
		t.Errorf("unexpected schedule: %+v", report.Schedule)
	}

	if report.CycleStats.AverageCycleLength != 28 ||
		report.CycleStats.NextPredictedDate != "2025-03-01" ||
		report.CycleStats.TotalCycles != 1 {
		t.Errorf("unexpected cycle stats: %+v", report.CycleStats)
	}
}

func TestRunSweep_WritesFeedAndRecordsNotices(t *testing.T) {
	mon, s := mustMonitor(t)
	mustAddEvent(t, s, models.RecurringEvent{
		ID: "bday", Title: "Birthday", EventDate: civil.MustParse("2010-03-22"), IsRecurring: true, ReminderDays: 7,
	})

	feedPath := filepath.Join(t.TempDir(), "feed.ics")
	cfg := &config.Config{
		Reminders: config.RemindersConfig{Enabled: true},
		Cycles:    config.CyclesConfig{Enabled: true},
		Feed:      config.FeedConfig{Enabled: true, Path: feedPath, Name: "Test"},
	}
	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	if err := runSweep(mon, nil, cfg, monitor.Options{}, now); err != nil {
		t.Fatalf("runSweep failed: %v", err)
	}

	data, err := os.ReadFile(feedPath)
	if err != nil {
		t.Fatalf("feed not written: %v", err)
	}
	if !strings.Contains(string(data), "SUMMARY:Birthday") {
		t.Errorf("feed is missing the event:\n%s", data)
	}

	// Without a Telegram client nothing is recorded as sent.
	pending, err := mon.FilterAlreadySent([]models.Reminder{{
		EventID:          "bday",
		OccurrenceResult: models.OccurrenceResult{ReminderOccurrence: civil.MustParse("2025-03-22")},
	}})
	if err != nil {
		t.Fatalf("FilterAlreadySent failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected the reminder to stay pending, got %d", len(pending))
	}
}

func TestRunSweep_MonthlyReminderDueWithoutClient(t *testing.T) {
	mon, s := mustMonitor(t)
	mustAddEvent(t, s, models.RecurringEvent{
		ID: "dating", Title: "Dating", EventDate: civil.MustParse("2020-05-15"), MonthlyReminder: true,
	})

	cfg := &config.Config{Reminders: config.RemindersConfig{Enabled: true}}
	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	if err := runSweep(mon, nil, cfg, monitor.Options{}, now); err != nil {
		t.Fatalf("runSweep failed: %v", err)
	}

	pending, err := mon.FilterMonthlyAlreadySent([]models.MonthlyReminder{
		{EventID: "dating", ReminderDate: civil.MustParse("2025-03-15")},
	})
	if err != nil {
		t.Fatalf("FilterMonthlyAlreadySent failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("monthly reminder should stay pending without a client, got %d", len(pending))
	}
}

func TestAdminCommand(t *testing.T) {
	_, s := mustMonitor(t)
	mustAddEvent(t, s, models.RecurringEvent{
		ID: "leap", Title: "Leap", EventDate: civil.MustParse("2024-02-29"), IsRecurring: true, ReminderDays: 3,
	})
	mustAddEvent(t, s, models.RecurringEvent{ID: "old", EventDate: civil.MustParse("2020-01-01")})
	if err := s.AddCycle(&models.CycleInterval{
		ID: "c1", StartDate: civil.MustParse("2025-02-01"), EndDate: civil.MustParse("2025-02-05"),
	}); err != nil {
		t.Fatalf("AddCycle failed: %v", err)
	}
	today := civil.MustParse("2025-03-15")

	var buf bytes.Buffer
	cmd := adminCommand{ShowEvent: "leap", DeleteEvent: "old", DeleteCycle: "c1"}
	if err := cmd.run(&buf, s, today, 3); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var details struct {
		Event struct {
			ID string `json:"id"`
		} `json:"event"`
		Resolved struct {
			EventDate    string `json:"eventDate"`
			ReminderDate string `json:"reminderDate"`
		} `json:"resolved"`
		Occurrences []string `json:"occurrences"`
	}
	if err := json.Unmarshal(buf.Bytes(), &details); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if details.Event.ID != "leap" || details.Resolved.EventDate != "2026-02-28" || details.Resolved.ReminderDate != "2026-02-25" {
		t.Errorf("unexpected details: %+v", details)
	}
	if !reflect.DeepEqual(details.Occurrences, []string{"2026-02-28", "2027-02-28", "2028-02-29"}) {
		t.Errorf("unexpected occurrences: %v", details.Occurrences)
	}

	if _, err := s.GetEvent("old"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("event should be deleted, got %v", err)
	}
	cycles, err := s.GetAllCycles()
	if err != nil {
		t.Fatalf("GetAllCycles failed: %v", err)
	}
	if len(cycles) != 0 {
		t.Errorf("cycle should be deleted, got %+v", cycles)
	}
}

func TestAdminCommand_Missing(t *testing.T) {
	_, s := mustMonitor(t)
	today := civil.MustParse("2025-03-15")

	tests := []struct {
		name string
		cmd  adminCommand
	}{
		{"show", adminCommand{ShowEvent: "nope"}},
		{"delete event", adminCommand{DeleteEvent: "nope"}},
		{"delete cycle", adminCommand{DeleteCycle: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := tt.cmd.run(&buf, s, today, 3)
			if !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if buf.Len() != 0 {
				t.Errorf("expected no output, got %q", buf.String())
			}
		})
	}
}
