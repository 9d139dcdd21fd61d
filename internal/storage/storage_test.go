package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/models"
)

func mustStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage_AddAndGetEvent(t *testing.T) {
	s := mustStorage(t)

	event := &models.RecurringEvent{
		ID:           "anniv",
		Title:        "Anniversary",
		Type:         "relationship",
		EventDate:    civil.MustParse("2019-06-14"),
		IsRecurring:  true,
		ReminderDays: 7,

		MonthlyReminder:    true,
		MonthlyReminderDay: 3,
	}

	if err := s.AddEvent(event); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}

	retrieved, err := s.GetEvent("anniv")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if *retrieved != *event {
		t.Errorf("Expected %+v, got %+v", *event, *retrieved)
	}
}

func TestStorage_AddEventUpserts(t *testing.T) {
	s := mustStorage(t)

	event := &models.RecurringEvent{ID: "e1", Title: "Old", EventDate: civil.MustParse("2020-01-01")}
	if err := s.AddEvent(event); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	event.Title = "New"
	event.ReminderDays = 3
	if err := s.AddEvent(event); err != nil {
		t.Fatalf("AddEvent (update) failed: %v", err)
	}

	all, err := s.GetAllEvents()
	if err != nil {
		t.Fatalf("GetAllEvents failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(all))
	}
	if all[0].Title != "New" || all[0].ReminderDays != 3 {
		t.Errorf("Expected updated event, got %+v", all[0])
	}
}

func TestStorage_AddEventAssignsID(t *testing.T) {
	s := mustStorage(t)

	event := &models.RecurringEvent{Title: "No ID", EventDate: civil.MustParse("2020-01-01")}
	if err := s.AddEvent(event); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	if event.ID == "" {
		t.Fatal("Expected generated ID")
	}
	if _, err := s.GetEvent(event.ID); err != nil {
		t.Errorf("GetEvent with generated ID failed: %v", err)
	}
}

func TestStorage_AddEventRejectsInvalid(t *testing.T) {
	s := mustStorage(t)

	err := s.AddEvent(&models.RecurringEvent{ID: "bad", EventDate: civil.Date{Year: 2025, Month: 2, Day: 30}})
	if !errors.Is(err, civil.ErrInvalidDate) {
		t.Errorf("Expected ErrInvalidDate, got %v", err)
	}

	err = s.AddEvent(&models.RecurringEvent{ID: "neg", EventDate: civil.MustParse("2025-01-01"), ReminderDays: -2})
	if !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition, got %v", err)
	}

	err = s.AddEvent(&models.RecurringEvent{ID: "far", EventDate: civil.MustParse("2025-01-01"), ReminderDays: models.MaxReminderDays + 1})
	if !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition for oversized offset, got %v", err)
	}

	err = s.AddEvent(&models.RecurringEvent{ID: "monthly", EventDate: civil.MustParse("2025-01-01"), MonthlyReminder: true, MonthlyReminderDay: 32})
	if !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition for monthly day 32, got %v", err)
	}

	events, err := s.GetAllEvents()
	if err != nil {
		t.Fatalf("GetAllEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Invalid events must not be stored, got %+v", events)
	}
}

func TestStorage_GetAllEventsOrdered(t *testing.T) {
	s := mustStorage(t)

	for _, e := range []models.RecurringEvent{
		{ID: "c", EventDate: civil.MustParse("2021-05-01")},
		{ID: "a", EventDate: civil.MustParse("2019-01-10")},
		{ID: "b", EventDate: civil.MustParse("2021-05-01")},
	} {
		e := e
		if err := s.AddEvent(&e); err != nil {
			t.Fatalf("AddEvent failed: %v", err)
		}
	}

	all, err := s.GetAllEvents()
	if err != nil {
		t.Fatalf("GetAllEvents failed: %v", err)
	}
	got := []string{all[0].ID, all[1].ID, all[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestStorage_DeleteEvent(t *testing.T) {
	s := mustStorage(t)

	if err := s.AddEvent(&models.RecurringEvent{ID: "x", EventDate: civil.MustParse("2020-01-01")}); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	if err := s.DeleteEvent("x"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if _, err := s.GetEvent("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteEvent("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestStorage_Cycles(t *testing.T) {
	s := mustStorage(t)

	older := &models.CycleInterval{
		ID:        "c1",
		StartDate: civil.MustParse("2025-01-01"),
		EndDate:   civil.MustParse("2025-01-05"),
		Symptoms:  []string{"cramps", "headache"},
		Moods:     []string{"calm"},
		Notes:     "first",
	}
	newer := &models.CycleInterval{
		ID:        "c2",
		StartDate: civil.MustParse("2025-01-29"),
		EndDate:   civil.MustParse("2025-02-02"),
	}

	if err := s.AddCycle(older); err != nil {
		t.Fatalf("AddCycle failed: %v", err)
	}
	if err := s.AddCycle(newer); err != nil {
		t.Fatalf("AddCycle failed: %v", err)
	}

	cycles, err := s.GetAllCycles()
	if err != nil {
		t.Fatalf("GetAllCycles failed: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("Expected 2 cycles, got %d", len(cycles))
	}
	if cycles[0].ID != "c2" {
		t.Errorf("Expected most recent cycle first, got %s", cycles[0].ID)
	}
	if cycles[0].Symptoms == nil || len(cycles[0].Symptoms) != 0 {
		t.Errorf("Expected empty non-nil symptoms, got %#v", cycles[0].Symptoms)
	}
	if len(cycles[1].Symptoms) != 2 || cycles[1].Symptoms[1] != "headache" {
		t.Errorf("Unexpected symptoms: %v", cycles[1].Symptoms)
	}
	if cycles[1].Notes != "first" || cycles[1].EndDate != older.EndDate {
		t.Errorf("Unexpected cycle round trip: %+v", cycles[1])
	}

	if err := s.DeleteCycle("c1"); err != nil {
		t.Fatalf("DeleteCycle failed: %v", err)
	}
	cycles, _ = s.GetAllCycles()
	if len(cycles) != 1 {
		t.Errorf("Expected 1 cycle after delete, got %d", len(cycles))
	}
}

func TestStorage_AddCycleRejectsReversed(t *testing.T) {
	s := mustStorage(t)

	err := s.AddCycle(&models.CycleInterval{
		StartDate: civil.MustParse("2025-02-10"),
		EndDate:   civil.MustParse("2025-02-05"),
	})
	if !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition, got %v", err)
	}
}

func TestStorage_Notifications(t *testing.T) {
	s := mustStorage(t)
	now := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)

	sent, err := s.WasNotified("reminder:a:2025-06-14")
	if err != nil {
		t.Fatalf("WasNotified failed: %v", err)
	}
	if sent {
		t.Error("Expected no notification recorded yet")
	}

	if err := s.RecordNotification("reminder:a:2025-06-14", now.Add(-100*24*time.Hour)); err != nil {
		t.Fatalf("RecordNotification failed: %v", err)
	}
	if err := s.RecordNotification("cycle:2025-04-01", now); err != nil {
		t.Fatalf("RecordNotification failed: %v", err)
	}

	sent, _ = s.WasNotified("reminder:a:2025-06-14")
	if !sent {
		t.Error("Expected notification to be recorded")
	}

	removed, err := s.PruneNotifications(now.Add(-30 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneNotifications failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 pruned entry, got %d", removed)
	}
	if sent, _ := s.WasNotified("reminder:a:2025-06-14"); sent {
		t.Error("Expected old entry to be pruned")
	}
	if sent, _ := s.WasNotified("cycle:2025-04-01"); !sent {
		t.Error("Expected recent entry to survive pruning")
	}
}

func TestStorage_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sweetsync.db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.AddEvent(&models.RecurringEvent{ID: "p", EventDate: civil.MustParse("2020-02-29"), IsRecurring: true}); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	event, err := s.GetEvent("p")
	if err != nil {
		t.Fatalf("GetEvent after reopen failed: %v", err)
	}
	if event.EventDate.String() != "2020-02-29" {
		t.Errorf("Unexpected date after reopen: %s", event.EventDate)
	}
}

func TestStorage_ImportSeed(t *testing.T) {
	s := mustStorage(t)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `
events:
  - title: Anniversary
    type: relationship
    eventDate: 2019-06-14
    isRecurring: true
    reminderDays: 7
  - id: trip
    title: Trip
    eventDate: "2025-08-01"
    monthlyReminder: true
    monthlyReminderDay: 5
  - title: Broken
    eventDate: 2025-01-01
    reminderDays: -1
cycles:
  - startDate: 2025-01-01
    endDate: 2025-01-05
    symptoms: [cramps]
    moods: [calm, tired]
  - startDate: 2025-02-10
    endDate: 2025-02-01
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := s.ImportSeed(path)
	if err == nil {
		t.Fatal("Expected error for invalid seed records")
	}
	if !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition in joined error, got %v", err)
	}
	if result.Events != 2 || result.Cycles != 1 {
		t.Errorf("Expected 2 events and 1 cycle, got %+v", result)
	}

	// Re-importing keeps the same generated IDs.
	if _, err := s.ImportSeed(path); err == nil {
		t.Fatal("Expected error on re-import")
	}
	events, _ := s.GetAllEvents()
	if len(events) != 2 {
		t.Errorf("Expected re-import to upsert, got %d events", len(events))
	}
	cycles, _ := s.GetAllCycles()
	if len(cycles) != 1 || len(cycles[0].Moods) != 2 {
		t.Errorf("Unexpected cycles after import: %+v", cycles)
	}

	trip, err := s.GetEvent("trip")
	if err != nil {
		t.Fatalf("Expected seeded ID to be kept: %v", err)
	}
	if !trip.MonthlyReminder || trip.MonthlyReminderDay != 5 {
		t.Errorf("Monthly reminder settings not imported: %+v", trip)
	}
}

func TestStorage_ImportSeedMissingFile(t *testing.T) {
	s := mustStorage(t)
	if _, err := s.ImportSeed(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("Expected error for missing seed file")
	}
}
