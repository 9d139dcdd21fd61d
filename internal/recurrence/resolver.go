// Package recurrence resolves where yearly events fall relative to a given
// day and derives reminder dates from them.
//
// Every function here is pure: "today" is always passed in, nothing reads the
// wall clock, and equal inputs always produce equal outputs. Dates are civil
// dates throughout.
//
// Leap-day policy: an event dated February 29 occurs on February 28 in years
// that have no February 29, and returns to February 29 in leap years.
package recurrence

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/models"
)

// Resolve computes the next occurrence of event on or after today and the
// reminder date derived from it.
//
// A non-recurring event resolves to its own date, even when that date has
// passed. For a recurring event whose reminder window for the next occurrence
// has already closed, the reminder is taken from the first later occurrence
// whose reminder date is today or later; DaysUntilEvent still refers to the
// nearer occurrence.
func Resolve(event models.RecurringEvent, today civil.Date) (models.OccurrenceResult, error) {
	if err := event.Validate(); err != nil {
		return models.OccurrenceResult{}, err
	}
	if !today.IsValid() {
		return models.OccurrenceResult{}, &civil.InvalidDateError{Field: "today", Value: today.String(), Reason: "no such calendar day"}
	}

	next := event.EventDate
	if event.IsRecurring {
		next = nextYearly(event.EventDate, today)
	}

	result := models.OccurrenceResult{
		NextOccurrence:     next,
		ReminderOccurrence: next,
		ReminderDate:       next.AddDays(-event.ReminderDays),
		DaysUntilEvent:     next.DaysSince(today),
		HasReminder:        event.HasReminder(),
	}
	result.DaysUntilReminder = result.ReminderDate.DaysSince(today)

	if event.IsRecurring && result.DaysUntilReminder < 0 {
		// Each later year moves the reminder at most 366 days forward, so
		// no year before this one can close the gap. The loop below runs at
		// most a couple of times.
		year := next.Year + 1 + (-result.DaysUntilReminder-1)/366
		for ; result.DaysUntilReminder < 0; year++ {
			result.ReminderOccurrence = occurrenceIn(event.EventDate, year)
			result.ReminderDate = result.ReminderOccurrence.AddDays(-event.ReminderDays)
			result.DaysUntilReminder = result.ReminderDate.DaysSince(today)
		}
	}

	return result, nil
}

// nextYearly returns the first occurrence of eventDate's month and day that is
// not before today, starting from today's year.
func nextYearly(eventDate, today civil.Date) civil.Date {
	year := today.Year
	candidate := occurrenceIn(eventDate, year)
	for candidate.Before(today) {
		year++
		candidate = occurrenceIn(eventDate, year)
	}
	return candidate
}

// occurrenceIn places eventDate's month and day in year. Always derived from
// the event's own date so that February 29 comes back in leap years.
func occurrenceIn(eventDate civil.Date, year int) civil.Date {
	return eventDate.AddYears(year - eventDate.Year)
}

// UpcomingReminders resolves every event that asks for a reminder and returns
// those whose reminder falls today or later, soonest first. Events with equal
// distance keep their input order.
//
// Events that fail validation are skipped; their errors are joined into the
// returned error while the remaining reminders are still returned.
func UpcomingReminders(events []models.RecurringEvent, today civil.Date) ([]models.Reminder, error) {
	reminders := make([]models.Reminder, 0, len(events))
	var errs []error

	for _, event := range events {
		if !event.HasReminder() {
			continue
		}
		result, err := Resolve(event, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", eventLabel(event), err))
			continue
		}
		if result.DaysUntilReminder < 0 {
			continue
		}
		reminders = append(reminders, models.Reminder{
			EventID:          event.ID,
			Title:            event.Title,
			Type:             event.Type,
			IsRecurring:      event.IsRecurring,
			OccurrenceResult: result,
		})
	}

	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].DaysUntilReminder < reminders[j].DaysUntilReminder
	})

	return reminders, errors.Join(errs...)
}

// Summarize counts events in total, by type, and those whose next occurrence
// is today or later. Invalid events are counted in the total but not
// elsewhere; their errors are joined into the returned error.
func Summarize(events []models.RecurringEvent, today civil.Date) (models.EventSummary, error) {
	summary := models.EventSummary{
		TotalEvents:  len(events),
		EventsByType: make(map[string]int),
	}
	var errs []error

	for _, event := range events {
		result, err := Resolve(event, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", eventLabel(event), err))
			continue
		}

		eventType := event.Type
		if eventType == "" {
			eventType = models.DefaultEventType
		}
		summary.EventsByType[eventType]++

		if result.DaysUntilEvent >= 0 {
			summary.UpcomingEvents++
		}
	}

	return summary, errors.Join(errs...)
}

// MonthlyReminderDate returns the day in today's month on which a monthly
// reminder for an event dated eventDate falls. A reminderDay of 0 uses the
// event's own day of month. Days past the end of the month are clamped to
// its last day.
func MonthlyReminderDate(eventDate civil.Date, reminderDay int, today civil.Date) (civil.Date, error) {
	if !eventDate.IsValid() {
		return civil.Date{}, &civil.InvalidDateError{Field: "eventDate", Value: eventDate.String(), Reason: "no such calendar day"}
	}
	if !today.IsValid() {
		return civil.Date{}, &civil.InvalidDateError{Field: "today", Value: today.String(), Reason: "no such calendar day"}
	}
	if reminderDay < 0 || reminderDay > 31 {
		return civil.Date{}, &models.PreconditionError{Field: "reminderDay", Reason: "must be between 0 and 31"}
	}

	day := reminderDay
	if day == 0 {
		day = eventDate.Day
	}
	if last := civil.DaysIn(today.Year, today.Month); day > last {
		day = last
	}
	return civil.Date{Year: today.Year, Month: today.Month, Day: day}, nil
}

// MonthlyReminders returns this month's reminder for every event that asks
// for monthly reminders, earliest first. Reminders earlier in the month are
// kept with a negative DaysUntilReminder. Invalid events are skipped and
// their errors joined into the returned error.
func MonthlyReminders(events []models.RecurringEvent, today civil.Date) ([]models.MonthlyReminder, error) {
	reminders := make([]models.MonthlyReminder, 0)
	var errs []error

	for _, event := range events {
		if !event.MonthlyReminder {
			continue
		}
		if err := event.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", eventLabel(event), err))
			continue
		}
		date, err := MonthlyReminderDate(event.EventDate, event.MonthlyReminderDay, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", eventLabel(event), err))
			continue
		}
		reminders = append(reminders, models.MonthlyReminder{
			EventID:           event.ID,
			Title:             event.Title,
			Type:              event.Type,
			OriginalDate:      event.EventDate,
			ReminderDate:      date,
			DaysUntilReminder: date.DaysSince(today),
		})
	}

	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].DaysUntilReminder < reminders[j].DaysUntilReminder
	})

	return reminders, errors.Join(errs...)
}

func eventLabel(event models.RecurringEvent) string {
	if event.ID != "" {
		return event.ID
	}
	return fmt.Sprintf("%q", event.Title)
}
