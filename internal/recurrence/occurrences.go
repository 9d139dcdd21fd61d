package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/models"
)

// YearlyRule returns the RFC 5545 rule equivalent to the resolver's yearly
// recurrence for eventDate. February 29 becomes BYMONTHDAY=-1 in February,
// which lands on the 29th in leap years and the 28th otherwise.
func YearlyRule(eventDate civil.Date) rrule.ROption {
	monthDay := eventDate.Day
	if eventDate.Month == time.February && eventDate.Day == 29 {
		monthDay = -1
	}
	return rrule.ROption{
		Freq:       rrule.YEARLY,
		Interval:   1,
		Bymonth:    []int{int(eventDate.Month)},
		Bymonthday: []int{monthDay},
	}
}

// Occurrences lists up to n occurrences of event on or after from, earliest
// first. A non-recurring event yields its date if it is not before from.
func Occurrences(event models.RecurringEvent, from civil.Date, n int) ([]civil.Date, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if !from.IsValid() {
		return nil, &civil.InvalidDateError{Field: "from", Value: from.String(), Reason: "no such calendar day"}
	}
	if n <= 0 {
		return []civil.Date{}, nil
	}

	if !event.IsRecurring {
		if event.EventDate.Before(from) {
			return []civil.Date{}, nil
		}
		return []civil.Date{event.EventDate}, nil
	}

	opt := YearlyRule(event.EventDate)
	opt.Dtstart = civil.Date{Year: from.Year, Month: time.January, Day: 1}.Time(time.UTC)
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build yearly rule for %s: %w", event.EventDate, err)
	}

	// One occurrence per year, plus one for the partial year before from.
	until := from.AddYears(n + 1).Time(time.UTC)
	times := rule.Between(from.Time(time.UTC), until, true)

	dates := make([]civil.Date, 0, n)
	for _, t := range times {
		if len(dates) == n {
			break
		}
		dates = append(dates, civil.FromTime(t.UTC()))
	}
	return dates, nil
}

// Schedules lists up to n upcoming occurrences for every event, in input
// order. Events with nothing left on or after from are omitted. Invalid events
// are skipped and their errors joined into the returned error.
func Schedules(events []models.RecurringEvent, from civil.Date, n int) ([]models.EventSchedule, error) {
	schedules := make([]models.EventSchedule, 0)
	if n <= 0 {
		return schedules, nil
	}
	var errs []error

	for _, event := range events {
		dates, err := Occurrences(event, from, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", eventLabel(event), err))
			continue
		}
		if len(dates) == 0 {
			continue
		}
		schedules = append(schedules, models.EventSchedule{
			EventID:     event.ID,
			Title:       event.Title,
			Occurrences: dates,
		})
	}

	return schedules, errors.Join(errs...)
}
