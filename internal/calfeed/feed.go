// Package calfeed exports events as an iCalendar (RFC 5545) feed that
// calendar apps can subscribe to.
//
// Every event becomes an all-day VEVENT. Recurring events carry the same
// yearly RRULE the resolver follows, so February 29 events land on February
// 28 in common years in the subscriber's calendar too. Events with a reminder
// get a DISPLAY VALARM that fires the configured number of days before.
package calfeed

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/models"
	"github.com/rewired-gh/sweetsync/internal/recurrence"
)

const productID = "-//sweetsync//Date Engine//EN"

// uidNamespace keeps UIDs stable across exports so subscribers update events
// in place instead of duplicating them.
var uidNamespace = uuid.MustParse("b3f9a0d4-6c1e-4e8a-9d57-2a4c8e0f1b63")

// Build assembles a calendar named name. Invalid events are left out and
// reported together in the returned error; the calendar still holds every
// valid event. When cycle is non-nil and has at least one recorded cycle, the
// predicted next start is added as its own all-day event.
func Build(name string, events []models.RecurringEvent, cycle *models.CycleStats, now time.Time) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	if name != "" {
		cal.Props.SetText(ical.PropName, name)
	}

	var errs []error
	for i := range events {
		event, err := eventComponent(events[i], now)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", events[i].ID, err))
			continue
		}
		cal.Children = append(cal.Children, event)
	}

	if cycle != nil && cycle.TotalCycles > 0 {
		cal.Children = append(cal.Children, cycleComponent(*cycle, now))
	}

	return cal, errors.Join(errs...)
}

func eventComponent(e models.RecurringEvent, now time.Time) (*ical.Component, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uuid.NewSHA1(uidNamespace, []byte("event:"+e.ID)).String())
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	setAllDay(event.Props, e.EventDate)

	summary := e.Title
	if summary == "" {
		summary = e.ID
	}
	event.Props.SetText(ical.PropSummary, summary)

	eventType := e.Type
	if eventType == "" {
		eventType = models.DefaultEventType
	}
	event.Props.SetText(ical.PropCategories, eventType)

	if e.IsRecurring {
		rule := recurrence.YearlyRule(e.EventDate)
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = rule.RRuleString()
		event.Props.Set(prop)
	}

	if e.HasReminder() {
		event.Children = append(event.Children, alarmComponent(summary, e.ReminderDays))
	}

	return event.Component, nil
}

func cycleComponent(stats models.CycleStats, now time.Time) *ical.Component {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uuid.NewSHA1(uidNamespace, []byte("cycle:"+stats.NextPredictedDate.String())).String())
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	setAllDay(event.Props, stats.NextPredictedDate)
	event.Props.SetText(ical.PropSummary, "Predicted cycle start")
	event.Props.SetText(ical.PropCategories, "cycle")
	event.Props.SetText(ical.PropDescription, fmt.Sprintf(
		"Average cycle %d days, confidence %d%%, based on %d cycles.",
		stats.AverageCycleLength, stats.PredictionConfidence, stats.TotalCycles))
	return event.Component
}

func alarmComponent(summary string, days int) *ical.Component {
	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	alarm.Props.SetText(ical.PropDescription, "Reminder: "+summary)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = fmt.Sprintf("-P%dD", days)
	alarm.Props.Set(trigger)

	return alarm
}

// setAllDay sets DTSTART to d and the exclusive DTEND to the following day,
// both as VALUE=DATE.
func setAllDay(props ical.Props, d civil.Date) {
	props.SetDate(ical.PropDateTimeStart, d.Time(time.UTC))
	props.SetDate(ical.PropDateTimeEnd, d.AddDays(1).Time(time.UTC))
}

// Encode renders cal as iCalendar text.
func Encode(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile encodes cal and atomically replaces the file at path.
func WriteFile(path string, cal *ical.Calendar) error {
	data, err := Encode(cal)
	if err != nil {
		return err
	}

	// Create output directory if needed
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create feed directory: %w", err)
	}

	// Write to temporary file first (atomic write)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write feed: %w", err)
	}

	// Rename temp file to actual file
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on rename failure
		return fmt.Errorf("failed to rename feed: %w", err)
	}

	return nil
}
