// Package models defines the records consumed and produced by the date
// engines: yearly recurring events with reminders, and start/end cycle
// intervals with their aggregate statistics.
//
// Input records are owned by the caller and never mutated by the engines.
// Every input type has a Validate method that reports an invalid calendar date
// as *civil.InvalidDateError and any other broken precondition as
// *PreconditionError.
package models

import (
	"fmt"

	"github.com/rewired-gh/sweetsync/internal/civil"
)

// DefaultEventType is used when an event carries no type label.
const DefaultEventType = "other"

// MaxReminderDays caps the reminder offset at roughly ten years. It keeps
// reminder dates well inside the representable calendar and bounds the
// work needed to find a reminder's occurrence.
const MaxReminderDays = 3660

// RecurringEvent is a dated event that may repeat every year on the same
// month and day, optionally with a reminder a fixed number of days ahead.
type RecurringEvent struct {
	ID           string     `json:"id" yaml:"id"`
	Title        string     `json:"title" yaml:"title"`
	Type         string     `json:"type,omitempty" yaml:"type"`
	EventDate    civil.Date `json:"eventDate" yaml:"eventDate"`
	IsRecurring  bool       `json:"isRecurring" yaml:"isRecurring"`
	ReminderDays int        `json:"reminderDays" yaml:"reminderDays"` // 0 means no reminder

	// MonthlyReminder asks for a reminder every month on MonthlyReminderDay,
	// or on the event's own day of month when that is 0.
	MonthlyReminder    bool `json:"monthlyReminder" yaml:"monthlyReminder"`
	MonthlyReminderDay int  `json:"monthlyReminderDay,omitempty" yaml:"monthlyReminderDay"`
}

// Validate checks the event date and reminder offset.
func (e *RecurringEvent) Validate() error {
	if !e.EventDate.IsValid() {
		return &civil.InvalidDateError{Field: "eventDate", Value: e.EventDate.String(), Reason: "no such calendar day"}
	}
	if e.ReminderDays < 0 {
		return &PreconditionError{Field: "reminderDays", Reason: "must not be negative"}
	}
	if e.ReminderDays > MaxReminderDays {
		return &PreconditionError{Field: "reminderDays", Reason: fmt.Sprintf("must not exceed %d", MaxReminderDays)}
	}
	if e.MonthlyReminderDay < 0 || e.MonthlyReminderDay > 31 {
		return &PreconditionError{Field: "monthlyReminderDay", Reason: "must be between 0 and 31"}
	}
	return nil
}

// HasReminder reports whether the event asks for a reminder at all.
func (e *RecurringEvent) HasReminder() bool {
	return e.ReminderDays > 0
}

// OccurrenceResult is the resolved position of an event relative to a given
// day.
//
// ReminderOccurrence is the occurrence the reminder counts back from. It is
// NextOccurrence except when that occurrence's reminder window has already
// closed; the reminder then moves to a later year while DaysUntilEvent keeps
// describing NextOccurrence.
type OccurrenceResult struct {
	NextOccurrence     civil.Date `json:"eventDate"`
	ReminderOccurrence civil.Date `json:"reminderOccurrence"`
	ReminderDate       civil.Date `json:"reminderDate"`
	DaysUntilEvent     int        `json:"daysUntilEvent"`
	DaysUntilReminder  int        `json:"daysUntilReminder"`
	HasReminder        bool       `json:"hasReminder"`
}

// Reminder is an OccurrenceResult tagged with the event it belongs to, as
// returned by list operations.
type Reminder struct {
	EventID     string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type,omitempty"`
	IsRecurring bool   `json:"isRecurring"`
	OccurrenceResult
}

// EventSummary aggregates a set of events relative to a given day.
type EventSummary struct {
	TotalEvents    int            `json:"totalEvents"`
	UpcomingEvents int            `json:"upcomingEvents"`
	EventsByType   map[string]int `json:"eventsByType"`
}

// MonthlyReminder is this month's reminder for an event that repeats its
// reminder every month.
type MonthlyReminder struct {
	EventID           string     `json:"id"`
	Title             string     `json:"title"`
	Type              string     `json:"type,omitempty"`
	OriginalDate      civil.Date `json:"originalDate"`
	ReminderDate      civil.Date `json:"reminderDate"`
	DaysUntilReminder int        `json:"daysUntilReminder"`
}

// EventSchedule lists the next occurrences of one event.
type EventSchedule struct {
	EventID     string       `json:"id"`
	Title       string       `json:"title"`
	Occurrences []civil.Date `json:"occurrences"`
}
