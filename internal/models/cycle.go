package models

import (
	"github.com/rewired-gh/sweetsync/internal/civil"
)

// CycleInterval is one recorded cycle: an inclusive start/end date range with
// two independent sets of category tags.
type CycleInterval struct {
	ID        string     `json:"id" yaml:"id"`
	StartDate civil.Date `json:"startDate" yaml:"startDate"`
	EndDate   civil.Date `json:"endDate" yaml:"endDate"`
	Symptoms  []string   `json:"symptoms" yaml:"symptoms"`
	Moods     []string   `json:"moods" yaml:"moods"`
	Notes     string     `json:"notes,omitempty" yaml:"notes"`
}

// Validate checks both dates and that the interval does not end before it
// starts.
func (c *CycleInterval) Validate() error {
	if !c.StartDate.IsValid() {
		return &civil.InvalidDateError{Field: "startDate", Value: c.StartDate.String(), Reason: "no such calendar day"}
	}
	if !c.EndDate.IsValid() {
		return &civil.InvalidDateError{Field: "endDate", Value: c.EndDate.String(), Reason: "no such calendar day"}
	}
	if c.EndDate.Before(c.StartDate) {
		return &PreconditionError{Field: "endDate", Reason: "must not be before startDate " + c.StartDate.String()}
	}
	return nil
}

// DurationDays returns the inclusive number of days the interval spans.
func (c *CycleInterval) DurationDays() int {
	return c.EndDate.DaysSince(c.StartDate) + 1
}

// CycleStats aggregates a cycle history.
type CycleStats struct {
	AverageCycleLength   int        `json:"averageCycleLength"`
	AveragePeriodLength  float64    `json:"averagePeriodLength"`
	NextPredictedDate    civil.Date `json:"nextPredictedDate"`
	CommonSymptoms       []string   `json:"commonSymptoms"`
	CommonMoods          []string   `json:"commonMoods"`
	TotalCycles          int        `json:"totalCycles"`
	PredictionConfidence int        `json:"predictionConfidence"` // 0-100
}
