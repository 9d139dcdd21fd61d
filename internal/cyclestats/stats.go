// Package cyclestats turns a history of cycle intervals into aggregate
// statistics and a prediction of the next start date.
//
// Intervals are ordered most recent first. The gap between two neighbouring
// start dates is one cycle-length sample:
//
//	averageCycleLength  = round(mean(gaps))            (28 with no gaps)
//	nextPredictedDate   = latest start + averageCycleLength
//	confidence          = clamp(100 - σ(gaps)/7 × 100, 0, 100)
//
// σ is the population standard deviation of the gaps. Seven days is treated
// as the largest spread that still carries any predictive value.
package cyclestats

import (
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/models"
)

const (
	// DefaultCycleLength is reported when the history has fewer than two
	// intervals and no gap can be measured.
	DefaultCycleLength = 28

	// TopTagLimit caps each common-tag list.
	TopTagLimit = 5

	// maxMeaningfulSpread is the gap standard deviation, in days, at which
	// confidence reaches zero.
	maxMeaningfulSpread = 7.0
)

// Compute aggregates intervals relative to today. The input slice is not
// modified or retained.
//
// An empty history yields zero statistics with the prediction set to today.
// Every interval must be valid: an impossible date is reported as
// *civil.InvalidDateError and an interval ending before it starts as
// *models.PreconditionError.
func Compute(intervals []models.CycleInterval, today civil.Date) (models.CycleStats, error) {
	if !today.IsValid() {
		return models.CycleStats{}, &civil.InvalidDateError{Field: "today", Value: today.String(), Reason: "no such calendar day"}
	}
	for i := range intervals {
		if err := intervals[i].Validate(); err != nil {
			return models.CycleStats{}, fmt.Errorf("interval %d: %w", i, err)
		}
	}

	if len(intervals) == 0 {
		return models.CycleStats{
			NextPredictedDate: today,
			CommonSymptoms:    []string{},
			CommonMoods:       []string{},
		}, nil
	}

	sorted := SortRecentFirst(intervals)
	gaps := Gaps(sorted)

	averageCycleLength := DefaultCycleLength
	if len(gaps) > 0 {
		averageCycleLength = int(math.Round(mean(gaps)))
	}

	var totalDuration int
	for i := range sorted {
		totalDuration += sorted[i].DurationDays()
	}
	averagePeriodLength := math.Round(float64(totalDuration)/float64(len(sorted))*100) / 100

	return models.CycleStats{
		AverageCycleLength:   averageCycleLength,
		AveragePeriodLength:  averagePeriodLength,
		NextPredictedDate:    sorted[0].StartDate.AddDays(averageCycleLength),
		CommonSymptoms:       TopTags(sorted, func(c models.CycleInterval) []string { return c.Symptoms }, TopTagLimit),
		CommonMoods:          TopTags(sorted, func(c models.CycleInterval) []string { return c.Moods }, TopTagLimit),
		TotalCycles:          len(sorted),
		PredictionConfidence: PredictionConfidence(gaps),
	}, nil
}

// SortRecentFirst returns a copy of intervals ordered by start date, latest
// first. Intervals sharing a start date keep their relative order.
func SortRecentFirst(intervals []models.CycleInterval) []models.CycleInterval {
	sorted := make([]models.CycleInterval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartDate.After(sorted[j].StartDate)
	})
	return sorted
}

// Gaps returns the absolute day distance between each pair of neighbouring
// start dates in sorted.
func Gaps(sorted []models.CycleInterval) []int {
	if len(sorted) < 2 {
		return []int{}
	}
	gaps := make([]int, len(sorted)-1)
	for i := 0; i < len(sorted)-1; i++ {
		gap := sorted[i].StartDate.DaysSince(sorted[i+1].StartDate)
		if gap < 0 {
			gap = -gap
		}
		gaps[i] = gap
	}
	return gaps
}

// PredictionConfidence maps the spread of gaps onto 0-100. Zero spread is
// 100; a population standard deviation of a week or more is 0. Fewer than two
// samples carry no spread information and score 0.
func PredictionConfidence(gaps []int) int {
	if len(gaps) < 2 {
		return 0
	}

	m := mean(gaps)
	var variance float64
	for _, g := range gaps {
		diff := float64(g) - m
		variance += diff * diff
	}
	variance /= float64(len(gaps))
	sigma := math.Sqrt(variance)

	confidence := 100 - sigma/maxMeaningfulSpread*100
	return int(math.Round(math.Max(0, math.Min(100, confidence))))
}

// TopTags counts the tags pick returns for each interval and returns the
// limit most frequent, most frequent first. Equal counts keep the order in
// which the tags were first seen. Empty tags are ignored.
func TopTags(sorted []models.CycleInterval, pick func(models.CycleInterval) []string, limit int) []string {
	counts := make(map[string]int)
	var order []string

	for _, interval := range sorted {
		for _, tag := range pick(interval) {
			if tag == "" {
				continue
			}
			if _, seen := counts[tag]; !seen {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if limit < 0 {
		limit = 0
	}
	if len(order) > limit {
		order = order[:limit]
	}
	if order == nil {
		return []string{}
	}
	return order
}

func mean(values []int) float64 {
	var sum int
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
