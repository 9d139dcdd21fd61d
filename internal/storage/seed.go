package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/sweetsync/internal/models"
)

// seedNamespace scopes the deterministic IDs given to seed records that do
// not carry one, so re-importing the same file updates rows in place.
var seedNamespace = uuid.MustParse("6f1c7a2e-93a4-4d0b-8a55-0f3e1e2b9c41")

// SeedFile is the on-disk layout accepted by ImportSeed.
//
//	events:
//	  - title: Anniversary
//	    type: relationship
//	    eventDate: 2019-06-14
//	    isRecurring: true
//	    reminderDays: 7
//	    monthlyReminder: true
//	    monthlyReminderDay: 14
//	cycles:
//	  - startDate: 2025-01-01
//	    endDate: 2025-01-05
//	    symptoms: [cramps]
type SeedFile struct {
	Events []models.RecurringEvent `yaml:"events"`
	Cycles []models.CycleInterval  `yaml:"cycles"`
}

// SeedResult counts what ImportSeed stored.
type SeedResult struct {
	Events int
	Cycles int
}

// ImportSeed reads a YAML seed file and upserts its records. Invalid records
// are skipped and reported together in the returned error; valid records are
// still stored.
func (s *Storage) ImportSeed(path string) (SeedResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedResult{}, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return SeedResult{}, fmt.Errorf("failed to parse seed file: %w", err)
	}

	var (
		result SeedResult
		errs   []error
	)

	for i := range seed.Events {
		event := &seed.Events[i]
		if event.ID == "" {
			event.ID = uuid.NewSHA1(seedNamespace, []byte("event:"+event.Title+":"+event.EventDate.String())).String()
		}
		if err := s.AddEvent(event); err != nil {
			errs = append(errs, fmt.Errorf("seed event %d (%s): %w", i, event.Title, err))
			continue
		}
		result.Events++
	}

	for i := range seed.Cycles {
		cycle := &seed.Cycles[i]
		if cycle.ID == "" {
			cycle.ID = uuid.NewSHA1(seedNamespace, []byte("cycle:"+cycle.StartDate.String())).String()
		}
		if err := s.AddCycle(cycle); err != nil {
			errs = append(errs, fmt.Errorf("seed cycle %d (%s): %w", i, cycle.StartDate, err))
			continue
		}
		result.Cycles++
	}

	return result, errors.Join(errs...)
}
