package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/logger"
	"github.com/rewired-gh/sweetsync/internal/models"
	"github.com/rewired-gh/sweetsync/internal/recurrence"
	"github.com/rewired-gh/sweetsync/internal/storage"
)

// adminCommand holds the one-shot record maintenance flags. Deletions run
// before ShowEvent.
type adminCommand struct {
	ShowEvent   string
	DeleteEvent string
	DeleteCycle string
}

// eventDetails is what -show-event prints
type eventDetails struct {
	Event       models.RecurringEvent   `json:"event"`
	Resolved    models.OccurrenceResult `json:"resolved"`
	Occurrences []civil.Date            `json:"occurrences"`
}

func (a adminCommand) run(w io.Writer, store *storage.Storage, today civil.Date, occurrences int) error {
	if a.DeleteEvent != "" {
		if err := store.DeleteEvent(a.DeleteEvent); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
		logger.Info("Deleted event %s", a.DeleteEvent)
	}

	if a.DeleteCycle != "" {
		if err := store.DeleteCycle(a.DeleteCycle); err != nil {
			return fmt.Errorf("failed to delete cycle: %w", err)
		}
		logger.Info("Deleted cycle %s", a.DeleteCycle)
	}

	if a.ShowEvent == "" {
		return nil
	}

	event, err := store.GetEvent(a.ShowEvent)
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}
	resolved, err := recurrence.Resolve(*event, today)
	if err != nil {
		return fmt.Errorf("failed to resolve event %s: %w", event.ID, err)
	}
	dates, err := recurrence.Occurrences(*event, today, occurrences)
	if err != nil {
		return fmt.Errorf("failed to list occurrences of event %s: %w", event.ID, err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(eventDetails{Event: *event, Resolved: resolved, Occurrences: dates})
}
