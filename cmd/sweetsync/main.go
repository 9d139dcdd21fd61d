package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/sweetsync/internal/calfeed"
	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/config"
	"github.com/rewired-gh/sweetsync/internal/logger"
	"github.com/rewired-gh/sweetsync/internal/models"
	"github.com/rewired-gh/sweetsync/internal/monitor"
	"github.com/rewired-gh/sweetsync/internal/storage"
	"github.com/rewired-gh/sweetsync/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	runOnce    = flag.Bool("once", false, "Run a single sweep and exit")
	report     = flag.Bool("report", false, "Print upcoming reminders and cycle stats as JSON and exit")
	seedPath   = flag.String("seed", "", "YAML file of events and cycles to import before starting")

	showEvent   = flag.String("show-event", "", "Print one event with its next occurrences as JSON and exit")
	deleteEvent = flag.String("delete-event", "", "Delete the event with this ID and exit")
	deleteCycle = flag.String("delete-cycle", "", "Delete the cycle with this ID and exit")
)

// notificationRetention bounds how long the sent-notification ledger is kept.
// Keys embed the occurrence date, so anything older than a year can never
// match again.
const notificationRetention = 400 * 24 * time.Hour

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Logging.File != "" {
		logger.SetOutputFile(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	}
	defer logger.Close()
	logger.Info("Configuration loaded from %s", *configPath)

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid timezone: %v", err)
	}

	// Initialize storage
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	// Import seed data from config, then from the flag
	for _, path := range []string{cfg.Storage.SeedPath, *seedPath} {
		if path == "" {
			continue
		}
		result, err := store.ImportSeed(path)
		if err != nil {
			logger.Warn("Seed import from %s had errors: %v", path, err)
		}
		logger.Info("Imported %d events and %d cycles from %s", result.Events, result.Cycles, path)
	}

	mon := monitor.New(store)
	opts := monitor.Options{
		LookaheadDays:         cfg.Reminders.LookaheadDays,
		CycleNotifyDaysBefore: cfg.Cycles.NotifyDaysBefore,
		ScheduleOccurrences:   cfg.Reminders.ScheduleOccurrences,
	}

	if *showEvent != "" || *deleteEvent != "" || *deleteCycle != "" {
		cmd := adminCommand{ShowEvent: *showEvent, DeleteEvent: *deleteEvent, DeleteCycle: *deleteCycle}
		if err := cmd.run(os.Stdout, store, civil.Today(time.Now(), loc), cfg.Reminders.ScheduleOccurrences); err != nil {
			logger.Fatal("%v", err)
		}
		return
	}

	if *report {
		if err := writeReport(os.Stdout, mon, civil.Today(time.Now(), loc), opts); err != nil {
			logger.Fatal("Failed to build report: %v", err)
		}
		return
	}

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	consecutiveFailures := 0
	handleSweepResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Sweep failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	sweep := func() {
		handleSweepResult(runSweep(mon, telegramClient, cfg, opts, time.Now().In(loc)))
	}

	if *runOnce {
		sweep()
		if consecutiveFailures > 0 {
			os.Exit(1)
		}
		return
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	// Start Telegram command listener
	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, func() (*monitor.SweepResult, error) {
			return mon.Sweep(civil.Today(time.Now(), loc), opts)
		})
	}

	scheduler := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := scheduler.AddFunc(cfg.Schedule.Cron, sweep); err != nil {
		logger.Fatal("Invalid schedule %q: %v", cfg.Schedule.Cron, err)
	}

	logger.Info("Starting sweep service (schedule: %q, timezone: %s, lookahead: %d days, cycle notice: %d days)",
		cfg.Schedule.Cron, loc, cfg.Reminders.LookaheadDays, cfg.Cycles.NotifyDaysBefore)

	// Run initial sweep immediately
	logger.Debug("Running initial sweep")
	sweep()

	scheduler.Start()
	<-ctx.Done()

	// Wait for a running sweep to finish before storage is closed
	<-scheduler.Stop().Done()
	logger.Info("Service stopped")
}

func runSweep(mon *monitor.Monitor, telegramClient *telegram.Client, cfg *config.Config, opts monitor.Options, now time.Time) error {
	startTime := time.Now()
	today := civil.FromTime(now)
	logger.Info("Starting sweep for %s", today)

	result, err := mon.Sweep(today, opts)
	if err != nil {
		return fmt.Errorf("failed to sweep: %w", err)
	}
	for _, sweepErr := range result.Errors {
		logger.Warn("Skipping %s %s: %v", sweepErr.Kind, sweepErr.RecordID, sweepErr.Err)
	}

	logger.Info("Sweep found %d upcoming reminders (%d due), %d/%d events upcoming",
		len(result.Reminders), len(result.Due), result.Summary.UpcomingEvents, result.Summary.TotalEvents)

	if cfg.Reminders.Enabled {
		notifyReminders(mon, telegramClient, result.Due, now)
		notifyMonthly(mon, telegramClient, result.MonthlyDue, now)
	}

	if cfg.Cycles.Enabled && result.CycleDue {
		notifyCycle(mon, telegramClient, result, now)
	}

	if cfg.Feed.Enabled {
		var cycle *models.CycleStats
		if cfg.Cycles.Enabled {
			cycle = &result.CycleStats
		}
		cal, buildErr := calfeed.Build(cfg.Feed.Name, result.Events, cycle, now)
		if buildErr != nil {
			logger.Warn("Calendar feed left out invalid events: %v", buildErr)
		}
		if err := calfeed.WriteFile(cfg.Feed.Path, cal); err != nil {
			return fmt.Errorf("failed to write calendar feed: %w", err)
		}
		logger.Debug("Calendar feed written to %s", cfg.Feed.Path)
	}

	if removed, err := mon.PruneNotified(now, notificationRetention); err != nil {
		logger.Warn("Failed to prune notification ledger: %v", err)
	} else if removed > 0 {
		logger.Debug("Pruned %d old notification entries", removed)
	}

	logger.Info("Sweep completed in %v", time.Since(startTime))
	return nil
}

func notifyReminders(mon *monitor.Monitor, telegramClient *telegram.Client, due []models.Reminder, now time.Time) {
	pending, err := mon.FilterAlreadySent(due)
	if err != nil {
		logger.Error("Failed to check notification ledger: %v", err)
		return
	}
	if len(pending) == 0 {
		logger.Debug("No new reminders to send")
		return
	}

	if telegramClient == nil {
		for _, r := range pending {
			logger.Info("Reminder due: %s on %s (%d days)", r.Title, r.NextOccurrence, r.DaysUntilEvent)
		}
		return
	}

	if err := telegramClient.SendReminders(pending); err != nil {
		logger.Error("Failed to send Telegram reminders: %v", err)
		return
	}
	logger.Info("Sent %d reminders to Telegram", len(pending))
	if err := mon.RecordNotified(pending, now); err != nil {
		logger.Warn("Failed to record sent reminders: %v", err)
	}
}

func notifyMonthly(mon *monitor.Monitor, telegramClient *telegram.Client, due []models.MonthlyReminder, now time.Time) {
	pending, err := mon.FilterMonthlyAlreadySent(due)
	if err != nil {
		logger.Error("Failed to check notification ledger: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	if telegramClient == nil {
		for _, r := range pending {
			logger.Info("Monthly reminder due: %s on %s", r.Title, r.ReminderDate)
		}
		return
	}

	if err := telegramClient.SendMonthlyReminders(pending); err != nil {
		logger.Error("Failed to send Telegram monthly reminders: %v", err)
		return
	}
	logger.Info("Sent %d monthly reminders to Telegram", len(pending))
	if err := mon.RecordMonthlyNotified(pending, now); err != nil {
		logger.Warn("Failed to record sent monthly reminders: %v", err)
	}
}

func notifyCycle(mon *monitor.Monitor, telegramClient *telegram.Client, result *monitor.SweepResult, now time.Time) {
	predicted := result.CycleStats.NextPredictedDate
	sent, err := mon.CycleAlreadySent(predicted)
	if err != nil {
		logger.Error("Failed to check notification ledger: %v", err)
		return
	}
	if sent {
		return
	}

	if telegramClient == nil {
		logger.Info("Cycle predicted to start %s (confidence %d%%)", predicted, result.CycleStats.PredictionConfidence)
		return
	}

	if err := telegramClient.SendCyclePrediction(result.CycleStats, result.Today); err != nil {
		logger.Error("Failed to send Telegram cycle notice: %v", err)
		return
	}
	logger.Info("Sent cycle notice for %s", predicted)
	if err := mon.RecordCycleNotified(predicted, now); err != nil {
		logger.Warn("Failed to record cycle notice: %v", err)
	}
}

func writeReport(w io.Writer, mon *monitor.Monitor, today civil.Date, opts monitor.Options) error {
	result, err := mon.Sweep(today, opts)
	if err != nil {
		return err
	}
	for _, sweepErr := range result.Errors {
		logger.Warn("Skipping %s %s: %v", sweepErr.Kind, sweepErr.RecordID, sweepErr.Err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// cronLogger routes scheduler messages through the application logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
