// Package telegram provides a client for sending notifications via Telegram Bot API.
// It formats due reminders and cycle predictions into human-readable messages and
// handles delivery with retry logic for reliability.
//
// The client also answers a few read-only chat commands (/upcoming, /schedule,
// /cycle) so the current state can be checked without waiting for the next
// sweep.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/sweetsync/internal/civil"
	"github.com/rewired-gh/sweetsync/internal/logger"
	"github.com/rewired-gh/sweetsync/internal/models"
	"github.com/rewired-gh/sweetsync/internal/monitor"
)

// botAPI is the subset of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client handles Telegram notifications
type Client struct {
	bot            botAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot botAPI, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendReminders sends one message listing the given reminders
func (c *Client) SendReminders(reminders []models.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	return c.send(formatReminders(reminders))
}

// SendMonthlyReminders sends one message listing this month's reminders
func (c *Client) SendMonthlyReminders(reminders []models.MonthlyReminder) error {
	if len(reminders) == 0 {
		return nil
	}
	return c.send(formatMonthlyReminders(reminders))
}

// SendCyclePrediction sends a notice about the next predicted cycle start
func (c *Client) SendCyclePrediction(stats models.CycleStats, today civil.Date) error {
	return c.send(formatCyclePrediction(stats, today))
}

// SendError notifies the chat that a sweep failed
func (c *Client) SendError(err error) error {
	return c.send(formatError(err))
}

// SendRecovery notifies the chat that sweeps succeed again after failures
func (c *Client) SendRecovery(failures int) error {
	return c.send(fmt.Sprintf("✅ *Recovered* after %d failed sweep\\(s\\)", failures))
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	// Send with retry
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// SweepFunc produces a fresh sweep for command replies
type SweepFunc func() (*monitor.SweepResult, error)

// ListenForCommands answers /upcoming, /schedule and /cycle from the configured chat
// until ctx is cancelled. It returns immediately; updates are handled in a
// background goroutine.
func (c *Client) ListenForCommands(ctx context.Context, sweep SweepFunc) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.Chat == nil || update.Message.Chat.ID != c.chatID {
					continue
				}
				if !update.Message.IsCommand() {
					continue
				}
				reply, ok := c.handleCommand(update.Message.Command(), sweep)
				if !ok {
					continue
				}
				if err := c.send(reply); err != nil {
					logger.Warn("Failed to answer /%s: %v", update.Message.Command(), err)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(command string, sweep SweepFunc) (string, bool) {
	switch command {
	case "upcoming", "schedule", "cycle":
	case "start", "help":
		return escapeMarkdownV2("Commands: /upcoming lists upcoming reminders, /schedule lists the next dates of every event, /cycle shows the cycle prediction."), true
	default:
		return "", false
	}

	result, err := sweep()
	if err != nil {
		return formatError(err), true
	}

	switch command {
	case "cycle":
		return formatCyclePrediction(result.CycleStats, result.Today), true
	case "schedule":
		return formatSchedule(result.Schedule), true
	}

	var parts []string
	if len(result.Reminders) > 0 {
		parts = append(parts, formatReminders(result.Reminders))
	}
	if monthly := upcomingMonthly(result.Monthly); len(monthly) > 0 {
		parts = append(parts, formatMonthlyReminders(monthly))
	}
	if len(parts) == 0 {
		return escapeMarkdownV2("No upcoming reminders."), true
	}
	return strings.Join(parts, "\n\n"), true
}

// upcomingMonthly drops monthly reminders that already passed this month
func upcomingMonthly(reminders []models.MonthlyReminder) []models.MonthlyReminder {
	upcoming := make([]models.MonthlyReminder, 0, len(reminders))
	for _, r := range reminders {
		if r.DaysUntilReminder >= 0 {
			upcoming = append(upcoming, r)
		}
	}
	return upcoming
}

// formatReminders formats reminders into a Telegram message
func formatReminders(reminders []models.Reminder) string {
	var b strings.Builder
	b.WriteString("🔔 *Upcoming reminders*\n\n")

	for i, r := range reminders {
		title := r.Title
		if title == "" {
			title = r.EventID
		}

		icon := "📅"
		if r.IsRecurring {
			icon = "🔁"
		}

		fmt.Fprintf(&b, "%d\\. *%s*", i+1, escapeMarkdownV2(title))
		if r.Type != "" {
			fmt.Fprintf(&b, " \\(%s\\)", escapeMarkdownV2(r.Type))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "   %s %s, %s\n", icon,
			escapeMarkdownV2(r.NextOccurrence.String()),
			escapeMarkdownV2(formatDays(r.DaysUntilEvent)))
		if r.DaysUntilReminder > 0 {
			fmt.Fprintf(&b, "   ⏰ Reminder %s\n", escapeMarkdownV2(formatDays(r.DaysUntilReminder)))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// formatMonthlyReminders formats this month's reminders into a Telegram message
func formatMonthlyReminders(reminders []models.MonthlyReminder) string {
	var b strings.Builder
	b.WriteString("🗓 *Monthly reminders*\n\n")

	for i, r := range reminders {
		title := r.Title
		if title == "" {
			title = r.EventID
		}
		fmt.Fprintf(&b, "%d\\. *%s* on %s, %s\n", i+1,
			escapeMarkdownV2(title),
			escapeMarkdownV2(r.ReminderDate.String()),
			escapeMarkdownV2(formatDays(r.DaysUntilReminder)))
		fmt.Fprintf(&b, "   since %s\n", escapeMarkdownV2(r.OriginalDate.String()))
	}

	return strings.TrimRight(b.String(), "\n")
}

// formatSchedule lists the next occurrences of each event
func formatSchedule(schedules []models.EventSchedule) string {
	if len(schedules) == 0 {
		return escapeMarkdownV2("No upcoming events.")
	}

	var b strings.Builder
	b.WriteString("📆 *Schedule*\n\n")

	for _, s := range schedules {
		title := s.Title
		if title == "" {
			title = s.EventID
		}
		dates := make([]string, len(s.Occurrences))
		for i, d := range s.Occurrences {
			dates[i] = d.String()
		}
		fmt.Fprintf(&b, "*%s*: %s\n", escapeMarkdownV2(title), escapeMarkdownV2(strings.Join(dates, ", ")))
	}

	return strings.TrimRight(b.String(), "\n")
}

// formatCyclePrediction formats cycle statistics into a Telegram message
func formatCyclePrediction(stats models.CycleStats, today civil.Date) string {
	if stats.TotalCycles == 0 {
		return escapeMarkdownV2("No cycles recorded yet.")
	}

	var b strings.Builder
	b.WriteString("🌙 *Cycle prediction*\n\n")
	fmt.Fprintf(&b, "Next start: *%s* \\(%s\\)\n",
		escapeMarkdownV2(stats.NextPredictedDate.String()),
		escapeMarkdownV2(formatDays(stats.NextPredictedDate.DaysSince(today))))
	fmt.Fprintf(&b, "Average cycle: %d days\n", stats.AverageCycleLength)
	fmt.Fprintf(&b, "Average period: %s days\n", escapeMarkdownV2(strconv.FormatFloat(stats.AveragePeriodLength, 'f', -1, 64)))
	fmt.Fprintf(&b, "Confidence: %d%%\n", stats.PredictionConfidence)
	fmt.Fprintf(&b, "Based on %d cycle", stats.TotalCycles)
	if stats.TotalCycles != 1 {
		b.WriteString("s")
	}

	if len(stats.CommonSymptoms) > 0 {
		fmt.Fprintf(&b, "\n\nCommon symptoms: %s", escapeMarkdownV2(strings.Join(stats.CommonSymptoms, ", ")))
	}
	if len(stats.CommonMoods) > 0 {
		fmt.Fprintf(&b, "\nCommon moods: %s", escapeMarkdownV2(strings.Join(stats.CommonMoods, ", ")))
	}

	return b.String()
}

// formatError formats a sweep failure
func formatError(err error) string {
	return "⚠️ *Sweep failed*\n\n" + escapeMarkdownV2(err.Error())
}

// formatDays renders a day distance relative to today
func formatDays(days int) string {
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	case days > 1:
		return fmt.Sprintf("in %d days", days)
	case days == -1:
		return "yesterday"
	default:
		return fmt.Sprintf("%d days ago", -days)
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// \ _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
