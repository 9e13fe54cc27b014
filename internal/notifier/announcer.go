package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/habitstreak/internal/constants"
	"github.com/julianstephens/habitstreak/internal/engine"
	"github.com/julianstephens/habitstreak/internal/logger"
	"github.com/julianstephens/habitstreak/internal/models"
)

// Sender shows a single notification.
type Sender interface {
	Notify(ctx context.Context, text string) error
}

// Celebrations is the engine surface the Announcer needs.
type Celebrations interface {
	GetHabit(ctx context.Context, habitID string) (models.Habit, error)
	MarkCelebrated(ctx context.Context, habitID, userID string, days int) (bool, error)
}

// Announcer turns streak outcomes into notifications. It implements
// engine.OutcomeSink.
type Announcer struct {
	sender Sender
	habits Celebrations
}

var _ engine.OutcomeSink = (*Announcer)(nil)

func NewAnnouncer(sender Sender, habits Celebrations) *Announcer {
	return &Announcer{sender: sender, habits: habits}
}

// Publish notifies about new milestones and broken streaks. A milestone is
// marked celebrated only after its notification was delivered; undelivered
// ones stay pending for `habitstreak celebrate`.
func (a *Announcer) Publish(ctx context.Context, o models.Outcome) {
	if len(o.NewMilestones) == 0 && !brokenWorthTelling(o) {
		return
	}

	name := o.HabitID
	if h, err := a.habits.GetHabit(ctx, o.HabitID); err == nil {
		name = h.Name
	}

	for _, m := range o.NewMilestones {
		text := fmt.Sprintf("%s: %d-day streak!", name, m.Days)
		if !a.deliver(ctx, o, text) {
			continue
		}
		if _, err := a.habits.MarkCelebrated(engine.WithActor(ctx, o.UserID), o.HabitID, o.UserID, m.Days); err != nil {
			logger.Warn("Failed to mark milestone celebrated", "habit", o.HabitID, "days", m.Days, "error", err)
		}
	}

	if brokenWorthTelling(o) {
		a.deliver(ctx, o, fmt.Sprintf("%s: your %d-day streak ended. Start again today.", name, o.PreviousStreak))
	}
}

func (a *Announcer) deliver(ctx context.Context, o models.Outcome, text string) bool {
	err := a.sender.Notify(ctx, text)
	switch {
	case err == nil:
		logger.Debug("Notification sent", "habit", o.HabitID, "text", text)
		return true
	case errors.Is(err, ErrTrayNotRunning):
		logger.Debug("Notification skipped", "habit", o.HabitID, "reason", err)
	default:
		logger.Warn("Notification failed", "habit", o.HabitID, "error", err)
	}
	return false
}

func brokenWorthTelling(o models.Outcome) bool {
	return o.StreakBroken && o.PreviousStreak >= constants.BrokenStreakNotifyMin
}
