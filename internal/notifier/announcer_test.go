package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/habitstreak/internal/engine"
	"github.com/julianstephens/habitstreak/internal/models"
)

type fakeSender struct {
	err  error
	sent []string
}

func (f *fakeSender) Notify(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

type marked struct {
	actor string
	days  int
}

type fakeHabits struct {
	marked []marked
}

func (f *fakeHabits) GetHabit(_ context.Context, habitID string) (models.Habit, error) {
	return models.Habit{ID: habitID, UserID: "u1", Name: "read"}, nil
}

func (f *fakeHabits) MarkCelebrated(ctx context.Context, _, _ string, days int) (bool, error) {
	actor, _ := engine.ActorFrom(ctx)
	f.marked = append(f.marked, marked{actor: actor, days: days})
	return true, nil
}

func milestoneOutcome(days ...int) models.Outcome {
	o := models.Outcome{HabitID: "h1", UserID: "u1"}
	for _, d := range days {
		o.NewMilestones = append(o.NewMilestones, models.Milestone{Days: d, AchievedAt: time.Now()})
	}
	return o
}

func TestAnnouncerCelebratesDeliveredMilestones(t *testing.T) {
	sender := &fakeSender{}
	habits := &fakeHabits{}
	a := NewAnnouncer(sender, habits)

	a.Publish(context.Background(), milestoneOutcome(7, 30))

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 notifications, got %v", sender.sent)
	}
	if !strings.HasPrefix(sender.sent[0], "read: 7-day") {
		t.Errorf("unexpected text %q", sender.sent[0])
	}
	if len(habits.marked) != 2 {
		t.Fatalf("expected 2 milestones marked, got %v", habits.marked)
	}
	for _, m := range habits.marked {
		if m.actor != "u1" {
			t.Errorf("MarkCelebrated ran as %q, want the habit owner", m.actor)
		}
	}
}

func TestAnnouncerLeavesUndeliveredPending(t *testing.T) {
	for _, err := range []error{ErrTrayNotRunning, errors.New("connection refused")} {
		habits := &fakeHabits{}
		a := NewAnnouncer(&fakeSender{err: err}, habits)
		a.Publish(context.Background(), milestoneOutcome(7))
		if len(habits.marked) != 0 {
			t.Errorf("%v: milestone marked without delivery", err)
		}
	}
}

func TestAnnouncerBrokenStreak(t *testing.T) {
	tests := []struct {
		name     string
		previous int
		broken   bool
		want     int
	}{
		{"long streak lost", 12, true, 1},
		{"short streak lost", 2, true, 0},
		{"not broken", 12, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			habits := &fakeHabits{}
			a := NewAnnouncer(sender, habits)
			a.Publish(context.Background(), models.Outcome{HabitID: "h1", UserID: "u1", StreakBroken: tt.broken, PreviousStreak: tt.previous})
			if len(sender.sent) != tt.want {
				t.Errorf("expected %d notifications, got %v", tt.want, sender.sent)
			}
			if len(habits.marked) != 0 {
				t.Errorf("broken streak must not mark milestones")
			}
		})
	}
}
