package streaks

import (
	"github.com/julianstephens/habitstreak/internal/analytics"
	"github.com/julianstephens/habitstreak/internal/cli"
	"github.com/julianstephens/habitstreak/internal/constants"
	"github.com/julianstephens/habitstreak/internal/utils"
)

type StreakCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *StreakCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}
	s, err := ctx.Engine.CalculateStreak(rctx, habit.ID, habit.UserID)
	if err != nil {
		return err
	}

	ctx.Printf("%s\n", habit.Name)
	ctx.Printf("  Current: %d day(s)", s.CurrentStreak)
	if s.CurrentStreak > 0 {
		ctx.Printf(" since %s", s.StreakStartDate)
	}
	ctx.Println()
	ctx.Printf("  Best:    %d day(s)\n", s.BestStreak)
	if s.LastCompletionDate != "" {
		ctx.Printf("  Last:    %s\n", s.LastCompletionDate)
	}
	ctx.Printf("  Freezes: %d available, %d used\n", s.FreezesAvailable, s.FreezesUsed)
	loc, _ := utils.ResolveLocation(habit.Timezone)
	for _, m := range s.Milestones {
		mark := "✓"
		if !m.Celebrated {
			mark = "★"
		}
		ctx.Printf("  %s %d days on %s\n", mark, m.Days, m.AchievedAt.In(loc).Format(constants.DateFormat))
	}
	return nil
}

type CalendarCmd struct {
	Habit    string `arg:"" help:"Habit id or name."`
	Days     int    `help:"Number of days to show." default:"28"`
	Timezone string `name:"tz" help:"Timezone that decides which day is today. Defaults to the habit's."`
}

func (c *CalendarCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}
	days, err := ctx.Engine.GetCalendar(rctx, habit.ID, habit.UserID, c.Days, c.Timezone)
	if err != nil {
		return err
	}
	out, err := renderCalendar(days)
	if err != nil {
		return err
	}
	ctx.Printf("%s, last %d days\n%s", habit.Name, c.Days, out)
	return nil
}

type StatsCmd struct {
	Habit    string `arg:"" help:"Habit id or name."`
	Window   int    `help:"Window in days." default:"30"`
	Timezone string `name:"tz" help:"Timezone that decides which day is today. Defaults to the habit's."`
}

func (c *StatsCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}
	report, err := ctx.Engine.GetConsistency(rctx, habit.ID, habit.UserID, c.Window, c.Timezone)
	if err != nil {
		return err
	}
	state, err := ctx.Engine.CalculateStreak(rctx, habit.ID, habit.UserID)
	if err != nil {
		return err
	}

	ctx.Printf("%s, %s to %s\n", habit.Name, report.From, report.To)
	ctx.Printf("  %s\n", report.Summary())
	ctx.Printf("  Hard days: %.0f%%\n", report.HardShare)
	for _, w := range report.ByWeekday {
		ctx.Printf("  %-9s %d/%d (%.0f%%)\n", w.Weekday, w.Completed, w.Days, w.Rate)
	}

	suggestions := analytics.Suggest(report, state.FreezesAvailable)
	if len(suggestions) > 0 {
		ctx.Println("\nSuggestions:")
		for _, s := range suggestions {
			ctx.Printf("  • %s\n", s.Reason)
		}
	}
	return nil
}

type CelebrateCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

// Run shows milestones that were never announced and marks them celebrated.
func (c *CelebrateCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}
	s, err := ctx.Engine.CalculateStreak(rctx, habit.ID, habit.UserID)
	if err != nil {
		return err
	}

	celebrated := 0
	for _, m := range s.Milestones {
		if m.Celebrated {
			continue
		}
		marked, err := ctx.Engine.MarkCelebrated(rctx, habit.ID, habit.UserID, m.Days)
		if err != nil {
			return err
		}
		if marked {
			ctx.Printf("🎉 %s: %d-day streak!\n", habit.Name, m.Days)
			celebrated++
		}
	}
	if celebrated == 0 {
		ctx.Println("Nothing new to celebrate.")
	}
	return nil
}

type ReconcileCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *ReconcileCmd) Run(ctx *cli.Context) error {
	rctx := ctx.Ctx()
	habit, err := ctx.ResolveHabit(rctx, c.Habit)
	if err != nil {
		return err
	}
	out, err := ctx.Engine.Reconcile(rctx, habit.ID, habit.UserID)
	if err != nil {
		return err
	}
	if !out.Changed {
		ctx.Printf("%s is up to date.\n", habit.Name)
		return nil
	}
	ctx.Printf("Reconciled %s\n", habit.Name)
	printOutcome(ctx, out)
	return nil
}
