// Package analytics derives the consistency report from the completion log.
package analytics

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitstreak/internal/constants"
	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/utils"
)

// Difficulty weights for the weighted score.
var weights = map[models.Difficulty]float64{
	models.DifficultyEasy:   1.0,
	models.DifficultyMedium: 1.5,
	models.DifficultyHard:   2.0,
}

const maxWeight = 2.0

// WeekdayStat is how often one weekday inside the window was completed
type WeekdayStat struct {
	Weekday   string  `json:"weekday"`
	Days      int     `json:"days"`
	Completed int     `json:"completed"`
	Rate      float64 `json:"rate"`
}

// Report summarizes a habit over the last WindowDays civil dates ending today.
type Report struct {
	WindowDays    int    `json:"window_days"`
	From          string `json:"from"`
	To            string `json:"to"`
	CompletedDays int    `json:"completed_days"`
	FrozenDays    int    `json:"frozen_days"`
	// CompletionRate counts real completions only, in percent.
	CompletionRate float64 `json:"completion_rate"`
	// WeightedScore scales each completed day by its hardest difficulty,
	// 0-100 where 100 is a hard completion every day.
	WeightedScore float64       `json:"weighted_score"`
	ByWeekday     []WeekdayStat `json:"by_weekday"`
	HardShare     float64       `json:"hard_share"`
}

// Compute builds the report. Each active event counts on its civil date in
// its own timezone, the same date the streak calculator uses.
func Compute(events []models.CompletionEvent, windowDays int, today string) (Report, error) {
	const op = "analytics.Compute"
	if windowDays <= 0 || windowDays > constants.MaxCalendarDays {
		return Report{}, apperrors.New(apperrors.KindInvalidArgument, op, "window must be between 1 and %d days", constants.MaxCalendarDays)
	}
	end, err := utils.ParseCivilDate(today)
	if err != nil {
		return Report{}, err
	}
	start := end.AddDate(0, 0, -(windowDays - 1))
	from := start.Format(constants.DateFormat)

	type day struct {
		real   bool
		frozen bool
		weight float64
	}
	days := make(map[string]*day)
	for _, e := range events {
		if !e.Active {
			continue
		}
		date, _ := utils.CivilDateOrUTC(e.CompletedAt, e.Timezone)
		if date < from || date > today {
			continue
		}
		d, ok := days[date]
		if !ok {
			d = &day{}
			days[date] = d
		}
		if e.Synthetic {
			d.frozen = true
			continue
		}
		d.real = true
		if w := weights[e.Difficulty]; w > d.weight {
			d.weight = w
		}
	}

	report := Report{WindowDays: windowDays, From: from, To: today}
	weekdays := make([]WeekdayStat, 7)
	for i := range weekdays {
		weekdays[i].Weekday = time.Weekday(i).String()
	}

	var weighted float64
	var hard int
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		wd := &weekdays[t.Weekday()]
		wd.Days++
		d, ok := days[t.Format(constants.DateFormat)]
		if !ok {
			continue
		}
		if d.real {
			report.CompletedDays++
			wd.Completed++
			weighted += d.weight
			if d.weight == maxWeight {
				hard++
			}
		} else if d.frozen {
			report.FrozenDays++
		}
	}

	for i := range weekdays {
		if weekdays[i].Days > 0 {
			weekdays[i].Rate = percent(weekdays[i].Completed, weekdays[i].Days)
		}
	}
	report.ByWeekday = weekdays
	report.CompletionRate = percent(report.CompletedDays, windowDays)
	report.WeightedScore = round2(weighted / (float64(windowDays) * maxWeight) * 100)
	if report.CompletedDays > 0 {
		report.HardShare = percent(hard, report.CompletedDays)
	}
	return report, nil
}

func percent(n, d int) float64 {
	return round2(float64(n) / float64(d) * 100)
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

// Summary is a one-line rendering for the CLI.
func (r Report) Summary() string {
	return fmt.Sprintf("%d/%d days (%.0f%%), weighted score %.0f, %d frozen",
		r.CompletedDays, r.WindowDays, r.CompletionRate, r.WeightedScore, r.FrozenDays)
}
