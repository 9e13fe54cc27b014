package streaks

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habitstreak/internal/models"
	"github.com/julianstephens/habitstreak/internal/utils"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Bold(true)

	missedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	frozenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	todayStyle = lipgloss.NewStyle().
			Underline(true)

	doneStyles = map[models.Difficulty]lipgloss.Style{
		models.DifficultyEasy:   lipgloss.NewStyle().Foreground(lipgloss.Color("151")),
		models.DifficultyMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("77")),
		models.DifficultyHard:   lipgloss.NewStyle().Foreground(lipgloss.Color("28")).Bold(true),
	}
)

const (
	glyphDone   = "●"
	glyphFrozen = "❄"
	glyphMissed = "·"
)

// renderCalendar lays days out in Monday-first weeks. days must be
// consecutive and oldest first; the last one is marked as today.
func renderCalendar(days []models.CalendarDay) (string, error) {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Mo Tu We Th Fr Sa Su"))
	b.WriteString("\n")
	if len(days) == 0 {
		return b.String(), nil
	}

	first, err := utils.ParseCivilDate(days[0].Date)
	if err != nil {
		return "", err
	}
	col := mondayIndex(first.Weekday())
	b.WriteString(strings.Repeat("   ", col))

	for i, d := range days {
		cell := cellFor(d)
		if i == len(days)-1 {
			cell = todayStyle.Render(cell)
		}
		b.WriteString(" ")
		b.WriteString(cell)
		col++
		if col == 7 {
			b.WriteString("\n")
			col = 0
		} else {
			b.WriteString(" ")
		}
	}
	if col != 0 {
		b.WriteString("\n")
	}

	b.WriteString(doneStyles[models.DifficultyMedium].Render(glyphDone) + " done  ")
	b.WriteString(frozenStyle.Render(glyphFrozen) + " frozen  ")
	b.WriteString(missedStyle.Render(glyphMissed) + " missed\n")
	return b.String(), nil
}

func cellFor(d models.CalendarDay) string {
	switch {
	case d.Completed:
		style, ok := doneStyles[d.Difficulty]
		if !ok {
			style = doneStyles[models.DifficultyMedium]
		}
		return style.Render(glyphDone)
	case d.Frozen:
		return frozenStyle.Render(glyphFrozen)
	default:
		return missedStyle.Render(glyphMissed)
	}
}

func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
