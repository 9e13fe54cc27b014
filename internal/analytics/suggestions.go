package analytics

import "fmt"

// SuggestionType represents the kind of adjustment suggested
type SuggestionType string

const (
	SuggestionWeakWeekday    SuggestionType = "weak_weekday"
	SuggestionEaseDifficulty SuggestionType = "ease_difficulty"
	SuggestionUseFreeze      SuggestionType = "use_freeze"
)

// Suggestion is advice derived from a report
type Suggestion struct {
	Type   SuggestionType `json:"type"`
	Reason string         `json:"reason"`
}

// minSampleDays is how many days a report needs before suggestions are made.
const minSampleDays = 14

// Suggest inspects a report and returns adjustments worth making.
func Suggest(r Report, freezesAvailable int) []Suggestion {
	if r.WindowDays < minSampleDays {
		return nil
	}

	var out []Suggestion

	// A weekday far below the overall rate is a scheduling problem, not a motivation one
	if r.CompletionRate >= 50 {
		for _, wd := range r.ByWeekday {
			if wd.Days >= 2 && wd.Rate < 25 {
				out = append(out, Suggestion{
					Type:   SuggestionWeakWeekday,
					Reason: fmt.Sprintf("%s is completed %.0f%% of the time against %.0f%% overall", wd.Weekday, wd.Rate, r.CompletionRate),
				})
			}
		}
	}

	if r.CompletionRate < 50 && r.HardShare > 50 {
		out = append(out, Suggestion{
			Type:   SuggestionEaseDifficulty,
			Reason: fmt.Sprintf("%.0f%% of completions are hard while only %.0f%% of days are completed", r.HardShare, r.CompletionRate),
		})
	}

	if freezesAvailable > 0 && r.CompletionRate >= 80 {
		out = append(out, Suggestion{
			Type:   SuggestionUseFreeze,
			Reason: fmt.Sprintf("%d freeze(s) available to cover a missed day", freezesAvailable),
		})
	}
	return out
}
