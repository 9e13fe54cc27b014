package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/julianstephens/habitstreak/internal/errors"
	"github.com/julianstephens/habitstreak/internal/models"
)

var testNow = time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)

func completion(id string, at time.Time) models.CompletionEvent {
	return models.CompletionEvent{
		ID:          id,
		HabitID:     "h1",
		UserID:      "u1",
		CompletedAt: at,
		Timezone:    "UTC",
		Difficulty:  models.DifficultyMedium,
		Active:      true,
		CreatedAt:   at,
	}
}

func TestValidateCompletion_Accepts(t *testing.T) {
	v := New(DefaultLimits())

	res, err := v.ValidateCompletion(completion("c1", testNow.Add(-time.Hour)), "u1", nil, testNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CivilDate != "2024-01-03" {
		t.Errorf("CivilDate = %q, want 2024-01-03", res.CivilDate)
	}
	if res.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", res.Timezone)
	}
	if res.HasWarnings() {
		t.Errorf("unexpected warnings: %s", res.FormatReport())
	}
}

func TestValidateCompletion_Rejections(t *testing.T) {
	v := New(DefaultLimits())
	existing := []models.CompletionEvent{completion("old", testNow.Add(-2*time.Hour))}

	tests := []struct {
		name     string
		mutate   func(c *models.CompletionEvent)
		actor    string
		existing []models.CompletionEvent
		want     error
	}{
		{
			name:   "future completion",
			mutate: func(c *models.CompletionEvent) { c.CompletedAt = testNow.Add(time.Minute) },
			actor:  "u1",
			want:   apperrors.ErrInvalidArgument,
		},
		{
			name:   "bad difficulty",
			mutate: func(c *models.CompletionEvent) { c.Difficulty = "extreme" },
			actor:  "u1",
			want:   apperrors.ErrInvalidArgument,
		},
		{
			name:   "ownership mismatch",
			mutate: func(c *models.CompletionEvent) {},
			actor:  "someone-else",
			want:   apperrors.ErrUnauthorized,
		},
		{
			name:   "missing actor",
			mutate: func(c *models.CompletionEvent) {},
			actor:  "",
			want:   apperrors.ErrUnauthorized,
		},
		{
			name:   "missing habit",
			mutate: func(c *models.CompletionEvent) { c.HabitID = "" },
			actor:  "u1",
			want:   apperrors.ErrInvalidArgument,
		},
		{
			name:     "duplicate civil date",
			mutate:   func(c *models.CompletionEvent) {},
			actor:    "u1",
			existing: existing,
			want:     apperrors.ErrAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := completion("new", testNow.Add(-time.Hour))
			tt.mutate(&c)
			_, err := v.ValidateCompletion(c, tt.actor, tt.existing, testNow)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want kind %v", err, tt.want)
			}
		})
	}
}

func TestValidateCompletion_UndoneDateIsFree(t *testing.T) {
	v := New(DefaultLimits())
	undone := completion("old", testNow.Add(-2*time.Hour))
	undone.Active = false

	if _, err := v.ValidateCompletion(completion("new", testNow.Add(-time.Hour)), "u1", []models.CompletionEvent{undone}, testNow); err != nil {
		t.Fatalf("completion on an undone date should be accepted: %v", err)
	}
}

func TestValidateCompletion_DuplicateUsesEachEventsTimezone(t *testing.T) {
	v := New(DefaultLimits())
	// 2024-01-03 02:00Z is still Jan 2 in New York
	prev := completion("old", time.Date(2024, 1, 3, 2, 0, 0, 0, time.UTC))
	prev.Timezone = "America/New_York"

	res, err := v.ValidateCompletion(completion("new", testNow.Add(-time.Hour)), "u1", []models.CompletionEvent{prev}, testNow)
	if err != nil {
		t.Fatalf("different civil dates should not collide: %v", err)
	}
	if res.CivilDate != "2024-01-03" {
		t.Errorf("CivilDate = %q", res.CivilDate)
	}
}

func TestValidateCompletion_StaleIsFlaggedNotRejected(t *testing.T) {
	v := New(DefaultLimits())

	res, err := v.ValidateCompletion(completion("c1", testNow.Add(-50*time.Hour)), "u1", nil, testNow)
	if err != nil {
		t.Fatalf("stale completion should be accepted: %v", err)
	}
	if len(res.Flags) != 1 || res.Flags[0] != models.FlagBackdated {
		t.Errorf("Flags = %v, want [backdated_completion]", res.Flags)
	}
	if !strings.Contains(res.FormatReport(), "old") {
		t.Errorf("report should mention staleness: %s", res.FormatReport())
	}
}

func TestValidateCompletion_TimezoneFallback(t *testing.T) {
	v := New(DefaultLimits())
	c := completion("c1", testNow.Add(-time.Hour))
	c.Timezone = "Mars/Olympus_Mons"

	res, err := v.ValidateCompletion(c, "u1", nil, testNow)
	if err != nil {
		t.Fatalf("bad timezone should fall back, got %v", err)
	}
	if res.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", res.Timezone)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Type != WarningTimezoneFallback {
		t.Errorf("Warnings = %+v", res.Warnings)
	}
}

func TestQuarantine(t *testing.T) {
	good := completion("c1", testNow)
	bad := completion("c2", testNow)
	bad.Difficulty = "???"
	noID := completion("", testNow)

	valid, warnings := Quarantine([]models.CompletionEvent{good, bad, noID})
	if len(valid) != 1 || valid[0].ID != "c1" {
		t.Errorf("valid = %+v", valid)
	}
	if len(warnings) != 2 {
		t.Errorf("expected 2 quarantine warnings, got %d", len(warnings))
	}
}
