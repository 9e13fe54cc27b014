package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if p.Protocol.MaxAttempts != Defaults().Protocol.MaxAttempts {
		t.Errorf("expected default max attempts, got %d", p.Protocol.MaxAttempts)
	}
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := writePolicy(t, `
protocol:
  max_attempts: 8
  base_backoff: 5ms
fraud:
  hourly_completion_ceiling: 3
`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Protocol.MaxAttempts != 8 {
		t.Errorf("MaxAttempts = %d, want 8", p.Protocol.MaxAttempts)
	}
	if p.Protocol.BaseBackoff != 5*time.Millisecond {
		t.Errorf("BaseBackoff = %v, want 5ms", p.Protocol.BaseBackoff)
	}
	if p.Protocol.MaxBackoff != Defaults().Protocol.MaxBackoff {
		t.Errorf("MaxBackoff should keep its default, got %v", p.Protocol.MaxBackoff)
	}
	if p.Fraud.HourlyCompletionCeiling != 3 {
		t.Errorf("HourlyCompletionCeiling = %d, want 3", p.Fraud.HourlyCompletionCeiling)
	}
	if got := p.Limits().HourlyCeiling; got != 3 {
		t.Errorf("Limits().HourlyCeiling = %d, want 3", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writePolicy(t, "protocol:\n  max_attempt: 3\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Policy)
		wantErr string
	}{
		{"zero attempts", func(p *Policy) { p.Protocol.MaxAttempts = 0 }, "max_attempts"},
		{"inverted backoff", func(p *Policy) { p.Protocol.MaxBackoff = time.Millisecond }, "max_backoff"},
		{"negative tolerance", func(p *Policy) { p.Validation.IntegrityToleranceDays = -1 }, "tolerance"},
		{"zero concurrency", func(p *Policy) { p.Sweep.Concurrency = 0 }, "concurrency"},
		{"unsorted ladder", func(p *Policy) { p.Milestones.Thresholds = []int{30, 7} }, "ascending"},
		{"duplicate threshold", func(p *Policy) { p.Milestones.Thresholds = []int{7, 7, 30} }, "duplicate"},
		{"reward off ladder", func(p *Policy) { p.Milestones.FreezeReward = 14 }, "freeze_reward"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Defaults()
			tt.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLadderDisabledReward(t *testing.T) {
	p := Defaults()
	p.Milestones.FreezeReward = 0
	if err := p.Validate(); err != nil {
		t.Fatalf("reward 0 disables rewards and should validate: %v", err)
	}
	if p.Ladder().FreezeReward != 0 {
		t.Error("ladder should carry a disabled reward")
	}
}
