// Package config loads the engine policy file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habitstreak/internal/constants"
	"github.com/julianstephens/habitstreak/internal/streak"
	"github.com/julianstephens/habitstreak/internal/validation"
)

// ProtocolPolicy bounds the transactional update protocol
type ProtocolPolicy struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseBackoff      time.Duration `yaml:"base_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// ValidationPolicy holds completion and state validation thresholds
type ValidationPolicy struct {
	StaleCompletionAfter   time.Duration `yaml:"stale_completion_after"`
	IntegrityToleranceDays int           `yaml:"integrity_tolerance_days"`
}

// FraudPolicy holds the anti-fraud ceilings
type FraudPolicy struct {
	HourlyCompletionCeiling int `yaml:"hourly_completion_ceiling"`
	DailyCompletionCeiling  int `yaml:"daily_completion_ceiling"`
	RejectionCeiling        int `yaml:"rejection_ceiling"`
}

// SweepPolicy configures the scheduled reconcile and fraud sweep
type SweepPolicy struct {
	Timeout     time.Duration `yaml:"timeout"`
	ItemTimeout time.Duration `yaml:"item_timeout"`
	Concurrency int           `yaml:"concurrency"`
	Lookback    time.Duration `yaml:"lookback"`
	Interval    time.Duration `yaml:"interval"`
}

// CachePolicy configures the streak read cache
type CachePolicy struct {
	TTL time.Duration `yaml:"ttl"`
}

// MilestonePolicy is the milestone ladder
type MilestonePolicy struct {
	Thresholds   []int `yaml:"thresholds"`
	FreezeReward int   `yaml:"freeze_reward"`
}

// Policy is the full engine policy. Fields missing from the file keep
// their defaults.
type Policy struct {
	Protocol   ProtocolPolicy   `yaml:"protocol"`
	Validation ValidationPolicy `yaml:"validation"`
	Fraud      FraudPolicy      `yaml:"fraud"`
	Sweep      SweepPolicy      `yaml:"sweep"`
	Cache      CachePolicy      `yaml:"cache"`
	Milestones MilestonePolicy  `yaml:"milestones"`
}

// Defaults returns the built-in policy.
func Defaults() Policy {
	thresholds := make([]int, len(constants.MilestoneThresholds))
	copy(thresholds, constants.MilestoneThresholds)
	return Policy{
		Protocol: ProtocolPolicy{
			MaxAttempts:      constants.DefaultMaxAttempts,
			BaseBackoff:      constants.DefaultBaseBackoff,
			MaxBackoff:       constants.DefaultMaxBackoff,
			OperationTimeout: constants.DefaultOperationTimeout,
		},
		Validation: ValidationPolicy{
			StaleCompletionAfter:   constants.DefaultStaleCompletionAfter,
			IntegrityToleranceDays: constants.DefaultIntegrityToleranceDays,
		},
		Fraud: FraudPolicy{
			HourlyCompletionCeiling: constants.DefaultHourlyCompletionCeiling,
			DailyCompletionCeiling:  constants.DefaultDailyCompletionCeiling,
			RejectionCeiling:        constants.DefaultRejectionCeiling,
		},
		Sweep: SweepPolicy{
			Timeout:     constants.DefaultSweepTimeout,
			ItemTimeout: constants.DefaultSweepItemTimeout,
			Concurrency: constants.DefaultSweepConcurrency,
			Lookback:    constants.DefaultSweepLookback,
			Interval:    constants.DefaultSweepInterval,
		},
		Cache: CachePolicy{TTL: constants.DefaultCacheTTL},
		Milestones: MilestonePolicy{
			Thresholds:   thresholds,
			FreezeReward: constants.FreezeRewardThreshold,
		},
	}
}

// Load reads a policy file on top of the defaults. An empty path returns
// the defaults unchanged. Unknown keys are rejected.
func Load(path string) (Policy, error) {
	p := Defaults()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

// Validate rejects values the engine cannot run with.
func (p Policy) Validate() error {
	switch {
	case p.Protocol.MaxAttempts < 1:
		return fmt.Errorf("protocol.max_attempts must be at least 1")
	case p.Protocol.BaseBackoff <= 0 || p.Protocol.MaxBackoff <= 0:
		return fmt.Errorf("protocol backoff values must be positive")
	case p.Protocol.MaxBackoff < p.Protocol.BaseBackoff:
		return fmt.Errorf("protocol.max_backoff must not be below base_backoff")
	case p.Protocol.OperationTimeout <= 0:
		return fmt.Errorf("protocol.operation_timeout must be positive")
	case p.Validation.StaleCompletionAfter <= 0:
		return fmt.Errorf("validation.stale_completion_after must be positive")
	case p.Validation.IntegrityToleranceDays < 0:
		return fmt.Errorf("validation.integrity_tolerance_days must not be negative")
	case p.Fraud.HourlyCompletionCeiling <= 0 || p.Fraud.DailyCompletionCeiling <= 0 || p.Fraud.RejectionCeiling <= 0:
		return fmt.Errorf("fraud ceilings must be positive")
	case p.Sweep.Timeout <= 0 || p.Sweep.ItemTimeout <= 0 || p.Sweep.Lookback <= 0 || p.Sweep.Interval <= 0:
		return fmt.Errorf("sweep durations must be positive")
	case p.Sweep.Concurrency < 1:
		return fmt.Errorf("sweep.concurrency must be at least 1")
	case p.Cache.TTL <= 0:
		return fmt.Errorf("cache.ttl must be positive")
	case len(p.Milestones.Thresholds) == 0:
		return fmt.Errorf("milestones.thresholds must not be empty")
	}

	if !sort.IntsAreSorted(p.Milestones.Thresholds) {
		return fmt.Errorf("milestones.thresholds must be ascending")
	}
	found := p.Milestones.FreezeReward == 0
	for i, t := range p.Milestones.Thresholds {
		if t <= 0 {
			return fmt.Errorf("milestones.thresholds must be positive")
		}
		if i > 0 && t == p.Milestones.Thresholds[i-1] {
			return fmt.Errorf("milestones.thresholds contains duplicate %d", t)
		}
		if t == p.Milestones.FreezeReward {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("milestones.freeze_reward %d is not one of the thresholds", p.Milestones.FreezeReward)
	}
	return nil
}

// Limits converts the policy into validator thresholds.
func (p Policy) Limits() validation.Limits {
	return validation.Limits{
		StaleAfter:        p.Validation.StaleCompletionAfter,
		ToleranceDays:     p.Validation.IntegrityToleranceDays,
		HourlyCeiling:     p.Fraud.HourlyCompletionCeiling,
		DailyCeiling:      p.Fraud.DailyCompletionCeiling,
		RejectionCeiling:  p.Fraud.RejectionCeiling,
		RejectionLookback: p.Sweep.Lookback,
	}
}

// Ladder converts the policy into the milestone ladder.
func (p Policy) Ladder() streak.Ladder {
	t := make([]int, len(p.Milestones.Thresholds))
	copy(t, p.Milestones.Thresholds)
	return streak.Ladder{Thresholds: t, FreezeReward: p.Milestones.FreezeReward}
}
