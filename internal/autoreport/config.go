// Package autoreport implements the auto-reporter state machine: a leaky
// bucket risk accumulator, adaptive hysteresis-guarded thresholds, and a
// three-state escalation machine that decides when an anomaly stream is
// worth dispatching a report about.
package autoreport

import (
	"fmt"
	"time"
)

// AdaptationCoefficient weights the average bucket score into the adaptive
// threshold multiplier: factor = 1 + (avg_score/base_critical) * coefficient.
const AdaptationCoefficient = 0.3

// BucketConfig tunes the leaky bucket's point accrual and decay.
type BucketConfig struct {
	CriticalPoints       float64 `mapstructure:"critical_points" json:"critical_points"`
	HighPoints           float64 `mapstructure:"high_points" json:"high_points"`
	MediumPoints         float64 `mapstructure:"medium_points" json:"medium_points"`
	LowPoints            float64 `mapstructure:"low_points" json:"low_points"`
	DecayRatePerMinute   float64 `mapstructure:"decay_rate_per_minute" json:"decay_rate_per_minute"`
	DecayIntervalSeconds float64 `mapstructure:"decay_interval_seconds" json:"decay_interval_seconds"`
	MaxCapacity          float64 `mapstructure:"max_capacity" json:"max_capacity"`
}

func defaultBucketConfig() BucketConfig {
	return BucketConfig{
		CriticalPoints:       15.0,
		HighPoints:           8.0,
		MediumPoints:         3.0,
		LowPoints:            1.0,
		DecayRatePerMinute:   5.0,
		DecayIntervalSeconds: 10.0,
		MaxCapacity:          100.0,
	}
}

// ThresholdConfig tunes the adaptive threshold recalculation and hysteresis.
type ThresholdConfig struct {
	BaseWarning             float64       `mapstructure:"base_warning_threshold" json:"base_warning_threshold"`
	BaseCritical            float64       `mapstructure:"base_critical_threshold" json:"base_critical_threshold"`
	AdaptationWindow        time.Duration `mapstructure:"adaptation_window" json:"adaptation_window"`
	MinSamplesForAdaptation int           `mapstructure:"min_samples_for_adaptation" json:"min_samples_for_adaptation"`
	MinMultiplier           float64       `mapstructure:"min_threshold_multiplier" json:"min_threshold_multiplier"`
	MaxMultiplier           float64       `mapstructure:"max_threshold_multiplier" json:"max_threshold_multiplier"`
	HysteresisMargin        float64       `mapstructure:"hysteresis_margin" json:"hysteresis_margin"`
}

func defaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		BaseWarning:             20.0,
		BaseCritical:            40.0,
		AdaptationWindow:        30 * time.Minute,
		MinSamplesForAdaptation: 10,
		MinMultiplier:           0.5,
		MaxMultiplier:           2.0,
		HysteresisMargin:        0.2,
	}
}

// StateConfig tunes report cadence: per-state cooldowns, the pending-state
// confirmation delay, and which edges of the state machine trigger a report.
type StateConfig struct {
	ReportOnWarningEntry  bool          `mapstructure:"report_on_warning_entry" json:"report_on_warning_entry"`
	ReportOnCriticalEntry bool          `mapstructure:"report_on_critical_entry" json:"report_on_critical_entry"`
	ReportOnCriticalExit  bool          `mapstructure:"report_on_critical_exit" json:"report_on_critical_exit"`
	ReportOnNormalReturn  bool          `mapstructure:"report_on_normal_return" json:"report_on_normal_return"`
	NormalCooldown        time.Duration `mapstructure:"normal_cooldown" json:"normal_cooldown"`
	WarningCooldown       time.Duration `mapstructure:"warning_cooldown" json:"warning_cooldown"`
	CriticalCooldown      time.Duration `mapstructure:"critical_cooldown" json:"critical_cooldown"`
	ConfirmationDelay     time.Duration `mapstructure:"confirmation_delay" json:"confirmation_delay"`
}

func defaultStateConfig() StateConfig {
	return StateConfig{
		ReportOnWarningEntry:  true,
		ReportOnCriticalEntry: true,
		ReportOnCriticalExit:  true,
		ReportOnNormalReturn:  false,
		NormalCooldown:        60 * time.Minute,
		WarningCooldown:       15 * time.Minute,
		CriticalCooldown:      5 * time.Minute,
		ConfirmationDelay:     30 * time.Second,
	}
}

// Config is the complete auto-reporter tunable set (C3-C6).
type Config struct {
	Enabled              bool            `mapstructure:"enabled" json:"enabled"`
	Bucket               BucketConfig    `mapstructure:"bucket" json:"bucket"`
	Threshold            ThresholdConfig `mapstructure:"threshold" json:"threshold"`
	State                StateConfig     `mapstructure:"state" json:"state"`
	AnomalyWindow        time.Duration   `mapstructure:"anomaly_window" json:"anomaly_window"`
	MultiSensorThreshold int             `mapstructure:"multi_sensor_threshold" json:"multi_sensor_threshold"`
	WorkingHoursOnly     bool            `mapstructure:"working_hours_only" json:"working_hours_only"`
	WorkingHoursStart    int             `mapstructure:"working_hours_start" json:"working_hours_start"`
	WorkingHoursEnd      int             `mapstructure:"working_hours_end" json:"working_hours_end"`
}

// DefaultConfig mirrors the reporter's out-of-the-box Python defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		Bucket:               defaultBucketConfig(),
		Threshold:            defaultThresholdConfig(),
		State:                defaultStateConfig(),
		AnomalyWindow:        10 * time.Minute,
		MultiSensorThreshold: 3,
		WorkingHoursOnly:     false,
		WorkingHoursStart:    8,
		WorkingHoursEnd:      18,
	}
}

// Validate enforces the reporter's numeric invariants.
func (c Config) Validate() error {
	if c.Bucket.MaxCapacity <= 0 {
		return fmt.Errorf("bucket.max_capacity must be > 0, got %v", c.Bucket.MaxCapacity)
	}
	if c.Bucket.DecayIntervalSeconds <= 0 {
		return fmt.Errorf("bucket.decay_interval_seconds must be > 0, got %v", c.Bucket.DecayIntervalSeconds)
	}
	if c.Threshold.BaseCritical <= c.Threshold.BaseWarning {
		return fmt.Errorf("threshold.base_critical_threshold (%v) must exceed base_warning_threshold (%v)", c.Threshold.BaseCritical, c.Threshold.BaseWarning)
	}
	if c.Threshold.MinMultiplier <= 0 || c.Threshold.MaxMultiplier < c.Threshold.MinMultiplier {
		return fmt.Errorf("threshold multiplier range is invalid: min=%v max=%v", c.Threshold.MinMultiplier, c.Threshold.MaxMultiplier)
	}
	if c.Threshold.HysteresisMargin < 0 || c.Threshold.HysteresisMargin >= 1 {
		return fmt.Errorf("threshold.hysteresis_margin must be in [0,1), got %v", c.Threshold.HysteresisMargin)
	}
	if c.MultiSensorThreshold < 1 {
		return fmt.Errorf("multi_sensor_threshold must be >= 1, got %d", c.MultiSensorThreshold)
	}
	if c.WorkingHoursOnly && (c.WorkingHoursStart < 0 || c.WorkingHoursStart > 23 || c.WorkingHoursEnd < 0 || c.WorkingHoursEnd > 24 || c.WorkingHoursStart >= c.WorkingHoursEnd) {
		return fmt.Errorf("working hours window is invalid: start=%d end=%d", c.WorkingHoursStart, c.WorkingHoursEnd)
	}
	return nil
}

// pointsFor maps a severity bucket to the points the leaky bucket accrues for it.
func (c BucketConfig) pointsFor(b severityBucket) float64 {
	switch b {
	case bucketCritical:
		return c.CriticalPoints
	case bucketHigh:
		return c.HighPoints
	case bucketMedium:
		return c.MediumPoints
	default:
		return c.LowPoints
	}
}
