// Package config is the config holder (C11): a Viper-backed, atomically
// swappable snapshot of the detector and auto-reporter tunables.
package config

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/HerbHall/sentineld/internal/autoreport"
	"github.com/HerbHall/sentineld/internal/detector"
)

// Snapshot is the full set of live-reconfigurable tunables.
type Snapshot struct {
	Detector detector.Config    `mapstructure:"anomaly" json:"anomaly"`
	Reporter autoreport.Config `mapstructure:"auto_reporting" json:"auto_reporting"`
}

// Validate enforces both sub-configs' invariants.
func (s Snapshot) Validate() error {
	if err := s.Detector.Validate(); err != nil {
		return fmt.Errorf("anomaly: %w", err)
	}
	if err := s.Reporter.Validate(); err != nil {
		return fmt.Errorf("auto_reporting: %w", err)
	}
	return nil
}

// Holder owns the live snapshot behind an atomic pointer; readers never
// block on writers and writers replace the whole snapshot atomically.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder seeds a holder with a validated initial snapshot.
func NewHolder(initial Snapshot) (*Holder, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	h := &Holder{}
	h.current.Store(&initial)
	return h, nil
}

// Get returns the current snapshot.
func (h *Holder) Get() Snapshot {
	return *h.current.Load()
}

// Set validates and atomically installs a new snapshot. Callers are
// responsible for propagating the change into the live detector and
// reporter (window migration, bucket/state-machine reset policy).
func (h *Holder) Set(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	h.current.Store(&s)
	return nil
}

// DefaultSnapshot returns the out-of-the-box tunables for both sub-systems.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Detector: detector.DefaultConfig(),
		Reporter: autoreport.DefaultConfig(),
	}
}

// Load builds a Viper instance the way the rest of this service's ambient
// stack does: defaults registered first, an optional config file next, then
// ANOMALY_-prefixed environment overrides. The config file has a top-level
// "anomaly" section and "auto_reporting" section.
func Load(configPath string) (*viper.Viper, Snapshot, error) {
	v := viper.New()
	v.SetEnvPrefix("ANOMALY")
	v.AutomaticEnv()

	def := DefaultSnapshot()
	setDefaults(v, def)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, Snapshot{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var snap Snapshot
	if err := v.Unmarshal(&snap); err != nil {
		return nil, Snapshot{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, Snapshot{}, fmt.Errorf("config: %w", err)
	}
	return v, snap, nil
}

func setDefaults(v *viper.Viper, s Snapshot) {
	v.SetDefault("anomaly.window_size", s.Detector.WindowSize)
	v.SetDefault("anomaly.min_data_points", s.Detector.MinDataPoints)
	v.SetDefault("anomaly.min_training_size", s.Detector.MinTrainingSize)
	v.SetDefault("anomaly.z_score_threshold", s.Detector.ZScoreThreshold)

	v.SetDefault("auto_reporting.enabled", s.Reporter.Enabled)
	v.SetDefault("auto_reporting.bucket.critical_points", s.Reporter.Bucket.CriticalPoints)
	v.SetDefault("auto_reporting.bucket.high_points", s.Reporter.Bucket.HighPoints)
	v.SetDefault("auto_reporting.bucket.medium_points", s.Reporter.Bucket.MediumPoints)
	v.SetDefault("auto_reporting.bucket.low_points", s.Reporter.Bucket.LowPoints)
	v.SetDefault("auto_reporting.bucket.decay_rate_per_minute", s.Reporter.Bucket.DecayRatePerMinute)
	v.SetDefault("auto_reporting.bucket.decay_interval_seconds", s.Reporter.Bucket.DecayIntervalSeconds)
	v.SetDefault("auto_reporting.bucket.max_capacity", s.Reporter.Bucket.MaxCapacity)

	v.SetDefault("auto_reporting.threshold.base_warning_threshold", s.Reporter.Threshold.BaseWarning)
	v.SetDefault("auto_reporting.threshold.base_critical_threshold", s.Reporter.Threshold.BaseCritical)
	v.SetDefault("auto_reporting.threshold.adaptation_window", s.Reporter.Threshold.AdaptationWindow)
	v.SetDefault("auto_reporting.threshold.min_samples_for_adaptation", s.Reporter.Threshold.MinSamplesForAdaptation)
	v.SetDefault("auto_reporting.threshold.min_threshold_multiplier", s.Reporter.Threshold.MinMultiplier)
	v.SetDefault("auto_reporting.threshold.max_threshold_multiplier", s.Reporter.Threshold.MaxMultiplier)
	v.SetDefault("auto_reporting.threshold.hysteresis_margin", s.Reporter.Threshold.HysteresisMargin)

	v.SetDefault("auto_reporting.state.report_on_warning_entry", s.Reporter.State.ReportOnWarningEntry)
	v.SetDefault("auto_reporting.state.report_on_critical_entry", s.Reporter.State.ReportOnCriticalEntry)
	v.SetDefault("auto_reporting.state.report_on_critical_exit", s.Reporter.State.ReportOnCriticalExit)
	v.SetDefault("auto_reporting.state.report_on_normal_return", s.Reporter.State.ReportOnNormalReturn)
	v.SetDefault("auto_reporting.state.normal_cooldown", s.Reporter.State.NormalCooldown)
	v.SetDefault("auto_reporting.state.warning_cooldown", s.Reporter.State.WarningCooldown)
	v.SetDefault("auto_reporting.state.critical_cooldown", s.Reporter.State.CriticalCooldown)
	v.SetDefault("auto_reporting.state.confirmation_delay", s.Reporter.State.ConfirmationDelay)

	v.SetDefault("auto_reporting.anomaly_window", s.Reporter.AnomalyWindow)
	v.SetDefault("auto_reporting.multi_sensor_threshold", s.Reporter.MultiSensorThreshold)
	v.SetDefault("auto_reporting.working_hours_only", s.Reporter.WorkingHoursOnly)
	v.SetDefault("auto_reporting.working_hours_start", s.Reporter.WorkingHoursStart)
	v.SetDefault("auto_reporting.working_hours_end", s.Reporter.WorkingHoursEnd)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logs.directory", "logs")
}
