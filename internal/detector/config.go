package detector

import "fmt"

// SensorOverride narrows global thresholds for one sensor type.
type SensorOverride struct {
	Threshold       float64 `mapstructure:"threshold" json:"threshold"`
	MinTrainingSize int     `mapstructure:"min_training_size" json:"min_training_size"`
}

// Config holds the tunables for the rolling window store and detector.
type Config struct {
	WindowSize      int                       `mapstructure:"window_size" json:"window_size"`
	MinDataPoints   int                       `mapstructure:"min_data_points" json:"min_data_points"`
	MinTrainingSize int                       `mapstructure:"min_training_size" json:"min_training_size"`
	ZScoreThreshold float64                   `mapstructure:"z_score_threshold" json:"z_score_threshold"`
	Sensors         map[string]SensorOverride `mapstructure:"sensors" json:"sensors"`
}

// DefaultConfig returns the detector's out-of-the-box tunables.
func DefaultConfig() Config {
	return Config{
		WindowSize:      30,
		MinDataPoints:   7,
		MinTrainingSize: 20,
		ZScoreThreshold: 2.0,
		Sensors:         map[string]SensorOverride{},
	}
}

// Validate enforces the detector's window and threshold invariants.
func (c Config) Validate() error {
	if c.MinDataPoints < 2 {
		return fmt.Errorf("min_data_points must be >= 2, got %d", c.MinDataPoints)
	}
	if c.MinTrainingSize < c.MinDataPoints {
		return fmt.Errorf("min_training_size (%d) must be >= min_data_points (%d)", c.MinTrainingSize, c.MinDataPoints)
	}
	if c.MinDataPoints > c.WindowSize {
		return fmt.Errorf("min_data_points (%d) must be <= window_size (%d)", c.MinDataPoints, c.WindowSize)
	}
	if c.ZScoreThreshold <= 0 {
		return fmt.Errorf("z_score_threshold must be > 0, got %v", c.ZScoreThreshold)
	}
	return nil
}

// thresholdFor returns the effective z-score threshold for a sensor type.
func (c Config) thresholdFor(sensorType string) float64 {
	if o, ok := c.Sensors[sensorType]; ok && o.Threshold > 0 {
		return o.Threshold
	}
	return c.ZScoreThreshold
}

// minTrainingSizeFor returns the effective min-training-size for a sensor type.
func (c Config) minTrainingSizeFor(sensorType string) int {
	if o, ok := c.Sensors[sensorType]; ok && o.MinTrainingSize > 0 {
		return o.MinTrainingSize
	}
	return c.MinTrainingSize
}
