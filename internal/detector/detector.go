// Package detector implements the per-sensor streaming Z-score anomaly
// detector: a bounded rolling window per sensor type (C1) feeding a
// learning-phase-aware evaluation pipeline (C2).
package detector

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

// windowManager owns one rollingWindow per sensor type, created lazily:
// a map guarded by a single RWMutex with double-checked locking on the
// creation path.
type windowManager struct {
	mu      sync.RWMutex
	windows map[string]*rollingWindow
	cap     int
}

func newWindowManager(capacity int) *windowManager {
	return &windowManager{
		windows: make(map[string]*rollingWindow),
		cap:     capacity,
	}
}

func (m *windowManager) getOrCreate(sensorType string) *rollingWindow {
	m.mu.RLock()
	w, ok := m.windows[sensorType]
	m.mu.RUnlock()
	if ok {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[sensorType]; ok {
		return w
	}
	w = newRollingWindow(m.cap)
	m.windows[sensorType] = w
	return w
}

// resizeAll migrates every existing window to a new capacity, oldest values
// first, dropping the oldest entries when shrinking.
func (m *windowManager) resizeAll(newCapacity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cap = newCapacity
	for _, w := range m.windows {
		w.resize(newCapacity)
	}
}

// snapshot returns a point-in-time copy of sensor type -> window contents,
// safe to use after releasing the manager's lock.
func (m *windowManager) snapshot() map[string][]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float64, len(m.windows))
	for st, w := range m.windows {
		vals := make([]float64, w.size)
		for i := 0; i < w.size; i++ {
			vals[i] = w.values[(w.head+i)%w.capacity]
		}
		out[st] = vals
	}
	return out
}

func (m *windowManager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = make(map[string]*rollingWindow)
}

// Detector evaluates readings against per-sensor-type rolling baselines.
// It owns the windows exclusively; nothing else may mutate them.
type Detector struct {
	mu      sync.Mutex
	cfg     Config
	windows *windowManager
	logger  *zap.Logger
}

// New constructs a Detector from validated configuration.
func New(cfg Config, logger *zap.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("detector config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		cfg:     cfg,
		windows: newWindowManager(cfg.WindowSize),
		logger:  logger,
	}, nil
}

// Evaluate classifies one reading against the sensor type's baseline and then
// appends the reading to that baseline, so the reading never biases its own
// verdict. The detector serializes the whole evaluate-then-append sequence
// so concurrent readings for the same sensor type are linearized.
func (d *Detector) Evaluate(reading sensor.Reading) sensor.AnomalyResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.windows.getOrCreate(reading.SensorType)
	result := d.classify(reading, w)
	w.push(reading.Value)
	return result
}

func (d *Detector) classify(reading sensor.Reading, w *rollingWindow) sensor.AnomalyResult {
	threshold := d.cfg.thresholdFor(reading.SensorType)
	ts := reading.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	count := w.count()
	if count < d.cfg.MinDataPoints {
		return sensor.AnomalyResult{
			SensorID:     reading.SensorID,
			SensorType:   reading.SensorType,
			CurrentValue: reading.Value,
			Mean:         reading.Value,
			StdDev:       0,
			ZScore:       0,
			Threshold:    threshold,
			Timestamp:    ts,
			IsAnomaly:    false,
			Severity:     sensor.SeverityNormal,
			SystemStatus: sensor.StatusInitializing,
			WindowSize:   count,
			Message:      fmt.Sprintf("insufficient data (%s): %d/%d", reading.SensorType, count, d.cfg.MinDataPoints),
		}
	}

	mean := w.mean()
	stdDev := w.stdDev()
	z := (reading.Value - mean) / stdDev

	minTraining := d.cfg.minTrainingSizeFor(reading.SensorType)
	status := sensor.StatusActive
	isAnomaly := false
	severity := sensor.SeverityNormal

	if count < minTraining {
		status = sensor.StatusLearning
	} else {
		isAnomaly = math.Abs(z) > threshold
		if isAnomaly {
			switch {
			case math.Abs(z) > threshold*1.5:
				severity = sensor.SeverityHigh
			default:
				severity = sensor.SeverityMedium
			}
		}
	}

	return sensor.AnomalyResult{
		SensorID:     reading.SensorID,
		SensorType:   reading.SensorType,
		CurrentValue: reading.Value,
		Mean:         mean,
		StdDev:       stdDev,
		ZScore:       z,
		Threshold:    threshold,
		Timestamp:    ts,
		IsAnomaly:    isAnomaly,
		Severity:     severity,
		SystemStatus: status,
		WindowSize:   count,
		Message:      message(reading, mean, stdDev, z, isAnomaly, status),
	}
}

func message(reading sensor.Reading, mean, stdDev, z float64, isAnomaly bool, status sensor.SystemStatus) string {
	band := fmt.Sprintf("%.3f±%.3f", mean, stdDev)
	if !isAnomaly {
		return fmt.Sprintf("%s: %.3f within expected band %s (z=%.2f, status=%s)", reading.SensorType, reading.Value, band, z, status)
	}
	return fmt.Sprintf("anomaly detected on %s: %.3f outside expected band %s (z=%.2f)", reading.SensorType, reading.Value, band, z)
}

// Stats returns the per-sensor-type statistics summary for GET /stats.
func (d *Detector) Stats() []sensor.StatSummary {
	snap := d.windows.snapshot()
	out := make([]sensor.StatSummary, 0, len(snap))
	for st, values := range snap {
		if len(values) == 0 {
			continue
		}
		w := newRollingWindow(len(values))
		for _, v := range values {
			w.push(v)
		}
		minV, maxV := values[0], values[0]
		for _, v := range values {
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
		out = append(out, sensor.StatSummary{
			SensorType: st,
			DataPoints: len(values),
			Mean:       w.mean(),
			StdDev:     w.stdDev(),
			Min:        minV,
			Max:        maxV,
			Latest:     values[len(values)-1],
		})
	}
	return out
}

// Reconfigure atomically swaps the detector's tunables, migrating every
// existing window into a newly-sized FIFO rather than discarding history.
func (d *Detector) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("detector config: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.windows.resizeAll(cfg.WindowSize)
	return nil
}

// Config returns a copy of the detector's current tunables.
func (d *Detector) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Reset clears every rolling window, returning every sensor type to
// Initializing status on its next reading.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows.clear()
}
