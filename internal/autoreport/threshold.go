package autoreport

import (
	"sync"
	"time"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

type scoreSample struct {
	at    time.Time
	score float64
}

// adaptiveThreshold recalculates warning/critical thresholds from recent
// bucket score history, so a chronically noisy environment doesn't report
// constantly and a quiet one doesn't miss modest deviations.
type adaptiveThreshold struct {
	mu       sync.Mutex
	cfg      ThresholdConfig
	samples  []scoreSample
	warning  float64
	critical float64
}

func newAdaptiveThreshold(cfg ThresholdConfig) *adaptiveThreshold {
	return &adaptiveThreshold{
		cfg:      cfg,
		warning:  cfg.BaseWarning,
		critical: cfg.BaseCritical,
	}
}

// recordScore appends the latest bucket score and recalculates thresholds
// once enough samples have accumulated in the adaptation window.
func (a *adaptiveThreshold) recordScore(score float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	a.samples = append(a.samples, scoreSample{at: now, score: score})
	a.prune(now)
	if len(a.samples) < a.cfg.MinSamplesForAdaptation {
		return
	}
	var sum float64
	for _, s := range a.samples {
		sum += s.score
	}
	avg := sum / float64(len(a.samples))
	factor := 1.0 + (avg/a.cfg.BaseCritical)*AdaptationCoefficient
	factor = clamp(factor, a.cfg.MinMultiplier, a.cfg.MaxMultiplier)
	a.warning = a.cfg.BaseWarning * factor
	a.critical = a.cfg.BaseCritical * factor
}

// prune drops samples outside the adaptation window. Caller holds the mutex.
func (a *adaptiveThreshold) prune(now time.Time) {
	cutoff := now.Add(-a.cfg.AdaptationWindow)
	i := 0
	for ; i < len(a.samples); i++ {
		if a.samples[i].at.After(cutoff) {
			break
		}
	}
	a.samples = a.samples[i:]
}

// thresholdsFor applies hysteresis around the current state so transitions
// at the boundary don't flap.
func (a *adaptiveThreshold) thresholdsFor(state sensor.State) (warning, critical float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	margin := a.cfg.HysteresisMargin
	switch state {
	case sensor.StateCritical:
		return a.warning, a.critical * (1 - margin)
	case sensor.StateWarning:
		return a.warning * (1 - margin), a.critical
	default:
		return a.warning, a.critical
	}
}

func (a *adaptiveThreshold) reconfigure(cfg ThresholdConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
