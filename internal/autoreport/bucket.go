package autoreport

import (
	"sync"
	"time"
)

// leakyBucket accumulates severity-weighted risk points and drains them at a
// fixed rate, so brief bursts survive but sustained anomalies build pressure.
type leakyBucket struct {
	mu        sync.Mutex
	cfg       BucketConfig
	score     float64
	lastDecay time.Time
}

func newLeakyBucket(cfg BucketConfig) *leakyBucket {
	return &leakyBucket{cfg: cfg, lastDecay: time.Now()}
}

// applyDecay drains points accrued since the last decay interval elapsed.
// Caller must hold the mutex.
func (b *leakyBucket) applyDecay(now time.Time) {
	elapsed := now.Sub(b.lastDecay)
	if elapsed.Seconds() < b.cfg.DecayIntervalSeconds {
		return
	}
	minutes := elapsed.Minutes()
	b.score -= b.cfg.DecayRatePerMinute * minutes
	if b.score < 0 {
		b.score = 0
	}
	b.lastDecay = now
}

// add decays first, then adds the severity's point weight, clamped at capacity.
func (b *leakyBucket) add(bucket severityBucket) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.applyDecay(now)
	b.score += b.cfg.pointsFor(bucket)
	if b.score > b.cfg.MaxCapacity {
		b.score = b.cfg.MaxCapacity
	}
	return b.score
}

// currentScore decays first, then returns the current value.
func (b *leakyBucket) currentScore() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyDecay(time.Now())
	return b.score
}

func (b *leakyBucket) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.score = 0
	b.lastDecay = time.Now()
}

func (b *leakyBucket) reconfigure(cfg BucketConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
}
