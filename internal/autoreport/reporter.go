package autoreport

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

const anomalyBufferCapacity = 1000

// Reporter orchestrates the leaky bucket, adaptive thresholds, and state
// machine into the single observe-an-anomaly decision path.
type Reporter struct {
	mu      sync.Mutex
	cfg     Config
	bucket  *leakyBucket
	thresh  *adaptiveThreshold
	machine *stateMachine
	buffer  []sensor.BufferedAnomaly

	lastReportAt map[sensor.State]time.Time
	pendingReport bool

	reportsSent           int
	reportsSkippedCooldown int

	logger *zap.Logger
}

// New constructs a Reporter from validated configuration.
func New(cfg Config, logger *zap.Logger) (*Reporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		cfg:          cfg,
		bucket:       newLeakyBucket(cfg.Bucket),
		thresh:       newAdaptiveThreshold(cfg.Threshold),
		machine:      newStateMachine(cfg.State),
		lastReportAt: make(map[sensor.State]time.Time),
		logger:       logger,
	}, nil
}

// Observe feeds one detector verdict through the pipeline and returns a
// ReportDecision when, and only when, a report should actually be sent.
func (r *Reporter) Observe(result sensor.AnomalyResult) *sensor.ReportDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cfg.Enabled || !result.IsAnomaly {
		return nil
	}

	now := time.Now()
	r.buffer = append(r.buffer, sensor.BufferedAnomaly{AnomalyResult: result, AddedAt: now})
	if len(r.buffer) > anomalyBufferCapacity {
		r.buffer = r.buffer[len(r.buffer)-anomalyBufferCapacity:]
	}

	bucket := effectiveBucket(result)
	score := r.bucket.add(bucket)
	r.thresh.recordScore(score)

	affected := r.affectedSensors(now)

	current := r.machine.state()
	warning, critical := r.thresh.thresholdsFor(current)
	transition := r.machine.evaluate(score, warning, critical, affected, r.cfg.MultiSensorThreshold)
	if transition == nil {
		return nil
	}

	trigger := triggerTypeOf(transition)
	if !r.cfg.State.shouldReport(trigger) {
		return nil
	}

	if r.inCooldown(transition.To, now) {
		r.reportsSkippedCooldown++
		return nil
	}

	if !r.withinWorkingHours(now) {
		return nil
	}

	if r.pendingReport {
		return nil
	}
	r.pendingReport = true

	decision := &sensor.ReportDecision{
		ShouldReport:    true,
		Reason:          string(trigger),
		RiskLevel:       riskLevelFor(transition.To),
		TriggerType:     trigger,
		CurrentState:    transition.To,
		PreviousState:   transition.From,
		BucketScore:     score,
		Warning:         warning,
		Critical:        critical,
		Anomalies:       append([]sensor.BufferedAnomaly(nil), r.buffer...),
		AffectedSensors: affected,
		DecidedAt:       now,
	}
	return decision
}

// MarkReportTriggered records that a decision was actually dispatched,
// clearing the pending flag and updating the per-state cooldown clock.
func (r *Reporter) MarkReportTriggered(decision *sensor.ReportDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastReportAt[decision.CurrentState] = time.Now()
	r.reportsSent++
	r.pendingReport = false
}

// ClearPending releases the duplicate-suppression flag without recording a
// successful dispatch, used when a dispatch attempt ultimately fails.
func (r *Reporter) ClearPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingReport = false
}

func (r *Reporter) inCooldown(state sensor.State, now time.Time) bool {
	last, ok := r.lastReportAt[state]
	if !ok {
		return false
	}
	return now.Sub(last) < r.cfg.State.cooldownFor(state)
}

func (r *Reporter) withinWorkingHours(now time.Time) bool {
	if !r.cfg.WorkingHoursOnly {
		return true
	}
	hour := now.Hour()
	return hour >= r.cfg.WorkingHoursStart && hour < r.cfg.WorkingHoursEnd
}

// affectedSensors returns the distinct sensor types anomalous within the
// configured correlation window, newest entries first in buffer order.
func (r *Reporter) affectedSensors(now time.Time) []string {
	cutoff := now.Add(-r.cfg.AnomalyWindow)
	seen := make(map[string]struct{})
	var out []string
	for i := len(r.buffer) - 1; i >= 0; i-- {
		a := r.buffer[i]
		if a.AddedAt.Before(cutoff) {
			break
		}
		if _, ok := seen[a.SensorType]; !ok {
			seen[a.SensorType] = struct{}{}
			out = append(out, a.SensorType)
		}
	}
	return out
}

// triggerTypeOf returns the committed transition's trigger label. A
// multi-sensor-forced critical entry is labelled critical_entry, the same as
// an organically-escalated one.
func triggerTypeOf(t *sensor.StateTransition) sensor.TriggerType {
	return sensor.TriggerType(t.Trigger)
}

// State returns the reporter's current committed state.
func (r *Reporter) State() sensor.State {
	return r.machine.state()
}

// Stats exposes reporting counters for observability endpoints.
func (r *Reporter) Stats() (sent, skippedCooldown int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reportsSent, r.reportsSkippedCooldown
}

// Reset clears the anomaly buffer, bucket, state machine, and duplicate-
// suppression flag, returning to a fresh NORMAL state. Per-state last-report
// timestamps and cumulative counters are preserved, matching the behaviour
// that resetting detection state does not erase reporting history.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = nil
	r.bucket.reset()
	r.machine.reset()
	r.pendingReport = false
}

// ClearBuffer empties the anomaly buffer without touching bucket score or
// state, used by the clear-buffer maintenance endpoint.
func (r *Reporter) ClearBuffer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = nil
}

// Config returns a copy of the reporter's current tunables.
func (r *Reporter) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Reconfigure atomically swaps the reporter's tunables. Plain threshold
// changes preserve accumulated bucket score and state; a structural change
// to the bucket's own parameters or the state machine's parameters resets
// that component, since its accumulated value no longer means what it did.
func (r *Reporter) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	bucketChanged := r.cfg.Bucket != cfg.Bucket
	stateChanged := r.cfg.State != cfg.State

	r.cfg = cfg
	r.bucket.reconfigure(cfg.Bucket)
	r.thresh.reconfigure(cfg.Threshold)
	r.machine.reconfigure(cfg.State)

	if bucketChanged {
		r.bucket.reset()
	}
	if stateChanged {
		r.machine.reset()
	}
	return nil
}
