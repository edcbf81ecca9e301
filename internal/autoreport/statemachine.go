package autoreport

import (
	"sync"
	"time"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

// pendingTransition tracks a candidate state change awaiting confirmation.
type pendingTransition struct {
	target sensor.State
	since  time.Time
}

// stateMachine drives the NORMAL/WARNING/CRITICAL escalation, gated by a
// confirmation delay so transient spikes don't flip the reported state.
type stateMachine struct {
	mu      sync.Mutex
	cfg     StateConfig
	current sensor.State
	pending *pendingTransition
}

func newStateMachine(cfg StateConfig) *stateMachine {
	return &stateMachine{cfg: cfg, current: sensor.StateNormal}
}

func (m *stateMachine) state() sensor.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *stateMachine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = sensor.StateNormal
	m.pending = nil
}

func (m *stateMachine) reconfigure(cfg StateConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// evaluate derives the target state from score + thresholds + affected
// sensor count, then applies the pending-confirmation gate. It returns a
// committed sensor.StateTransition only when the machine actually moves.
func (m *stateMachine) evaluate(score, warning, critical float64, affectedSensors []string, multiSensorThreshold int) *sensor.StateTransition {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := sensor.StateNormal
	switch {
	case score >= critical:
		target = sensor.StateCritical
	case score >= warning:
		target = sensor.StateWarning
	}

	if len(affectedSensors) >= multiSensorThreshold {
		target = sensor.StateCritical
	}

	if target == m.current {
		m.pending = nil
		return nil
	}

	now := time.Now()
	if m.pending == nil || m.pending.target != target {
		m.pending = &pendingTransition{target: target, since: now}
	}

	if now.Sub(m.pending.since) < m.cfg.ConfirmationDelay {
		return nil
	}

	from := m.current
	m.current = target
	m.pending = nil

	return &sensor.StateTransition{
		From:            from,
		To:              target,
		At:              now,
		BucketScore:     score,
		Warning:         warning,
		Critical:        critical,
		Trigger:         string(triggerFor(from, target)),
		AnomalyCount:    len(affectedSensors),
		AffectedSensors: affectedSensors,
	}
}

// triggerFor names the commit edge, used both as the transition's trigger
// label and to decide whether the edge is configured to report.
func triggerFor(from, to sensor.State) sensor.TriggerType {
	switch {
	case to == sensor.StateCritical && from != sensor.StateCritical:
		return sensor.TriggerCriticalEntry
	case to == sensor.StateWarning && from == sensor.StateNormal:
		return sensor.TriggerWarningEntry
	case from == sensor.StateCritical && to != sensor.StateCritical:
		return sensor.TriggerCriticalExit
	case to == sensor.StateNormal:
		return sensor.TriggerNormalReturn
	default:
		return sensor.TriggerWarningEntry
	}
}

// shouldReport decides, per the state config, whether a committed edge is
// configured to emit a report.
func (c StateConfig) shouldReport(trigger sensor.TriggerType) bool {
	switch trigger {
	case sensor.TriggerCriticalEntry:
		return c.ReportOnCriticalEntry
	case sensor.TriggerWarningEntry:
		return c.ReportOnWarningEntry
	case sensor.TriggerCriticalExit:
		return c.ReportOnCriticalExit
	case sensor.TriggerNormalReturn:
		return c.ReportOnNormalReturn
	default:
		return false
	}
}

// cooldownFor returns the configured cooldown duration for a state.
func (c StateConfig) cooldownFor(state sensor.State) time.Duration {
	switch state {
	case sensor.StateCritical:
		return c.CriticalCooldown
	case sensor.StateWarning:
		return c.WarningCooldown
	default:
		return c.NormalCooldown
	}
}

// riskLevelFor maps a state to the ReportDecision's risk level label.
func riskLevelFor(state sensor.State) string {
	switch state {
	case sensor.StateCritical:
		return "CRITICAL"
	case sensor.StateWarning:
		return "HIGH"
	default:
		return "LOW"
	}
}
