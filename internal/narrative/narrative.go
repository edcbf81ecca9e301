// Package narrative generates the human-readable summary attached to a
// dispatched report. The real implementation is an external LLM
// collaborator; this package only defines the narrow interface and a
// deterministic fallback so the dispatcher never blocks on it.
package narrative

import (
	"context"
	"fmt"
	"sort"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

// Generator produces a narrative summary for a batch of anomalies. Real
// implementations (an LLM client) may fail or time out; callers must fall
// back to Summarize on any error.
type Generator interface {
	Summarize(ctx context.Context, anomalies []sensor.BufferedAnomaly) (string, error)
}

// FallbackGenerator deterministically groups anomalies by sensor type and
// reports counts and peak severity, used when no external generator is
// configured or the external one fails.
type FallbackGenerator struct{}

// Summarize never fails; it is the backstop for a failing external Generator.
func (FallbackGenerator) Summarize(_ context.Context, anomalies []sensor.BufferedAnomaly) (string, error) {
	return Summarize(anomalies), nil
}

// Summarize builds a deterministic group-by-sensor-type summary string.
func Summarize(anomalies []sensor.BufferedAnomaly) string {
	if len(anomalies) == 0 {
		return "no anomalies in the reporting window"
	}

	type group struct {
		count        int
		worst        sensor.Severity
		latestReason string
	}
	groups := make(map[string]*group)
	for _, a := range anomalies {
		g, ok := groups[a.SensorType]
		if !ok {
			g = &group{}
			groups[a.SensorType] = g
		}
		g.count++
		if severityRank(a.Severity) > severityRank(g.worst) {
			g.worst = a.Severity
		}
		g.latestReason = a.Message
	}

	types := make([]string, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Strings(types)

	out := fmt.Sprintf("%d anomalies across %d sensor type(s):", len(anomalies), len(types))
	for _, t := range types {
		g := groups[t]
		out += fmt.Sprintf(" %s(%d, peak=%s)", t, g.count, g.worst)
	}
	return out
}

func severityRank(s sensor.Severity) int {
	switch s {
	case sensor.SeverityHigh:
		return 3
	case sensor.SeverityMedium:
		return 2
	case sensor.SeverityLow:
		return 1
	default:
		return 0
	}
}
