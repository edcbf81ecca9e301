package autoreport

import (
	"math"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

// severityBucket is the auto-reporter's own coarser severity scale, derived
// from the raw z-score independently of the detector's Normal/Medium/High
// classification. It decides point weight, not detector verdicts.
type severityBucket int

const (
	bucketLow severityBucket = iota
	bucketMedium
	bucketHigh
	bucketCritical
)

// bucketFromZScore buckets a raw z-score magnitude into the reporter's scale.
func bucketFromZScore(z float64) severityBucket {
	az := math.Abs(z)
	switch {
	case az > 4.0:
		return bucketCritical
	case az > 3.5:
		return bucketHigh
	case az > 2.5:
		return bucketMedium
	default:
		return bucketLow
	}
}

// bucketFromDetectorSeverity maps the detector's own severity onto the same
// scale so the two can be compared and the higher one kept.
func bucketFromDetectorSeverity(s sensor.Severity) severityBucket {
	switch s {
	case sensor.SeverityHigh:
		return bucketHigh
	case sensor.SeverityMedium:
		return bucketMedium
	default:
		return bucketLow
	}
}

// effectiveBucket derives the z-score bucket and promotes it to the
// detector's own severity when that one ranks higher.
func effectiveBucket(result sensor.AnomalyResult) severityBucket {
	fromZ := bucketFromZScore(result.ZScore)
	fromDetector := bucketFromDetectorSeverity(result.Severity)
	if fromDetector > fromZ {
		return fromDetector
	}
	return fromZ
}
