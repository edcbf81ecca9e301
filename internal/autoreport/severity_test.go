package autoreport

import (
	"testing"

	"github.com/HerbHall/sentineld/pkg/sensor"
)

func TestBucketFromZScore(t *testing.T) {
	cases := []struct {
		z    float64
		want severityBucket
	}{
		{4.1, bucketCritical},
		{-4.1, bucketCritical},
		{3.6, bucketHigh},
		{2.6, bucketMedium},
		{1.0, bucketLow},
	}
	for _, tc := range cases {
		if got := bucketFromZScore(tc.z); got != tc.want {
			t.Errorf("bucketFromZScore(%v) = %v, want %v", tc.z, got, tc.want)
		}
	}
}

func TestEffectiveBucket_PromotesFromDetectorSeverity(t *testing.T) {
	result := sensor.AnomalyResult{ZScore: 1.0, Severity: sensor.SeverityHigh}
	if got := effectiveBucket(result); got != bucketHigh {
		t.Errorf("expected the detector's High severity to promote a low z-bucket, got %v", got)
	}
}
