// Package ingest implements the ingest coordinator (C7): the single
// operation that ties the detector, log store, broadcast hub, auto-reporter,
// and dispatcher together for one incoming reading.
package ingest

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/sentineld/internal/autoreport"
	"github.com/HerbHall/sentineld/internal/broadcast"
	"github.com/HerbHall/sentineld/internal/detector"
	"github.com/HerbHall/sentineld/internal/dispatch"
	"github.com/HerbHall/sentineld/internal/logstore"
	"github.com/HerbHall/sentineld/pkg/sensor"
)

// ValidationError marks a reading that failed input validation; callers
// should surface this as a 4xx response.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "ingest: " + e.Reason }

// Coordinator wires C2, C8, C9, C6, and C10 behind the single ingest entry
// point. All steps through broadcast are synchronous; report dispatch hands
// off to its own scheduling context.
type Coordinator struct {
	detector   *detector.Detector
	logs       *logstore.Store
	hub        *broadcast.Hub
	reporter   *autoreport.Reporter
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

// New constructs a Coordinator. reporter and dispatcher may be nil to run
// detection-only, without auto-reporting.
func New(d *detector.Detector, logs *logstore.Store, hub *broadcast.Hub, reporter *autoreport.Reporter, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		detector:   d,
		logs:       logs,
		hub:        hub,
		reporter:   reporter,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Ingest validates, evaluates, logs, broadcasts, and — for anomalies — drives
// the auto-reporter and hands any resulting decision to the dispatcher.
func (c *Coordinator) Ingest(ctx context.Context, reading sensor.Reading) (sensor.AnomalyResult, error) {
	if err := ctx.Err(); err != nil {
		return sensor.AnomalyResult{}, fmt.Errorf("ingest: deadline exceeded before evaluation: %w", err)
	}
	if err := validate(reading); err != nil {
		return sensor.AnomalyResult{}, err
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}

	result := c.detector.Evaluate(reading)

	if c.logs != nil {
		if err := c.logs.Log(result); err != nil {
			c.logger.Warn("log store write failed, continuing", zap.Error(err), zap.String("sensor_type", reading.SensorType))
		}
	}

	if c.hub != nil {
		c.hub.Broadcast(result)
	}

	if result.IsAnomaly && c.reporter != nil {
		if decision := c.reporter.Observe(result); decision != nil && c.dispatcher != nil {
			c.dispatcher.Enqueue(decision)
		}
	}

	return result, nil
}

func validate(reading sensor.Reading) error {
	if reading.SensorType == "" {
		return &ValidationError{Reason: "sensor_type must not be empty"}
	}
	if math.IsNaN(reading.Value) || math.IsInf(reading.Value, 0) {
		return &ValidationError{Reason: "value must be finite"}
	}
	return nil
}
