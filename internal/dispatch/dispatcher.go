// Package dispatch implements the report dispatcher (C10): a bounded queue
// that decouples the auto-reporter's synchronous decision from the
// asynchronous narrative and mail hand-off.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/sentineld/internal/autoreport"
	"github.com/HerbHall/sentineld/internal/mailer"
	"github.com/HerbHall/sentineld/internal/narrative"
	"github.com/HerbHall/sentineld/pkg/sensor"
)

const queueCapacity = 256

// defaultDispatchRate caps how many reports leave the dispatcher per second,
// so a storm of decisions can't hammer the mail adapter; the queue still
// absorbs the burst and drops oldest on overflow.
const defaultDispatchRate = 2.0

// Dispatcher consumes ReportDecisions one at a time off a bounded,
// drop-oldest queue and hands assembled payloads to the mail adapter.
type Dispatcher struct {
	queue      chan *sensor.ReportDecision
	limiter    *rate.Limiter
	reporter   *autoreport.Reporter
	mailer     mailer.Mailer
	narrator   narrative.Generator
	recipients []string
	logger     *zap.Logger

	overflowCount int
	failureCount  int
}

// New constructs a dispatcher. narrator may be nil, in which case the
// deterministic fallback summary is always used.
func New(reporter *autoreport.Reporter, m mailer.Mailer, narrator narrative.Generator, recipients []string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if narrator == nil {
		narrator = narrative.FallbackGenerator{}
	}
	return &Dispatcher{
		queue:      make(chan *sensor.ReportDecision, queueCapacity),
		limiter:    rate.NewLimiter(rate.Limit(defaultDispatchRate), 1),
		reporter:   reporter,
		mailer:     m,
		narrator:   narrator,
		recipients: recipients,
		logger:     logger,
	}
}

// Enqueue hands a decision to the dispatcher's queue, dropping the oldest
// queued decision on overflow rather than blocking the ingest path.
func (d *Dispatcher) Enqueue(decision *sensor.ReportDecision) {
	select {
	case d.queue <- decision:
	default:
		select {
		case <-d.queue:
			d.overflowCount++
			d.logger.Warn("dispatch queue full, dropped oldest pending decision")
		default:
		}
		select {
		case d.queue <- decision:
		default:
			d.overflowCount++
		}
	}
}

// Run drains the queue until ctx is cancelled, processing one decision at a
// time on its own scheduling context so ingest latency never depends on it.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case decision := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.process(ctx, decision)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, decision *sensor.ReportDecision) {
	dispatchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	narrativeText, err := d.narrator.Summarize(dispatchCtx, decision.Anomalies)
	if err != nil {
		d.logger.Warn("narrative generation failed, using deterministic fallback", zap.Error(err))
		narrativeText = narrative.Summarize(decision.Anomalies)
	}

	reportID := newReportID(decision.DecidedAt)
	payload := mailer.Payload{
		ReportID:        reportID,
		GeneratedAt:     decision.DecidedAt.Format(time.RFC3339),
		PeriodStart:     periodStart(decision).Format(time.RFC3339),
		PeriodEnd:       decision.DecidedAt.Format(time.RFC3339),
		Reason:          decision.Reason,
		RiskLevel:       decision.RiskLevel,
		AffectedSensors: decision.AffectedSensors,
		AnomalyCount:    len(decision.Anomalies),
		Narrative:       narrativeText,
	}

	ok, err := d.mailer.Send(dispatchCtx, payload, d.recipients)
	if err != nil || !ok {
		d.failureCount++
		d.reporter.ClearPending()
		d.logger.Error("report dispatch failed", zap.String("report_id", reportID), zap.Error(err))
		return
	}

	d.reporter.MarkReportTriggered(decision)
}

// newReportID builds a sortable, timestamp-derived report identifier: a
// UTC timestamp prefix (so reports sort and grep chronologically) followed
// by a UUID suffix (so two reports in the same second never collide).
func newReportID(at time.Time) string {
	return at.UTC().Format("20060102T150405.000Z") + "-" + uuid.NewString()
}

func periodStart(decision *sensor.ReportDecision) time.Time {
	if len(decision.Anomalies) == 0 {
		return decision.DecidedAt
	}
	return decision.Anomalies[0].AddedAt
}

// Stats reports dispatcher-level counters for the auto-report status endpoint.
func (d *Dispatcher) Stats() (overflow, failures int) {
	return d.overflowCount, d.failureCount
}

