// Package mailer defines the narrow external mail hand-off used by the
// report dispatcher. The real implementation (SMTP, a transactional email
// API) lives outside this module; only the interface and a diagnostics-only
// default implementation live here.
package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Payload is the assembled report handed to the mail adapter.
type Payload struct {
	ReportID        string   `json:"report_id"`
	GeneratedAt     string   `json:"generated_at"`
	PeriodStart     string   `json:"period_start"`
	PeriodEnd       string   `json:"period_end"`
	Reason          string   `json:"reason"`
	RiskLevel       string   `json:"risk_level"`
	AffectedSensors []string `json:"affected_sensors"`
	AnomalyCount    int      `json:"anomaly_count"`
	Narrative       string   `json:"narrative"`
}

// Mailer hands a report payload off to an external notification channel.
type Mailer interface {
	Send(ctx context.Context, payload Payload, recipients []string) (bool, error)
}

// LoggingMailer is the default Mailer: it never actually sends mail, only
// logs the attempt, so the service runs end to end without SMTP configured.
type LoggingMailer struct {
	logger *zap.Logger
}

// NewLoggingMailer constructs a no-op mailer that logs every send attempt.
func NewLoggingMailer(logger *zap.Logger) *LoggingMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingMailer{logger: logger}
}

// Send always succeeds; it exists so the dispatcher has a default collaborator.
func (m *LoggingMailer) Send(_ context.Context, payload Payload, recipients []string) (bool, error) {
	m.logger.Info("report dispatched (no mail transport configured)",
		zap.String("report_id", payload.ReportID),
		zap.String("risk_level", payload.RiskLevel),
		zap.Strings("recipients", recipients),
	)
	return true, nil
}

// ErrSendFailed wraps a mail transport failure for a specific report.
func ErrSendFailed(reportID string, cause error) error {
	return fmt.Errorf("mailer: send failed for report %s: %w", reportID, cause)
}
