// Package email delivers manager reports over SMTP.
package email

import (
	"context"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/platform/config"
	"dealer_coach_backend/platform/logger"
)

// DispatchReport summarises one terminal coaching session for the manager.
type DispatchReport struct {
	Goal    string
	Action  string
	Results []domain.DispatchResult
}

// Sender delivers manager reports.
type Sender interface {
	SendDispatchReport(ctx context.Context, toEmail string, report DispatchReport) error
}

// NoopSender drops every message. It is used when SMTP is not configured.
type NoopSender struct {
	log *logger.Logger
}

func (s NoopSender) SendDispatchReport(_ context.Context, toEmail string, report DispatchReport) error {
	if s.log != nil {
		s.log.Debug("smtp disabled, dispatch report dropped", "to", toEmail, "rows", len(report.Results))
	}
	return nil
}

// NewSender returns an SMTP sender when SMTP is configured, a NoopSender otherwise.
func NewSender(cfg config.SMTPConfig, log *logger.Logger) Sender {
	if !cfg.IsSMTPEnabled() {
		return NoopSender{log: log}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}
