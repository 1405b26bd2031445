package email

import (
	"context"

	"dealer_coach_backend/internal/events"
	"dealer_coach_backend/platform/logger"
)

// ReportMailer sends the manager a summary of every dispatched session.
type ReportMailer struct {
	sender Sender
	to     string
	log    *logger.Logger
}

func NewReportMailer(sender Sender, to string, log *logger.Logger) *ReportMailer {
	return &ReportMailer{sender: sender, to: to, log: log}
}

// Subscribe wires the mailer to SessionDispatched events.
func (m *ReportMailer) Subscribe(bus events.Bus) {
	bus.Subscribe(events.SessionDispatched{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		dispatched, ok := e.(events.SessionDispatched)
		if !ok {
			return nil
		}
		return m.Send(ctx, dispatched)
	}))
}

// Send mails one report. Sessions without results produce no mail.
func (m *ReportMailer) Send(ctx context.Context, e events.SessionDispatched) error {
	if len(e.Results) == 0 || m.to == "" {
		return nil
	}
	err := m.sender.SendDispatchReport(ctx, m.to, DispatchReport{
		Goal:    e.Goal,
		Action:  e.Action,
		Results: e.Results,
	})
	if err != nil {
		m.log.Error("dispatch report failed", "session", e.SessionID, "error", err)
		return err
	}
	m.log.Info("dispatch report sent", "session", e.SessionID, "failed", e.Failed())
	return nil
}
