package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/events"
	"dealer_coach_backend/platform/config"
	"dealer_coach_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	to      []string
	reports []DispatchReport
	err     error
}

func (f *fakeSender) SendDispatchReport(_ context.Context, to string, r DispatchReport) error {
	f.to = append(f.to, to)
	f.reports = append(f.reports, r)
	return f.err
}

func sampleResults() []domain.DispatchResult {
	return []domain.DispatchResult{
		{Recipient: "D100", Level: domain.LevelHigh, Success: true},
		{Recipient: "D101", Success: false, Detail: "review service returned 500"},
	}
}

func TestRenderDispatchReport(t *testing.T) {
	subject, body, err := renderDispatchReport(DispatchReport{
		Goal:    "Lift <conversion>",
		Action:  "group_send",
		Results: sampleResults(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Coaching dispatch needs attention: 1 of 2 failed", subject)
	assert.Contains(t, body, "Lift &lt;conversion&gt;")
	assert.Contains(t, body, "D100")
	assert.Contains(t, body, "review service returned 500")
	assert.Contains(t, body, "1 sent, 1 failed")
	assert.True(t, strings.HasPrefix(body, "<!DOCTYPE html>"))
}

func TestRenderDispatchReportAllSent(t *testing.T) {
	subject, _, err := renderDispatchReport(DispatchReport{Results: sampleResults()[:1]})
	require.NoError(t, err)
	assert.Equal(t, "Coaching dispatch: 1 sent, 0 failed", subject)
}

func TestReportMailerSendsOnDispatch(t *testing.T) {
	sender := &fakeSender{}
	m := NewReportMailer(sender, "manager@dealer.test", logger.Discard())
	bus := events.NewInMemoryBus(logger.Discard())
	m.Subscribe(bus)

	err := bus.PublishSync(context.Background(), events.SessionDispatched{
		BaseEvent: events.NewBaseEvent(),
		SessionID: uuid.New(),
		Goal:      "Lift conversion",
		Action:    "approve",
		Results:   sampleResults(),
	})
	require.NoError(t, err)

	require.Len(t, sender.reports, 1)
	assert.Equal(t, []string{"manager@dealer.test"}, sender.to)
	assert.Equal(t, "approve", sender.reports[0].Action)
	assert.Len(t, sender.reports[0].Results, 2)
}

func TestReportMailerSkipsEmptySessions(t *testing.T) {
	sender := &fakeSender{}
	m := NewReportMailer(sender, "manager@dealer.test", logger.Discard())
	require.NoError(t, m.Send(context.Background(), events.SessionDispatched{}))
	assert.Empty(t, sender.reports)
}

func TestReportMailerReturnsSenderError(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	m := NewReportMailer(sender, "manager@dealer.test", logger.Discard())
	err := m.Send(context.Background(), events.SessionDispatched{Results: sampleResults()})
	assert.EqualError(t, err, "smtp down")
}

func TestNewSenderWithoutSMTP(t *testing.T) {
	_, ok := NewSender(&config.Config{}, logger.Discard()).(NoopSender)
	assert.True(t, ok)

	s := NewSender(&config.Config{SMTPHost: "mail.local", EmailFromAddress: "coach@dealer.test", ManagerEmail: "m@dealer.test"}, logger.Discard())
	_, ok = s.(*SMTPSender)
	assert.True(t, ok)
}
