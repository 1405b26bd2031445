package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements the Sender interface using a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// SendDispatchReport mails the outcome of a dispatched coaching session.
func (s *SMTPSender) SendDispatchReport(ctx context.Context, toEmail string, report DispatchReport) error {
	subject, content, err := renderDispatchReport(report)
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func renderDispatchReport(report DispatchReport) (string, string, error) {
	failed := 0
	for _, r := range report.Results {
		if !r.Success {
			failed++
		}
	}
	sent := len(report.Results) - failed

	subject := fmt.Sprintf(subjectDispatchReportFmt, sent, failed)
	if failed > 0 {
		subject = fmt.Sprintf(subjectDispatchReportFailedFmt, failed, len(report.Results))
	}

	content, err := renderEmailTemplate("dispatch_report.html", dispatchReportEmailData{
		baseEmailData: baseEmailData{
			Title:      subject,
			Heading:    "Coaching messages dispatched",
			Subheading: fmt.Sprintf("%d recipients", len(report.Results)),
		},
		Goal:   report.Goal,
		Action: report.Action,
		Sent:   sent,
		Failed: failed,
		Rows:   report.Results,
	})
	if err != nil {
		return "", "", err
	}
	return subject, content, nil
}

var _ Sender = (*SMTPSender)(nil)
