package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/reportengine/internal/config"
	"gopkg.in/gomail.v2"
)

type EmailNotifier struct {
	from    string
	to      []string
	deliver func(m ...*gomail.Message) error
}

func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		from:    cfg.From,
		to:      cfg.To,
		deliver: newDialer(cfg).DialAndSend,
	}
}

// newDialer authenticates as Username, falling back to the From address.
func newDialer(cfg config.EmailConfig) *gomail.Dialer {
	username := cfg.Username
	if username == "" {
		username = cfg.From
	}
	return gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, username, cfg.Password)
}

// newEmailNotifierWithSender sends through s instead of dialing SMTP.
func newEmailNotifierWithSender(from string, to []string, s gomail.Sender) *EmailNotifier {
	return &EmailNotifier{
		from: from,
		to:   to,
		deliver: func(m ...*gomail.Message) error {
			return gomail.Send(s, m...)
		},
	}
}

func (e *EmailNotifier) Notify(ctx context.Context, o Outcome) error {
	// gomail cannot abort a dial, so a done context only stops new sends.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("email notification not sent: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to...)
	m.SetHeader("Subject", subject(o))
	m.SetBody("text/plain", emailBody(o))

	if err := e.deliver(m); err != nil {
		return fmt.Errorf("failed to send email notification: %w", err)
	}
	return nil
}

func emailBody(o Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schedule: %s\n", o.Schedule.Name)
	fmt.Fprintf(&b, "Template: %s\n", o.Schedule.TemplateID)
	fmt.Fprintf(&b, "Account: %s\n", o.Schedule.AccountID)
	fmt.Fprintf(&b, "Ran at: %s\n", o.At.Format("2006-01-02 15:04:05 MST"))
	if o.Failed() {
		fmt.Fprintf(&b, "Error: %s\n", o.Err)
	} else {
		fmt.Fprintf(&b, "Report: %s\n", o.ReportID)
	}
	fmt.Fprintf(&b, "Next run: %s\n", o.NextRun.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}
