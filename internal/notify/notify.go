// Package notify delivers schedule run outcomes to Slack and e-mail.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reportengine/internal/config"
	"github.com/reportengine/internal/models"
)

// Outcome is the result of one schedule execution.
type Outcome struct {
	Schedule models.Schedule
	ReportID string
	Err      error
	At       time.Time
	NextRun  time.Time
}

func (o Outcome) Failed() bool { return o.Err != nil }

type Notifier interface {
	Notify(ctx context.Context, o Outcome) error
}

// Multi fans an outcome out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, o Outcome) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnlyFailures drops successful outcomes.
type OnlyFailures struct {
	Next Notifier
}

func (f OnlyFailures) Notify(ctx context.Context, o Outcome) error {
	if !o.Failed() {
		return nil
	}
	return f.Next.Notify(ctx, o)
}

// FromConfig builds the notifiers enabled in cfg. It returns nil when none is.
func FromConfig(cfg config.NotifyConfig) Notifier {
	var all Multi
	if cfg.Slack.Token != "" && cfg.Slack.Channel != "" {
		all = append(all, NewSlackNotifier(cfg.Slack.Token, cfg.Slack.Channel))
	}
	if cfg.Email.SMTPHost != "" && len(cfg.Email.To) > 0 {
		all = append(all, NewEmailNotifier(cfg.Email))
	}
	if len(all) == 0 {
		return nil
	}
	if cfg.OnSuccess {
		return all
	}
	return OnlyFailures{Next: all}
}

func subject(o Outcome) string {
	if o.Failed() {
		return fmt.Sprintf("Report schedule failed: %s", o.Schedule.Name)
	}
	return fmt.Sprintf("Report generated: %s", o.Schedule.Name)
}
