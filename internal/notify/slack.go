package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/slack-go/slack"
)

type SlackNotifier struct {
	client  *slack.Client
	channel string
}

func NewSlackNotifier(token, channel string, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token, opts...),
		channel: channel,
	}
}

func (s *SlackNotifier) Notify(ctx context.Context, o Outcome) error {
	fields := []slack.AttachmentField{
		{Title: "Schedule", Value: o.Schedule.Name, Short: true},
		{Title: "Frequency", Value: string(o.Schedule.Recurrence.Frequency), Short: true},
		{Title: "Next Run", Value: o.NextRun.Format("2006-01-02 15:04 MST"), Short: true},
	}
	if o.Failed() {
		fields = append(fields, slack.AttachmentField{Title: "Error", Value: o.Err.Error()})
	} else {
		fields = append(fields, slack.AttachmentField{Title: "Report", Value: o.ReportID, Short: true})
	}

	attachment := slack.Attachment{
		Color:  outcomeColor(o),
		Title:  subject(o),
		Fields: fields,
		Footer: "Report Engine",
		Ts:     json.Number(strconv.FormatInt(o.At.Unix(), 10)),
	}

	if _, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionAttachments(attachment)); err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	return nil
}

func outcomeColor(o Outcome) string {
	if o.Failed() {
		return "#ff0000"
	}
	return "#36a64f"
}
