package notify

import (
	"github.com/slack-go/slack"
)

// Slack delivers notifications to a single channel via a bot token.
type Slack struct {
	client  *slack.Client
	channel string
}

func NewSlack(botToken, channel string) *Slack {
	return &Slack{client: slack.New(botToken), channel: channel}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(text string) error {
	_, _, err := s.client.PostMessage(s.channel, slack.MsgOptionText(text, false))
	return err
}
