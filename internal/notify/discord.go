package notify

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Discord delivers notifications to a single channel. The session is
// REST-only: no gateway connection is opened for send-only use.
type Discord struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscord(token, channelID string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{session: session, channelID: channelID}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(text string) error {
	_, err := d.session.ChannelMessageSend(d.channelID, text)
	return err
}
