package ui

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/rotabot/internal/player"
)

// Announcer posts now-playing messages into the channel a queue was last
// used from.
type Announcer struct {
	s *discordgo.Session
}

var _ player.Announcer = (*Announcer)(nil)

func NewAnnouncer(s *discordgo.Session) *Announcer {
	return &Announcer{s: s}
}

func (a *Announcer) AnnounceNowPlaying(ctx context.Context, channelID string, snap player.Snapshot) (*player.NowPlayingMessage, error) {
	msg, err := a.s.ChannelMessageSendEmbed(channelID, NowPlayingEmbed(snap), discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return &player.NowPlayingMessage{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func (a *Announcer) AnnounceQueueEnd(ctx context.Context, channelID string) error {
	_, err := a.s.ChannelMessageSendEmbed(channelID, QueueEndEmbed(), discordgo.WithContext(ctx))
	return err
}

func (a *Announcer) DeleteMessage(msg *player.NowPlayingMessage) error {
	if msg == nil {
		return nil
	}
	return a.s.ChannelMessageDelete(msg.ChannelID, msg.MessageID)
}
