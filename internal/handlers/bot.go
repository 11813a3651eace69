package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/rotabot/internal/autocomplete"
	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/player"
	"github.com/sonroyaalmerol/rotabot/internal/repository"
	"github.com/sonroyaalmerol/rotabot/internal/resolver"
	"github.com/sonroyaalmerol/rotabot/internal/ui"
)

type Bot struct {
	cfg  *config.Config
	repo *repository.Repo
	dg   *discordgo.Session
	pm   *player.PlayerManager
	cmd  *CommandHandler
}

func NewBot(cfg *config.Config, repo *repository.Repo, res *resolver.Resolver, engine player.Engine) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	pm := player.NewPlayerManager(cfg, repo, engine, ui.NewAnnouncer(dg))
	cmd := NewCommandHandler(cfg, repo, pm, res, autocomplete.NewSuggester(res.Spotify()))
	return &Bot{cfg: cfg, repo: repo, dg: dg, pm: pm, cmd: cmd}, nil
}

// Players exposes the player manager so engine events can be routed to it.
func (b *Bot) Players() *player.PlayerManager { return b.pm }

// Run connects to the gateway and blocks until ctx is done. Every player
// session is torn down before it returns.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.cmd.HandleInteraction)
	b.dg.AddHandler(b.onVoiceStateUpdate)

	if err := b.dg.Open(); err != nil {
		return err
	}
	defer b.dg.Close()

	<-ctx.Done()
	slog.Info("shutting down players")
	b.pm.Shutdown(context.Background())
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("connected", "user", r.User.Username, "guilds", len(r.Guilds))

	if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: b.cfg.BotStatus,
		Activities: []*discordgo.Activity{{
			Name: b.cfg.BotActivity,
			Type: discordgo.ActivityTypeListening,
		}},
	}); err != nil {
		slog.Warn("failed to set presence", "err", err)
	}

	appID := r.User.ID
	if b.cfg.RegisterCommandsOnBot {
		if err := b.cmd.RegisterCommands(s, appID, ""); err != nil {
			slog.Error("register global commands", "err", err)
		}
		return
	}

	var wg sync.WaitGroup
	for _, g := range r.Guilds {
		wg.Add(1)
		go func(guildID string) {
			defer wg.Done()
			if err := b.cmd.RegisterCommands(s, appID, guildID); err != nil {
				slog.Error("register guild commands", "guildID", guildID, "err", err)
			}
		}(g.ID)
	}
	wg.Wait()

	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
		slog.Error("clear global commands", "err", err)
	}
}

// onGuildCreate registers commands on guilds joined after startup.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.cfg.RegisterCommandsOnBot || s.State.User == nil {
		return
	}
	if err := b.cmd.RegisterCommands(s, s.State.User.ID, g.ID); err != nil {
		slog.Error("register guild commands on join", "guildID", g.ID, "err", err)
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	p := b.pm.Peek(vs.GuildID)
	if p == nil || !p.Connected() {
		return
	}
	ctx := context.Background()

	// kicked or moved out by someone else
	if s.State.User != nil && vs.UserID == s.State.User.ID {
		if vs.ChannelID == "" {
			slog.Info("bot left voice, ending session", "guildID", vs.GuildID)
			p.Disconnect(ctx)
		}
		return
	}

	channelID := p.ChannelID()
	joined := vs.ChannelID == channelID
	left := vs.BeforeUpdate != nil && vs.BeforeUpdate.ChannelID == channelID
	if !joined && !left {
		return
	}
	p.HandleListeners(ctx, listenerCount(s, vs.GuildID, channelID))
}

// listenerCount counts the non-bot members in channelID.
func listenerCount(s *discordgo.Session, guildID, channelID string) int {
	g, err := s.State.Guild(guildID)
	if err != nil {
		return 0
	}
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		if m := vs.Member; m != nil && m.User != nil {
			if !m.User.Bot {
				n++
			}
			continue
		}
		if m, err := s.State.Member(guildID, vs.UserID); err == nil && m.User != nil && !m.User.Bot {
			n++
		}
	}
	return n
}
