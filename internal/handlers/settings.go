package handlers

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/rotabot/internal/repository"
	"github.com/sonroyaalmerol/rotabot/internal/ui"
)

// settingUpdate applies one /config set-* subcommand. It returns the
// confirmation shown to the user.
type settingUpdate func(set *repository.Settings, opts options) string

var settingUpdates = map[string]settingUpdate{
	"set-playlist-limit": func(set *repository.Settings, o options) string {
		set.PlaylistLimit = o.integer("limit", set.PlaylistLimit)
		return "playlist limit updated"
	},
	"set-wait-after-queue-empties": func(set *repository.Settings, o options) string {
		set.SecondsWaitAfterEmpty = o.integer("delay", set.SecondsWaitAfterEmpty)
		return "wait delay updated"
	},
	"set-leave-if-no-listeners": func(set *repository.Settings, o options) string {
		set.LeaveIfNoListeners = o.boolean("value")
		return "leave setting updated"
	},
	"set-queue-add-response-hidden": func(set *repository.Settings, o options) string {
		set.QAddEphemeral = o.boolean("value")
		return "queue add notification setting updated"
	},
	"set-auto-announce-next-song": func(set *repository.Settings, o options) string {
		set.AutoAnnounceNext = o.boolean("value")
		return "auto announce setting updated"
	},
	"set-default-volume": func(set *repository.Settings, o options) string {
		set.DefaultVolume = o.integer("level", set.DefaultVolume)
		return "default volume updated"
	},
	"set-default-queue-page-size": func(set *repository.Settings, o options) string {
		set.DefaultQueuePageSize = o.integer("page-size", set.DefaultQueuePageSize)
		return "default queue page size updated"
	},
	"set-default-queue-mode": func(set *repository.Settings, o options) string {
		set.DefaultQueueMode = o.str("mode")
		return "default queue mode updated"
	},
}

func (h *CommandHandler) cmdConfig(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]

	if sub.Name == "get" {
		set, err := h.repo.GetSettings(ctx, i.GuildID)
		if err != nil {
			h.replyErr(s, i, "config", err)
			return
		}
		h.replyEmbed(s, i, ui.SettingsEmbed(set), false)
		return
	}

	update, ok := settingUpdates[sub.Name]
	if !ok {
		slog.Debug("unknown config subcommand", "name", sub.Name, "guildID", i.GuildID)
		return
	}
	var msg string
	_, err := h.repo.UpdateSetting(ctx, i.GuildID, func(set *repository.Settings) {
		msg = update(set, optionsOf(sub.Options))
	})
	if err != nil {
		h.replyErr(s, i, "config", err)
		return
	}
	slog.Info("config updated", "guildID", i.GuildID, "userID", userIDOf(i), "key", sub.Name)
	h.reply(s, i, "👍 "+msg, false)
}
