package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/rotabot/internal/autocomplete"
	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/player"
	"github.com/sonroyaalmerol/rotabot/internal/repository"
	"github.com/sonroyaalmerol/rotabot/internal/resolver"
)

// commandTimeout bounds a single interaction, including query resolution.
const commandTimeout = 2 * time.Minute

type commandFunc func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate)

type CommandHandler struct {
	cfg      *config.Config
	repo     *repository.Repo
	pm       *player.PlayerManager
	resolver *resolver.Resolver
	suggest  *autocomplete.Suggester
	limiter  *userLimiter

	commands map[string]commandFunc
}

func NewCommandHandler(cfg *config.Config, repo *repository.Repo, pm *player.PlayerManager, res *resolver.Resolver, suggest *autocomplete.Suggester) *CommandHandler {
	h := &CommandHandler{
		cfg:      cfg,
		repo:     repo,
		pm:       pm,
		resolver: res,
		suggest:  suggest,
		limiter:  newUserLimiter(cfg.CommandRate, cfg.CommandBurst),
	}
	h.commands = map[string]commandFunc{
		"play":        h.cmdPlay,
		"skip":        h.cmdSkip,
		"back":        h.cmdBack,
		"jump":        h.cmdJump,
		"remove":      h.cmdRemove,
		"move":        h.cmdMove,
		"clear":       h.cmdClear,
		"repeat":      h.cmdRepeat,
		"queue-mode":  h.cmdQueueMode,
		"queue":       h.cmdQueue,
		"now-playing": h.cmdNowPlaying,
		"pause":       h.cmdPause,
		"resume":      h.cmdResume,
		"seek":        h.cmdSeek,
		"replay":      h.cmdReplay,
		"volume":      h.cmdVolume,
		"stop":        h.cmdStop,
		"leave":       h.cmdLeave,
		"config":      h.cmdConfig,
	}
	return h
}

var manageGuild int64 = discordgo.PermissionManageGuild

func intOpt(name, desc string, required, autocomplete bool, minValue float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name:         name,
		Description:  desc,
		Type:         discordgo.ApplicationCommandOptionInteger,
		Required:     required,
		Autocomplete: autocomplete,
		MinValue:     &minValue,
	}
}

func boolOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name:        name,
		Description: desc,
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Required:    required,
	}
}

func choices(values ...string) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, len(values))
	for i, v := range values {
		out[i] = &discordgo.ApplicationCommandOptionChoice{Name: v, Value: v}
	}
	return out
}

func configSub(name, desc string, opt *discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	sub := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: desc,
	}
	if opt != nil {
		sub.Options = []*discordgo.ApplicationCommandOption{opt}
	}
	return sub
}

// Definitions is the slash command set registered with Discord.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song (YouTube, Spotify, HLS URL, or search)",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "query or URL", Type: discordgo.ApplicationCommandOptionString, Required: true, Autocomplete: true},
				boolOpt("next", "play right after the current song", false),
				boolOpt("shuffle", "shuffle the added songs", false),
				boolOpt("split", "split a video with chapters into separate songs", false),
			},
		},
		{
			Name:        "skip",
			Description: "skip songs",
			Options:     []*discordgo.ApplicationCommandOption{intOpt("count", "how many songs to skip [default: 1]", false, false, 1)},
		},
		{Name: "back", Description: "go back to the previous song"},
		{
			Name:        "jump",
			Description: "jump to a song in the queue",
			Options:     []*discordgo.ApplicationCommandOption{intOpt("position", "queue position", true, true, 1)},
		},
		{
			Name:        "remove",
			Description: "remove songs from the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "positions", Description: `positions, e.g. "2" or "2,4-6"`, Type: discordgo.ApplicationCommandOptionString, Required: true, Autocomplete: true},
			},
		},
		{
			Name:        "move",
			Description: "move a song within the queue",
			Options: []*discordgo.ApplicationCommandOption{
				intOpt("from", "position of the song to move", true, true, 1),
				intOpt("to", "position to move the song to", true, true, 1),
			},
		},
		{Name: "clear", Description: "clear the queue except the current song"},
		{
			Name:        "repeat",
			Description: "set the repeat mode",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "mode", Description: "repeat mode", Type: discordgo.ApplicationCommandOptionString, Required: true, Choices: choices("off", "track", "all")},
			},
		},
		{
			Name:        "queue-mode",
			Description: "set how the queue picks the next song",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "mode", Description: "queue mode", Type: discordgo.ApplicationCommandOptionString, Required: true, Choices: choices("standard", "fair", "shuffled")},
			},
		},
		{
			Name:        "queue",
			Description: "show the current queue",
			Options: []*discordgo.ApplicationCommandOption{
				intOpt("page", "page of queue to show [default: 1]", false, false, 1),
				intOpt("page-size", "how many items per page [max: 30]", false, false, 1),
			},
		},
		{Name: "now-playing", Description: "show the current song"},
		{Name: "pause", Description: "pause the current song"},
		{Name: "resume", Description: "resume playback"},
		{
			Name:        "seek",
			Description: "seek within the current song",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "time", Description: "90, 1:30 or 1m30s", Type: discordgo.ApplicationCommandOptionString, Required: true},
			},
		},
		{Name: "replay", Description: "restart the current song"},
		{
			Name:        "volume",
			Description: "set the playback volume",
			Options:     []*discordgo.ApplicationCommandOption{intOpt("level", "0-100", true, false, 0)},
		},
		{Name: "stop", Description: "stop playback and clear the queue"},
		{Name: "leave", Description: "leave the voice channel"},
		{
			Name:                     "config",
			Description:              "configure the bot for this server",
			DefaultMemberPermissions: &manageGuild,
			Options: []*discordgo.ApplicationCommandOption{
				configSub("get", "show settings", nil),
				configSub("set-playlist-limit", "max songs added from a playlist", intOpt("limit", "max songs", true, false, 1)),
				configSub("set-wait-after-queue-empties", "time to wait before leaving", intOpt("delay", "seconds (0 never leave)", true, false, 0)),
				configSub("set-leave-if-no-listeners", "leave when everyone left", boolOpt("value", "true/false", true)),
				configSub("set-queue-add-response-hidden", "hide queue add responses", boolOpt("value", "true/false", true)),
				configSub("set-auto-announce-next-song", "announce each new song", boolOpt("value", "true/false", true)),
				configSub("set-default-volume", "volume for new sessions", intOpt("level", "0-100", true, false, 0)),
				configSub("set-default-queue-page-size", "queue page size", intOpt("page-size", "1-30", true, false, 1)),
				configSub("set-default-queue-mode", "queue mode for new sessions", &discordgo.ApplicationCommandOption{
					Name: "mode", Description: "queue mode", Type: discordgo.ApplicationCommandOptionString, Required: true,
					Choices: choices("standard", "fair", "shuffled"),
				}),
			},
		},
	}
}

func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	cmds, err := s.ApplicationCommandBulkOverwrite(appID, guildID, Definitions())
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	slog.Info("registered commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name
	if i.GuildID == "" {
		h.reply(s, i, "this only works in a server", true)
		return
	}
	fn, ok := h.commands[name]
	if !ok {
		slog.Debug("unknown command", "name", name, "guildID", i.GuildID)
		return
	}
	if !h.limiter.Allow(userIDOf(i)) {
		h.reply(s, i, "slow down a little", true)
		return
	}
	slog.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", name)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	fn(ctx, s, i)
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	focused := focusedOption(data.Options)
	if focused == nil {
		return
	}
	typed := fmt.Sprint(focused.Value)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out []*discordgo.ApplicationCommandOptionChoice
	switch data.Name {
	case "play":
		out = h.suggest.PlayChoices(ctx, typed, 10)
	case "jump", "move":
		out = autocomplete.QueueChoices(h.pm.Peek(i.GuildID), typed)
	case "remove":
		out = autocomplete.QueueChoices(h.pm.Peek(i.GuildID), typed)
		for _, c := range out {
			c.Value = fmt.Sprint(c.Value)
		}
	default:
		return
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: out},
	}); err != nil {
		slog.Debug("autocomplete respond failed", "guildID", i.GuildID, "err", err)
	}
}

func focusedOption(opts []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range opts {
		if o.Focused {
			return o
		}
		if f := focusedOption(o.Options); f != nil {
			return f
		}
	}
	return nil
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// options indexes the top-level options of a command, or of its
// subcommand when there is one.
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	out := make(options, len(opts))
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

func (o options) str(name string) string {
	if v, ok := o[name]; ok {
		return v.StringValue()
	}
	return ""
}

func (o options) integer(name string, def int) int {
	if v, ok := o[name]; ok {
		return int(v.IntValue())
	}
	return def
}

func (o options) boolean(name string) bool {
	if v, ok := o[name]; ok {
		return v.BoolValue()
	}
	return false
}

func (h *CommandHandler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func flags(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	h.respond(s, i, &discordgo.InteractionResponseData{Content: content, Flags: flags(ephemeral)})
}

func (h *CommandHandler) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, e *discordgo.MessageEmbed, ephemeral bool) {
	h.respond(s, i, &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{e}, Flags: flags(ephemeral)})
}

// replyErr answers with a message fit for users and logs what they don't see.
func (h *CommandHandler) replyErr(s *discordgo.Session, i *discordgo.InteractionCreate, cmd string, err error) {
	msg, known := userMessage(err)
	if !known {
		slog.Error("command failed", "command", cmd, "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
	h.reply(s, i, msg, true)
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags(ephemeral)},
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}
