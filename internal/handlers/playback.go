package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/rotabot/internal/player"
	"github.com/sonroyaalmerol/rotabot/internal/queue"
	"github.com/sonroyaalmerol/rotabot/internal/resolver"
	"github.com/sonroyaalmerol/rotabot/internal/ui"
	"github.com/sonroyaalmerol/rotabot/internal/utils"
)

func userInVoice(s *discordgo.Session, guildID, userID string) (string, bool) {
	vs, err := s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

// session returns the guild's player, replying to the user when there is
// none to act on.
func (h *CommandHandler) session(s *discordgo.Session, i *discordgo.InteractionCreate) *player.Player {
	p := h.pm.Peek(i.GuildID)
	if p == nil || !p.Connected() {
		h.reply(s, i, "I'm not in a voice channel", true)
		return nil
	}
	return p
}

func (h *CommandHandler) cmdPlay(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionsOf(i.ApplicationCommandData().Options)
	query := opts.str("query")
	next := opts.boolean("next")
	shuffle := opts.boolean("shuffle")
	split := opts.boolean("split")
	userID := userIDOf(i)

	chID, ok := userInVoice(s, i.GuildID, userID)
	if !ok {
		h.reply(s, i, "gotta be in a voice channel", true)
		return
	}
	set, err := h.repo.GetSettings(ctx, i.GuildID)
	if err != nil {
		h.replyErr(s, i, "play", err)
		return
	}
	h.deferReply(s, i, set.QAddEphemeral)

	res, err := h.resolver.Resolve(ctx, query, resolver.Options{Limit: set.PlaylistLimit, Split: split})
	if err != nil {
		msg, known := userMessage(err)
		if !known {
			slog.Warn("resolve failed", "guildID", i.GuildID, "query", query, "err", err)
		}
		h.editReply(s, i, msg)
		return
	}
	if shuffle {
		utils.ShuffleSlice(res.Tracks)
	}

	p := h.pm.Get(ctx, i.GuildID)
	if err := p.Connect(s, chID); err != nil {
		slog.Warn("voice connect failed", "guildID", i.GuildID, "channelID", chID, "err", err)
		h.editReply(s, i, "couldn't connect to your channel")
		return
	}

	added, err := p.Enqueue(ctx, res.Tracks, player.EnqueueOptions{
		Requester: userID,
		ChannelID: i.ChannelID,
		Next:      next,
	})
	if err != nil && len(added.Added) == 0 {
		msg, _ := userMessage(err)
		h.editReply(s, i, msg)
		return
	}
	if err != nil {
		slog.Warn("playback did not start", "guildID", i.GuildID, "err", err)
	}
	slog.Info("cmd play", "guildID", i.GuildID, "userID", userID, "query", query, "added", len(added.Added), "next", next, "shuffle", shuffle)
	h.editReply(s, i, ui.AddedMessage(added, next, res.Notes))
}

func nowPlayingLine(it *queue.Item) string {
	if it == nil {
		return "nothing left to play"
	}
	return fmt.Sprintf("now playing **%s**", utils.EscapeMd(it.Track.Title))
}

func (h *CommandHandler) cmdSkip(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	n := optionsOf(i.ApplicationCommandData().Options).integer("count", 1)
	it, err := p.Skip(ctx, n)
	if err != nil {
		h.replyErr(s, i, "skip", err)
		return
	}
	slog.Info("cmd skip", "guildID", i.GuildID, "userID", userIDOf(i), "count", n)
	h.reply(s, i, "skipped, "+nowPlayingLine(it), false)
}

func (h *CommandHandler) cmdBack(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	it, err := p.Back(ctx)
	if err != nil {
		h.replyErr(s, i, "back", err)
		return
	}
	slog.Info("cmd back", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "went back, "+nowPlayingLine(it), false)
}

func (h *CommandHandler) cmdJump(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	pos := optionsOf(i.ApplicationCommandData().Options).integer("position", 1)
	it, err := p.Jump(ctx, pos)
	if err != nil {
		h.replyErr(s, i, "jump", err)
		return
	}
	slog.Info("cmd jump", "guildID", i.GuildID, "userID", userIDOf(i), "position", pos)
	h.reply(s, i, "jumped, "+nowPlayingLine(it), false)
}

func (h *CommandHandler) cmdRemove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	raw := optionsOf(i.ApplicationCommandData().Options).str("positions")

	r := p.Data().Read()
	n := r.Queue().Len()
	r.Release()

	positions, err := queue.ParsePositionList(raw, n)
	if err != nil {
		h.replyErr(s, i, "remove", err)
		return
	}
	removed, err := p.Remove(ctx, positions)
	if err != nil && len(removed) == 0 {
		h.replyErr(s, i, "remove", err)
		return
	}
	slog.Info("cmd remove", "guildID", i.GuildID, "userID", userIDOf(i), "positions", raw, "removed", len(removed))
	if len(removed) == 1 {
		h.reply(s, i, fmt.Sprintf("removed **%s**", utils.EscapeMd(removed[0].Track.Title)), false)
		return
	}
	h.reply(s, i, fmt.Sprintf("removed %d songs", len(removed)), false)
}

func (h *CommandHandler) cmdMove(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	opts := optionsOf(i.ApplicationCommandData().Options)
	from, to := opts.integer("from", 0), opts.integer("to", 0)
	it, err := p.Move(from, to)
	if err != nil {
		h.replyErr(s, i, "move", err)
		return
	}
	slog.Info("cmd move", "guildID", i.GuildID, "userID", userIDOf(i), "from", from, "to", to)
	h.reply(s, i, fmt.Sprintf("moved **%s** to position %d", utils.EscapeMd(it.Track.Title), to), false)
}

func (h *CommandHandler) cmdClear(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	n, err := p.Clear()
	if err != nil {
		h.replyErr(s, i, "clear", err)
		return
	}
	slog.Info("cmd clear", "guildID", i.GuildID, "userID", userIDOf(i), "removed", n)
	h.reply(s, i, fmt.Sprintf("cleared %d songs", n), false)
}

func (h *CommandHandler) cmdRepeat(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	mode, err := queue.ParseRepeatMode(optionsOf(i.ApplicationCommandData().Options).str("mode"))
	if err != nil {
		h.replyErr(s, i, "repeat", err)
		return
	}
	if err := p.SetRepeat(mode); err != nil {
		h.replyErr(s, i, "repeat", err)
		return
	}
	slog.Info("cmd repeat", "guildID", i.GuildID, "userID", userIDOf(i), "mode", mode.String())
	h.reply(s, i, "repeat is now **"+mode.String()+"**", false)
}

func (h *CommandHandler) cmdQueueMode(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	kind, err := queue.ParseIndexerKind(optionsOf(i.ApplicationCommandData().Options).str("mode"))
	if err != nil {
		h.replyErr(s, i, "queue-mode", err)
		return
	}
	p.SetQueueMode(kind)
	slog.Info("cmd queue-mode", "guildID", i.GuildID, "userID", userIDOf(i), "mode", kind.String())
	h.reply(s, i, "queue mode is now **"+kind.String()+"**", false)
}

func (h *CommandHandler) cmdQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	opts := optionsOf(i.ApplicationCommandData().Options)
	pageSize := 10
	if set, err := h.repo.GetSettings(ctx, i.GuildID); err == nil {
		pageSize = set.DefaultQueuePageSize
	}
	pageSize = min(opts.integer("page-size", pageSize), 30)
	page := opts.integer("page", 1)

	entries, total := p.QueuePage(page, pageSize)
	e, err := ui.QueueEmbed(p.Snapshot(0), entries, total, page, pageSize)
	if err != nil {
		h.replyErr(s, i, "queue", err)
		return
	}
	h.replyEmbed(s, i, e, false)
}

func (h *CommandHandler) cmdNowPlaying(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	h.replyEmbed(s, i, ui.NowPlayingEmbed(p.Snapshot(1)), false)
}

func (h *CommandHandler) cmdPause(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	if err := p.Pause(); err != nil {
		h.replyErr(s, i, "pause", err)
		return
	}
	slog.Info("cmd pause", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "paused", false)
}

func (h *CommandHandler) cmdResume(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	if err := p.Resume(ctx); err != nil {
		h.replyErr(s, i, "resume", err)
		return
	}
	slog.Info("cmd resume", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "resumed", false)
}

func (h *CommandHandler) cmdSeek(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	sec, err := utils.ParseDuration(optionsOf(i.ApplicationCommandData().Options).str("time"))
	if err != nil {
		h.replyErr(s, i, "seek", err)
		return
	}
	cur := p.Snapshot(0).Current
	if cur == nil {
		h.replyErr(s, i, "seek", queue.ErrNotPlaying)
		return
	}
	// positions are relative to where the track starts
	pos := time.Duration(cur.Track.Offset+sec) * time.Second
	if err := p.Seek(ctx, pos); err != nil {
		h.replyErr(s, i, "seek", err)
		return
	}
	slog.Info("cmd seek", "guildID", i.GuildID, "userID", userIDOf(i), "seconds", sec)
	h.reply(s, i, "seeked to "+utils.PrettyTime(sec), false)
}

func (h *CommandHandler) cmdReplay(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	if err := p.Replay(ctx); err != nil {
		h.replyErr(s, i, "replay", err)
		return
	}
	slog.Info("cmd replay", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "back to the start", false)
}

func (h *CommandHandler) cmdVolume(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	level := optionsOf(i.ApplicationCommandData().Options).integer("level", player.DefaultVolume)
	if err := p.SetVolume(level); err != nil {
		h.replyErr(s, i, "volume", err)
		return
	}
	slog.Info("cmd volume", "guildID", i.GuildID, "userID", userIDOf(i), "level", level)
	h.reply(s, i, fmt.Sprintf("volume set to %d%%", level), false)
}

func (h *CommandHandler) cmdStop(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	if p.Status() == player.StatusIdle {
		h.reply(s, i, "not currently playing", true)
		return
	}
	if err := p.Stop(ctx); err != nil {
		slog.Warn("engine stop failed", "guildID", i.GuildID, "err", err)
	}
	slog.Info("cmd stop", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "u betcha, stopped", false)
}

func (h *CommandHandler) cmdLeave(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	p := h.session(s, i)
	if p == nil {
		return
	}
	p.Disconnect(ctx)
	slog.Info("cmd leave", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "u betcha, disconnected", false)
}
