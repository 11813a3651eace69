package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"github.com/sonroyaalmerol/rotabot/internal/player"
	"github.com/sonroyaalmerol/rotabot/internal/queue"
	"github.com/sonroyaalmerol/rotabot/internal/repository"
	"github.com/sonroyaalmerol/rotabot/internal/track"
	"github.com/sonroyaalmerol/rotabot/internal/utils"
)

const (
	colorPlaying = 0x006400
	colorPaused  = 0x8B0000
	colorIdle    = 0x992222
	colorInfo    = 0x2B6CB0
)

var ErrPageOutOfRange = errors.New("the queue isn't that big")

// trackLink renders a markdown link, starting YouTube links at the track's
// offset.
func trackLink(t track.Track) string {
	title := utils.EscapeMd(utils.Truncate(t.Title, 80))
	link := t.Link()
	if t.Source == track.SourceYouTube && t.Offset > 0 {
		link += fmt.Sprintf("&t=%d", t.Offset)
	}
	return fmt.Sprintf("[%s](%s)", title, link)
}

func trackDuration(t track.Track) string {
	if t.IsLive {
		return "live"
	}
	return utils.PrettyTime(t.Remaining())
}

func repeatIcon(m queue.RepeatMode) string {
	switch m {
	case queue.RepeatTrack:
		return "🔂"
	case queue.RepeatAll:
		return "🔁"
	default:
		return ""
	}
}

// progressLine is the "⏸️ ▬▬🔘▬ [ 1:02/3:30 ] 🔁" line under a track.
func progressLine(snap player.Snapshot) string {
	cur := snap.Current.Track
	button := "▶️"
	if snap.Status == player.StatusPaused {
		button = "⏸️"
	}

	elapsed := int(snap.Elapsed/time.Second) - cur.Offset
	progress := 0.0
	timing := "live"
	if !cur.IsLive {
		if total := cur.Remaining(); total > 0 {
			progress = float64(elapsed) / float64(total)
		}
		timing = utils.PrettyTime(elapsed) + "/" + utils.PrettyTime(cur.Remaining())
	}
	line := fmt.Sprintf("%s %s `[ %s ]`", button, ProgressBar(10, progress), timing)
	if icon := repeatIcon(snap.Repeat); icon != "" {
		line += " " + icon
	}
	return line
}

func sourceFooter(t track.Track) *discordgo.MessageEmbedFooter {
	text := "Source: " + t.Artist
	if t.Playlist != nil && t.Playlist.Title != "" {
		text += " (" + t.Playlist.Title + ")"
	}
	return &discordgo.MessageEmbedFooter{Text: text}
}

func withThumbnail(e *discordgo.MessageEmbed, t track.Track) *discordgo.MessageEmbed {
	if t.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.Thumbnail}
	}
	return e
}

func NowPlayingEmbed(snap player.Snapshot) *discordgo.MessageEmbed {
	if snap.Current == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "The queue is empty.",
			Color:       colorIdle,
		}
	}
	cur := snap.Current

	title, color := "Now Playing", colorPlaying
	if snap.Status == player.StatusPaused {
		title, color = "Paused", colorPaused
	}
	desc := fmt.Sprintf("**%s**\nRequested by <@%s> %s\n\n%s",
		trackLink(cur.Track),
		cur.Requester,
		humanize.Time(cur.AddedAt),
		progressLine(snap),
	)
	if len(snap.Upcoming) > 0 {
		desc += "\n\nUp next: " + trackLink(snap.Upcoming[0].Track)
	}

	return withThumbnail(&discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       color,
		Footer:      sourceFooter(cur.Track),
	}, cur.Track)
}

func QueueEndEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Queue finished",
		Description: "Add more songs with `/play`.",
		Color:       colorIdle,
	}
}

func pageCount(total, pageSize int) int {
	return max(1, (total+pageSize-1)/pageSize)
}

// QueueEmbed renders one page of upcoming items. entries and total come
// from Player.QueuePage.
func QueueEmbed(snap player.Snapshot, entries []player.QueueEntry, total, page, pageSize int) (*discordgo.MessageEmbed, error) {
	if snap.Current == nil && total == 0 {
		return nil, queue.ErrQueueEmpty
	}
	pages := pageCount(total, pageSize)
	if page > pages {
		return nil, ErrPageOutOfRange
	}

	var b strings.Builder
	if snap.Current != nil {
		fmt.Fprintf(&b, "**%s**\nRequested by <@%s>\n%s\n\n",
			trackLink(snap.Current.Track), snap.Current.Requester, progressLine(snap))
	}
	if len(entries) > 0 {
		b.WriteString("**Up next:**\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "`%d.` %s `[ %s ]` <@%s>\n",
				e.Position, trackLink(e.Item.Track), trackDuration(e.Item.Track), e.Item.Requester)
		}
	}

	songs := "-"
	if snap.Len > 0 {
		songs = humanize.Comma(int64(snap.Len)) + " " + plural(snap.Len, "song", "songs")
	}
	e := &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: b.String(),
		Color:       colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: songs, Inline: true},
			{Name: "Mode", Value: snap.Indexer.String(), Inline: true},
			{Name: "Repeat", Value: snap.Repeat.String(), Inline: true},
			{Name: "Page", Value: fmt.Sprintf("%d out of %d", page, pages), Inline: true},
		},
	}
	if snap.Current != nil {
		e.Footer = sourceFooter(snap.Current.Track)
		withThumbnail(e, snap.Current.Track)
	}
	return e, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// AddedMessage describes what an enqueue did, e.g.
// "**Song** added to the queue at position 3".
func AddedMessage(res player.EnqueueResult, next bool, notes []string) string {
	var b strings.Builder
	switch n := len(res.Added); {
	case n == 0:
		b.WriteString("Nothing was added.")
	case n == 1:
		fmt.Fprintf(&b, "**%s** added to the", utils.EscapeMd(res.Added[0].Track.Title))
	default:
		fmt.Fprintf(&b, "**%s** songs added to the", humanize.Comma(int64(n)))
	}
	if len(res.Added) > 0 {
		switch {
		case res.Started:
			b.WriteString(" queue and now playing")
		case next:
			b.WriteString(" front of the queue")
		default:
			fmt.Fprintf(&b, " queue at position %d", res.Position)
		}
	}
	for _, n := range notes {
		b.WriteString("\n-# " + n)
	}
	return b.String()
}

func SettingsEmbed(s *repository.Settings) *discordgo.MessageEmbed {
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}
	wait := "never"
	if s.SecondsWaitAfterEmpty > 0 {
		wait = (time.Duration(s.SecondsWaitAfterEmpty) * time.Second).String()
	}
	return &discordgo.MessageEmbed{
		Title: "Settings",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Playlist limit", Value: humanize.Comma(int64(s.PlaylistLimit)), Inline: true},
			{Name: "Leave when idle after", Value: wait, Inline: true},
			{Name: "Leave if no listeners", Value: onOff(s.LeaveIfNoListeners), Inline: true},
			{Name: "Ephemeral queue adds", Value: onOff(s.QAddEphemeral), Inline: true},
			{Name: "Announce next song", Value: onOff(s.AutoAnnounceNext), Inline: true},
			{Name: "Default volume", Value: fmt.Sprintf("%d%%", s.DefaultVolume), Inline: true},
			{Name: "Queue page size", Value: fmt.Sprint(s.DefaultQueuePageSize), Inline: true},
			{Name: "Default queue mode", Value: s.DefaultQueueMode, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Last changed " + humanize.Time(s.UpdatedAt)},
	}
}
