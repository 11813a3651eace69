package player

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/rotabot/internal/queue"
	"github.com/sonroyaalmerol/rotabot/internal/repository"
	"github.com/sonroyaalmerol/rotabot/internal/track"
)

type PlayerStatus int

const (
	StatusPlaying PlayerStatus = iota
	StatusPaused
	StatusIdle
)

func (s PlayerStatus) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "idle"
	}
}

var (
	ErrNotConnected      = errors.New("not connected to a voice channel")
	ErrNoPrevious        = errors.New("no previous track")
	ErrNotPaused         = errors.New("not paused")
	ErrRepeatNeedsTracks = errors.New("not enough tracks to repeat")
	ErrCannotSeekLive    = errors.New("can't seek in a livestream")
	ErrSeekPastEnd       = errors.New("can't seek past the end of the track")
	ErrVolumeOutOfRange  = errors.New("volume must be between 0 and 100")
	ErrSkipCountTooSmall = errors.New("skip count must be at least 1")
	ErrMoveSamePosition  = errors.New("track is already at that position")
	ErrNothingToClear    = errors.New("nothing to clear")
)

type EndReason int

const (
	// EndFinished means the track ran out on its own.
	EndFinished EndReason = iota
	EndLoadFailed
	EndStopped
	EndReplaced
	// EndCleanup is sent when the engine session is torn down.
	EndCleanup
)

func (r EndReason) String() string {
	switch r {
	case EndFinished:
		return "finished"
	case EndLoadFailed:
		return "load_failed"
	case EndStopped:
		return "stopped"
	case EndReplaced:
		return "replaced"
	case EndCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// TrackEnd is emitted by the engine whenever a track stops playing.
type TrackEnd struct {
	GuildID string
	// Session is the value Play returned for the track that ended.
	Session uint64
	Track   track.Track
	Reason  EndReason
	Err     error
}

// Engine is the audio playback service. Calls are expected to return
// quickly; track ends are reported asynchronously on the engine's event
// channel.
type Engine interface {
	Attach(guildID string, vc *discordgo.VoiceConnection)
	Detach(guildID string)
	// Play returns a session that identifies this play in its TrackEnd.
	Play(ctx context.Context, guildID string, t track.Track, start time.Duration) (uint64, error)
	Stop(guildID string) error
	Active(guildID string) bool
	SetPaused(guildID string, paused bool) error
	SetVolume(guildID string, volume int) error
	Seek(ctx context.Context, guildID string, pos time.Duration) error
	Position(guildID string) time.Duration
}

// SettingsStore is the part of the repository the player reads.
type SettingsStore interface {
	GetSettings(ctx context.Context, guild string) (*repository.Settings, error)
}

// Announcer posts and removes now-playing messages.
type Announcer interface {
	AnnounceNowPlaying(ctx context.Context, channelID string, snap Snapshot) (*NowPlayingMessage, error)
	AnnounceQueueEnd(ctx context.Context, channelID string) error
	DeleteMessage(msg *NowPlayingMessage) error
}

// Snapshot is a consistent copy of what the ui needs to render a player.
type Snapshot struct {
	GuildID  string
	Status   PlayerStatus
	Current  *queue.Item
	Position int
	Len      int
	Elapsed  time.Duration
	Volume   int
	Repeat   queue.RepeatMode
	Indexer  queue.IndexerKind
	Upcoming []queue.Item
}
