package repository

import (
	"database/sql"
	"time"

	"github.com/sonroyaalmerol/rotabot/internal/cache"
)

type Repo struct {
	db       *sql.DB
	settings *cache.TTL[string, Settings]
}

// Settings are the per-guild defaults and behaviour switches.
type Settings struct {
	GuildID               string
	PlaylistLimit         int
	SecondsWaitAfterEmpty int
	LeaveIfNoListeners    bool
	QAddEphemeral         bool
	AutoAnnounceNext      bool
	DefaultVolume         int
	DefaultQueuePageSize  int
	// DefaultQueueMode is the indexer kind a new session starts with.
	DefaultQueueMode string
	UpdatedAt        time.Time
}
