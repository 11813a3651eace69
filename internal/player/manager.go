package player

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/queue"
)

type PlayerManager struct {
	cfg       *config.Config
	settings  SettingsStore
	engine    Engine
	announcer Announcer
	queueOpts []queue.Option

	mu      sync.Mutex
	players map[string]*Player
}

func NewPlayerManager(cfg *config.Config, settings SettingsStore, engine Engine, announcer Announcer, opts ...queue.Option) *PlayerManager {
	return &PlayerManager{
		cfg:       cfg,
		settings:  settings,
		engine:    engine,
		announcer: announcer,
		queueOpts: opts,
		players:   make(map[string]*Player),
	}
}

// Get returns the guild's player, creating it from the guild settings.
func (pm *PlayerManager) Get(ctx context.Context, guildID string) *Player {
	pm.mu.Lock()
	if p, ok := pm.players[guildID]; ok {
		pm.mu.Unlock()
		return p
	}
	pm.mu.Unlock()

	// Load settings outside lock
	vol := DefaultVolume
	kind := queue.IndexerStandard
	if pm.settings != nil {
		if set, err := pm.settings.GetSettings(ctx, guildID); err == nil && set != nil {
			vol = set.DefaultVolume
			if k, err := queue.ParseIndexerKind(set.DefaultQueueMode); err == nil {
				kind = k
			}
		}
	}
	opts := append([]queue.Option{queue.WithIndexer(kind)}, pm.queueOpts...)
	p := NewPlayer(pm.cfg, pm.settings, pm.engine, pm.announcer, guildID, NewData(vol, opts...))
	p.onClose = pm.remove

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if existing, ok := pm.players[guildID]; ok {
		return existing
	}
	pm.players[guildID] = p
	return p
}

func (pm *PlayerManager) Peek(guildID string) *Player {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.players[guildID]
}

func (pm *PlayerManager) remove(guildID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.players, guildID)
}

// Run dispatches engine events to the owning players until events is closed
// or ctx is done.
func (pm *PlayerManager) Run(ctx context.Context, events <-chan TrackEnd) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p := pm.Peek(ev.GuildID)
			if p == nil {
				slog.Debug("track end for unknown guild", "guildID", ev.GuildID, "reason", ev.Reason.String())
				continue
			}
			go p.HandleTrackEnd(ctx, ev)
		}
	}
}

// Shutdown disconnects every player.
func (pm *PlayerManager) Shutdown(ctx context.Context) {
	pm.mu.Lock()
	all := make([]*Player, 0, len(pm.players))
	for _, p := range pm.players {
		all = append(all, p)
	}
	pm.mu.Unlock()

	for _, p := range all {
		p.Disconnect(ctx)
	}
}
