package player

import (
	"context"
	"log/slog"

	"github.com/sonroyaalmerol/rotabot/internal/queue"
)

// HandleTrackEnd reacts to the engine reporting that a track stopped.
//
// A command that repositions the queue takes the advance lock under the
// write guard before it makes the engine switch tracks. Ends the player
// caused itself only consume that permit. A natural end waits for a racing
// command to claim it, then advances only if the session that ended is
// still the one the player started last.
func (p *Player) HandleTrackEnd(ctx context.Context, ev TrackEnd) {
	logger := slog.With("guildID", p.guildID, "reason", ev.Reason.String(), "title", ev.Track.Title)
	switch ev.Reason {
	case EndCleanup:
		return
	case EndStopped, EndReplaced:
		p.data.AdvanceLock().Wait(ctx, 0)
		logger.Debug("track end caused by the player, not advancing")
		return
	}
	if ev.Err != nil {
		logger.Warn("track ended with error", "err", ev.Err)
	}

	claimed := p.data.AdvanceLock().Wait(ctx, p.cfg.AdvanceLockTimeout)
	if ctx.Err() != nil {
		return
	}

	w := p.data.Write()
	defer w.Release()
	if w.Session() != ev.Session {
		logger.Debug("track end already handled by a command")
		return
	}
	if claimed {
		logger.Debug("discarded an advance lock left by an earlier command")
	}
	q := w.QueueMut()
	if q.IsEmpty() {
		w.Release()
		p.afterStart(ctx, false)
		return
	}

	// A track that cannot load would otherwise repeat forever.
	if ev.Reason == EndLoadFailed && q.RepeatMode() == queue.RepeatTrack {
		q.SetRepeatMode(queue.RepeatOff)
	}
	q.Advance()

	_, started, err := p.startCurrentLocked(ctx, w)
	w.Release()
	if err != nil {
		logger.Error("failed to start next track", "err", err)
	}
	p.afterStart(ctx, started)
}

// HandleListeners reacts to the number of non-bot members left in the bot's
// voice channel. It only reads the queue.
func (p *Player) HandleListeners(ctx context.Context, listeners int) {
	if listeners > 0 {
		if !p.isAutoPaused() {
			return
		}
		if err := p.Resume(ctx); err != nil {
			slog.Debug("auto-resume failed", "guildID", p.guildID, "err", err)
			return
		}
		slog.Info("listeners are back, resumed", "guildID", p.guildID)
		return
	}

	if p.settings != nil {
		if set, err := p.settings.GetSettings(ctx, p.guildID); err == nil && set != nil && set.LeaveIfNoListeners {
			slog.Info("no listeners left, leaving", "guildID", p.guildID)
			p.Disconnect(ctx)
			return
		}
	}

	r := p.data.Read()
	_, hasCurrent := r.Queue().Current()
	paused := r.Paused()
	r.Release()

	if hasCurrent && !paused {
		if err := p.Pause(); err != nil {
			slog.Debug("auto-pause failed", "guildID", p.guildID, "err", err)
		} else {
			p.mu.Lock()
			p.autoPaused = true
			p.mu.Unlock()
			slog.Info("no listeners left, paused", "guildID", p.guildID)
		}
	}
	p.scheduleIdleDisconnect()
}
