package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/queue"
)

// Player is one guild's playback session: the voice connection, the engine
// session and the guarded queue state.
type Player struct {
	cfg       *config.Config
	settings  SettingsStore
	engine    Engine
	announcer Announcer
	guildID   string
	data      *Data
	onClose   func(guildID string)

	mu              sync.Mutex
	conn            *discordgo.VoiceConnection
	connChannelID   string
	disconnectTimer *time.Timer
	autoPaused      bool
}

func NewPlayer(cfg *config.Config, settings SettingsStore, engine Engine, announcer Announcer, guildID string, data *Data) *Player {
	return &Player{
		cfg:       cfg,
		settings:  settings,
		engine:    engine,
		announcer: announcer,
		guildID:   guildID,
		data:      data,
	}
}

func (p *Player) GuildID() string { return p.guildID }

// Data exposes the guarded state, mainly for read-only consumers such as
// autocomplete and the ui.
func (p *Player) Data() *Data { return p.data }

func (p *Player) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connChannelID
}

func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

func (p *Player) Connect(s *discordgo.Session, channelID string) error {
	p.mu.Lock()
	// already on the same channel
	if p.conn != nil && p.connChannelID == channelID {
		p.mu.Unlock()
		return nil
	}
	old := p.conn
	p.conn = nil
	p.connChannelID = ""
	p.mu.Unlock()

	if old != nil {
		p.engine.Detach(p.guildID)
		_ = p.safeDisconnect(old)
	}

	vc, err := s.ChannelVoiceJoin(p.guildID, channelID, false, true)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.conn = vc
	p.connChannelID = channelID
	p.cancelIdleDisconnectLocked()
	p.mu.Unlock()

	p.engine.Attach(p.guildID, vc)

	r := p.data.Read()
	vol := r.Volume()
	r.Release()
	if err := p.engine.SetVolume(p.guildID, vol); err != nil {
		slog.Warn("failed to apply volume", "guildID", p.guildID, "err", err)
	}
	return nil
}

// safeDisconnect disconnects vc, recovering from panics inside discordgo.
func (p *Player) safeDisconnect(vc *discordgo.VoiceConnection) (err error) {
	if vc == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Voice disconnect panic recovered",
				"panic", r,
				"guildID", p.guildID,
			)
		}
	}()
	_ = vc.Speaking(false)
	return vc.Disconnect()
}

// Disconnect ends the session: the queue is drained, the engine session torn
// down and the voice connection closed.
func (p *Player) Disconnect(ctx context.Context) {
	w := p.data.Write()
	w.QueueMut().DrainAll()
	w.SetPaused(false)
	w.SetTimestamp(0)
	w.SetSession(0)
	old := w.TakeNowPlaying()
	w.Release()

	p.engine.Detach(p.guildID)
	p.data.AdvanceLock().Reset()

	p.mu.Lock()
	p.cancelIdleDisconnectLocked()
	vc := p.conn
	p.conn = nil
	p.connChannelID = ""
	p.autoPaused = false
	p.mu.Unlock()

	if vc != nil {
		if err := p.safeDisconnect(vc); err != nil {
			slog.Warn("voice disconnect failed", "guildID", p.guildID, "err", err)
		}
	}
	if old != nil && p.announcer != nil {
		_ = p.announcer.DeleteMessage(old)
	}
	if p.onClose != nil {
		p.onClose(p.guildID)
	}
	slog.Info("player session ended", "guildID", p.guildID)
}

// Status is derived from the queue and the pause flag.
func (p *Player) Status() PlayerStatus {
	r := p.data.Read()
	defer r.Release()
	return statusOf(r.reader)
}

func statusOf(r reader) PlayerStatus {
	if _, ok := r.Queue().Current(); !ok {
		return StatusIdle
	}
	if r.Paused() {
		return StatusPaused
	}
	return StatusPlaying
}

// Snapshot copies what the ui needs. upcoming caps how many items after the
// current one are included.
func (p *Player) Snapshot(upcoming int) Snapshot {
	r := p.data.Read()
	defer r.Release()
	q := r.Queue()

	snap := Snapshot{
		GuildID:  p.guildID,
		Status:   statusOf(r.reader),
		Position: q.Position(),
		Len:      q.Len(),
		Volume:   r.Volume(),
		Repeat:   q.RepeatMode(),
		Indexer:  q.IndexerKind(),
		Elapsed:  r.Timestamp(),
	}
	if cur, ok := q.Current(); ok {
		snap.Current = &cur
		if snap.Status == StatusPlaying {
			snap.Elapsed = p.engine.Position(p.guildID)
		}
	}
	order := q.Order()
	for i := q.Index() + 1; i < len(order) && len(snap.Upcoming) < upcoming; i++ {
		it, _ := q.Item(order[i])
		snap.Upcoming = append(snap.Upcoming, it)
	}
	return snap
}

// QueueEntry is an item together with its 1-based logical position.
type QueueEntry struct {
	Position int
	Item     queue.Item
}

// QueuePage lists the items after the current one. It returns the page and
// the total number of upcoming items.
func (p *Player) QueuePage(page, pageSize int) ([]QueueEntry, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}

	r := p.data.Read()
	defer r.Release()
	q := r.Queue()

	order := q.Order()
	first := q.Index() + 1
	if _, ok := q.Current(); !ok {
		first = q.Index()
	}
	if first >= len(order) {
		return []QueueEntry{}, 0
	}
	visible := order[first:]
	total := len(visible)

	start := (page - 1) * pageSize
	if start >= total {
		return []QueueEntry{}, total
	}
	end := min(start+pageSize, total)

	out := make([]QueueEntry, 0, end-start)
	for i := start; i < end; i++ {
		it, _ := q.Item(visible[i])
		out = append(out, QueueEntry{Position: first + i + 1, Item: it})
	}
	return out, total
}

// suppressAdvance must be called under w before any engine call that ends
// the current track on purpose. The permit is taken even when the engine is
// idle, because a natural end may already be on its way to HandleTrackEnd.
func (p *Player) suppressAdvance(w *WriteGuard) {
	w.QueueMut().AcquireAdvanceLock()
}

// startCurrentLocked plays the current item, or stops the engine when there
// is none. The caller holds w and has already dealt with the advance lock.
func (p *Player) startCurrentLocked(ctx context.Context, w *WriteGuard) (queue.Item, bool, error) {
	it, ok := w.Queue().Current()
	if !ok {
		if p.engine.Active(p.guildID) {
			if err := p.engine.Stop(p.guildID); err != nil {
				slog.Warn("failed to stop engine", "guildID", p.guildID, "err", err)
			}
		}
		w.SetPaused(false)
		w.SetTimestamp(0)
		w.SetSession(0)
		return queue.Item{}, false, nil
	}

	if !p.Connected() {
		w.SetSession(0)
		return it, false, ErrNotConnected
	}
	start := time.Duration(it.Track.Offset) * time.Second
	session, err := p.engine.Play(ctx, p.guildID, it.Track, start)
	if err != nil {
		w.SetSession(0)
		return it, false, err
	}
	w.SetSession(session)
	w.SetPaused(false)
	w.SetTimestamp(start)
	slog.Info("playing",
		"guildID", p.guildID,
		"title", it.Track.Title,
		"position", w.Queue().Position(),
		"mode", w.Queue().IndexerKind().String(),
	)
	return it, true, nil
}

// afterStart runs the follow-ups of startCurrentLocked once the guard is
// released.
func (p *Player) afterStart(ctx context.Context, started bool) {
	if started {
		p.mu.Lock()
		p.cancelIdleDisconnectLocked()
		p.autoPaused = false
		p.mu.Unlock()
		p.announceNowPlaying(ctx)
		return
	}
	if p.Status() == StatusIdle {
		p.announceQueueEnd(ctx)
		p.scheduleIdleDisconnect()
	}
}

func (p *Player) autoAnnounce(ctx context.Context) bool {
	if p.announcer == nil || p.settings == nil {
		return false
	}
	set, err := p.settings.GetSettings(ctx, p.guildID)
	if err != nil || set == nil {
		return true
	}
	return set.AutoAnnounceNext
}

func (p *Player) announceNowPlaying(ctx context.Context) {
	if !p.autoAnnounce(ctx) {
		return
	}
	w := p.data.Write()
	old := w.TakeNowPlaying()
	channelID := w.TextChannel()
	w.Release()

	if old != nil {
		if err := p.announcer.DeleteMessage(old); err != nil {
			slog.Debug("failed to delete now-playing message", "guildID", p.guildID, "err", err)
		}
	}
	if channelID == "" {
		return
	}

	msg, err := p.announcer.AnnounceNowPlaying(ctx, channelID, p.Snapshot(0))
	if err != nil {
		slog.Warn("failed to send now-playing message", "guildID", p.guildID, "err", err)
		return
	}

	w = p.data.Write()
	raced := w.SetNowPlaying(msg)
	w.Release()
	if raced != nil {
		_ = p.announcer.DeleteMessage(raced)
	}
}

func (p *Player) announceQueueEnd(ctx context.Context) {
	if !p.autoAnnounce(ctx) {
		return
	}
	w := p.data.Write()
	old := w.TakeNowPlaying()
	channelID := w.TextChannel()
	w.Release()

	if old != nil {
		_ = p.announcer.DeleteMessage(old)
	}
	if channelID == "" {
		return
	}
	if err := p.announcer.AnnounceQueueEnd(ctx, channelID); err != nil {
		slog.Warn("failed to announce end of queue", "guildID", p.guildID, "err", err)
	}
}

func (p *Player) scheduleIdleDisconnect() {
	if p.settings == nil {
		return
	}
	// Load setting outside lock (can block)
	set, _ := p.settings.GetSettings(context.Background(), p.guildID)
	if set == nil || set.SecondsWaitAfterEmpty == 0 {
		return
	}
	wait := time.Duration(set.SecondsWaitAfterEmpty) * time.Second

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return
	}
	if p.disconnectTimer != nil {
		p.disconnectTimer.Stop()
	}
	p.disconnectTimer = time.AfterFunc(wait, func() {
		if p.Status() != StatusIdle && !p.isAutoPaused() {
			return
		}
		slog.Info("leaving after inactivity", "guildID", p.guildID, "wait", wait)
		p.Disconnect(context.Background())
	})
}

func (p *Player) cancelIdleDisconnectLocked() {
	if p.disconnectTimer != nil {
		p.disconnectTimer.Stop()
		p.disconnectTimer = nil
	}
}

func (p *Player) isAutoPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoPaused
}
