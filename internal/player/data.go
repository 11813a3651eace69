package player

import (
	"sync"
	"time"

	"github.com/sonroyaalmerol/rotabot/internal/queue"
)

const DefaultVolume = 100

// NowPlayingMessage points at the chat message announcing the current track.
type NowPlayingMessage struct {
	ChannelID string
	MessageID string
}

type state struct {
	queue       *queue.Queue
	volume      int
	speed       float64
	pitch       float64
	paused      bool
	timestamp   time.Duration
	nowPlaying  *NowPlayingMessage
	textChannel string
	// session is the engine session of the track the player last started,
	// or 0 when it is not playing anything.
	session uint64
}

// Data is the mutable per-guild state: the queue plus playback settings.
// It is only reachable through Read and Write guards. Nothing in here talks
// to the engine or the chat API.
type Data struct {
	mu      sync.RWMutex
	st      state
	advance *queue.AdvanceLock
}

func NewData(volume int, opts ...queue.Option) *Data {
	q := queue.New(opts...)
	return &Data{
		st: state{
			queue:  q,
			volume: volume,
			speed:  1,
			pitch:  1,
		},
		advance: q.AdvanceLock(),
	}
}

// AdvanceLock may be used without holding either guard.
func (d *Data) AdvanceLock() *queue.AdvanceLock { return d.advance }

// Read blocks until shared access is granted.
func (d *Data) Read() *ReadGuard {
	d.mu.RLock()
	return &ReadGuard{reader: reader{st: &d.st}, unlock: d.mu.RUnlock}
}

// Write blocks until exclusive access is granted.
func (d *Data) Write() *WriteGuard {
	d.mu.Lock()
	return &WriteGuard{reader: reader{st: &d.st}, unlock: d.mu.Unlock}
}

type reader struct {
	st *state
}

func (r reader) Queue() queue.View        { return r.st.queue }
func (r reader) Volume() int              { return r.st.volume }
func (r reader) Speed() float64           { return r.st.speed }
func (r reader) Pitch() float64           { return r.st.pitch }
func (r reader) Paused() bool             { return r.st.paused }
func (r reader) Timestamp() time.Duration { return r.st.timestamp }
func (r reader) TextChannel() string      { return r.st.textChannel }
func (r reader) Session() uint64          { return r.st.session }

func (r reader) NowPlaying() *NowPlayingMessage {
	if r.st.nowPlaying == nil {
		return nil
	}
	m := *r.st.nowPlaying
	return &m
}

// ReadGuard gives shared access. Release may be called more than once.
type ReadGuard struct {
	reader
	once   sync.Once
	unlock func()
}

func (g *ReadGuard) Release() { g.once.Do(g.unlock) }

// WriteGuard gives exclusive access. Release may be called more than once.
type WriteGuard struct {
	reader
	once   sync.Once
	unlock func()
}

func (g *WriteGuard) Release() { g.once.Do(g.unlock) }

func (g *WriteGuard) QueueMut() *queue.Queue { return g.st.queue }

func (g *WriteGuard) SetVolume(v int)              { g.st.volume = v }
func (g *WriteGuard) SetSpeed(v float64)           { g.st.speed = v }
func (g *WriteGuard) SetPitch(v float64)           { g.st.pitch = v }
func (g *WriteGuard) SetPaused(v bool)             { g.st.paused = v }
func (g *WriteGuard) SetTimestamp(v time.Duration) { g.st.timestamp = v }
func (g *WriteGuard) SetTextChannel(id string)     { g.st.textChannel = id }
func (g *WriteGuard) SetSession(id uint64)         { g.st.session = id }

// SetNowPlaying records msg and returns the message it replaces, which the
// caller is expected to delete.
func (g *WriteGuard) SetNowPlaying(msg *NowPlayingMessage) *NowPlayingMessage {
	old := g.st.nowPlaying
	g.st.nowPlaying = msg
	return old
}

// TakeNowPlaying clears the reference and returns it.
func (g *WriteGuard) TakeNowPlaying() *NowPlayingMessage {
	return g.SetNowPlaying(nil)
}
