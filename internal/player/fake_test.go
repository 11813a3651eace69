package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/repository"
	"github.com/sonroyaalmerol/rotabot/internal/track"
)

// fakeEngine records calls and reports track ends the way the real engine
// does, without any audio.
type fakeEngine struct {
	mu       sync.Mutex
	current  map[string]track.Track
	sessions map[string]uint64
	next     uint64
	played   []string
	paused   bool
	volume   int
	pos      time.Duration
	playErr  error
	attached int
	ends     []TrackEnd
}

var _ Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		current:  make(map[string]track.Track),
		sessions: make(map[string]uint64),
	}
}

func (e *fakeEngine) Attach(string, *discordgo.VoiceConnection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attached++
}

func (e *fakeEngine) Detach(guildID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endLocked(guildID, EndCleanup)
}

func (e *fakeEngine) Play(_ context.Context, guildID string, t track.Track, start time.Duration) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playErr != nil {
		return 0, e.playErr
	}
	e.endLocked(guildID, EndReplaced)
	e.next++
	e.current[guildID] = t
	e.sessions[guildID] = e.next
	e.played = append(e.played, t.Title)
	e.paused = false
	e.pos = start
	return e.next, nil
}

func (e *fakeEngine) Stop(guildID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endLocked(guildID, EndStopped)
	return nil
}

func (e *fakeEngine) endLocked(guildID string, reason EndReason) {
	if t, ok := e.current[guildID]; ok {
		delete(e.current, guildID)
		e.ends = append(e.ends, TrackEnd{GuildID: guildID, Session: e.sessions[guildID], Track: t, Reason: reason})
	}
}

func (e *fakeEngine) Active(guildID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.current[guildID]
	return ok
}

func (e *fakeEngine) SetPaused(_ string, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
	return nil
}

func (e *fakeEngine) SetVolume(_ string, volume int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = volume
	return nil
}

func (e *fakeEngine) Seek(_ context.Context, _ string, pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = pos
	return nil
}

func (e *fakeEngine) Position(string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// finish ends the current track as if the media ran out.
func (e *fakeEngine) finish(guildID string, reason EndReason) TrackEnd {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.current[guildID]
	delete(e.current, guildID)
	return TrackEnd{GuildID: guildID, Session: e.sessions[guildID], Track: t, Reason: reason}
}

// takeEnds returns and forgets the ends reported so far.
func (e *fakeEngine) takeEnds() []TrackEnd {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.ends
	e.ends = nil
	return out
}

func (e *fakeEngine) playedTitles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.played...)
}

type fakeSettings struct {
	set repository.Settings
}

func (s fakeSettings) GetSettings(_ context.Context, guild string) (*repository.Settings, error) {
	set := s.set
	set.GuildID = guild
	return &set, nil
}

func testConfig() *config.Config {
	return &config.Config{AdvanceLockTimeout: 20 * time.Millisecond}
}

// newTestPlayer returns a connected player for guild "g1".
func newTestPlayer(t *testing.T) (*Player, *fakeEngine) {
	t.Helper()
	eng := newFakeEngine()
	p := NewPlayer(testConfig(), nil, eng, nil, "g1", NewData(DefaultVolume))
	p.conn = connForTest()
	p.connChannelID = "voice"
	return p, eng
}

func tracks(titles ...string) []track.Track {
	out := make([]track.Track, len(titles))
	for i, title := range titles {
		out[i] = track.Track{Title: title, VideoID: title, Length: 180}
	}
	return out
}

func currentTitle(p *Player) string {
	r := p.Data().Read()
	defer r.Release()
	it, ok := r.Queue().Current()
	if !ok {
		return ""
	}
	return it.Track.Title
}

// deliver feeds every end the engine reported to the player, in order.
func deliver(p *Player, eng *fakeEngine) {
	for _, ev := range eng.takeEnds() {
		p.HandleTrackEnd(context.Background(), ev)
	}
}

// connForTest is a voice connection that is never opened. Only its presence
// matters to the player.
func connForTest() *discordgo.VoiceConnection {
	return &discordgo.VoiceConnection{}
}
