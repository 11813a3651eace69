package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/rotabot/internal/player"
	"github.com/sonroyaalmerol/rotabot/internal/queue"
	"github.com/sonroyaalmerol/rotabot/internal/track"
	"github.com/sonroyaalmerol/rotabot/internal/utils"
)

// Source is a directly playable media URL plus the HTTP headers the host
// expects.
type Source struct {
	URL     string
	Headers map[string]string
}

// Locator turns a queued track into something ffmpeg can open.
type Locator interface {
	Locate(ctx context.Context, t track.Track) (Source, error)
}

// forgetter is implemented by locators that cache sources.
type forgetter interface {
	Forget(t track.Track)
}

type Options struct {
	Bitrate int64
	// BufferPackets bounds how far decoding may run ahead of the sender.
	BufferPackets int
	// PrefillPackets are buffered before the first packet is sent.
	PrefillPackets int
	LoadTimeout    time.Duration
	VoiceTimeout   time.Duration
}

func DefaultOptions() Options {
	return Options{
		Bitrate:        160_000,
		BufferPackets:  100,
		PrefillPackets: 20,
		LoadTimeout:    30 * time.Second,
		VoiceTimeout:   5 * time.Second,
	}
}

// Engine plays one track at a time per guild and reports every track end on
// Events.
type Engine struct {
	ctx     context.Context
	locator Locator
	opts    Options
	events  chan player.TrackEnd

	mu      sync.Mutex
	guilds  map[string]*guildAudio
	session uint64
}

var _ player.Engine = (*Engine)(nil)

type guildAudio struct {
	vc     *discordgo.VoiceConnection
	volume atomic.Int32
	play   *playSession
}

func NewEngine(ctx context.Context, locator Locator, opts Options) *Engine {
	def := DefaultOptions()
	if opts.Bitrate <= 0 {
		opts.Bitrate = def.Bitrate
	}
	if opts.BufferPackets <= 0 {
		opts.BufferPackets = def.BufferPackets
	}
	if opts.PrefillPackets <= 0 || opts.PrefillPackets > opts.BufferPackets {
		opts.PrefillPackets = min(def.PrefillPackets, opts.BufferPackets)
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = def.LoadTimeout
	}
	if opts.VoiceTimeout <= 0 {
		opts.VoiceTimeout = def.VoiceTimeout
	}
	return &Engine{
		ctx:     ctx,
		locator: locator,
		opts:    opts,
		events:  make(chan player.TrackEnd, 64),
		guilds:  make(map[string]*guildAudio),
	}
}

// Events delivers track ends. It is never closed.
func (e *Engine) Events() <-chan player.TrackEnd { return e.events }

func (e *Engine) Attach(guildID string, vc *discordgo.VoiceConnection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.guilds[guildID]
	if !ok {
		g = &guildAudio{}
		g.volume.Store(int32(player.DefaultVolume))
		e.guilds[guildID] = g
	}
	g.vc = vc
}

// Detach ends any playback with EndCleanup and forgets the guild.
func (e *Engine) Detach(guildID string) {
	e.mu.Lock()
	g, ok := e.guilds[guildID]
	delete(e.guilds, guildID)
	e.mu.Unlock()
	if ok && g.play != nil {
		g.play.end(player.EndCleanup)
	}
}

// Play replaces whatever the guild is playing and returns the session the
// eventual track end will carry. Loading happens in the background; failures
// come back as EndLoadFailed.
func (e *Engine) Play(_ context.Context, guildID string, t track.Track, start time.Duration) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.guilds[guildID]
	if !ok || g.vc == nil {
		return 0, player.ErrNotConnected
	}
	if g.play != nil {
		g.play.end(player.EndReplaced)
	}
	e.session++
	e.startLocked(e.session, guildID, g, t, start, false)
	return e.session, nil
}

func (e *Engine) startLocked(id uint64, guildID string, g *guildAudio, t track.Track, start time.Duration, paused bool) {
	ctx, cancel := context.WithCancel(e.ctx)
	s := &playSession{
		id:      id,
		guildID: guildID,
		track:   t,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		reason:  player.EndCleanup,
	}
	s.pos.Store(int64(start))
	if paused {
		s.resume = make(chan struct{})
	}
	g.play = s
	go e.run(g, s, start)
}

func (e *Engine) Stop(guildID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.guilds[guildID]
	if !ok || g.play == nil {
		return nil
	}
	g.play.end(player.EndStopped)
	g.play = nil
	return nil
}

func (e *Engine) Active(guildID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.guilds[guildID]
	return ok && g.play != nil
}

func (e *Engine) SetPaused(guildID string, paused bool) error {
	e.mu.Lock()
	g, ok := e.guilds[guildID]
	var s *playSession
	if ok {
		s = g.play
	}
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	s.setPaused(paused)
	if paused && g.vc != nil {
		_ = g.vc.Speaking(false)
	}
	return nil
}

func (e *Engine) SetVolume(guildID string, volume int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok := e.guilds[guildID]; ok {
		g.volume.Store(int32(volume))
	}
	return nil
}

// Seek restarts decoding of the current track at pos. No track end is
// reported for the abandoned decode.
func (e *Engine) Seek(_ context.Context, guildID string, pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.guilds[guildID]
	if !ok || g.play == nil {
		return queue.ErrNotPlaying
	}
	old := g.play
	old.silence()
	e.startLocked(old.id, guildID, g, old.track, pos, old.isPaused())
	return nil
}

func (e *Engine) Position(guildID string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.guilds[guildID]
	if !ok || g.play == nil {
		return 0
	}
	return time.Duration(g.play.pos.Load())
}

// Close stops every session without reporting track ends.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, g := range e.guilds {
		if g.play != nil {
			g.play.silence()
		}
		delete(e.guilds, id)
	}
}

func (e *Engine) emit(ev player.TrackEnd) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

func (e *Engine) run(g *guildAudio, s *playSession, start time.Duration) {
	defer close(s.done)
	logger := slog.With("guildID", s.guildID, "title", s.track.Title)

	sent, err := e.stream(g, s, start, logger)

	e.mu.Lock()
	if g.play == s {
		g.play = nil
	}
	e.mu.Unlock()

	reason, silent := s.result()
	if silent {
		return
	}
	if s.ctx.Err() == nil {
		reason = player.EndFinished
		if err != nil && sent == 0 {
			reason = player.EndLoadFailed
			if f, ok := e.locator.(forgetter); ok {
				f.Forget(s.track)
			}
		}
	}
	s.cancel()
	logger.Debug("track ended", "reason", reason.String(), "packets", sent, "err", err)
	e.emit(player.TrackEnd{GuildID: s.guildID, Session: s.id, Track: s.track, Reason: reason, Err: err})
}

// stream loads the track and feeds the voice connection until the media
// ends or the session is cancelled. It returns the number of packets sent.
func (e *Engine) stream(g *guildAudio, s *playSession, start time.Duration, logger *slog.Logger) (int, error) {
	loadCtx, cancelLoad := context.WithTimeout(s.ctx, e.opts.LoadTimeout)
	src, err := e.locator.Locate(loadCtx, s.track)
	cancelLoad()
	if err != nil {
		return 0, fmt.Errorf("locate media: %w", err)
	}
	if s.ctx.Err() != nil {
		return 0, nil
	}

	dec, err := openDecoder(s.ctx, src.URL, start, utils.BuildFFmpegHeaders(src.Headers))
	if err != nil {
		return 0, err
	}
	enc, err := newOpusEncoder(e.opts.Bitrate)
	if err != nil {
		dec.Close()
		return 0, err
	}

	buf := newPacketBuffer(e.opts.BufferPackets)
	pctx, stopProducer := context.WithCancel(s.ctx)
	produced := make(chan error, 1)
	go func() {
		defer dec.Close()
		defer enc.Close()
		produced <- e.produce(pctx, g, dec, enc, buf, playableEnd(s.track))
	}()

	sent, sendErr := e.consume(s, g.vc, buf, logger)
	stopProducer()
	buf.Close()
	prodErr := <-produced

	if sendErr != nil {
		return sent, sendErr
	}
	if errors.Is(prodErr, context.Canceled) {
		prodErr = nil
	}
	return sent, prodErr
}

// playableEnd is where a trimmed or chapter track stops, or 0 to play to
// the end of the media.
func playableEnd(t track.Track) time.Duration {
	if t.IsLive || t.Length <= t.Offset {
		return 0
	}
	return time.Duration(t.Length) * time.Second
}

func (e *Engine) produce(ctx context.Context, g *guildAudio, dec *decoder, enc *opusEncoder, buf *packetBuffer, end time.Duration) error {
	defer buf.MarkEOS()
	stop := context.AfterFunc(ctx, dec.Interrupt)
	defer stop()

	pcm := make([]byte, frameBytes)
	for ctx.Err() == nil {
		pos, err := dec.ReadFrame(pcm)
		if err == nil && end > 0 && pos >= end {
			err = io.EOF
		}
		if errors.Is(err, io.EOF) {
			err := enc.Finish(func(pkt []byte) bool { return buf.Push(ctx, pkt, pos) })
			if errors.Is(err, errSinkClosed) {
				return ctx.Err()
			}
			return err
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		scaleVolume(pcm, int(g.volume.Load()))
		err = enc.Encode(pcm, func(pkt []byte) bool { return buf.Push(ctx, pkt, pos) })
		if errors.Is(err, errSinkClosed) {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (e *Engine) consume(s *playSession, vc *discordgo.VoiceConnection, buf *packetBuffer, logger *slog.Logger) (int, error) {
	if !waitVoiceReady(s.ctx, vc, e.opts.VoiceTimeout) {
		if s.ctx.Err() != nil {
			return 0, nil
		}
		return 0, errors.New("voice connection not ready")
	}
	if !buf.WaitFill(s.ctx, e.opts.PrefillPackets, e.opts.LoadTimeout) {
		return 0, nil
	}

	_ = vc.Speaking(true)
	defer vc.Speaking(false)

	const sendTimeout = 200 * time.Millisecond
	sent, dropped := 0, 0
	for {
		if s.isPaused() {
			if !s.waitUnpaused() {
				return sent, nil
			}
			_ = vc.Speaking(true)
		}
		pkt, ok := buf.Pop(s.ctx)
		if !ok {
			return sent, nil
		}

		select {
		case <-s.ctx.Done():
			return sent, nil
		case vc.OpusSend <- pkt.data:
			sent++
			dropped = 0
			s.pos.Store(int64(pkt.pos))
		case <-time.After(sendTimeout):
			dropped++
			logger.Debug("dropped packet", "consecutive", dropped)
			if dropped >= 5 {
				logger.Warn("too many drops, rebuffering")
				buf.WaitFill(s.ctx, e.opts.PrefillPackets, e.opts.VoiceTimeout)
				dropped = 0
			}
		}
	}
}

func waitVoiceReady(ctx context.Context, vc *discordgo.VoiceConnection, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		vc.RLock()
		ready := vc.Ready && vc.OpusSend != nil
		vc.RUnlock()
		if ready {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// playSession is one decode of one track.
type playSession struct {
	id      uint64
	guildID string
	track   track.Track
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	pos     atomic.Int64

	mu     sync.Mutex
	reason player.EndReason
	quiet  bool
	// resume is non-nil while paused and closed on resume.
	resume chan struct{}
}

func (s *playSession) end(reason player.EndReason) {
	s.mu.Lock()
	if s.ctx.Err() == nil {
		s.reason = reason
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *playSession) silence() {
	s.mu.Lock()
	s.quiet = true
	s.mu.Unlock()
	s.cancel()
}

func (s *playSession) result() (player.EndReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason, s.quiet
}

func (s *playSession) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case paused && s.resume == nil:
		s.resume = make(chan struct{})
	case !paused && s.resume != nil:
		close(s.resume)
		s.resume = nil
	}
}

func (s *playSession) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resume != nil
}

// waitUnpaused blocks while paused. It returns false once the session is
// over.
func (s *playSession) waitUnpaused() bool {
	s.mu.Lock()
	ch := s.resume
	s.mu.Unlock()
	if ch == nil {
		return s.ctx.Err() == nil
	}
	select {
	case <-ch:
		return true
	case <-s.ctx.Done():
		return false
	}
}
