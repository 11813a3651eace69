package player

import (
	"context"
	"slices"
	"time"

	"github.com/sonroyaalmerol/rotabot/internal/queue"
	"github.com/sonroyaalmerol/rotabot/internal/track"
)

type EnqueueOptions struct {
	Requester string
	ChannelID string
	// Next places the tracks right after the current one. Standard mode only.
	Next bool
}

type EnqueueResult struct {
	Added []queue.Item
	// Position is the logical position of the first added item.
	Position int
	Started  bool
}

// Enqueue adds tracks and starts playback when nothing was current.
func (p *Player) Enqueue(ctx context.Context, tracks []track.Track, opts EnqueueOptions) (EnqueueResult, error) {
	if len(tracks) == 0 {
		return EnqueueResult{}, nil
	}
	w := p.data.Write()
	defer w.Release()
	q := w.QueueMut()

	if opts.Next && q.IndexerKind() != queue.IndexerStandard {
		return EnqueueResult{}, queue.ErrIndexerNotStandard
	}
	if opts.ChannelID != "" {
		w.SetTextChannel(opts.ChannelID)
	}

	_, hadCurrent := q.Current()
	added := q.Enqueue(tracks, opts.Requester, opts.ChannelID)
	if opts.Next && hadCurrent {
		// Standard indexing: slots are logical positions.
		at := q.Index() + 1
		for i := range added {
			it := q.Remove(q.Len() - len(added) + i)
			q.Insert(at+i, it)
		}
	}

	res := EnqueueResult{Added: added, Position: logicalPosition(q, added[0])}
	if hadCurrent || w.Paused() {
		return res, nil
	}

	_, started, err := p.startCurrentLocked(ctx, w)
	w.Release()
	p.afterStart(ctx, started)
	res.Started = started
	return res, err
}

func logicalPosition(q *queue.Queue, it queue.Item) int {
	for i, slot := range q.Order() {
		if cur, _ := q.Item(slot); cur.ID == it.ID {
			return i + 1
		}
	}
	return 0
}

// Skip moves n logical steps ahead, ignoring repeat-track, and plays.
func (p *Player) Skip(ctx context.Context, n int) (*queue.Item, error) {
	if n < 1 {
		return nil, ErrSkipCountTooSmall
	}
	return p.reposition(ctx, func(q *queue.Queue) (int, error) {
		idx := q.Index() + n
		if q.RepeatMode() == queue.RepeatAll {
			idx %= q.Len()
		}
		return idx, nil
	})
}

// Back goes to the previous logical position.
func (p *Player) Back(ctx context.Context) (*queue.Item, error) {
	return p.reposition(ctx, func(q *queue.Queue) (int, error) {
		idx := q.Index() - 1
		if idx < 0 {
			if q.RepeatMode() != queue.RepeatAll {
				return 0, ErrNoPrevious
			}
			idx = q.Len() - 1
		}
		return idx, nil
	})
}

// Jump plays the item at the given 1-based logical position.
func (p *Player) Jump(ctx context.Context, position int) (*queue.Item, error) {
	return p.reposition(ctx, func(q *queue.Queue) (int, error) {
		pos, err := queue.ParsePosition(position, q.Len())
		if err != nil {
			return 0, err
		}
		return pos.Index(), nil
	})
}

// reposition moves the cursor outside the normal advance flow. The advance
// lock is taken before the engine is told to switch tracks, so the end event
// of the replaced track does not move the cursor a second time.
func (p *Player) reposition(ctx context.Context, target func(q *queue.Queue) (int, error)) (*queue.Item, error) {
	w := p.data.Write()
	defer w.Release()
	q := w.QueueMut()
	if q.IsEmpty() {
		return nil, queue.ErrQueueEmpty
	}
	idx, err := target(q)
	if err != nil {
		return nil, err
	}

	p.suppressAdvance(w)
	q.SetIndex(idx)
	it, started, err := p.startCurrentLocked(ctx, w)
	w.Release()
	p.afterStart(ctx, started)
	if err != nil {
		return nil, err
	}
	if !started {
		return nil, nil
	}
	return &it, nil
}

// Remove drops the items at the given logical positions. Removing the
// current item moves playback on to whatever becomes current.
func (p *Player) Remove(ctx context.Context, positions []queue.Position) ([]queue.Item, error) {
	w := p.data.Write()
	defer w.Release()
	q := w.QueueMut()
	if q.IsEmpty() {
		return nil, queue.ErrQueueEmpty
	}

	slots, err := q.SlotPositions(positions)
	if err != nil {
		return nil, err
	}
	_, hadCurrent := q.Current()

	removedCurrent := false
	if hadCurrent {
		curPos := q.Index() + 1
		removedCurrent = slices.ContainsFunc(positions, func(x queue.Position) bool { return x.Int() == curPos })
	}
	if removedCurrent {
		p.suppressAdvance(w)
	}

	removed := q.Dequeue(slots)
	q.DowngradeRepeatMode()

	if !removedCurrent {
		return removed, nil
	}
	_, started, err := p.startCurrentLocked(ctx, w)
	w.Release()
	p.afterStart(ctx, started)
	return removed, err
}

// Move relocates one item. The cursor follows the current item so what is
// playing does not change.
func (p *Player) Move(from, to int) (queue.Item, error) {
	w := p.data.Write()
	defer w.Release()
	q := w.QueueMut()

	if q.IndexerKind() != queue.IndexerStandard {
		return queue.Item{}, queue.ErrIndexerNotStandard
	}
	src, err := queue.ParsePosition(from, q.Len())
	if err != nil {
		return queue.Item{}, err
	}
	dst, err := queue.ParsePosition(to, q.Len())
	if err != nil {
		return queue.Item{}, err
	}
	if src == dst {
		return queue.Item{}, ErrMoveSamePosition
	}

	idx := q.Index()
	_, hasCurrent := q.Current()
	it := q.Remove(src.Index())
	q.Insert(dst.Index(), it)

	switch {
	case hasCurrent && src.Index() == idx:
		q.SetIndex(dst.Index())
	case src.Index() < idx && dst.Index() >= idx:
		q.SetIndex(idx - 1)
	case src.Index() > idx && dst.Index() <= idx:
		q.SetIndex(idx + 1)
	}
	return it, nil
}

// Clear removes everything except the current item.
func (p *Player) Clear() (int, error) {
	w := p.data.Write()
	defer w.Release()
	q := w.QueueMut()

	cur, hasCurrent := q.Current()
	var slots []queue.Position
	for slot, it := range q.Items() {
		if hasCurrent && it.ID == cur.ID {
			continue
		}
		pos, err := queue.ParsePosition(slot+1, q.Len())
		if err != nil {
			return 0, err
		}
		slots = append(slots, pos)
	}
	if len(slots) == 0 {
		return 0, ErrNothingToClear
	}
	removed := q.Dequeue(slots)
	q.DowngradeRepeatMode()
	return len(removed), nil
}

// Stop ends playback and empties the queue. The voice connection stays.
func (p *Player) Stop(ctx context.Context) error {
	w := p.data.Write()
	p.suppressAdvance(w)
	err := p.engine.Stop(p.guildID)
	w.QueueMut().Clear()
	w.SetPaused(false)
	w.SetTimestamp(0)
	w.SetSession(0)
	old := w.TakeNowPlaying()
	w.Release()

	if old != nil && p.announcer != nil {
		_ = p.announcer.DeleteMessage(old)
	}
	p.scheduleIdleDisconnect()
	return err
}

func (p *Player) Pause() error {
	w := p.data.Write()
	defer w.Release()
	if _, ok := w.Queue().Current(); !ok {
		return queue.ErrNotPlaying
	}
	if w.Paused() {
		return queue.ErrNotPlaying
	}
	if err := p.engine.SetPaused(p.guildID, true); err != nil {
		return err
	}
	w.SetPaused(true)
	w.SetTimestamp(p.engine.Position(p.guildID))
	return nil
}

func (p *Player) Resume(ctx context.Context) error {
	w := p.data.Write()
	defer w.Release()
	it, ok := w.Queue().Current()
	if !ok {
		return queue.ErrNotPlaying
	}
	if !w.Paused() {
		return ErrNotPaused
	}

	if p.engine.Active(p.guildID) {
		if err := p.engine.SetPaused(p.guildID, false); err != nil {
			return err
		}
	} else {
		session, err := p.engine.Play(ctx, p.guildID, it.Track, w.Timestamp())
		if err != nil {
			return err
		}
		w.SetSession(session)
	}
	w.SetPaused(false)

	p.mu.Lock()
	p.autoPaused = false
	p.cancelIdleDisconnectLocked()
	p.mu.Unlock()
	return nil
}

// Seek jumps within the current track. pos counts from the start of the
// media, not from the track's start offset.
func (p *Player) Seek(ctx context.Context, pos time.Duration) error {
	w := p.data.Write()
	defer w.Release()
	it, ok := w.Queue().Current()
	if !ok {
		return queue.ErrNotPlaying
	}
	if it.Track.IsLive {
		return ErrCannotSeekLive
	}
	if it.Track.Length > 0 && pos > time.Duration(it.Track.Length)*time.Second {
		return ErrSeekPastEnd
	}
	if err := p.engine.Seek(ctx, p.guildID, pos); err != nil {
		return err
	}
	w.SetTimestamp(pos)
	return nil
}

// Replay restarts the current track from its start offset.
func (p *Player) Replay(ctx context.Context) error {
	r := p.data.Read()
	it, ok := r.Queue().Current()
	r.Release()
	if !ok {
		return queue.ErrNotPlaying
	}
	return p.Seek(ctx, time.Duration(it.Track.Offset)*time.Second)
}

// SetVolume stores the volume and then pushes it to the engine.
func (p *Player) SetVolume(v int) error {
	if v < 0 || v > 100 {
		return ErrVolumeOutOfRange
	}
	w := p.data.Write()
	w.SetVolume(v)
	w.Release()
	return p.engine.SetVolume(p.guildID, v)
}

func (p *Player) SetRepeat(mode queue.RepeatMode) error {
	w := p.data.Write()
	defer w.Release()
	q := w.QueueMut()

	switch mode {
	case queue.RepeatAll:
		if q.Len() < 2 {
			return ErrRepeatNeedsTracks
		}
	case queue.RepeatTrack:
		if _, ok := q.Current(); !ok {
			return ErrRepeatNeedsTracks
		}
	}
	q.SetRepeatMode(mode)
	return nil
}

// SetQueueMode switches the ordering strategy. The current item keeps
// playing.
func (p *Player) SetQueueMode(kind queue.IndexerKind) {
	w := p.data.Write()
	defer w.Release()
	w.QueueMut().SetIndexerKind(kind)
}
