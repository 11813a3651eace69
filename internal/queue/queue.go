package queue

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sonroyaalmerol/rotabot/internal/track"
)

type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatTrack
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatTrack:
		return "track"
	default:
		return fmt.Sprintf("repeat(%d)", int(m))
	}
}

func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return RepeatOff, nil
	case "all", "queue":
		return RepeatAll, nil
	case "track", "one", "song":
		return RepeatTrack, nil
	}
	return RepeatOff, fmt.Errorf("unknown repeat mode %q", s)
}

// Item is a queued track together with who asked for it.
type Item struct {
	ID        uuid.UUID
	Track     track.Track
	Requester string
	AddedIn   string
	AddedAt   time.Time
}

// View is the read-only part of Queue.
type View interface {
	Len() int
	IsEmpty() bool
	Items() []Item
	Item(slot int) (Item, bool)
	Order() []int
	Index() int
	Current() (Item, bool)
	Position() int
	CurrentAndPosition() (Item, int, bool)
	SlotAt(pos Position) (int, bool)
	RepeatMode() RepeatMode
	IndexerKind() IndexerKind
}

// Queue is a guild's play queue. Items are stored in insertion order; the
// indexer decides the order they are played in. index is the raw cursor, a
// logical position that may sit one past the end once playback has run out.
type Queue struct {
	items   []Item
	index   int
	indexer Indexer
	repeat  RepeatMode
	advance *AdvanceLock
	rng     *rand.Rand
}

type Option func(*Queue)

// WithRand makes shuffling deterministic.
func WithRand(r *rand.Rand) Option {
	return func(q *Queue) { q.rng = r }
}

func WithIndexer(kind IndexerKind) Option {
	return func(q *Queue) { q.indexer.kind = kind }
}

func New(opts ...Option) *Queue {
	q := &Queue{advance: NewAdvanceLock()}
	for _, o := range opts {
		o(q)
	}
	if q.rng == nil {
		q.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	q.indexer = newIndexer(q.indexer.kind, nil, 0, q.rng)
	return q
}

func (q *Queue) Len() int      { return len(q.items) }
func (q *Queue) IsEmpty() bool { return len(q.items) == 0 }

// Items returns the items in slot order.
func (q *Queue) Items() []Item { return slices.Clone(q.items) }

func (q *Queue) Item(slot int) (Item, bool) {
	if slot < 0 || slot >= len(q.items) {
		return Item{}, false
	}
	return q.items[slot], true
}

// Order returns the slot of every logical position, in play order.
func (q *Queue) Order() []int {
	out := q.indexer.Order(len(q.items))
	n := 0
	for _, s := range out {
		if s >= 0 && s < len(q.items) {
			out[n] = s
			n++
		}
	}
	return out[:n]
}

func (q *Queue) Index() int { return q.index }

// SetIndex moves the raw cursor. It is clamped to [0, Len()].
func (q *Queue) SetIndex(i int) {
	q.index = min(max(i, 0), len(q.items))
}

func (q *Queue) currentSlot() (int, bool) {
	slot, ok := q.indexer.Current(q.index)
	if !ok || slot < 0 || slot >= len(q.items) {
		return 0, false
	}
	return slot, true
}

func (q *Queue) Current() (Item, bool) {
	slot, ok := q.currentSlot()
	if !ok {
		return Item{}, false
	}
	return q.items[slot], true
}

// Position is the 1-based position of the current item. With nothing
// current it falls back to the cursor, and never goes below 1.
func (q *Queue) Position() int {
	if _, ok := q.currentSlot(); ok {
		return q.index + 1
	}
	return max(q.index, 1)
}

func (q *Queue) CurrentAndPosition() (Item, int, bool) {
	it, ok := q.Current()
	return it, q.Position(), ok
}

// SlotAt resolves a logical position to the slot that holds its item.
func (q *Queue) SlotAt(pos Position) (int, bool) {
	if !pos.Valid() {
		return 0, false
	}
	slot, ok := q.indexer.Current(pos.Index())
	if !ok || slot >= len(q.items) {
		return 0, false
	}
	return slot, true
}

// SlotPositions resolves logical positions into slot positions suitable for
// Dequeue.
func (q *Queue) SlotPositions(logical []Position) ([]Position, error) {
	out := make([]Position, 0, len(logical))
	for _, p := range logical {
		slot, ok := q.SlotAt(p)
		if !ok {
			return nil, &RangeError{Position: p.Int(), Len: len(q.items)}
		}
		out = append(out, Position{n: slot + 1})
	}
	return out, nil
}

func (q *Queue) logicalOf(slot int) (int, bool) {
	for i, s := range q.indexer.Order(len(q.items)) {
		if s == slot {
			return i, true
		}
	}
	return 0, false
}

func newItem(t track.Track, requester, channelID string) Item {
	return Item{
		ID:        uuid.New(),
		Track:     t,
		Requester: requester,
		AddedIn:   channelID,
		AddedAt:   time.Now(),
	}
}

// Enqueue appends tracks for requester and returns the new items.
func (q *Queue) Enqueue(tracks []track.Track, requester, channelID string) []Item {
	if len(tracks) == 0 {
		return nil
	}
	added := make([]Item, 0, len(tracks))
	for _, t := range tracks {
		added = append(added, newItem(t, requester, channelID))
	}
	first := len(q.items)
	q.items = append(q.items, added...)
	q.indexer.Enqueue(len(added), EnqueueContext{Requester: requester, Cursor: q.index, First: first})
	return slices.Clone(added)
}

// Dequeue removes the items at the given slot positions. Positions are
// slot based, so callers holding user-facing positions resolve them through
// SlotPositions first. The cursor is adjusted so the current item, when it
// survives, stays current.
func (q *Queue) Dequeue(positions []Position) []Item {
	slots := make(map[int]struct{}, len(positions))
	for _, p := range positions {
		if !p.Valid() || p.Index() >= len(q.items) {
			continue
		}
		slots[p.Index()] = struct{}{}
	}
	return q.remove(slots, func() { q.indexer.Dequeue(slots) })
}

// Drain removes the slots in [lo, hi) and returns their items in slot order.
func (q *Queue) Drain(lo, hi int) []Item {
	lo = max(lo, 0)
	hi = min(hi, len(q.items))
	if hi <= lo {
		return nil
	}
	slots := make(map[int]struct{}, hi-lo)
	for s := lo; s < hi; s++ {
		slots[s] = struct{}{}
	}
	return q.remove(slots, func() { q.indexer.Drain(lo, hi) })
}

// DrainAll empties the queue and resets the cursor and repeat mode. The
// indexer keeps its kind.
func (q *Queue) DrainAll() []Item {
	out := q.items
	q.items = nil
	q.index = 0
	q.repeat = RepeatOff
	q.indexer.Clear()
	return out
}

func (q *Queue) Clear() { q.DrainAll() }

func (q *Queue) remove(slots map[int]struct{}, bookkeep func()) []Item {
	if len(slots) == 0 {
		return nil
	}

	before := q.indexer.Order(len(q.items))
	cur, hasCur := q.currentSlot()
	passed := 0
	for logical := 0; logical < q.index && logical < len(before); logical++ {
		if _, gone := slots[before[logical]]; gone {
			passed++
		}
	}

	ordered := make([]int, 0, len(slots))
	for s := range slots {
		ordered = append(ordered, s)
	}
	slices.Sort(ordered)

	out := make([]Item, 0, len(ordered))
	kept := make([]Item, 0, len(q.items)-len(ordered))
	for i, it := range q.items {
		if _, gone := slots[i]; gone {
			out = append(out, it)
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	bookkeep()

	q.index -= passed
	if _, gone := slots[cur]; hasCur && !gone {
		moved := cur
		for _, s := range ordered {
			if s < cur {
				moved--
			}
		}
		if logical, ok := q.logicalOf(moved); ok {
			q.index = logical
		}
	}
	q.index = min(max(q.index, 0), len(q.items))
	return out
}

// Insert places it at slot without any indexer or cursor bookkeeping.
// It is meant for reordering under standard indexing.
func (q *Queue) Insert(slot int, it Item) {
	q.items = slices.Insert(q.items, slot, it)
}

// Remove takes the item at slot without any indexer or cursor bookkeeping.
func (q *Queue) Remove(slot int) Item {
	it := q.items[slot]
	q.items = slices.Delete(q.items, slot, slot+1)
	return it
}

// Advance moves the cursor one step according to the repeat mode.
func (q *Queue) Advance() {
	switch q.repeat {
	case RepeatTrack:
	case RepeatAll:
		if n := len(q.items); n > 0 {
			q.index = (q.index + 1) % n
		}
	default:
		if q.index < len(q.items) {
			q.index++
		}
	}
}

func (q *Queue) RepeatMode() RepeatMode     { return q.repeat }
func (q *Queue) SetRepeatMode(m RepeatMode) { q.repeat = m }

// DowngradeRepeatMode turns repeat off once there is at most one item left.
func (q *Queue) DowngradeRepeatMode() {
	if q.repeat != RepeatOff && len(q.items) <= 1 {
		q.repeat = RepeatOff
	}
}

func (q *Queue) IndexerKind() IndexerKind { return q.indexer.Kind() }

// SetIndexerKind switches the ordering strategy. The current item stays
// current; it becomes the last entry of the history and only what follows
// is reordered.
func (q *Queue) SetIndexerKind(kind IndexerKind) {
	if kind == q.indexer.Kind() {
		return
	}
	if slot, ok := q.currentSlot(); ok {
		q.index = slot
	} else {
		q.index = min(q.index, len(q.items))
	}
	q.indexer = newIndexer(kind, q.items, q.index, q.rng)
}

// AdvanceLock is shared for the life of the queue, so callers may keep it
// and use it without holding any lock on the queue.
func (q *Queue) AdvanceLock() *AdvanceLock { return q.advance }

// AcquireAdvanceLock tells the track-end handler that the next end it is
// waiting on was caused by a command.
func (q *Queue) AcquireAdvanceLock() { q.advance.Acquire() }
