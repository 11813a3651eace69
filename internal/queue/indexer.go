package queue

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

type IndexerKind int

const (
	IndexerStandard IndexerKind = iota
	IndexerFair
	IndexerShuffled
)

func (k IndexerKind) String() string {
	switch k {
	case IndexerStandard:
		return "standard"
	case IndexerFair:
		return "fair"
	case IndexerShuffled:
		return "shuffled"
	default:
		return fmt.Sprintf("indexer(%d)", int(k))
	}
}

func ParseIndexerKind(s string) (IndexerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "normal":
		return IndexerStandard, nil
	case "fair":
		return IndexerFair, nil
	case "shuffle", "shuffled":
		return IndexerShuffled, nil
	}
	return IndexerStandard, fmt.Errorf("unknown queue mode %q", s)
}

// EnqueueContext carries what the active strategy needs to place new items.
// First is the slot of the first new item. Fair uses Requester and Cursor,
// Shuffled uses Cursor, Standard uses neither.
type EnqueueContext struct {
	Requester string
	Cursor    int
	First     int
}

// Indexer maps a logical queue position to a slot in the backing sequence.
// Exactly one strategy is live at a time; kind selects which state is used.
type Indexer struct {
	kind     IndexerKind
	fair     fairIndexer
	shuffled shuffledIndexer
}

// newIndexer builds an indexer of the given kind over items. Positions up to
// and including cursor keep identity order so that already played items and
// the current item stay where they are.
func newIndexer(kind IndexerKind, items []Item, cursor int, rng *rand.Rand) Indexer {
	x := Indexer{kind: kind}
	switch kind {
	case IndexerFair:
		start := min(cursor+1, len(items))
		if cursor < 0 {
			start = 0
		}
		x.fair = newFairIndexer(items, start)
	case IndexerShuffled:
		x.shuffled = newShuffledIndexer(len(items), cursor, rng)
	}
	return x
}

func (x *Indexer) Kind() IndexerKind { return x.kind }

// Current resolves a logical position to a slot. Standard never fails here;
// the queue bounds-checks the slot against its length.
func (x *Indexer) Current(index int) (int, bool) {
	switch x.kind {
	case IndexerFair:
		return x.fair.current(index)
	case IndexerShuffled:
		return x.shuffled.current(index)
	default:
		return index, index >= 0
	}
}

// Order returns the slot for every logical position of a queue of length n.
func (x *Indexer) Order(n int) []int {
	switch x.kind {
	case IndexerFair:
		return x.fair.order()
	case IndexerShuffled:
		return x.shuffled.orderCopy()
	default:
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
}

// Enqueue records that additional items were appended to the sequence.
func (x *Indexer) Enqueue(additional int, ctx EnqueueContext) {
	if additional <= 0 {
		return
	}
	switch x.kind {
	case IndexerFair:
		x.fair.enqueue(ctx.First, additional, ctx.Requester, ctx.Cursor)
	case IndexerShuffled:
		x.shuffled.enqueue(additional, ctx.Cursor)
	}
}

// Dequeue records that the given slots were removed from the sequence.
// Slots are numbered as they were before removal.
func (x *Indexer) Dequeue(slots map[int]struct{}) {
	if len(slots) == 0 {
		return
	}
	switch x.kind {
	case IndexerFair:
		x.fair.dequeue(slots)
	case IndexerShuffled:
		x.shuffled.dequeue(slots)
	}
}

// Drain records removal of the slots in [lo, hi).
func (x *Indexer) Drain(lo, hi int) {
	if hi <= lo {
		return
	}
	slots := make(map[int]struct{}, hi-lo)
	for s := lo; s < hi; s++ {
		slots[s] = struct{}{}
	}
	x.Dequeue(slots)
}

// Clear resets strategy state and keeps the kind.
func (x *Indexer) Clear() {
	switch x.kind {
	case IndexerFair:
		x.fair.clear()
	case IndexerShuffled:
		x.shuffled.clear()
	}
}
