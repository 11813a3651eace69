package queue

import (
	"slices"
	"sort"
)

// bucket is the run of upcoming slots one requester added in a row.
type bucket struct {
	requester string
	slots     []int
	id        uint64
}

// fairIndexer interleaves requesters round-robin.
//
// The first len(history) logical positions are frozen and map to the listed
// slots. After that, logical order walks the buckets in rounds, taking the
// k-th slot of every bucket that has one in round k. Buckets hold real slot
// numbers, so items never have to move in the backing sequence.
type fairIndexer struct {
	history []int
	buckets []bucket
	latest  map[string]uint64
	nextID  uint64
}

func newFairIndexer(items []Item, start int) fairIndexer {
	f := fairIndexer{latest: make(map[string]uint64)}
	for slot := range start {
		f.history = append(f.history, slot)
	}
	for slot := start; slot < len(items); slot++ {
		req := items[slot].Requester
		if n := len(f.buckets); n > 0 && f.buckets[n-1].requester == req {
			f.buckets[n-1].slots = append(f.buckets[n-1].slots, slot)
			continue
		}
		f.open(req, []int{slot})
	}
	return f
}

func (f *fairIndexer) open(requester string, slots []int) {
	f.nextID++
	f.buckets = append(f.buckets, bucket{requester: requester, slots: slots, id: f.nextID})
	if f.latest == nil {
		f.latest = make(map[string]uint64)
	}
	f.latest[requester] = f.nextID
}

func (f *fairIndexer) order() []int {
	out := slices.Clone(f.history)
	longest := 0
	for _, b := range f.buckets {
		longest = max(longest, len(b.slots))
	}
	for round := range longest {
		for _, b := range f.buckets {
			if round < len(b.slots) {
				out = append(out, b.slots[round])
			}
		}
	}
	return out
}

func (f *fairIndexer) current(index int) (int, bool) {
	if index < 0 {
		return 0, false
	}
	if index < len(f.history) {
		return f.history[index], true
	}
	rel := index - len(f.history)
	for round := 0; ; round++ {
		active := 0
		for _, b := range f.buckets {
			if round < len(b.slots) {
				if rel == active {
					return b.slots[round], true
				}
				active++
			}
		}
		if active == 0 {
			return 0, false
		}
		rel -= active
	}
}

// enqueue records count new slots starting at first. They join the
// requester's most recent bucket while it still has upcoming items. Once
// that bucket has been played or removed, the requester gets a fresh bucket
// at the back and waits for the current rotation like a newcomer.
func (f *fairIndexer) enqueue(first, count int, requester string, cursor int) {
	f.settle(cursor)
	slots := make([]int, count)
	for i := range slots {
		slots[i] = first + i
	}
	if id, ok := f.latest[requester]; ok {
		if i := f.find(id); i >= 0 {
			f.buckets[i].slots = append(f.buckets[i].slots, slots...)
			return
		}
	}
	f.open(requester, slots)
}

func (f *fairIndexer) find(id uint64) int {
	for i, b := range f.buckets {
		if b.id == id {
			return i
		}
	}
	return -1
}

// settle freezes every logical position before cursor into history, so
// growing a bucket cannot shift what has already been played. The rotation
// restarts at the bucket that owns the cursor, which keeps the current item
// and the upcoming order as they were.
func (f *fairIndexer) settle(cursor int) {
	if cursor <= len(f.history) || len(f.buckets) == 0 {
		return
	}
	order := f.order()
	if cursor >= len(order) {
		f.history = order
		f.buckets = nil
		f.latest = make(map[string]uint64)
		return
	}

	owner := make(map[int]int)
	for i, b := range f.buckets {
		for _, s := range b.slots {
			owner[s] = i
		}
	}
	played := make([]int, len(f.buckets))
	for _, s := range order[len(f.history):cursor] {
		played[owner[s]]++
	}
	cur := owner[order[cursor]]

	rotated := make([]bucket, 0, len(f.buckets))
	for k := range len(f.buckets) {
		b := f.buckets[(cur+k)%len(f.buckets)]
		b.slots = b.slots[played[(cur+k)%len(f.buckets)]:]
		if len(b.slots) > 0 {
			rotated = append(rotated, b)
		} else if f.latest[b.requester] == b.id {
			delete(f.latest, b.requester)
		}
	}
	f.history = order[:cursor]
	f.buckets = rotated
}

// dequeue drops the given slots and renumbers the rest to match the
// shortened sequence.
func (f *fairIndexer) dequeue(slots map[int]struct{}) {
	removed := make([]int, 0, len(slots))
	for s := range slots {
		removed = append(removed, s)
	}
	sort.Ints(removed)

	renumber := func(in []int) []int {
		out := in[:0]
		for _, s := range in {
			if _, gone := slots[s]; gone {
				continue
			}
			out = append(out, s-sort.SearchInts(removed, s))
		}
		return out
	}

	f.history = renumber(f.history)
	kept := f.buckets[:0]
	for _, b := range f.buckets {
		b.slots = renumber(b.slots)
		if len(b.slots) > 0 {
			kept = append(kept, b)
			continue
		}
		if f.latest[b.requester] == b.id {
			delete(f.latest, b.requester)
		}
	}
	f.buckets = kept
}

func (f *fairIndexer) clear() {
	f.history = nil
	f.buckets = nil
	f.latest = make(map[string]uint64)
}
