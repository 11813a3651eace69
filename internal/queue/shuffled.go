package queue

import (
	"math/rand/v2"
	"slices"
	"sort"
)

// shuffledIndexer keeps an explicit permutation of the slots.
type shuffledIndexer struct {
	order []int
	rng   *rand.Rand
}

// newShuffledIndexer keeps positions 0..cursor in identity order and
// shuffles the rest.
func newShuffledIndexer(length, cursor int, rng *rand.Rand) shuffledIndexer {
	order := make([]int, length)
	for i := range order {
		order[i] = i
	}
	if from := max(cursor+1, 0); from < length {
		rest := order[from:]
		rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	}
	return shuffledIndexer{order: order, rng: rng}
}

func (s *shuffledIndexer) current(index int) (int, bool) {
	if index < 0 || index >= len(s.order) {
		return 0, false
	}
	return s.order[index], true
}

func (s *shuffledIndexer) orderCopy() []int {
	return slices.Clone(s.order)
}

// enqueue puts every new slot somewhere after the cursor, so the current item
// and the history stay put. With the cursor past the end, new slots go
// anywhere from the old end onward.
func (s *shuffledIndexer) enqueue(additional, cursor int) {
	n := len(s.order)
	low := cursor + 1
	if cursor >= n {
		low = n
	}
	low = max(low, 0)
	for slot := n; slot < n+additional; slot++ {
		at := low + s.rng.IntN(len(s.order)-low+1)
		s.order = slices.Insert(s.order, at, slot)
	}
}

func (s *shuffledIndexer) dequeue(slots map[int]struct{}) {
	removed := make([]int, 0, len(slots))
	for v := range slots {
		removed = append(removed, v)
	}
	sort.Ints(removed)

	kept := s.order[:0]
	for _, v := range s.order {
		if _, gone := slots[v]; gone {
			continue
		}
		kept = append(kept, v-sort.SearchInts(removed, v))
	}
	s.order = kept
}

func (s *shuffledIndexer) clear() {
	s.order = nil
}
