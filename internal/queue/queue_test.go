package queue

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/rotabot/internal/track"
)

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(7, 11)))
}

func tracks(titles ...string) []track.Track {
	out := make([]track.Track, len(titles))
	for i, t := range titles {
		out[i] = track.Track{Title: t, VideoID: t}
	}
	return out
}

// played returns titles in logical order.
func played(q *Queue) []string {
	var out []string
	for _, s := range q.Order() {
		it, _ := q.Item(s)
		out = append(out, it.Track.Title)
	}
	return out
}

func currentTitle(t *testing.T, q *Queue) string {
	t.Helper()
	it, ok := q.Current()
	require.True(t, ok, "expected a current item")
	return it.Track.Title
}

func pos(t *testing.T, n, length int) Position {
	t.Helper()
	p, err := ParsePosition(n, length)
	require.NoError(t, err)
	return p
}

func TestStandardAdvance(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A", "B", "C"), "u1", "")

	assert.Equal(t, 1, q.Position())
	assert.Equal(t, "A", currentTitle(t, q))

	q.Advance()
	q.Advance()
	assert.Equal(t, "C", currentTitle(t, q))
	assert.Equal(t, 3, q.Position())
}

func TestEmptyQueue(t *testing.T) {
	q := New(seeded())
	_, ok := q.Current()
	assert.False(t, ok)
	assert.Equal(t, 1, q.Position())
	assert.True(t, q.IsEmpty())

	q.Advance()
	assert.Equal(t, 0, q.Index())
	q.SetRepeatMode(RepeatAll)
	q.Advance()
	assert.Equal(t, 0, q.Index())
}

func TestAdvanceRepeatModes(t *testing.T) {
	t.Run("off stops one past the end", func(t *testing.T) {
		q := New(seeded())
		q.Enqueue(tracks("A", "B"), "u1", "")
		q.Advance()
		q.Advance()
		q.Advance()
		assert.Equal(t, 2, q.Index())
		_, ok := q.Current()
		assert.False(t, ok)
		assert.Equal(t, 2, q.Position())
	})

	t.Run("all wraps around", func(t *testing.T) {
		q := New(seeded())
		q.Enqueue(tracks("A", "B", "C"), "u1", "")
		q.SetRepeatMode(RepeatAll)
		var seen []string
		for range 6 {
			seen = append(seen, currentTitle(t, q))
			q.Advance()
		}
		assert.Equal(t, []string{"A", "B", "C", "A", "B", "C"}, seen)
	})

	t.Run("track stays put", func(t *testing.T) {
		q := New(seeded())
		q.Enqueue(tracks("A", "B"), "u1", "")
		q.SetRepeatMode(RepeatTrack)
		q.Advance()
		q.Advance()
		assert.Equal(t, "A", currentTitle(t, q))
	})
}

func TestEnqueueAfterFinishingPlaysNewItem(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A"), "u1", "")
	q.Advance()
	_, ok := q.Current()
	require.False(t, ok)

	q.Enqueue(tracks("B"), "u1", "")
	assert.Equal(t, "B", currentTitle(t, q))
	assert.Equal(t, 2, q.Position())
}

func TestFairSwitchThenEnqueue(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A"), "user1", "")
	q.Enqueue(tracks("B"), "user2", "")
	q.Enqueue(tracks("C"), "user1", "")

	q.SetIndexerKind(IndexerFair)
	assert.Equal(t, []string{"A", "B", "C"}, played(q))
	assert.Equal(t, "A", currentTitle(t, q))

	// D joins user2's bucket, so it comes after user1's C.
	q.Enqueue(tracks("D"), "user2", "")
	assert.Equal(t, []string{"A", "B", "C", "D"}, played(q))
}

func TestFairInterleavesRequesters(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerFair))
	q.Enqueue(tracks("A1", "A2", "A3"), "a", "")
	q.Enqueue(tracks("B1", "B2"), "b", "")
	q.Enqueue(tracks("C1"), "c", "")

	assert.Equal(t, []string{"A1", "B1", "C1", "A2", "B2", "A3"}, played(q))
}

func TestFairEnqueueIntoEarlierBucket(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerFair))
	q.Enqueue(tracks("A1", "A2", "A3"), "a", "")
	q.Enqueue(tracks("B1", "B2"), "b", "")
	q.Enqueue(tracks("C1"), "c", "")
	q.Enqueue(tracks("A4"), "a", "")

	assert.Equal(t, []string{"A1", "B1", "C1", "A2", "B2", "A3", "A4"}, played(q))
	for _, slot := range q.Order() {
		it, _ := q.Item(slot)
		assert.Equal(t, strings.ToLower(it.Track.Title[:1]), it.Requester, it.Track.Title)
	}

	q.Enqueue(tracks("B3", "B4"), "b", "")
	assert.Equal(t, []string{"A1", "B1", "C1", "A2", "B2", "A3", "B3", "A4", "B4"}, played(q))
}

func TestFairEnqueueIntoEarlierBucketMidRotation(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerFair))
	q.Enqueue(tracks("A1", "A2"), "a", "")
	q.Enqueue(tracks("B1", "B2"), "b", "")
	q.Enqueue(tracks("C1", "C2"), "c", "")
	require.Equal(t, []string{"A1", "B1", "C1", "A2", "B2", "C2"}, played(q))

	q.SetIndex(2)
	require.Equal(t, "C1", currentTitle(t, q))
	before := q.Items()

	q.Enqueue(tracks("A3"), "a", "")
	assert.Equal(t, "C1", currentTitle(t, q))
	assert.Equal(t, 3, q.Position())
	assert.Equal(t, []string{"A1", "B1", "C1", "A2", "B2", "C2", "A3"}, played(q))
	// existing items keep their slots
	assert.Equal(t, before, q.Items()[:len(before)])
}

func TestFairDrainedRequesterGetsFreshBucket(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerFair))
	q.Enqueue(tracks("A1"), "a", "")
	q.Enqueue(tracks("B1", "B2"), "b", "")
	require.Equal(t, []string{"A1", "B1", "B2"}, played(q))

	q.Advance()
	require.Equal(t, "B1", currentTitle(t, q))

	q.Dequeue([]Position{pos(t, 1, q.Len())})
	assert.Equal(t, "B1", currentTitle(t, q))
	assert.Equal(t, 0, q.Index())

	q.Enqueue(tracks("A2"), "a", "")
	assert.Equal(t, []string{"B1", "A2", "B2"}, played(q))
	assert.Equal(t, "B1", currentTitle(t, q))
}

func TestFairEnqueueMidRotationKeepsCurrent(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerFair))
	q.Enqueue(tracks("A1", "A2", "A3"), "a", "")
	q.Enqueue(tracks("B1", "B2"), "b", "")
	require.Equal(t, []string{"A1", "B1", "A2", "B2", "A3"}, played(q))

	q.Advance()
	q.Advance()
	require.Equal(t, "A2", currentTitle(t, q))

	q.Enqueue(tracks("C1"), "c", "")
	assert.Equal(t, "A2", currentTitle(t, q))
	assert.Equal(t, 3, q.Position())
	assert.Equal(t, []string{"A1", "B1", "A2", "B2", "C1", "A3"}, played(q))
}

func TestFairEnqueuePastEndPlaysNext(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerFair))
	q.Enqueue(tracks("A1", "A2"), "a", "")
	q.Advance()
	q.Advance()
	_, ok := q.Current()
	require.False(t, ok)

	q.Enqueue(tracks("B1"), "b", "")
	assert.Equal(t, "B1", currentTitle(t, q))
	assert.Equal(t, []string{"A1", "A2", "B1"}, played(q))
}

func TestShuffledSwitchKeepsCurrent(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("item1", "item2", "item3", "item4", "item5"), "u1", "")
	q.SetIndex(2)
	require.Equal(t, "item3", currentTitle(t, q))

	q.SetIndexerKind(IndexerShuffled)
	assert.Equal(t, "item3", currentTitle(t, q))
	assert.Equal(t, 3, q.Position())
	assert.Equal(t, []string{"item1", "item2", "item3"}, played(q)[:3])
	assert.ElementsMatch(t, []string{"item4", "item5"}, played(q)[3:])
}

func TestShuffledEnqueueStaysAfterCursor(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerShuffled))
	q.Enqueue(tracks("A", "B", "C"), "u1", "")
	q.Advance()
	head := played(q)[:2]

	for range 20 {
		q.Enqueue(tracks("x"), "u2", "")
		assert.Equal(t, head, played(q)[:2])
	}
	assert.Len(t, q.Order(), 23)
}

func TestSwitchRoundTripKeepsCurrent(t *testing.T) {
	kinds := []IndexerKind{IndexerStandard, IndexerFair, IndexerShuffled}
	for _, a := range kinds {
		for _, b := range kinds {
			q := New(seeded(), WithIndexer(a))
			q.Enqueue(tracks("A", "B"), "u1", "")
			q.Enqueue(tracks("C", "D"), "u2", "")
			q.Enqueue(tracks("E"), "u1", "")
			q.Advance()
			q.Advance()
			want := currentTitle(t, q)

			q.SetIndexerKind(b)
			assert.Equal(t, want, currentTitle(t, q), "%s -> %s", a, b)
			q.SetIndexerKind(a)
			assert.Equal(t, want, currentTitle(t, q), "%s -> %s -> %s", a, b, a)
		}
	}
}

func TestSetSameKindIsNoop(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerShuffled))
	q.Enqueue(tracks("A", "B", "C", "D", "E", "F"), "u1", "")
	before := q.Order()
	q.SetIndexerKind(IndexerShuffled)
	assert.Equal(t, before, q.Order())
}

func TestDowngradeAfterDequeue(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A", "B"), "u1", "")
	q.SetRepeatMode(RepeatAll)

	q.Dequeue([]Position{pos(t, 2, q.Len())})
	q.DowngradeRepeatMode()
	assert.Equal(t, RepeatOff, q.RepeatMode())

	q.DowngradeRepeatMode()
	assert.Equal(t, RepeatOff, q.RepeatMode())
}

func TestDowngradeKeepsModeWithEnoughItems(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A", "B"), "u1", "")
	q.SetRepeatMode(RepeatTrack)
	q.DowngradeRepeatMode()
	assert.Equal(t, RepeatTrack, q.RepeatMode())
}

func TestDequeueBeforeCursorKeepsCurrent(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A", "B", "C", "D"), "u1", "")
	q.SetIndex(3)
	require.Equal(t, "D", currentTitle(t, q))

	removed := q.Dequeue([]Position{pos(t, 2, q.Len())})
	require.Len(t, removed, 1)
	assert.Equal(t, "B", removed[0].Track.Title)
	assert.Equal(t, 2, q.Index())
	assert.Equal(t, "D", currentTitle(t, q))
}

func TestDequeueCurrentMovesToNext(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A", "B", "C"), "u1", "")
	q.Advance()
	q.Dequeue([]Position{pos(t, 2, q.Len())})
	assert.Equal(t, "C", currentTitle(t, q))
}

func TestDequeueIgnoresDuplicates(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A", "B", "C"), "u1", "")
	p := pos(t, 3, q.Len())
	removed := q.Dequeue([]Position{p, p})
	assert.Len(t, removed, 1)
	assert.Equal(t, []string{"A", "B"}, played(q))
}

func TestDequeueUnderShuffleKeepsCurrent(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerShuffled))
	q.Enqueue(tracks("A", "B", "C", "D", "E", "F"), "u1", "")
	q.SetIndex(3)
	want := currentTitle(t, q)

	for q.Len() > 1 {
		cur, _ := q.currentSlot()
		victim := 0
		if victim == cur {
			victim = 1
		}
		q.Dequeue([]Position{pos(t, victim+1, q.Len())})
		assert.Equal(t, want, currentTitle(t, q))
		assert.ElementsMatch(t, identity(q.Len()), q.Order())
	}
}

func TestDrain(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A", "B", "C", "D", "E"), "u1", "")
	q.SetIndex(4)

	out := q.Drain(1, 3)
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].Track.Title)
	assert.Equal(t, "C", out[1].Track.Title)
	assert.Equal(t, "E", currentTitle(t, q))
	assert.Equal(t, 3, q.Len())
}

func TestDrainAllResets(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerFair))
	q.Enqueue(tracks("A", "B"), "u1", "")
	q.Enqueue(tracks("C"), "u2", "")
	q.Advance()
	q.SetRepeatMode(RepeatAll)

	out := q.DrainAll()
	assert.Len(t, out, 3)
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Index())
	assert.Equal(t, RepeatOff, q.RepeatMode())
	assert.Equal(t, IndexerFair, q.IndexerKind())

	q.Enqueue(tracks("X", "Y"), "u3", "")
	q.Enqueue(tracks("Z"), "u4", "")
	assert.Equal(t, []string{"X", "Z", "Y"}, played(q))
}

func TestInsertRemoveAreRaw(t *testing.T) {
	q := New(seeded())
	q.Enqueue(tracks("A", "B", "C"), "u1", "")
	q.SetIndex(1)

	it := q.Remove(2)
	q.Insert(0, it)
	assert.Equal(t, []string{"C", "A", "B"}, played(q))
	assert.Equal(t, 1, q.Index())
}

func TestSlotPositions(t *testing.T) {
	q := New(seeded(), WithIndexer(IndexerFair))
	q.Enqueue(tracks("A1", "A2"), "a", "")
	q.Enqueue(tracks("B1"), "b", "")
	require.Equal(t, []string{"A1", "B1", "A2"}, played(q))

	slots, err := q.SlotPositions([]Position{pos(t, 2, q.Len())})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 3, slots[0].Int())

	removed := q.Dequeue(slots)
	assert.Equal(t, "B1", removed[0].Track.Title)
}

func TestMutationsKeepOrderABijection(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	users := []string{"a", "b", "c"}
	for _, kind := range []IndexerKind{IndexerStandard, IndexerFair, IndexerShuffled} {
		q := New(seeded(), WithIndexer(kind))
		for step := range 300 {
			switch r.IntN(6) {
			case 0, 1:
				q.Enqueue(tracks("t", "t")[:1+r.IntN(2)], users[r.IntN(len(users))], "")
			case 2:
				if q.Len() > 0 {
					q.Dequeue([]Position{pos(t, 1+r.IntN(q.Len()), q.Len())})
				}
			case 3:
				q.Advance()
			case 4:
				q.SetIndexerKind(IndexerKind(r.IntN(3)))
			case 5:
				if q.Len() > 2 {
					lo := r.IntN(q.Len() - 1)
					q.Drain(lo, lo+2)
				}
			}
			require.ElementsMatch(t, identity(q.Len()), q.Order(), "step %d kind %s", step, kind)
			require.LessOrEqual(t, q.Index(), q.Len())
			if q.Index() < q.Len() {
				_, ok := q.Current()
				require.True(t, ok, "step %d", step)
			}
		}
	}
}

func TestAcquireAdvanceLock(t *testing.T) {
	q := New(seeded())
	ctx := context.Background()

	assert.False(t, q.AdvanceLock().Wait(ctx, 10*time.Millisecond))

	q.AcquireAdvanceLock()
	assert.True(t, q.AdvanceLock().Wait(ctx, 10*time.Millisecond))
	assert.False(t, q.AdvanceLock().Wait(ctx, 10*time.Millisecond))
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
