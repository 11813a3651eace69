package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/rotabot/internal/queue"
)

func TestDataDefaults(t *testing.T) {
	d := NewData(70, queue.WithIndexer(queue.IndexerFair))
	r := d.Read()
	defer r.Release()

	assert.Equal(t, 70, r.Volume())
	assert.Equal(t, 1.0, r.Speed())
	assert.Equal(t, 1.0, r.Pitch())
	assert.False(t, r.Paused())
	assert.Nil(t, r.NowPlaying())
	assert.Equal(t, queue.IndexerFair, r.Queue().IndexerKind())
	assert.Same(t, d.AdvanceLock(), d.AdvanceLock())
}

func TestDataReadersShareAccess(t *testing.T) {
	d := NewData(DefaultVolume)
	r1 := d.Read()
	r2 := d.Read()
	r1.Release()
	r2.Release()

	w := d.Write()
	w.SetVolume(30)
	w.SetPaused(true)
	w.SetTimestamp(5 * time.Second)
	w.Release()

	r := d.Read()
	defer r.Release()
	assert.Equal(t, 30, r.Volume())
	assert.True(t, r.Paused())
	assert.Equal(t, 5*time.Second, r.Timestamp())
}

func TestWriteGuardIsExclusive(t *testing.T) {
	d := NewData(DefaultVolume)
	w := d.Write()

	acquired := make(chan struct{})
	go func() {
		r := d.Read()
		r.Release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("read guard granted while a write guard was held")
	case <-time.After(30 * time.Millisecond):
	}
	w.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("read guard not granted after release")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	d := NewData(DefaultVolume)
	w := d.Write()
	w.Release()
	w.Release()

	r := d.Read()
	r.Release()
	r.Release()

	// a fresh write guard would deadlock if a release had been doubled up
	w = d.Write()
	w.Release()
}

func TestNowPlayingBookkeeping(t *testing.T) {
	d := NewData(DefaultVolume)
	w := d.Write()
	defer w.Release()

	first := &NowPlayingMessage{ChannelID: "c", MessageID: "1"}
	assert.Nil(t, w.SetNowPlaying(first))

	got := w.NowPlaying()
	require.NotNil(t, got)
	got.MessageID = "changed"
	assert.Equal(t, "1", w.NowPlaying().MessageID)

	old := w.SetNowPlaying(&NowPlayingMessage{ChannelID: "c", MessageID: "2"})
	assert.Same(t, first, old)
	assert.Equal(t, "2", w.TakeNowPlaying().MessageID)
	assert.Nil(t, w.NowPlaying())
}
