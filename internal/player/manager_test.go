package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/rotabot/internal/queue"
	"github.com/sonroyaalmerol/rotabot/internal/repository"
)

func TestManagerAppliesGuildDefaults(t *testing.T) {
	settings := fakeSettings{set: repository.Settings{DefaultVolume: 40, DefaultQueueMode: "fair"}}
	pm := NewPlayerManager(testConfig(), settings, newFakeEngine(), nil)

	assert.Nil(t, pm.Peek("g1"))
	p := pm.Get(context.Background(), "g1")
	require.NotNil(t, p)
	assert.Same(t, p, pm.Get(context.Background(), "g1"))
	assert.Same(t, p, pm.Peek("g1"))

	snap := p.Snapshot(0)
	assert.Equal(t, 40, snap.Volume)
	assert.Equal(t, queue.IndexerFair, snap.Indexer)
}

func TestManagerFallsBackWithoutSettings(t *testing.T) {
	pm := NewPlayerManager(testConfig(), nil, newFakeEngine(), nil)
	snap := pm.Get(context.Background(), "g1").Snapshot(0)
	assert.Equal(t, DefaultVolume, snap.Volume)
	assert.Equal(t, queue.IndexerStandard, snap.Indexer)
}

func TestManagerRunDispatchesEvents(t *testing.T) {
	eng := newFakeEngine()
	pm := NewPlayerManager(testConfig(), nil, eng, nil)
	p := pm.Get(context.Background(), "g1")
	p.conn = connForTest()
	enqueue(t, p, "A", "B")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan TrackEnd, 2)
	done := make(chan struct{})
	go func() {
		pm.Run(ctx, events)
		close(done)
	}()

	events <- TrackEnd{GuildID: "unknown", Reason: EndFinished}
	events <- eng.finish("g1", EndFinished)
	assert.Eventually(t, func() bool { return currentTitle(p) == "B" }, time.Second, 5*time.Millisecond)

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the event channel closed")
	}
}

func TestManagerShutdownForgetsPlayers(t *testing.T) {
	pm := NewPlayerManager(testConfig(), nil, newFakeEngine(), nil)
	p := pm.Get(context.Background(), "g1")
	_, err := p.Enqueue(context.Background(), tracks("A"), EnqueueOptions{})
	assert.ErrorIs(t, err, ErrNotConnected)

	pm.Shutdown(context.Background())
	assert.Nil(t, pm.Peek("g1"))

	r := p.Data().Read()
	defer r.Release()
	assert.True(t, r.Queue().IsEmpty())
}
