package sponsorblock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(start, end float64) Segment {
	return Segment{Category: categoryMusicOffTopic, Segment: [2]float64{start, end}}
}

func TestMergeSegments(t *testing.T) {
	got := MergeSegments([]Segment{seg(50, 60), seg(0, 10), seg(5, 20), seg(60, 70)})
	require.Len(t, got, 2)
	assert.Equal(t, [2]float64{0, 20}, got[0].Segment)
	assert.Equal(t, [2]float64{50, 70}, got[1].Segment)

	assert.Empty(t, MergeSegments(nil))
}

func TestTrim(t *testing.T) {
	tests := []struct {
		name    string
		segs    []Segment
		wantLen int
		wantOff int
		changed bool
	}{
		{"intro", []Segment{seg(0, 15)}, 185, 15, true},
		{"outro", []Segment{seg(180, 199.5)}, 180, 0, true},
		{"both", []Segment{seg(1, 10), seg(190, 200)}, 180, 10, true},
		{"middle only", []Segment{seg(80, 90)}, 200, 0, false},
		{"whole track", []Segment{seg(0, 200)}, 200, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adj, changed := trim(tt.segs, 200, 0)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.wantLen, adj.Length)
			assert.Equal(t, tt.wantOff, adj.Offset)
		})
	}
}

func newTestApplier(t *testing.T, h http.HandlerFunc) *Applier {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	a := NewApplier(time.Minute)
	a.client.baseURL = srv.URL
	return a
}

func TestAdjustCachesSegments(t *testing.T) {
	var calls atomic.Int32
	a := newTestApplier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/skipSegments/"+hashPrefix("vid1"), r.URL.Path)
		assert.Equal(t, categoryMusicOffTopic, r.URL.Query().Get("category"))
		_, _ = w.Write([]byte(`[
			{"videoID":"other","segments":[{"category":"music_offtopic","segment":[0,90]}]},
			{"videoID":"vid1","segments":[{"category":"music_offtopic","segment":[0,12.5],"UUID":"x","actionType":"skip"}]}
		]`))
	})

	adj, changed := a.Adjust(context.Background(), "vid1", 200, 0)
	require.True(t, changed)
	assert.Equal(t, 12, adj.Offset)
	assert.Equal(t, 188, adj.Length)
	assert.Equal(t, "skipped intro", adj.String())

	_, _ = a.Adjust(context.Background(), "vid1", 200, 0)
	assert.EqualValues(t, 1, calls.Load())
}

func TestHashPrefix(t *testing.T) {
	assert.Equal(t, "5f6b", hashPrefix("dQw4w9WgXcQ"))
	assert.Equal(t, "a9de", hashPrefix("dQw4w9WgXcR"))
}

func TestAdjustNotFound(t *testing.T) {
	a := newTestApplier(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	adj, changed := a.Adjust(context.Background(), "vid1", 200, 0)
	assert.False(t, changed)
	assert.Equal(t, 200, adj.Length)
}

func TestAdjustBacksOffWhenUnavailable(t *testing.T) {
	var calls atomic.Int32
	a := newTestApplier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	})

	_, changed := a.Adjust(context.Background(), "vid1", 200, 0)
	assert.False(t, changed)
	_, _ = a.Adjust(context.Background(), "vid2", 200, 0)
	assert.EqualValues(t, 1, calls.Load())
}

func TestAdjustSkipsUnknownLength(t *testing.T) {
	a := newTestApplier(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, changed := a.Adjust(context.Background(), "vid1", 0, 0)
	assert.False(t, changed)
	_, changed = a.Adjust(context.Background(), "", 100, 0)
	assert.False(t, changed)
}
