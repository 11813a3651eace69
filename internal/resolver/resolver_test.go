package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/track"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r := New(context.Background(), &config.Config{})
	r.video = func(context.Context, string) (videoInfo, error) {
		t.Fatal("unexpected video lookup")
		return videoInfo{}, nil
	}
	r.playlist = func(context.Context, string) (playlistInfo, error) {
		t.Fatal("unexpected playlist lookup")
		return playlistInfo{}, nil
	}
	return r
}

func TestClassify(t *testing.T) {
	tests := map[string]queryKind{
		"never gonna give you up":                          querySearch,
		"spotify:track:abc":                                querySpotify,
		"https://open.spotify.com/album/abc":               querySpotify,
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":      queryYouTubeVideo,
		"https://youtu.be/dQw4w9WgXcQ":                     queryYouTubeVideo,
		"https://www.youtube.com/playlist?list=PL123":      queryYouTubePlaylist,
		"https://music.youtube.com/watch?v=abc&list=RD123": queryYouTubePlaylist,
		"https://radio.example.com/live/stream.m3u8":       queryStream,
		"http://icecast.example.org:8000/radio":            queryStream,
	}
	for q, want := range tests {
		assert.Equal(t, want, classify(q), q)
	}
}

func TestResolveSearch(t *testing.T) {
	r := newTestResolver(t)
	r.video = func(_ context.Context, target string) (videoInfo, error) {
		assert.Equal(t, "ytsearch1:lofi beats", target)
		return videoInfo{ID: "abc", Title: "Lofi", Uploader: "Chill", Duration: 185.6}, nil
	}

	res, err := r.Resolve(context.Background(), "  lofi beats ", Options{})
	require.NoError(t, err)
	require.Len(t, res.Tracks, 1)
	got := res.Tracks[0]
	assert.Equal(t, "Lofi", got.Title)
	assert.Equal(t, "Chill", got.Artist)
	assert.Equal(t, "abc", got.VideoID)
	assert.Equal(t, 185, got.Length)
	assert.Equal(t, track.SourceYouTube, got.Source)
	assert.Equal(t, "https://i.ytimg.com/vi/abc/hqdefault.jpg", got.Thumbnail)
}

func TestResolveEmptyQuery(t *testing.T) {
	r := newTestResolver(t)
	_, err := r.Resolve(context.Background(), "   ", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestResolveVideoSplitsChapters(t *testing.T) {
	r := newTestResolver(t)
	r.video = func(context.Context, string) (videoInfo, error) {
		return videoInfo{
			ID:          "mix",
			Title:       "Mix",
			Duration:    300,
			Description: "0:00 One\n2:00 Two",
		}, nil
	}

	res, err := r.Resolve(context.Background(), "https://youtu.be/mix", Options{Split: true})
	require.NoError(t, err)
	require.Len(t, res.Tracks, 2)
	assert.Equal(t, "One (Mix)", res.Tracks[0].Title)
	assert.Equal(t, 0, res.Tracks[0].Offset)
	assert.Equal(t, 120, res.Tracks[0].Length)
	assert.Equal(t, "Two (Mix)", res.Tracks[1].Title)
	assert.Equal(t, 120, res.Tracks[1].Offset)
	assert.Equal(t, 300, res.Tracks[1].Length)
	assert.Equal(t, 180, res.Tracks[1].Remaining())

	res, err = r.Resolve(context.Background(), "https://youtu.be/mix", Options{})
	require.NoError(t, err)
	assert.Len(t, res.Tracks, 1)
}

func TestResolvePlaylistSamples(t *testing.T) {
	r := newTestResolver(t)
	r.playlist = func(context.Context, string) (playlistInfo, error) {
		pl := playlistInfo{Title: "Faves", URL: "https://www.youtube.com/playlist?list=PL1"}
		for i := range 10 {
			pl.Entries = append(pl.Entries, videoInfo{ID: fmt.Sprintf("v%d", i), Title: fmt.Sprintf("T%d", i)})
		}
		return pl, nil
	}

	res, err := r.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PL1", Options{Limit: 4})
	require.NoError(t, err)
	assert.Len(t, res.Tracks, 4)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "random sample of 4")
	for _, tr := range res.Tracks {
		require.NotNil(t, tr.Playlist)
		assert.Equal(t, "Faves", tr.Playlist.Title)
	}

	res, err = r.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PL1", Options{Limit: 50})
	require.NoError(t, err)
	assert.Len(t, res.Tracks, 10)
	assert.Empty(t, res.Notes)
	assert.Equal(t, "T0", res.Tracks[0].Title)
}

func TestResolveEmptyPlaylist(t *testing.T) {
	r := newTestResolver(t)
	r.playlist = func(context.Context, string) (playlistInfo, error) {
		return playlistInfo{Title: "Empty"}, nil
	}
	_, err := r.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PL1", Options{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveStreamURL(t *testing.T) {
	r := newTestResolver(t)
	res, err := r.Resolve(context.Background(), "https://radio.example.com/live.m3u8", Options{})
	require.NoError(t, err)
	require.Len(t, res.Tracks, 1)
	assert.True(t, res.Tracks[0].IsLive)
	assert.Equal(t, track.SourceHLS, res.Tracks[0].Source)
}

func TestResolveSpotifyDisabled(t *testing.T) {
	r := newTestResolver(t)
	_, err := r.Resolve(context.Background(), "spotify:track:abc", Options{})
	assert.ErrorIs(t, err, ErrSpotifyDisabled)
}

func TestLocateCachesMediaURL(t *testing.T) {
	r := newTestResolver(t)
	var calls atomic.Int32
	r.locate = func(_ context.Context, target string) (string, map[string]string, error) {
		calls.Add(1)
		assert.Equal(t, "https://www.youtube.com/watch?v=abc", target)
		return "https://media.example/abc", map[string]string{"User-Agent": "x"}, nil
	}
	yt := track.Track{VideoID: "abc", URL: "abc", Source: track.SourceYouTube}

	src, err := r.Locate(context.Background(), yt)
	require.NoError(t, err)
	assert.Equal(t, "https://media.example/abc", src.URL)
	assert.Equal(t, "x", src.Headers["User-Agent"])

	_, err = r.Locate(context.Background(), yt)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())

	r.Forget(yt)
	_, err = r.Locate(context.Background(), yt)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestLocateErrorsAreNotCached(t *testing.T) {
	r := newTestResolver(t)
	boom := errors.New("boom")
	r.locate = func(context.Context, string) (string, map[string]string, error) {
		return "", nil, boom
	}
	_, err := r.Locate(context.Background(), track.Track{VideoID: "abc", Source: track.SourceYouTube})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.media.Len())
}

func TestLocateHLS(t *testing.T) {
	r := newTestResolver(t)
	src, err := r.Locate(context.Background(), track.Track{URL: "https://radio.example/x.m3u8", Source: track.SourceHLS})
	require.NoError(t, err)
	assert.Equal(t, "https://radio.example/x.m3u8", src.URL)
}

func TestParseMediaLine(t *testing.T) {
	url, headers, err := parseMediaLine("https://rr1.googlevideo.com/videoplayback?x=1\t{\"User-Agent\": \"Mozilla\", \"Accept\": \"*/*\"}\n")
	require.NoError(t, err)
	assert.Equal(t, "https://rr1.googlevideo.com/videoplayback?x=1", url)
	assert.Equal(t, "Mozilla", headers["User-Agent"])

	url, headers, err = parseMediaLine("https://example.com/a.m4a\tNA")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.m4a", url)
	assert.Nil(t, headers)

	_, _, err = parseMediaLine("NA\tNA")
	assert.Error(t, err)
}
