package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sonroyaalmerol/rotabot/internal/cache"
	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/sponsorblock"
	"github.com/sonroyaalmerol/rotabot/internal/spotify"
	"github.com/sonroyaalmerol/rotabot/internal/stream"
	"github.com/sonroyaalmerol/rotabot/internal/track"
	"github.com/sonroyaalmerol/rotabot/internal/utils"
)

var (
	ErrEmptyQuery      = errors.New("empty query")
	ErrNotFound        = errors.New("no results found")
	ErrSpotifyDisabled = errors.New("spotify is not enabled")
)

// mediaURLTTL is how long a resolved googlevideo URL is reused.
const mediaURLTTL = 5 * time.Hour

// lookupWorkers bounds concurrent yt-dlp searches for Spotify collections.
const lookupWorkers = 4

type Options struct {
	// Limit caps how many tracks a playlist contributes.
	Limit int
	// Split turns a video with chapter markers into one track per chapter.
	Split bool
}

type Result struct {
	Tracks []track.Track
	// Notes are human readable remarks such as sampling or misses.
	Notes []string
}

// Resolver turns user queries into tracks and tracks into playable media.
type Resolver struct {
	cfg     *config.Config
	spotify *spotify.Client
	sb      *sponsorblock.Applier
	media   *cache.TTL[string, stream.Source]

	video    func(ctx context.Context, target string) (videoInfo, error)
	playlist func(ctx context.Context, url string) (playlistInfo, error)
	locate   func(ctx context.Context, target string) (string, map[string]string, error)
}

var _ stream.Locator = (*Resolver)(nil)

func New(ctx context.Context, cfg *config.Config) *Resolver {
	r := &Resolver{
		cfg:   cfg,
		media: cache.NewTTL[string, stream.Source](mediaURLTTL),
	}
	if cfg.SpotifyEnabled() {
		r.spotify = spotify.NewClientCredentials(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	}
	if cfg.EnableSponsorBlock {
		r.sb = sponsorblock.NewApplier(cfg.SponsorBlockTimeout)
	}
	r.video = r.fetchVideo
	r.playlist = r.fetchPlaylist
	r.locate = r.fetchMedia
	return r
}

// Spotify returns the Spotify client, or nil when Spotify is not configured.
func (r *Resolver) Spotify() *spotify.Client { return r.spotify }

type queryKind int

const (
	querySearch queryKind = iota
	querySpotify
	queryYouTubePlaylist
	queryYouTubeVideo
	queryStream
)

func classify(q string) queryKind {
	if spotify.IsLink(q) {
		return querySpotify
	}
	if !strings.HasPrefix(q, "http://") && !strings.HasPrefix(q, "https://") {
		return querySearch
	}
	if isYouTube(q) {
		if strings.Contains(q, "list=") {
			return queryYouTubePlaylist
		}
		return queryYouTubeVideo
	}
	return queryStream
}

func isYouTube(q string) bool {
	return strings.Contains(q, "youtube.com") || strings.Contains(q, "youtu.be")
}

// Resolve turns a search term or link into tracks.
func (r *Resolver) Resolve(ctx context.Context, query string, opts Options) (Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Result{}, ErrEmptyQuery
	}

	var (
		res Result
		err error
	)
	switch classify(q) {
	case querySpotify:
		res, err = r.resolveSpotify(ctx, q, opts)
	case queryYouTubePlaylist:
		res, err = r.resolveYouTubePlaylist(ctx, q, opts)
	case queryYouTubeVideo:
		res, err = r.resolveVideo(ctx, q, nil, opts.Split)
	case queryStream:
		res = Result{Tracks: []track.Track{{
			Title:  q,
			Artist: q,
			URL:    q,
			IsLive: true,
			Source: track.SourceHLS,
		}}}
	default:
		res, err = r.resolveVideo(ctx, "ytsearch1:"+q, nil, opts.Split)
	}
	if err != nil {
		return Result{}, err
	}
	if len(res.Tracks) == 0 {
		return Result{}, ErrNotFound
	}
	return res, nil
}

func (r *Resolver) resolveVideo(ctx context.Context, target string, pl *track.Playlist, split bool) (Result, error) {
	info, err := r.video(ctx, target)
	if err != nil {
		return Result{}, err
	}
	tracks := tracksFromVideo(info, pl, split)
	for i := range tracks {
		r.applySponsorBlock(ctx, &tracks[i])
	}
	return Result{Tracks: tracks}, nil
}

func (r *Resolver) resolveYouTubePlaylist(ctx context.Context, url string, opts Options) (Result, error) {
	info, err := r.playlist(ctx, url)
	if err != nil {
		return Result{}, err
	}
	entries := info.Entries
	var res Result
	if opts.Limit > 0 && len(entries) > opts.Limit {
		utils.ShuffleSlice(entries)
		entries = entries[:opts.Limit]
		res.Notes = append(res.Notes, fmt.Sprintf("a random sample of %d songs was taken", opts.Limit))
	}

	pl := &track.Playlist{Title: info.Title, Source: info.URL}
	for _, e := range entries {
		t := trackFromVideo(e, pl)
		r.applySponsorBlock(ctx, &t)
		res.Tracks = append(res.Tracks, t)
	}
	return res, nil
}

func (r *Resolver) resolveSpotify(ctx context.Context, link string, opts Options) (Result, error) {
	if r.spotify == nil {
		return Result{}, ErrSpotifyDisabled
	}
	col, err := r.spotify.Resolve(ctx, link, opts.Limit)
	if err != nil {
		return Result{}, fmt.Errorf("spotify: %w", err)
	}

	var pl *track.Playlist
	if col.Title != "" {
		pl = &track.Playlist{Title: col.Title, Source: col.Link}
	}

	found := make([][]track.Track, len(col.Songs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupWorkers)
	for i, song := range col.Songs {
		g.Go(func() error {
			res, err := r.resolveVideo(gctx, "ytsearch1:"+song.SearchQuery(), pl, false)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Debug("spotify song not found on youtube", "song", song.Name, "artist", song.Artist, "err", err)
				return nil
			}
			found[i] = res.Tracks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	missing := 0
	for _, ts := range found {
		if len(ts) == 0 {
			missing++
		}
		res.Tracks = append(res.Tracks, ts...)
	}
	if col.Total > len(col.Songs) {
		res.Notes = append(res.Notes, fmt.Sprintf("only the first %d of %d songs were added", len(col.Songs), col.Total))
	}
	switch {
	case missing == 1:
		res.Notes = append(res.Notes, "1 song was not found")
	case missing > 1:
		res.Notes = append(res.Notes, fmt.Sprintf("%d songs were not found", missing))
	}
	return res, nil
}

func trackFromVideo(v videoInfo, pl *track.Playlist) track.Track {
	thumb := v.Thumbnail
	if thumb == "" && v.ID != "" {
		thumb = "https://i.ytimg.com/vi/" + v.ID + "/hqdefault.jpg"
	}
	return track.Track{
		Title:     v.Title,
		Artist:    v.Uploader,
		VideoID:   v.ID,
		URL:       v.ID,
		Length:    max(0, int(v.Duration)),
		Playlist:  pl,
		IsLive:    v.IsLive,
		Thumbnail: thumb,
		Source:    track.SourceYouTube,
	}
}

// tracksFromVideo returns one track, or one per chapter when split is set
// and the description carries chapter markers.
func tracksFromVideo(v videoInfo, pl *track.Playlist, split bool) []track.Track {
	base := trackFromVideo(v, pl)
	if !split || base.IsLive || base.Length == 0 || v.Description == "" {
		return []track.Track{base}
	}
	chapters := parseChapters(v.Description, base.Length)
	if len(chapters) == 0 {
		return []track.Track{base}
	}
	out := make([]track.Track, 0, len(chapters))
	for _, ch := range chapters {
		t := base
		t.Offset = ch.Offset
		t.Length = ch.Offset + ch.Length
		t.Title = ch.Label + " (" + base.Title + ")"
		out = append(out, t)
	}
	return out
}

func (r *Resolver) applySponsorBlock(ctx context.Context, t *track.Track) {
	if r.sb == nil || t.Source != track.SourceYouTube || t.IsLive || t.Offset != 0 {
		return
	}
	adj, changed := r.sb.Adjust(ctx, t.VideoID, t.Length, t.Offset)
	if !changed {
		return
	}
	t.Offset = adj.Offset
	t.Length = adj.Offset + adj.Length
	slog.Debug("sponsorblock adjusted track", "videoID", t.VideoID, "changes", adj.String())
}

// Locate implements stream.Locator.
func (r *Resolver) Locate(ctx context.Context, t track.Track) (stream.Source, error) {
	if t.Source == track.SourceHLS {
		return stream.Source{URL: t.URL}, nil
	}
	key := t.VideoID
	if src, ok := r.media.Get(key); ok {
		return src, nil
	}
	url, headers, err := r.locate(ctx, t.Link())
	if err != nil {
		return stream.Source{}, err
	}
	src := stream.Source{URL: url, Headers: headers}
	r.media.Set(key, src)
	return src, nil
}

// Forget drops a cached media URL, for example after it failed to load.
func (r *Resolver) Forget(t track.Track) {
	r.media.Delete(t.VideoID)
}
