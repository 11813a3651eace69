package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

type Kind string

const (
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindTrack    Kind = "track"
	KindArtist   Kind = "artist"
)

var ErrNotSpotify = errors.New("not a spotify link")

// Song is what a Spotify entry is searched for on YouTube with.
type Song struct {
	Name   string
	Artist string
}

func (s Song) SearchQuery() string {
	if s.Artist == "" {
		return fmt.Sprintf("%q", s.Name)
	}
	return fmt.Sprintf("%q %q", s.Name, s.Artist)
}

// Collection is the resolved content of a Spotify link. Title and Link are
// empty for single tracks and artists.
type Collection struct {
	Title string
	Link  string
	Songs []Song
	// Total is how many songs the collection has before any limit.
	Total int
}

type Client struct {
	raw    *spotify.Client
	market string
}

func NewClientCredentials(ctx context.Context, clientID, clientSecret string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	cl := spotify.New(cfg.Client(ctx), spotify.WithRetry(true))
	return &Client{raw: cl, market: "US"}
}

// IsLink reports whether s looks like a Spotify URI or open.spotify.com URL.
func IsLink(s string) bool {
	return strings.HasPrefix(s, "spotify:") || strings.Contains(s, "open.spotify.com")
}

func ParseID(raw string) (Kind, spotify.ID, error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return "", "", fmt.Errorf("invalid spotify URI %q", raw)
		}
		return checkKind(parts[1], parts[2])
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
		return "", "", ErrNotSpotify
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// localized links look like /intl-de/track/<id>
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid spotify URL path %q", u.Path)
	}
	return checkKind(parts[0], parts[1])
}

func checkKind(kind, id string) (Kind, spotify.ID, error) {
	switch k := Kind(kind); k {
	case KindAlbum, KindPlaylist, KindTrack, KindArtist:
		if id == "" {
			return "", "", errors.New("missing spotify id")
		}
		return k, spotify.ID(id), nil
	}
	return "", "", fmt.Errorf("unsupported spotify type %q", kind)
}

// Resolve fetches the songs behind a Spotify link, stopping after limit
// songs when limit is positive.
func (c *Client) Resolve(ctx context.Context, link string, limit int) (Collection, error) {
	kind, id, err := ParseID(link)
	if err != nil {
		return Collection{}, err
	}
	switch kind {
	case KindAlbum:
		return c.album(ctx, id, limit)
	case KindPlaylist:
		return c.playlist(ctx, id, limit)
	case KindTrack:
		t, err := c.raw.GetTrack(ctx, id)
		if err != nil {
			return Collection{}, err
		}
		return Collection{Songs: []Song{songOf(t.SimpleTrack)}, Total: 1}, nil
	default:
		return c.artistTop(ctx, id, limit)
	}
}

func (c *Client) album(ctx context.Context, id spotify.ID, limit int) (Collection, error) {
	alb, err := c.raw.GetAlbum(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	page, err := c.raw.GetAlbumTracks(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	col := Collection{Title: alb.Name, Link: alb.ExternalURLs["spotify"], Total: int(page.Total)}
	for {
		for _, t := range page.Tracks {
			if limit > 0 && len(col.Songs) >= limit {
				return col, nil
			}
			col.Songs = append(col.Songs, songOf(t))
		}
		if page.Next == "" {
			return col, nil
		}
		if err := c.raw.NextPage(ctx, page); err != nil {
			return col, nil
		}
	}
}

func (c *Client) playlist(ctx context.Context, id spotify.ID, limit int) (Collection, error) {
	pl, err := c.raw.GetPlaylist(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	page, err := c.raw.GetPlaylistItems(ctx, id)
	if err != nil {
		return Collection{}, err
	}
	col := Collection{Title: pl.Name, Link: pl.ExternalURLs["spotify"], Total: int(page.Total)}
	for {
		for _, it := range page.Items {
			// local files and episodes have no track
			if it.Track.Track == nil {
				continue
			}
			if limit > 0 && len(col.Songs) >= limit {
				return col, nil
			}
			col.Songs = append(col.Songs, songOf(it.Track.Track.SimpleTrack))
		}
		if page.Next == "" {
			return col, nil
		}
		if err := c.raw.NextPage(ctx, page); err != nil {
			return col, nil
		}
	}
}

func (c *Client) artistTop(ctx context.Context, id spotify.ID, limit int) (Collection, error) {
	full, err := c.raw.GetArtistsTopTracks(ctx, id, c.market)
	if err != nil {
		return Collection{}, err
	}
	col := Collection{Total: len(full)}
	for _, t := range full {
		if limit > 0 && len(col.Songs) >= limit {
			break
		}
		col.Songs = append(col.Songs, songOf(t.SimpleTrack))
	}
	return col, nil
}

func songOf(t spotify.SimpleTrack) Song {
	s := Song{Name: t.Name}
	if len(t.Artists) > 0 {
		s.Artist = t.Artists[0].Name
	}
	return s
}

// Suggestion is an autocomplete entry pointing at a Spotify URI.
type Suggestion struct {
	Label string
	URI   string
}

// Suggest searches albums and tracks, at most limit of each.
func (c *Client) Suggest(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 5
	}
	res, err := c.raw.Search(ctx, query, spotify.SearchTypeAlbum|spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, err
	}

	var out []Suggestion
	if res.Albums != nil {
		for _, a := range res.Albums.Albums[:min(limit, len(res.Albums.Albums))] {
			out = append(out, Suggestion{
				Label: withArtist("💿 "+a.Name, a.Artists),
				URI:   "spotify:album:" + a.ID.String(),
			})
		}
	}
	if res.Tracks != nil {
		for _, t := range res.Tracks.Tracks[:min(limit, len(res.Tracks.Tracks))] {
			out = append(out, Suggestion{
				Label: withArtist("🎵 "+t.Name, t.Artists),
				URI:   "spotify:track:" + t.ID.String(),
			})
		}
	}
	return out, nil
}

func withArtist(name string, artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return name
	}
	return name + " - " + artists[0].Name
}
