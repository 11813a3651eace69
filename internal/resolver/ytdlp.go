package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

// bestAudio prefers opus, then m4a, then anything with audio.
const bestAudio = "ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best"

var installOnce sync.Once

// EnsureYtdlp downloads a yt-dlp binary if none is available.
func EnsureYtdlp(ctx context.Context) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})
}

// videoInfo is the part of yt-dlp's metadata the resolver uses.
type videoInfo struct {
	ID          string
	Title       string
	Uploader    string
	Duration    float64
	IsLive      bool
	Description string
	WebpageURL  string
	Thumbnail   string
}

type playlistInfo struct {
	Title   string
	URL     string
	Entries []videoInfo
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func toVideoInfo(e *ytdlp.ExtractedInfo) videoInfo {
	v := videoInfo{
		ID:          e.ID,
		Title:       deref(e.Title),
		Uploader:    deref(e.Uploader),
		Duration:    deref(e.Duration),
		IsLive:      deref(e.IsLive),
		Description: deref(e.Description),
		WebpageURL:  deref(e.WebpageURL),
	}
	// yt-dlp lists thumbnails from worst to best
	for i := len(e.Thumbnails) - 1; i >= 0; i-- {
		if t := e.Thumbnails[i]; t != nil && t.URL != "" {
			v.Thumbnail = t.URL
			break
		}
	}
	return v
}

func (r *Resolver) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig().
		NoCheckCertificates()

	if r.cfg.YouTubeCookiesPath != "" {
		cmd = cmd.Cookies(r.cfg.YouTubeCookiesPath)
	}
	args := "youtube:player-client=default,mweb"
	if r.cfg.YouTubePOToken != "" {
		args += ";po_token=" + r.cfg.YouTubePOToken
	}
	return cmd.ExtractorArgs(args)
}

func wrapYtdlpErr(target string, err error) error {
	if strings.Contains(err.Error(), "Sign in to confirm") {
		return fmt.Errorf("yt-dlp %s (PO token may be required): %w", target, err)
	}
	return fmt.Errorf("yt-dlp %s: %w", target, err)
}

// fetchVideo returns metadata of a single video. target may be a URL or a
// "ytsearch1:" query.
func (r *Resolver) fetchVideo(ctx context.Context, target string) (videoInfo, error) {
	res, err := r.command().
		Format(bestAudio).
		DumpJSON().
		Run(ctx, "--no-playlist", target)
	if err != nil {
		return videoInfo{}, wrapYtdlpErr(target, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return videoInfo{}, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	for _, info := range infos {
		if info == nil {
			continue
		}
		// search results may come back wrapped
		if len(info.Entries) > 0 && info.Entries[0] != nil {
			info = info.Entries[0]
		}
		return toVideoInfo(info), nil
	}
	return videoInfo{}, ErrNotFound
}

// fetchPlaylist lists a playlist without resolving every entry.
func (r *Resolver) fetchPlaylist(ctx context.Context, url string) (playlistInfo, error) {
	res, err := r.command().
		FlatPlaylist().
		DumpSingleJSON().
		Run(ctx, url)
	if err != nil {
		return playlistInfo{}, wrapYtdlpErr(url, err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return playlistInfo{}, fmt.Errorf("parse yt-dlp playlist json: %w", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return playlistInfo{}, ErrNotFound
	}
	pl := infos[0]

	out := playlistInfo{
		Title:   deref(pl.Title),
		URL:     deref(pl.WebpageURL),
		Entries: make([]videoInfo, 0, len(pl.Entries)),
	}
	for _, e := range pl.Entries {
		if e == nil || e.ID == "" {
			continue
		}
		out.Entries = append(out.Entries, toVideoInfo(e))
	}
	return out, nil
}

// fetchMedia asks yt-dlp for the direct media URL of target and the
// headers to fetch it with.
func (r *Resolver) fetchMedia(ctx context.Context, target string) (string, map[string]string, error) {
	res, err := r.command().
		Format(bestAudio).
		Print("%(url)s\t%(http_headers)j").
		Run(ctx, "--no-playlist", target)
	if err != nil {
		return "", nil, wrapYtdlpErr(target, err)
	}
	return parseMediaLine(res.Stdout)
}

func parseMediaLine(stdout string) (string, map[string]string, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(stdout), "\n")
	url, rawHeaders, _ := strings.Cut(line, "\t")
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http") {
		return "", nil, errors.New("no usable media URL")
	}

	var headers map[string]string
	if rawHeaders != "" && rawHeaders != "NA" {
		if err := json.Unmarshal([]byte(rawHeaders), &headers); err != nil {
			return "", nil, fmt.Errorf("parse http headers: %w", err)
		}
	}
	return url, headers, nil
}
