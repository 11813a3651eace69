package track

import "fmt"

type Source int

const (
	SourceYouTube Source = iota
	SourceHLS
)

func (s Source) String() string {
	switch s {
	case SourceYouTube:
		return "youtube"
	case SourceHLS:
		return "hls"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

type Playlist struct {
	Title  string
	Source string
}

// Track is a resolved, playable piece of media. The queue treats it as
// opaque; only the playback engine and the ui look inside.
type Track struct {
	Title     string
	Artist    string
	VideoID   string
	URL       string // youtube videoId or full HLS URL
	Length    int    // seconds; where playback stops within the media
	Offset    int    // seconds; where playback starts within the media
	Playlist  *Playlist
	IsLive    bool
	Thumbnail string
	Source    Source
}

// Link returns a URL a human can open for the track.
func (t Track) Link() string {
	if t.Source == SourceHLS {
		return t.URL
	}
	id := t.VideoID
	if id == "" {
		id = t.URL
	}
	return "https://www.youtube.com/watch?v=" + id
}

// Remaining is the playable length once the start offset is skipped.
func (t Track) Remaining() int {
	if t.IsLive || t.Length <= t.Offset {
		return 0
	}
	return t.Length - t.Offset
}
