package sponsorblock

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sonroyaalmerol/rotabot/internal/cache"
)

const categoryMusicOffTopic = "music_offtopic"

// edgeSlack is how close to either end of a track a segment must be to be
// treated as an intro or outro.
const edgeSlack = 2

type Applier struct {
	client *Client
	cache  *cache.TTL[string, []Segment]

	mu            sync.Mutex
	disabledUntil time.Time
	disableFor    time.Duration
}

// NewApplier backs off for timeout after the API reports it is unavailable.
func NewApplier(timeout time.Duration) *Applier {
	return &Applier{
		client:     NewClient(),
		cache:      cache.NewTTL[string, []Segment](time.Hour),
		disableFor: timeout,
	}
}

// Adjustment is the playable window of a track once off-topic parts are cut.
type Adjustment struct {
	Length int
	Offset int
	Notes  []string
}

func (a Adjustment) String() string { return strings.Join(a.Notes, ", ") }

// Adjust skips a non-music intro and trims a non-music outro. The boolean
// reports whether anything changed.
func (a *Applier) Adjust(ctx context.Context, videoID string, length, offset int) (Adjustment, bool) {
	adj := Adjustment{Length: length, Offset: offset}
	if videoID == "" || length <= 0 || a.disabled() {
		return adj, false
	}

	segs, ok := a.cache.Get(videoID)
	if !ok {
		var err error
		segs, err = a.client.GetSegments(ctx, videoID, []string{categoryMusicOffTopic})
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				a.backOff()
			}
			slog.Debug("sponsorblock lookup failed", "videoID", videoID, "err", err)
			return adj, false
		}
		a.cache.Set(videoID, segs)
	}
	if len(segs) == 0 {
		return adj, false
	}
	return trim(MergeSegments(segs), length, offset)
}

func trim(segs []Segment, length, offset int) (Adjustment, bool) {
	adj := Adjustment{Length: length, Offset: offset}

	last := segs[len(segs)-1]
	if last.End() >= float64(length-edgeSlack) {
		if end := int(last.Start()); end > 0 && end < length {
			adj.Length = end
			adj.Notes = append(adj.Notes, "trimmed outro")
		}
	}

	first := segs[0]
	if first.Start() <= edgeSlack {
		if skip := int(first.End()); skip > 0 && skip < adj.Length {
			adj.Offset += skip
			adj.Length -= skip
			adj.Notes = append(adj.Notes, "skipped intro")
		}
	}
	return adj, len(adj.Notes) > 0
}

func (a *Applier) disabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Now().Before(a.disabledUntil)
}

func (a *Applier) backOff() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disabledUntil = time.Now().Add(a.disableFor)
}
