package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/rotabot/internal/player"
	"github.com/sonroyaalmerol/rotabot/internal/spotify"
	"github.com/sonroyaalmerol/rotabot/internal/utils"
)

// Discord caps choices at 25 and choice names at 100 characters.
const (
	MaxChoices    = 25
	maxChoiceName = 100
)

const youtubeSuggestURL = "https://suggestqueries.google.com/complete/search"

type Suggester struct {
	http     *http.Client
	spotify  *spotify.Client
	endpoint string
}

// NewSuggester returns a suggester; sp may be nil when Spotify is disabled.
func NewSuggester(sp *spotify.Client) *Suggester {
	return &Suggester{
		http:     &http.Client{Timeout: 2 * time.Second},
		spotify:  sp,
		endpoint: youtubeSuggestURL,
	}
}

// YouTube returns search completions as YouTube's search box shows them.
func (s *Suggester) YouTube(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube suggestions: status %d", resp.StatusCode)
	}

	// ["query", ["suggestion", ...], ...]
	var parsed []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(parsed[1], &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlayChoices mixes YouTube completions with Spotify albums and tracks,
// leaving room for the Spotify results when there are any.
func (s *Suggester) PlayChoices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	if limit <= 0 || limit > MaxChoices {
		limit = 10
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []*discordgo.ApplicationCommandOptionChoice{}
	}

	yt, err := s.YouTube(ctx, query)
	if err != nil {
		slog.Debug("youtube suggestions failed", "err", err)
	}

	var sp []spotify.Suggestion
	if s.spotify != nil {
		sp, err = s.spotify.Suggest(ctx, query, max(1, limit/4))
		if err != nil {
			slog.Debug("spotify suggestions failed", "err", err)
		}
	}

	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, limit)
	for _, v := range yt[:min(len(yt), limit-min(len(sp), limit))] {
		out = append(out, choice("YouTube: "+v, v))
	}
	for _, v := range sp {
		if len(out) >= limit {
			break
		}
		out = append(out, choice("Spotify: "+v.Label, v.URI))
	}
	return out
}

func choice(name string, value any) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{
		Name:  utils.Truncate(name, maxChoiceName),
		Value: value,
	}
}

// QueueChoices lists queue positions whose title matches what was typed so
// far. A typed number matches positions starting with it.
func QueueChoices(p *player.Player, typed string) []*discordgo.ApplicationCommandOptionChoice {
	out := []*discordgo.ApplicationCommandOptionChoice{}
	if p == nil {
		return out
	}
	typed = strings.ToLower(strings.TrimSpace(typed))

	r := p.Data().Read()
	defer r.Release()
	q := r.Queue()
	for i, slot := range q.Order() {
		it, ok := q.Item(slot)
		if !ok {
			continue
		}
		pos := strconv.Itoa(i + 1)
		if typed != "" &&
			!strings.HasPrefix(pos, typed) &&
			!strings.Contains(strings.ToLower(it.Track.Title), typed) {
			continue
		}
		out = append(out, choice(pos+". "+it.Track.Title, i+1))
		if len(out) == MaxChoices {
			break
		}
	}
	return out
}
