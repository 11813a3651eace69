package autocomplete

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/player"
	"github.com/sonroyaalmerol/rotabot/internal/track"
)

func newTestSuggester(t *testing.T, status int, body string) *Suggester {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yt", r.URL.Query().Get("ds"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	s := NewSuggester(nil)
	s.endpoint = srv.URL
	return s
}

func TestYouTubeSuggestions(t *testing.T) {
	s := newTestSuggester(t, http.StatusOK, `["lofi",["lofi hip hop","lofi girl"],[],{"k":1}]`)
	got, err := s.YouTube(context.Background(), "lofi")
	require.NoError(t, err)
	assert.Equal(t, []string{"lofi hip hop", "lofi girl"}, got)
}

func TestYouTubeSuggestionsStatus(t *testing.T) {
	s := newTestSuggester(t, http.StatusTooManyRequests, ``)
	_, err := s.YouTube(context.Background(), "lofi")
	assert.Error(t, err)
}

func TestPlayChoices(t *testing.T) {
	s := newTestSuggester(t, http.StatusOK, `["a",["a1","a2","a3"]]`)

	got := s.PlayChoices(context.Background(), "a", 2)
	require.Len(t, got, 2)
	assert.Equal(t, "YouTube: a1", got[0].Name)
	assert.Equal(t, "a1", got[0].Value)

	assert.Empty(t, s.PlayChoices(context.Background(), "  ", 5))
}

func TestPlayChoicesSurvivesFailure(t *testing.T) {
	s := newTestSuggester(t, http.StatusInternalServerError, ``)
	assert.Empty(t, s.PlayChoices(context.Background(), "a", 5))
}

func TestQueueChoices(t *testing.T) {
	assert.Empty(t, QueueChoices(nil, ""))

	p := player.NewPlayer(&config.Config{}, nil, nil, nil, "g1", player.NewData(player.DefaultVolume))
	w := p.Data().Write()
	w.QueueMut().Enqueue([]track.Track{{Title: "Alpha"}, {Title: "Beta"}, {Title: "Gamma"}}, "u", "c")
	w.Release()

	all := QueueChoices(p, "")
	require.Len(t, all, 3)
	assert.Equal(t, "1. Alpha", all[0].Name)
	assert.Equal(t, 1, all[0].Value)

	byTitle := QueueChoices(p, "bet")
	require.Len(t, byTitle, 1)
	assert.Equal(t, 2, byTitle[0].Value)

	byPos := QueueChoices(p, "3")
	require.Len(t, byPos, 1)
	assert.Equal(t, "3. Gamma", byPos[0].Name)
}
