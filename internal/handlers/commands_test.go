package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/rotabot/internal/config"
	"github.com/sonroyaalmerol/rotabot/internal/player"
	"github.com/sonroyaalmerol/rotabot/internal/queue"
	"github.com/sonroyaalmerol/rotabot/internal/repository"
	"github.com/sonroyaalmerol/rotabot/internal/resolver"
)

func TestEveryDefinitionHasAHandler(t *testing.T) {
	h := NewCommandHandler(&config.Config{}, nil, nil, nil, nil)
	seen := map[string]bool{}
	for _, def := range Definitions() {
		assert.False(t, seen[def.Name], "duplicate command %s", def.Name)
		seen[def.Name] = true
		assert.Contains(t, h.commands, def.Name)
		assert.LessOrEqual(t, len(def.Description), 100, def.Name)
	}
	assert.Len(t, h.commands, len(seen))
}

func TestEveryConfigSubcommandIsHandled(t *testing.T) {
	var cfg *discordgo.ApplicationCommand
	for _, def := range Definitions() {
		if def.Name == "config" {
			cfg = def
		}
	}
	require.NotNil(t, cfg)
	require.NotNil(t, cfg.DefaultMemberPermissions)

	for _, sub := range cfg.Options {
		if sub.Name == "get" {
			continue
		}
		update, ok := settingUpdates[sub.Name]
		require.True(t, ok, sub.Name)

		// the option the update reads must be the one that is declared
		require.Len(t, sub.Options, 1)
		opt := &discordgo.ApplicationCommandInteractionDataOption{Name: sub.Options[0].Name, Type: sub.Options[0].Type}
		switch opt.Type {
		case discordgo.ApplicationCommandOptionInteger:
			opt.Value = float64(7)
		case discordgo.ApplicationCommandOptionBoolean:
			opt.Value = true
		default:
			opt.Value = "fair"
		}
		set := &repository.Settings{}
		msg := update(set, optionsOf([]*discordgo.ApplicationCommandInteractionDataOption{opt}))
		assert.NotEmpty(t, msg)
		assert.NotEqual(t, repository.Settings{}, *set, sub.Name)
	}
}

func TestOptions(t *testing.T) {
	opts := optionsOf([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "query", Type: discordgo.ApplicationCommandOptionString, Value: "lofi"},
		{Name: "count", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
		{Name: "next", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
	})
	assert.Equal(t, "lofi", opts.str("query"))
	assert.Equal(t, "", opts.str("missing"))
	assert.Equal(t, 3, opts.integer("count", 1))
	assert.Equal(t, 1, opts.integer("missing", 1))
	assert.True(t, opts.boolean("next"))
	assert.False(t, opts.boolean("shuffle"))
}

func TestFocusedOption(t *testing.T) {
	assert.Nil(t, focusedOption(nil))

	nested := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "sub", Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "a"},
			{Name: "b", Focused: true, Value: "x"},
		}},
	}
	got := focusedOption(nested)
	require.NotNil(t, got)
	assert.Equal(t, "b", got.Name)
}

func TestUserMessage(t *testing.T) {
	msg, known := userMessage(fmt.Errorf("jump: %w", &queue.RangeError{Position: 9, Len: 3}))
	assert.True(t, known)
	assert.Equal(t, "position 9 is out of range (1-3)", msg)

	msg, known = userMessage(queue.ErrIndexerNotStandard)
	assert.True(t, known)
	assert.Contains(t, msg, "standard queue mode")

	for _, err := range []error{player.ErrNoPrevious, resolver.ErrNotFound, queue.ErrQueueEmpty} {
		msg, known = userMessage(err)
		assert.True(t, known)
		assert.Equal(t, err.Error(), msg)
	}

	_, err := queue.ParsePositionList("first", 3)
	msg, known = userMessage(err)
	assert.True(t, known)
	assert.Equal(t, `invalid position "first"`, msg)

	msg, known = userMessage(errors.New("database is locked"))
	assert.False(t, known)
	assert.NotContains(t, msg, "database")
}

func TestUserIDOf(t *testing.T) {
	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: &discordgo.Member{User: &discordgo.User{ID: "m"}}}}
	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "u"}}}
	assert.Equal(t, "m", userIDOf(guild))
	assert.Equal(t, "u", userIDOf(dm))
	assert.Equal(t, "", userIDOf(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}))
}
