package handlers

import (
	"errors"

	"github.com/sonroyaalmerol/rotabot/internal/player"
	"github.com/sonroyaalmerol/rotabot/internal/queue"
	"github.com/sonroyaalmerol/rotabot/internal/repository"
	"github.com/sonroyaalmerol/rotabot/internal/resolver"
	"github.com/sonroyaalmerol/rotabot/internal/utils"
)

// userErrors carry messages that are safe to show as they are.
var userErrors = []error{
	queue.ErrQueueEmpty,
	queue.ErrNotPlaying,
	queue.ErrPositionOutOfRange,
	queue.ErrBadPosition,
	player.ErrNotConnected,
	player.ErrNoPrevious,
	player.ErrNotPaused,
	player.ErrRepeatNeedsTracks,
	player.ErrCannotSeekLive,
	player.ErrSeekPastEnd,
	player.ErrVolumeOutOfRange,
	player.ErrSkipCountTooSmall,
	player.ErrMoveSamePosition,
	player.ErrNothingToClear,
	resolver.ErrEmptyQuery,
	resolver.ErrNotFound,
	resolver.ErrSpotifyDisabled,
	repository.ErrInvalidSetting,
	utils.ErrBadDuration,
}

// userMessage turns err into a reply. known is false for unexpected
// errors, which get a generic message and should be logged.
func userMessage(err error) (msg string, known bool) {
	if errors.Is(err, queue.ErrIndexerNotStandard) {
		return "that only works in standard queue mode, see /queue-mode", true
	}
	var rangeErr *queue.RangeError
	if errors.As(err, &rangeErr) {
		return rangeErr.Error(), true
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return err.Error(), true
		}
	}
	return "something went wrong, try again later", false
}
