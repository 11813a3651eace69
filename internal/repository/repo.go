package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sonroyaalmerol/rotabot/internal/cache"
)

var ErrInvalidSetting = errors.New("invalid setting")

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db, settings: cache.NewTTL[string, Settings](time.Minute)}
}

// GetSettings returns the guild's settings, creating the defaults on first
// use.
func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	if s, ok := r.settings.Get(guild); ok {
		return &s, nil
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id) VALUES (?)`, guild,
	); err != nil {
		return nil, fmt.Errorf("insert settings: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, playlist_limit, seconds_wait_after_empty, leave_if_no_listeners,
	       queue_add_ephemeral, auto_announce_next_song, default_volume,
	       default_queue_page_size, default_queue_mode, updated_at
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var updated int64
	if err := row.Scan(
		&s.GuildID,
		&s.PlaylistLimit,
		&s.SecondsWaitAfterEmpty,
		&s.LeaveIfNoListeners,
		&s.QAddEphemeral,
		&s.AutoAnnounceNext,
		&s.DefaultVolume,
		&s.DefaultQueuePageSize,
		&s.DefaultQueueMode,
		&updated,
	); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	s.UpdatedAt = time.Unix(updated, 0)

	r.settings.Set(guild, s)
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  playlist_limit=?,
		  seconds_wait_after_empty=?,
		  leave_if_no_listeners=?,
		  queue_add_ephemeral=?,
		  auto_announce_next_song=?,
		  default_volume=?,
		  default_queue_page_size=?,
		  default_queue_mode=?,
		  updated_at=unixepoch()
		WHERE guild_id=?`,
		s.PlaylistLimit, s.SecondsWaitAfterEmpty, s.LeaveIfNoListeners,
		s.QAddEphemeral, s.AutoAnnounceNext, s.DefaultVolume,
		s.DefaultQueuePageSize, s.DefaultQueueMode, s.GuildID,
	)
	r.settings.Delete(s.GuildID)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

// UpdateSetting loads, modifies and stores the guild's settings.
func (r *Repo) UpdateSetting(ctx context.Context, guild string, mutate func(*Settings)) (*Settings, error) {
	s, err := r.GetSettings(ctx, guild)
	if err != nil {
		return nil, err
	}
	mutate(s)
	if err := r.UpdateSettings(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	switch {
	case s.PlaylistLimit < 1:
		return fmt.Errorf("%w: playlist limit must be at least 1", ErrInvalidSetting)
	case s.SecondsWaitAfterEmpty < 0:
		return fmt.Errorf("%w: wait time can't be negative", ErrInvalidSetting)
	case s.DefaultVolume < 0 || s.DefaultVolume > 100:
		return fmt.Errorf("%w: volume must be between 0 and 100", ErrInvalidSetting)
	case s.DefaultQueuePageSize < 1 || s.DefaultQueuePageSize > 30:
		return fmt.Errorf("%w: page size must be between 1 and 30", ErrInvalidSetting)
	}
	switch s.DefaultQueueMode {
	case "standard", "fair", "shuffled":
	default:
		return fmt.Errorf("%w: unknown queue mode %q", ErrInvalidSetting, s.DefaultQueueMode)
	}
	return nil
}
