package config

import "time"

type Config struct {
	DiscordToken          string        `env:"DISCORD_TOKEN,required,notEmpty"`
	SpotifyClientID       string        `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret   string        `env:"SPOTIFY_CLIENT_SECRET"`
	DataDir               string        `env:"DATA_DIR" envDefault:"./data"`
	BotStatus             string        `env:"BOT_STATUS" envDefault:"online"` // online/dnd/idle/invisible
	BotActivity           string        `env:"BOT_ACTIVITY" envDefault:"music"`
	EnableSponsorBlock    bool          `env:"ENABLE_SPONSORBLOCK" envDefault:"false"`
	SponsorBlockTimeout   time.Duration `env:"SPONSORBLOCK_TIMEOUT" envDefault:"5m"`
	RegisterCommandsOnBot bool          `env:"REGISTER_COMMANDS_ON_BOT" envDefault:"false"`
	YouTubeCookiesPath    string        `env:"YOUTUBE_COOKIES_PATH"`
	YouTubePOToken        string        `env:"YOUTUBE_PO_TOKEN"`

	// AdvanceLockTimeout bounds how long a track end waits for a command to
	// claim it before the queue advances on its own.
	AdvanceLockTimeout time.Duration `env:"ADVANCE_LOCK_TIMEOUT" envDefault:"250ms"`
	CommandRate        float64       `env:"COMMAND_RATE" envDefault:"1"`
	CommandBurst       int           `env:"COMMAND_BURST" envDefault:"5"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}
