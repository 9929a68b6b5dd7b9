package config

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`

	NodeHost         string `env:"NODE_HOST" envDefault:"localhost"`
	NodePort         int    `env:"NODE_PORT" envDefault:"2333"`
	NodePassword     string `env:"NODE_PASSWORD,required"`
	NodeSecure       bool   `env:"NODE_SECURE" envDefault:"false"`
	NodeSearchPrefix string `env:"NODE_SEARCH_PREFIX" envDefault:"ytsearch"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	BotStatus   string `env:"BOT_STATUS" envDefault:"online"`
	BotActivity string `env:"BOT_ACTIVITY" envDefault:"music"`

	// Grace period before an idle voice connection is torn down.
	IdleDisconnectSeconds int `env:"IDLE_DISCONNECT_SECONDS" envDefault:"10"`
	// How long the farewell message stays before self-deleting.
	FarewellDisplaySeconds int `env:"FAREWELL_DISPLAY_SECONDS" envDefault:"30"`

	RegisterCommandsOnBot bool `env:"REGISTER_COMMANDS_ON_BOT" envDefault:"false"`
}
