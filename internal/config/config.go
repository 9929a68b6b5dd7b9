package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.IdleDisconnectSeconds < 0 {
		cfg.IdleDisconnectSeconds = 0
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)
	return &cfg, nil
}

// IdleDisconnect is the default grace period before an idle voice connection
// is torn down; per-guild settings can override it.
func (c *Config) IdleDisconnect() time.Duration {
	return time.Duration(c.IdleDisconnectSeconds) * time.Second
}

func (c *Config) FarewellDisplay() time.Duration {
	return time.Duration(c.FarewellDisplaySeconds) * time.Second
}
