package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("NODE_PASSWORD", "secret")
	t.Setenv("DATA_DIR", filepath.Join(t.TempDir(), "data"))
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.NodeHost)
	assert.Equal(t, 2333, cfg.NodePort)
	assert.False(t, cfg.NodeSecure)
	assert.Equal(t, "ytsearch", cfg.NodeSearchPrefix)
	assert.Equal(t, 10*time.Second, cfg.IdleDisconnect())
	assert.Equal(t, 30*time.Second, cfg.FarewellDisplay())
	assert.False(t, cfg.RegisterCommandsOnBot)
}

func TestLoadConfigMissingToken(t *testing.T) {
	t.Setenv("NODE_PASSWORD", "secret")
	t.Setenv("DISCORD_TOKEN", "placeholder") // register restore, then unset
	require.NoError(t, os.Unsetenv("DISCORD_TOKEN"))

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NODE_HOST", "audio.internal")
	t.Setenv("NODE_PORT", "8080")
	t.Setenv("NODE_SECURE", "true")
	t.Setenv("IDLE_DISCONNECT_SECONDS", "45")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "audio.internal", cfg.NodeHost)
	assert.Equal(t, 8080, cfg.NodePort)
	assert.True(t, cfg.NodeSecure)
	assert.Equal(t, 45*time.Second, cfg.IdleDisconnect())
}

func TestLoadConfigClampsNegativeIdle(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IDLE_DISCONNECT_SECONDS", "-5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.IdleDisconnectSeconds)
}
