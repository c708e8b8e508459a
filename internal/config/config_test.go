package config

import (
	"os"
	"path/filepath"
	"testing"

	"guildmirror/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `{
	"sourceGuildId": "111",
	"targetGuildId": "222",
	"checkpoint": {"path": "/tmp/checkpoints.db"}
}`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "media-grouped", cfg.Mode)
	assert.Equal(t, constants.DefaultUploadLimitMB, cfg.UploadLimitMB)
	assert.Equal(t, constants.DefaultHistoryPageSize, cfg.Backfill.PageSize)
	assert.Equal(t, constants.DefaultBackfillPauseSec, cfg.Backfill.PauseSec)
	assert.Equal(t, constants.DefaultRetryInitialBackoffMs, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, constants.DefaultRetryMaxBackoffMs, cfg.Retry.MaxBackoffMs)
	assert.Equal(t, constants.DefaultRetryMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
}

func TestLoadConfigKeepsExplicitValues(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{
		"sourceGuildId": "111",
		"targetGuildId": "222",
		"channels": ["general", "memes"],
		"mode": "plain",
		"uploadLimitMB": 25,
		"checkpoint": {"path": "/var/lib/guildmirror/checkpoints.db"},
		"backfill": {"pageSize": 500, "pauseSec": 5},
		"server": {"port": 9090}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"general", "memes"}, cfg.Channels)
	assert.Equal(t, "plain", cfg.Mode)
	assert.Equal(t, 25, cfg.UploadLimitMB)
	assert.Equal(t, 500, cfg.Backfill.PageSize)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "{not json"))
	assert.Error(t, err)
}

func TestLoadConfigMissingSourceGuild(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"targetGuildId": "222", "checkpoint": {"path": "/tmp/c.db"}}`))
	assert.ErrorIs(t, err, ErrMissingSourceGuild)
}

func TestLoadConfigMissingTargetGuild(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"sourceGuildId": "111", "checkpoint": {"path": "/tmp/c.db"}}`))
	assert.ErrorIs(t, err, ErrMissingTargetGuild)
}

func TestLoadConfigSameGuilds(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"sourceGuildId": "111", "targetGuildId": "111", "checkpoint": {"path": "/tmp/c.db"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoadConfigMissingCheckpointPath(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"sourceGuildId": "111", "targetGuildId": "222"}`))
	assert.ErrorIs(t, err, ErrMissingDBPath)
}

func TestLoadConfigRejectsEmptyChannelName(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{
		"sourceGuildId": "111",
		"targetGuildId": "222",
		"channels": ["general", ""],
		"checkpoint": {"path": "/tmp/c.db"}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty channel name")
}

func TestLoadConfigRejectsDuplicateChannels(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{
		"sourceGuildId": "111",
		"targetGuildId": "222",
		"channels": ["general", "general"],
		"checkpoint": {"path": "/tmp/c.db"}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate channel name")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GUILDMIRROR_DB_PATH", "/override/checkpoints.db")
	t.Setenv("GUILDMIRROR_OTLP_ENDPOINT", "collector:4318")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "/override/checkpoints.db", cfg.Checkpoint.Path)
	assert.Equal(t, "collector:4318", cfg.Tracing.OTLPEndpoint)
}
