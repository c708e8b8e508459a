package config

import (
	"encoding/json"
	"fmt"
	"os"

	"guildmirror/internal/constants"
	"guildmirror/internal/models"
)

var (
	ErrMissingSourceGuild = models.ConfigError{Message: "missing source guild id"}
	ErrMissingTargetGuild = models.ConfigError{Message: "missing target guild id"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing checkpoint store path"}
)

// LoadConfig reads, validates and defaults the JSON configuration at path.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	return &config, nil
}

func validate(c *models.Config) error {
	if c.SourceGuildID == "" {
		return ErrMissingSourceGuild
	}
	if c.TargetGuildID == "" {
		return ErrMissingTargetGuild
	}
	if c.SourceGuildID == c.TargetGuildID {
		return models.ConfigError{Message: "source and target guild ids must differ"}
	}
	if c.Checkpoint.Path == "" {
		return ErrMissingDBPath
	}

	seen := make(map[string]bool)
	for i, name := range c.Channels {
		if name == "" {
			return models.ConfigError{Message: fmt.Sprintf("empty channel name at index %d", i)}
		}
		if seen[name] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate channel name: %s", name)}
		}
		seen[name] = true
	}

	if c.Mode == "" {
		c.Mode = "media-grouped"
	}
	if c.UploadLimitMB <= 0 {
		c.UploadLimitMB = constants.DefaultUploadLimitMB
	}
	if c.Backfill.PageSize <= 0 {
		c.Backfill.PageSize = constants.DefaultHistoryPageSize
	}
	if c.Backfill.PauseSec <= 0 {
		c.Backfill.PauseSec = constants.DefaultBackfillPauseSec
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryInitialBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultRetryMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultRetryMaxAttempts
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	// The bot token is env-only and read in main; only paths and endpoints
	// are overridable here.
	if path := os.Getenv("GUILDMIRROR_DB_PATH"); path != "" {
		c.Checkpoint.Path = path
	}
	if endpoint := os.Getenv("GUILDMIRROR_OTLP_ENDPOINT"); endpoint != "" {
		c.Tracing.OTLPEndpoint = endpoint
	}
}
