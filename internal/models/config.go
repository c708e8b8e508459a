package models

// Config holds the application configuration.
type Config struct {
	SourceGuildID string           `json:"sourceGuildId"`
	TargetGuildID string           `json:"targetGuildId"`
	Channels      []string         `json:"channels"`
	Mode          string           `json:"mode"`
	UploadLimitMB int              `json:"uploadLimitMB"`
	Checkpoint    CheckpointConfig `json:"checkpoint"`
	Backfill      BackfillConfig   `json:"backfill"`
	Retry         RetryConfig      `json:"retry"`
	Server        ServerConfig     `json:"server"`
	Tracing       TracingConfig    `json:"tracing"`
	LogLevel      string           `json:"log_level"`
}

// CheckpointConfig holds checkpoint store configuration.
type CheckpointConfig struct {
	Path string `json:"path"`
}

// BackfillConfig holds backfill scanner configuration.
type BackfillConfig struct {
	PageSize int `json:"pageSize"`
	PauseSec int `json:"pauseSec"`
}

// RetryConfig holds retry related configuration.
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Port int `json:"port"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	UseStdout    bool    `json:"use_stdout"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	Environment  string  `json:"environment"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
