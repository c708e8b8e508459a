package constants

// Default replication pipeline values
const (
	DefaultHistoryPageSize  = 1000
	DefaultBackfillPauseSec = 2
	DefaultEventBufferSize  = 256
	DefaultUploadLimitMB    = 8
	SlowMessageThresholdSec = 120
	OpLogCapacity           = 256
	OpLogRecentCount        = 10
)

// Transformation values
const (
	ShortVideoLinkDomain  = "https://tenor.com"
	OversizeFallbackLabel = "📎 **Pic/Vid**"
	EnvelopeTimeLayout    = "2006-01-02 15:04:05"
)

// Default retry configuration values
const (
	DefaultRetryInitialBackoffMs   = 1000
	DefaultRetryMaxBackoffMs       = 60000
	DefaultRetryMaxAttempts        = 5
	DefaultCheckpointRetryAttempts = 3
)

// Default server values
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)
