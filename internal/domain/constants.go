package domain

import "time"

const (
	DefaultStatusCacheMaxAge       = time.Hour
	DefaultStatusCacheFile         = "toolsets_status.json"
	DefaultPrerequisiteTimeout     = 10 * time.Second
	DefaultToolCommandTimeout      = 60 * time.Second
	DefaultTTLCacheMinSweep        = 60 * time.Second
	DefaultRemoteMaxRetries        = 1
	DefaultRemoteToolCacheTTL      = 5 * time.Minute
	DefaultObservabilityListenAddr = "127.0.0.1:9090"
	DefaultLogLevel                = "info"
	DefaultLogFormat               = "console"
	DefaultReloadDebounce          = 200 * time.Millisecond
	DefaultConfigEnvPrefix         = "HOLMES"
)
