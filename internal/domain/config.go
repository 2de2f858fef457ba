package domain

import "time"

// AppConfig is the normalized engine configuration.
type AppConfig struct {
	BuiltinDir         string                    `json:"builtinDir"`
	CustomToolsetPaths []string                  `json:"customToolsetPaths"`
	Toolsets           map[string]map[string]any `json:"toolsets"`
	StatusCache        StatusCacheConfig         `json:"statusCache"`
	Prerequisites      PrerequisiteConfig        `json:"prerequisites"`
	Tools              ToolConfig                `json:"tools"`
	Remote             RemoteConfig              `json:"remote"`
	Sessions           SessionConfig             `json:"sessions"`
	Observability      ObservabilityConfig       `json:"observability"`
	Log                LogConfig                 `json:"log"`
}

type StatusCacheConfig struct {
	Path   string        `json:"path"`
	MaxAge time.Duration `json:"maxAge"`
}

type PrerequisiteConfig struct {
	Timeout time.Duration `json:"timeout"`
}

type ToolConfig struct {
	CommandTimeout time.Duration `json:"commandTimeout"`
}

type RemoteConfig struct {
	MaxRetries   int           `json:"maxRetries"`
	ToolCacheTTL time.Duration `json:"toolCacheTTL"`
}

type SessionConfig struct {
	ArchivePath string `json:"archivePath,omitempty"`
}

type ObservabilityConfig struct {
	ListenAddress string `json:"listenAddress"`
	Enabled       bool   `json:"enabled"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}
