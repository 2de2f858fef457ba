package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"holmes/internal/domain"
)

type rawConfig struct {
	BuiltinDir         string           `mapstructure:"builtinDir"`
	CustomToolsetPaths []string         `mapstructure:"customToolsetPaths"`
	StatusCache        rawStatusCache   `mapstructure:"statusCache"`
	Prerequisites      rawPrerequisites `mapstructure:"prerequisites"`
	Tools              rawTools         `mapstructure:"tools"`
	Remote             rawRemote        `mapstructure:"remote"`
	Sessions           rawSessions      `mapstructure:"sessions"`
	Observability      rawObservability `mapstructure:"observability"`
	Log                rawLog           `mapstructure:"log"`
}

type rawStatusCache struct {
	Path          string `mapstructure:"path"`
	MaxAgeSeconds int    `mapstructure:"maxAgeSeconds"`
}

type rawPrerequisites struct {
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type rawTools struct {
	CommandTimeoutSeconds int `mapstructure:"commandTimeoutSeconds"`
}

type rawRemote struct {
	MaxRetries          int `mapstructure:"maxRetries"`
	ToolCacheTTLSeconds int `mapstructure:"toolCacheTTLSeconds"`
}

type rawSessions struct {
	ArchivePath string `mapstructure:"archivePath"`
}

type rawObservability struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listenAddress"`
}

type rawLog struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// toolsetsSection is decoded separately because viper folds key case and
// splits on dots, both of which toolset names may carry.
type toolsetsSection struct {
	Toolsets map[string]map[string]any `yaml:"toolsets"`
}

// LoadConfig reads the YAML config at path, applies HOLMES_ environment
// overrides and normalizes the result. An empty path yields the defaults.
func LoadConfig(path string) (domain.AppConfig, error) {
	var data []byte
	baseDir := ""
	if strings.TrimSpace(path) != "" {
		expanded, err := expandHome(path)
		if err != nil {
			return domain.AppConfig{}, domain.Wrap(domain.CodeInvalidArgument, "load config", err)
		}
		data, err = os.ReadFile(expanded)
		if err != nil {
			return domain.AppConfig{}, domain.Wrap(domain.CodeLoadFailed, "load config", fmt.Errorf("read %s: %w", expanded, err))
		}
		baseDir = filepath.Dir(expanded)
	}

	v := newConfigViper()
	if err := v.ReadConfig(bytes.NewBuffer(data)); err != nil {
		return domain.AppConfig{}, domain.Wrap(domain.CodeInvalidArgument, "parse config", err)
	}
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.AppConfig{}, domain.Wrap(domain.CodeInvalidArgument, "decode config", err)
	}

	var section toolsetsSection
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &section); err != nil {
			return domain.AppConfig{}, domain.Wrap(domain.CodeInvalidArgument, "parse toolsets", err)
		}
	}

	cfg, errs := normalizeConfig(raw, section.Toolsets, baseDir)
	if len(errs) > 0 {
		return domain.AppConfig{}, domain.E(domain.CodeInvalidArgument, "load config", strings.Join(errs, "; "), nil)
	}
	return cfg, nil
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(domain.DefaultConfigEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("builtinDir", "")
	v.SetDefault("customToolsetPaths", []string{})
	v.SetDefault("statusCache.path", filepath.Join("~", ".holmes", "cache", domain.DefaultStatusCacheFile))
	v.SetDefault("statusCache.maxAgeSeconds", int(domain.DefaultStatusCacheMaxAge/time.Second))
	v.SetDefault("prerequisites.timeoutSeconds", int(domain.DefaultPrerequisiteTimeout/time.Second))
	v.SetDefault("tools.commandTimeoutSeconds", int(domain.DefaultToolCommandTimeout/time.Second))
	v.SetDefault("remote.maxRetries", domain.DefaultRemoteMaxRetries)
	v.SetDefault("remote.toolCacheTTLSeconds", int(domain.DefaultRemoteToolCacheTTL/time.Second))
	v.SetDefault("sessions.archivePath", "")
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddr)
	v.SetDefault("log.level", domain.DefaultLogLevel)
	v.SetDefault("log.format", domain.DefaultLogFormat)
}

func normalizeConfig(raw rawConfig, toolsets map[string]map[string]any, baseDir string) (domain.AppConfig, []string) {
	var errs []string

	resolve := func(field, value string) string {
		value = strings.TrimSpace(value)
		if value == "" {
			return ""
		}
		expanded, err := expandHome(value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", field, err))
			return ""
		}
		if !filepath.IsAbs(expanded) && baseDir != "" {
			expanded = filepath.Join(baseDir, expanded)
		}
		return filepath.Clean(expanded)
	}

	cfg := domain.AppConfig{
		BuiltinDir: resolve("builtinDir", raw.BuiltinDir),
		Toolsets:   make(map[string]map[string]any, len(toolsets)),
	}

	seen := make(map[string]struct{}, len(raw.CustomToolsetPaths))
	for i, path := range raw.CustomToolsetPaths {
		resolved := resolve(fmt.Sprintf("customToolsetPaths[%d]", i), path)
		if resolved == "" {
			continue
		}
		if _, ok := seen[resolved]; ok {
			continue
		}
		seen[resolved] = struct{}{}
		cfg.CustomToolsetPaths = append(cfg.CustomToolsetPaths, resolved)
	}

	for name, definition := range toolsets {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "toolsets: name must not be empty")
			continue
		}
		if definition == nil {
			definition = map[string]any{}
		}
		cfg.Toolsets[name] = definition
	}

	cfg.StatusCache.Path = resolve("statusCache.path", raw.StatusCache.Path)
	if cfg.StatusCache.Path == "" {
		errs = append(errs, "statusCache.path must not be empty")
	}
	cfg.StatusCache.MaxAge = positiveSeconds(&errs, "statusCache.maxAgeSeconds", raw.StatusCache.MaxAgeSeconds)
	cfg.Prerequisites.Timeout = positiveSeconds(&errs, "prerequisites.timeoutSeconds", raw.Prerequisites.TimeoutSeconds)
	cfg.Tools.CommandTimeout = positiveSeconds(&errs, "tools.commandTimeoutSeconds", raw.Tools.CommandTimeoutSeconds)

	if raw.Remote.MaxRetries < -1 {
		errs = append(errs, "remote.maxRetries must be >= -1")
	}
	cfg.Remote.MaxRetries = raw.Remote.MaxRetries
	if raw.Remote.ToolCacheTTLSeconds < 0 {
		errs = append(errs, "remote.toolCacheTTLSeconds must be >= 0")
	}
	cfg.Remote.ToolCacheTTL = time.Duration(raw.Remote.ToolCacheTTLSeconds) * time.Second

	cfg.Sessions.ArchivePath = resolve("sessions.archivePath", raw.Sessions.ArchivePath)

	cfg.Observability.Enabled = raw.Observability.Enabled
	cfg.Observability.ListenAddress = strings.TrimSpace(raw.Observability.ListenAddress)
	if cfg.Observability.Enabled && cfg.Observability.ListenAddress == "" {
		errs = append(errs, "observability.listenAddress is required when observability is enabled")
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(raw.Log.Level))
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level: %v", err))
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	switch cfg.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be console or json, got %q", raw.Log.Format))
	}

	return cfg, errs
}

func positiveSeconds(errs *[]string, field string, value int) time.Duration {
	if value <= 0 {
		*errs = append(*errs, field+" must be > 0")
		return 0
	}
	return time.Duration(value) * time.Second
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if home == "" {
		return "", errors.New("home directory is unknown")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
